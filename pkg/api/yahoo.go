// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// yahooAuthorize starts the outbound OAuth flow: mint a state bound to the
// caller and bounce the browser to Yahoo's consent page.
func (s *Server) yahooAuthorize(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	authURL, err := s.yahooConn.AuthorizeURL(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// yahooCallback is public: Yahoo redirects the browser here. Outcomes,
// including failures, travel to the frontend as query parameters.
func (s *Server) yahooCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result := s.yahooConn.Callback(r.Context(), q.Get("code"), q.Get("state"))
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// yahooCredentials hands a live access token to downstream workers,
// refreshing transparently when it is close to expiry.
func (s *Server) yahooCredentials(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	creds, err := s.yahooConn.Credentials(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	expiresIn := int(creds.ExpiresAt.Sub(s.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": creds.AccessToken,
		"expires_in":   expiresIn,
	})
}

func (s *Server) yahooStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	status, err := s.yahooConn.Status(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) yahooDisconnect(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	if err := s.yahooConn.Disconnect(r.Context(), principal.UserID); err != nil {
		writeError(w, err)
		return
	}
	logger.Infow("yahoo account disconnected", "user_id", principal.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) yahooDiscover(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	result, err := s.yahooConn.Discover(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"leagues_found": result.LeaguesFound,
	})
}

// yahooLeaguePayload is the wire shape of one Yahoo league row.
type yahooLeaguePayload struct {
	LeagueKey  string  `json:"leagueKey"`
	Sport      string  `json:"sport"`
	SeasonYear int     `json:"seasonYear"`
	LeagueName *string `json:"leagueName,omitempty"`
	TeamKey    *string `json:"teamKey,omitempty"`
	TeamName   *string `json:"teamName,omitempty"`
	Platform   string  `json:"platform"`
}

func (s *Server) listYahooLeagues(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	leagues, err := s.yahooLeagues.ListLeagues(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]yahooLeaguePayload, 0, len(leagues))
	for _, l := range leagues {
		out = append(out, toYahooLeaguePayload(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leagues":      out,
		"totalLeagues": len(out),
	})
}

func toYahooLeaguePayload(l store.YahooLeague) yahooLeaguePayload {
	return yahooLeaguePayload{
		LeagueKey:  l.LeagueKey,
		Sport:      string(l.Sport),
		SeasonYear: l.SeasonYear,
		LeagueName: l.LeagueName,
		TeamKey:    l.TeamKey,
		TeamName:   l.TeamName,
		Platform:   "yahoo",
	}
}

func (s *Server) removeYahooLeague(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	leagueKey := chi.URLParam(r, "leagueKey")
	removed, err := s.yahooLeagues.RemoveLeague(r.Context(), principal.UserID, leagueKey)
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeError(w, brokererrors.NewNotFoundError("League not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
