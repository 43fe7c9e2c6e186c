// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flaim-app/auth-broker/pkg/espn"
	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// getEspnCredentials serves three views of the stored cookie pair: the
// default setup-status shape, ?raw=true for downstream workers (eval key
// allowed, rate limited), and ?forEdit=true to prefill the settings form.
func (s *Server) getEspnCredentials(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Query().Get("raw") == "true":
		s.getRawEspnCredentials(w, r)
	case r.URL.Query().Get("forEdit") == "true":
		s.getEspnCredentialsForEdit(w, r)
	default:
		s.getEspnSetupStatus(w, r)
	}
}

func (s *Server) getEspnSetupStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	creds, err := s.espn.GetCredentials(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	leagues, err := s.espn.ListLeagues(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	hasDefaultTeam := false
	for _, l := range leagues {
		if l.TeamID != nil && *l.TeamID != "" {
			hasDefaultTeam = true
			break
		}
	}

	body := map[string]any{
		"hasCredentials": creds != nil,
		"hasLeagues":     len(leagues) > 0,
		"hasDefaultTeam": hasDefaultTeam,
		"platform":       "espn",
	}
	if creds != nil {
		if creds.Email != nil {
			body["email"] = *creds.Email
		}
		body["lastUpdated"] = creds.UpdatedAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) getRawEspnCredentials(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if !s.enforceRateLimit(w, r, principal.UserID) {
		return
	}

	creds, err := s.espn.GetCredentials(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if creds == nil {
		writeError(w, brokererrors.NewNotFoundError("No ESPN credentials found", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"platform": "espn",
		"credentials": map[string]string{
			"swid": creds.SWID,
			"s2":   creds.S2,
		},
	})
}

func (s *Server) getEspnCredentialsForEdit(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	creds, err := s.espn.GetCredentials(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if creds == nil {
		writeError(w, brokererrors.NewNotFoundError("No ESPN credentials found", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hasCredentials": true,
		"swid":           creds.SWID,
		"s2":             creds.S2,
	})
}

func (s *Server) putEspnCredentials(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	var req struct {
		SWID  string  `json:"swid"`
		S2    string  `json:"s2"`
		Email *string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.espn.UpsertCredentials(r.Context(), principal.UserID, req.SWID, req.S2, req.Email); err != nil {
		writeError(w, err)
		return
	}
	logger.Infow("espn credentials stored", "user_id", principal.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "platform": "espn"})
}

func (s *Server) deleteEspnCredentials(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	if err := s.espn.DeleteCredentials(r.Context(), principal.UserID); err != nil {
		writeError(w, err)
		return
	}
	logger.Infow("espn credentials deleted", "user_id", principal.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// leaguePayload is the wire shape of one ESPN league row.
type leaguePayload struct {
	LeagueID   string  `json:"leagueId"`
	Sport      string  `json:"sport"`
	SeasonYear int     `json:"seasonYear"`
	TeamID     *string `json:"teamId,omitempty"`
	TeamName   *string `json:"teamName,omitempty"`
	LeagueName *string `json:"leagueName,omitempty"`
	Platform   string  `json:"platform"`
}

func toLeaguePayload(l store.EspnLeague) leaguePayload {
	return leaguePayload{
		LeagueID:   l.LeagueID,
		Sport:      string(l.Sport),
		SeasonYear: l.SeasonYear,
		TeamID:     l.TeamID,
		TeamName:   l.TeamName,
		LeagueName: l.LeagueName,
		Platform:   "espn",
	}
}

func (s *Server) listLeagues(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	leagues, err := s.espn.ListLeagues(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]leaguePayload, 0, len(leagues))
	for _, l := range leagues {
		out = append(out, toLeaguePayload(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leagues":      out,
		"totalLeagues": len(out),
	})
}

// parseLeague validates one inbound league row.
func parseLeague(userID string, in leaguePayload) (*store.EspnLeague, error) {
	sport, err := parseSport(in.Sport)
	if err != nil {
		return nil, err
	}
	if in.LeagueID == "" {
		return nil, brokererrors.NewInvalidArgumentError("leagueId is required", nil)
	}
	if in.SeasonYear == 0 {
		return nil, brokererrors.NewInvalidArgumentError("seasonYear is required", nil)
	}
	return &store.EspnLeague{
		UserID:     userID,
		Sport:      sport,
		LeagueID:   in.LeagueID,
		SeasonYear: in.SeasonYear,
		TeamID:     in.TeamID,
		TeamName:   in.TeamName,
		LeagueName: in.LeagueName,
	}, nil
}

func (s *Server) setLeagues(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	var req struct {
		Leagues []leaguePayload `json:"leagues"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	leagues := make([]store.EspnLeague, 0, len(req.Leagues))
	for _, in := range req.Leagues {
		l, err := parseLeague(principal.UserID, in)
		if err != nil {
			writeError(w, err)
			return
		}
		leagues = append(leagues, *l)
	}

	if err := s.espn.SetLeagues(r.Context(), principal.UserID, leagues); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"totalLeagues": len(leagues),
	})
}

func (s *Server) removeLeague(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	leagueID := r.URL.Query().Get("leagueId")
	sport, err := parseSport(r.URL.Query().Get("sport"))
	if err != nil {
		writeError(w, err)
		return
	}
	if leagueID == "" {
		writeError(w, brokererrors.NewInvalidArgumentError("leagueId is required", nil))
		return
	}

	removed, err := s.espn.RemoveLeague(r.Context(), principal.UserID, leagueID, sport)
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

func (s *Server) addLeague(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	var req leaguePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	l, err := parseLeague(principal.UserID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := s.espn.AddLeague(r.Context(), l)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "DB_ERROR"})
		return
	}
	switch outcome {
	case store.LeagueDuplicate:
		writeJSON(w, http.StatusConflict, map[string]any{"error": string(store.LeagueDuplicate)})
	case store.LeagueLimitExceeded:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": string(store.LeagueLimitExceeded)})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "league": toLeaguePayload(*l)})
	}
}

func (s *Server) setDefaultLeague(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	var req struct {
		Platform   string `json:"platform"`
		LeagueID   string `json:"leagueId"`
		Sport      string `json:"sport"`
		SeasonYear int    `json:"seasonYear"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sport, err := parseSport(req.Sport)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.prefs.SetDefaultLeague(r.Context(), principal.UserID, req.Platform, sport, req.LeagueID, req.SeasonYear)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) clearDefaultLeague(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	sport, err := parseSport(chi.URLParam(r, "sport"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.prefs.ClearDefaultLeague(r.Context(), principal.UserID, sport); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) updateTeam(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}
	leagueID := chi.URLParam(r, "leagueID")

	var req struct {
		TeamID     string  `json:"teamId"`
		Sport      string  `json:"sport"`
		TeamName   *string `json:"teamName"`
		LeagueName *string `json:"leagueName"`
		SeasonYear *int    `json:"seasonYear"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TeamID == "" {
		writeError(w, brokererrors.NewInvalidArgumentError("teamId is required", nil))
		return
	}
	sport, err := parseSport(req.Sport)
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.espn.UpdateTeam(r.Context(), principal.UserID, leagueID, sport,
		req.SeasonYear, req.TeamID, req.TeamName, req.LeagueName)
	if err != nil {
		writeError(w, err)
		return
	}
	if !updated {
		writeError(w, brokererrors.NewNotFoundError("League not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// espnDiscover runs league discovery with the stored cookie pair. An empty
// fan profile is reported as a zero-count success so the frontend can show
// "nothing found" rather than an error page.
func (s *Server) espnDiscover(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	creds, err := s.espn.GetCredentials(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if creds == nil {
		writeError(w, brokererrors.NewNotFoundError("No ESPN credentials found", nil))
		return
	}

	result, err := s.espnDiscovery.Discover(r.Context(), principal.UserID, creds.SWID, creds.S2)
	if brokererrors.IsType(err, brokererrors.ErrDiscoveryFailed) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"message":       "No fantasy leagues found",
			"discovered":    []espn.DiscoveredLeague{},
			"currentSeason": espn.SeasonTally{},
			"pastSeasons":   espn.SeasonTally{},
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"discovered":    result.Discovered,
		"currentSeason": result.CurrentSeason,
		"pastSeasons":   result.PastSeasons,
	})
}
