// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP gateway of the auth broker. It owns routing,
// middleware, authentication of each route, and the mapping from typed errors
// to wire responses. Handlers stay thin; domain behavior lives in the store
// and connector packages.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flaim-app/auth-broker/pkg/auth"
	"github.com/flaim-app/auth-broker/pkg/config"
	"github.com/flaim-app/auth-broker/pkg/espn"
	"github.com/flaim-app/auth-broker/pkg/oauthserver"
	"github.com/flaim-app/auth-broker/pkg/season"
	"github.com/flaim-app/auth-broker/pkg/sleeper"
	"github.com/flaim-app/auth-broker/pkg/store"
	"github.com/flaim-app/auth-broker/pkg/yahoo"
)

// EspnStore is the ESPN persistence surface the gateway uses.
type EspnStore interface {
	UpsertCredentials(ctx context.Context, userID, swid, s2 string, email *string) error
	GetCredentials(ctx context.Context, userID string) (*store.EspnCredentials, error)
	DeleteCredentials(ctx context.Context, userID string) error
	ListLeagues(ctx context.Context, userID string) ([]store.EspnLeague, error)
	SetLeagues(ctx context.Context, userID string, leagues []store.EspnLeague) error
	AddLeague(ctx context.Context, l *store.EspnLeague) (store.AddOutcome, error)
	RemoveLeague(ctx context.Context, userID, leagueID string, sport season.Sport) (bool, error)
	UpdateTeam(ctx context.Context, userID, leagueID string, sport season.Sport, seasonYear *int, teamID string, teamName, leagueName *string) (bool, error)
}

// EspnDiscoverer runs ESPN league discovery against stored credentials.
type EspnDiscoverer interface {
	Discover(ctx context.Context, userID, swid, s2 string) (*espn.Result, error)
}

// YahooConnector is the Yahoo OAuth lifecycle surface.
type YahooConnector interface {
	Configured() bool
	AuthorizeURL(ctx context.Context, userID string) (string, error)
	Callback(ctx context.Context, code, state string) *yahoo.CallbackResult
	Credentials(ctx context.Context, userID string) (*store.YahooCredentials, error)
	Status(ctx context.Context, userID string) (*yahoo.Status, error)
	Disconnect(ctx context.Context, userID string) error
	Discover(ctx context.Context, userID string) (*yahoo.DiscoveryResult, error)
}

// YahooLeagueStore is the Yahoo league persistence surface.
type YahooLeagueStore interface {
	ListLeagues(ctx context.Context, userID string) ([]store.YahooLeague, error)
	RemoveLeague(ctx context.Context, userID, leagueKey string) (bool, error)
}

// SleeperDiscoverer links a Sleeper account and imports its leagues.
type SleeperDiscoverer interface {
	Discover(ctx context.Context, userID, username string) (*sleeper.Result, error)
}

// PreferenceStore is the user-preference persistence surface.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*store.Preferences, error)
	SetDefaultSport(ctx context.Context, userID string, sport *season.Sport) error
	SetDefaultLeague(ctx context.Context, userID, platform string, sport season.Sport, leagueID string, seasonYear int) error
	ClearDefaultLeague(ctx context.Context, userID string, sport season.Sport) error
}

// RateLimiter counts raw-credential reads per user per UTC day.
type RateLimiter interface {
	Increment(ctx context.Context, userID string, now time.Time) (int, error)
}

// Server wires the gateway's dependencies together.
type Server struct {
	cfg           *config.Config
	authenticator *auth.Authenticator
	oauth         *oauthserver.Handler

	espn          EspnStore
	espnDiscovery EspnDiscoverer
	yahooConn     YahooConnector
	yahooLeagues  YahooLeagueStore
	sleeperDisc   SleeperDiscoverer
	prefs         PreferenceStore
	rates         RateLimiter

	now func() time.Time
}

// Deps carries everything a Server needs.
type Deps struct {
	Config        *config.Config
	Authenticator *auth.Authenticator
	OAuth         *oauthserver.Handler
	Espn          EspnStore
	EspnDiscovery EspnDiscoverer
	Yahoo         YahooConnector
	YahooLeagues  YahooLeagueStore
	Sleeper       SleeperDiscoverer
	Preferences   PreferenceStore
	RateLimiter   RateLimiter
}

// NewServer creates the gateway.
func NewServer(d Deps) *Server {
	return &Server{
		cfg:           d.Config,
		authenticator: d.Authenticator,
		oauth:         d.OAuth,
		espn:          d.Espn,
		espnDiscovery: d.EspnDiscovery,
		yahooConn:     d.Yahoo,
		yahooLeagues:  d.YahooLeagues,
		sleeperDisc:   d.Sleeper,
		prefs:         d.Preferences,
		rates:         d.RateLimiter,
		now:           time.Now,
	}
}

// Router builds the chi mux. Every route is served both at the root and under
// /auth; the /auth-preview mount exists only in the preview environment.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer, s.cors, s.trace)

	s.routes(r)
	r.Route("/auth", s.routes)
	if s.cfg.IsPreview() {
		r.Route("/auth-preview", s.routes)
	}
	return r
}

func (s *Server) routes(r chi.Router) {
	s.oauth.Routes(r)

	r.Get("/health", s.health)

	r.Get("/credentials/espn", s.getEspnCredentials)
	r.Post("/credentials/espn", s.putEspnCredentials)
	r.Put("/credentials/espn", s.putEspnCredentials)
	r.Delete("/credentials/espn", s.deleteEspnCredentials)

	r.Get("/leagues", s.listLeagues)
	r.Post("/leagues", s.setLeagues)
	r.Put("/leagues", s.setLeagues)
	r.Delete("/leagues", s.removeLeague)
	r.Post("/leagues/add", s.addLeague)
	r.Post("/leagues/default", s.setDefaultLeague)
	r.Delete("/leagues/default/{sport}", s.clearDefaultLeague)
	r.Patch("/leagues/{leagueID}/team", s.updateTeam)
	r.Get("/leagues/yahoo", s.listYahooLeagues)
	r.Delete("/leagues/yahoo/{leagueKey}", s.removeYahooLeague)

	r.Get("/connect/yahoo/authorize", s.yahooAuthorize)
	r.Get("/connect/yahoo/callback", s.yahooCallback)
	r.Get("/connect/yahoo/credentials", s.yahooCredentials)
	r.Get("/connect/yahoo/status", s.yahooStatus)
	r.Delete("/connect/yahoo/disconnect", s.yahooDisconnect)
	r.Post("/connect/yahoo/discover", s.yahooDiscover)
	r.Post("/connect/espn/discover", s.espnDiscover)
	r.Post("/connect/sleeper/discover", s.sleeperDiscover)

	r.Get("/user/preferences", s.getPreferences)
	r.Post("/user/preferences/default-sport", s.setDefaultSport)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"environment": s.cfg.Environment,
	})
}

// requireIdP admits only IdP-JWT principals.
func (s *Server) requireIdP(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	principal, err := s.authenticator.Authenticate(r, auth.Options{})
	if err != nil || principal.Method != auth.MethodJWT {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Authentication required"})
		return nil, false
	}
	return principal, true
}

// requireUser admits IdP JWTs and the eval API key.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	principal, err := s.authenticator.Authenticate(r, auth.Options{AllowEvalKey: true})
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return nil, false
	}
	return principal, true
}
