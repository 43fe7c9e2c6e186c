// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package yahoo connects user accounts to Yahoo Fantasy via three-legged
// OAuth and keeps the stored access token fresh.
package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// Yahoo OAuth endpoints.
var yahooEndpoint = oauth2.Endpoint{
	AuthURL:  "https://api.login.yahoo.com/oauth2/request_auth",
	TokenURL: "https://api.login.yahoo.com/oauth2/get_token",
}

// scopeFantasyRead is read access to Yahoo Fantasy Sports.
const scopeFantasyRead = "fspt-r"

// stateTTL bounds how long an outbound OAuth state stays redeemable.
const stateTTL = 10 * time.Minute

// CredentialStore is the slice of the Yahoo store the connector needs.
type CredentialStore interface {
	UpsertCredentials(ctx context.Context, c *store.YahooCredentials) error
	GetCredentials(ctx context.Context, userID string) (*store.YahooCredentials, error)
	DeleteCredentials(ctx context.Context, userID string) error
	UpsertLeague(ctx context.Context, l *store.YahooLeague) error
	ListLeagues(ctx context.Context, userID string) ([]store.YahooLeague, error)
}

// StateStore is the slice of the platform state store the connector needs.
type StateStore interface {
	Create(ctx context.Context, st *store.PlatformState) error
	Consume(ctx context.Context, state string) (*store.PlatformState, error)
}

// Connector drives the Yahoo OAuth flow and credential lifecycle.
type Connector struct {
	oauth       *oauth2.Config
	credentials CredentialStore
	states      StateStore
	frontendURL string
	now         func() time.Time

	fantasyBaseURL string
	fantasyHTTP    *http.Client
}

// Config wires a Connector.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	FrontendURL  string
	Credentials  CredentialStore
	States       StateStore

	// Endpoint overrides the Yahoo OAuth endpoints, for tests.
	Endpoint *oauth2.Endpoint
}

// NewConnector creates a Connector.
func NewConnector(cfg Config) *Connector {
	endpoint := yahooEndpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &Connector{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       []string{scopeFantasyRead},
		},
		credentials: cfg.Credentials,
		states:      cfg.States,
		frontendURL: cfg.FrontendURL,
		now:         time.Now,
	}
}

// Configured reports whether Yahoo client credentials are present.
func (c *Connector) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthorizeURL mints a CSRF state bound to the user and returns the Yahoo
// consent URL to redirect them to.
func (c *Connector) AuthorizeURL(ctx context.Context, userID string) (string, error) {
	if !c.Configured() {
		return "", brokererrors.NewInternalError("Yahoo integration is not configured", nil)
	}
	state := userID + ":" + uuid.NewString()
	err := c.states.Create(ctx, &store.PlatformState{
		State:     state,
		UserID:    userID,
		Platform:  "yahoo",
		ExpiresAt: c.now().Add(stateTTL),
	})
	if err != nil {
		return "", fmt.Errorf("park yahoo state: %w", err)
	}
	return c.oauth.AuthCodeURL(state), nil
}

// CallbackResult tells the HTTP layer where to send the browser after the
// callback, successful or not.
type CallbackResult struct {
	RedirectURL string
	Connected   bool
}

// Callback consumes Yahoo's redirect. Failures become an error kind in the
// frontend redirect rather than an error page: the browser is mid-flow.
func (c *Connector) Callback(ctx context.Context, code, state string) *CallbackResult {
	fail := func(kind string) *CallbackResult {
		return &CallbackResult{RedirectURL: c.leaguesURL("error", kind)}
	}

	if code == "" || state == "" {
		return fail("missing_parameters")
	}
	st, err := c.states.Consume(ctx, state)
	if err != nil {
		logger.Errorw("yahoo state lookup failed", "error", err)
		return fail("state_lookup_failed")
	}
	if st == nil {
		return fail("invalid_state")
	}

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		logger.Warnw("yahoo code exchange failed", "user_id", st.UserID, "error", err)
		return fail("token_exchange_failed")
	}
	if token.RefreshToken == "" {
		logger.Warnw("yahoo returned no refresh token", "user_id", st.UserID)
		return fail("token_exchange_failed")
	}

	creds := &store.YahooCredentials{
		UserID:       st.UserID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if guid, ok := token.Extra("xoauth_yahoo_guid").(string); ok && guid != "" {
		creds.YahooGUID = &guid
	}
	if err := c.credentials.UpsertCredentials(ctx, creds); err != nil {
		logger.Errorw("failed to store yahoo credentials", "user_id", st.UserID, "error", err)
		return fail("storage_failed")
	}

	logger.Infow("yahoo account connected", "user_id", st.UserID)
	return &CallbackResult{
		RedirectURL: c.leaguesURL("yahoo", "connected"),
		Connected:   true,
	}
}

func (c *Connector) leaguesURL(key, value string) string {
	u, _ := url.Parse(c.frontendURL + "/leagues")
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// Credentials returns a usable token pair for the user, refreshing first when
// the access token is inside the expiry buffer. A failed refresh never
// clobbers the stored refresh token; the user may retry once Yahoo recovers.
func (c *Connector) Credentials(ctx context.Context, userID string) (*store.YahooCredentials, error) {
	creds, err := c.credentials.GetCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, brokererrors.NewNotFoundError("No Yahoo credentials found", nil)
	}
	if !creds.NeedsRefresh(c.now()) {
		return creds, nil
	}
	return c.refresh(ctx, creds)
}

func (c *Connector) refresh(ctx context.Context, creds *store.YahooCredentials) (*store.YahooCredentials, error) {
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := src.Token()
	if err != nil {
		logger.Warnw("yahoo token refresh failed", "user_id", creds.UserID, "error", err)
		return nil, brokererrors.NewUnauthorizedError("refresh_failed", err)
	}

	refreshed := &store.YahooCredentials{
		UserID:       creds.UserID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		YahooGUID:    creds.YahooGUID,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	if err := c.credentials.UpsertCredentials(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("store refreshed yahoo credentials: %w", err)
	}
	return refreshed, nil
}

// Status describes the user's Yahoo connection for the frontend.
type Status struct {
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	YahooGUID *string    `json:"yahooGuid,omitempty"`
}

// Status reports whether the user has a Yahoo connection.
func (c *Connector) Status(ctx context.Context, userID string) (*Status, error) {
	creds, err := c.credentials.GetCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return &Status{}, nil
	}
	return &Status{
		Connected: true,
		ExpiresAt: &creds.ExpiresAt,
		YahooGUID: creds.YahooGUID,
	}, nil
}

// Disconnect drops the user's Yahoo credentials. Discovered leagues remain
// stored; only the ability to act on them goes away.
func (c *Connector) Disconnect(ctx context.Context, userID string) error {
	return c.credentials.DeleteCredentials(ctx, userID)
}

// sportForGameCode maps Yahoo game codes to sports.
func sportForGameCode(code string) (string, bool) {
	switch strings.ToLower(code) {
	case "nfl":
		return "football", true
	case "mlb":
		return "baseball", true
	case "nba":
		return "basketball", true
	case "nhl":
		return "hockey", true
	}
	return "", false
}
