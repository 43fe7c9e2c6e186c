// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package oauthserver implements the OAuth 2.1 authorization server MCP
// clients use to obtain access to the fantasy API on a user's behalf.
// Authorization codes, tokens, and in-flight authorize requests live in
// Postgres; clients are public and PKCE (S256) is mandatory.
package oauthserver

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flaim-app/auth-broker/pkg/auth"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// Grant lifetimes.
const (
	CodeTTL         = 10 * time.Minute
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Scopes this server issues.
const (
	ScopeRead  = "mcp:read"
	ScopeWrite = "mcp:write"
)

// GrantStore is the slice of the OAuth store the server needs.
type GrantStore interface {
	CreateCode(ctx context.Context, c *store.OAuthCode) error
	ConsumeCode(ctx context.Context, code string) (bool, error)
	GetCode(ctx context.Context, code string) (*store.OAuthCode, error)
	CreateToken(ctx context.Context, t *store.OAuthToken) error
	GetByAccessToken(ctx context.Context, accessToken string) (*store.OAuthToken, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*store.OAuthToken, error)
	RevokeAccessToken(ctx context.Context, accessToken string) error
	RevokeByRefreshToken(ctx context.Context, refreshToken string) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	ListActiveForUser(ctx context.Context, userID string) ([]store.OAuthToken, error)
}

// Handler serves the authorization server endpoints.
type Handler struct {
	grants        GrantStore
	authenticator *auth.Authenticator

	baseURL    string
	consentURL string

	now func() time.Time
}

// New creates a Handler. baseURL is the public issuer; consentURL is the
// frontend page that collects the user's consent mid-flow.
func New(grants GrantStore, authenticator *auth.Authenticator, baseURL, consentURL string) *Handler {
	return &Handler{
		grants:        grants,
		authenticator: authenticator,
		baseURL:       baseURL,
		consentURL:    consentURL,
		now:           time.Now,
	}
}

// Routes mounts the authorization server on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/.well-known/oauth-authorization-server", h.serverMetadata)
	r.Get("/.well-known/oauth-authorization-server/*", h.serverMetadata)
	r.Get("/.well-known/oauth-protected-resource", h.resourceMetadata)
	r.Get("/.well-known/oauth-protected-resource/*", h.resourceMetadata)

	r.Post("/register", h.register)
	r.Get("/authorize", h.authorize)
	r.Post("/token", h.token)
	r.Post("/revoke", h.revoke)
	r.Get("/introspect", h.introspect)

	r.Post("/oauth/code", h.mintCode)
	r.Post("/oauth/status", h.status)
	r.Post("/oauth/revoke", h.revokeOwn)
	r.Post("/oauth/revoke-all", h.revokeAll)
}

// randomToken returns n random bytes as unpadded base64url.
func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process cannot mint grants at all.
		logger.Fatalf("crypto/rand unavailable: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// oauthError is the RFC 6749 error body.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to write response", "error", err)
	}
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, oauthError{Error: code, ErrorDescription: description})
}
