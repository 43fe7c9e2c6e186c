// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package oauthserver

import (
	"encoding/json"
	"net/http"

	"github.com/flaim-app/auth-broker/pkg/auth"
	"github.com/flaim-app/auth-broker/pkg/logger"
)

// introspect validates the bearer token presented by the downstream MCP
// gateway. The token under inspection is the Authorization header itself; the
// eval key is accepted here so evaluation traffic can pass the same gate.
// X-Flaim-Expected-Resource carries the resource the gateway is serving, so
// resource-bound tokens are rejected at the source.
func (h *Handler) introspect(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authenticator.Authenticate(r, auth.Options{
		ExpectedResource: r.Header.Get("X-Flaim-Expected-Resource"),
		AllowEvalKey:     true,
	})
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"userId": principal.UserID,
		"scope":  principal.Scope,
	})
}

// status lists the caller's live grants so the frontend can render a
// connected-clients view. Token values themselves never leave the server.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authenticator.Authenticate(r, auth.Options{})
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	tokens, err := h.grants.ListActiveForUser(r.Context(), principal.UserID)
	if err != nil {
		logger.Errorw("failed to list tokens", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}

	grants := make([]map[string]any, 0, len(tokens))
	for _, t := range tokens {
		g := map[string]any{
			"client_name": t.ClientName,
			"scope":       splitScopes(t.Scope),
			"created_at":  t.CreatedAt,
			"expires_at":  t.ExpiresAt,
		}
		if t.Resource != nil {
			g["resource"] = *t.Resource
		}
		grants = append(grants, g)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": len(grants) > 0,
		"grants":    grants,
	})
}

// revokeOwn revokes a single access token, but only when it belongs to the
// caller. Unknown tokens are reported as revoked so the endpoint leaks
// nothing about other users' grants.
func (h *Handler) revokeOwn(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authenticator.Authenticate(r, auth.Options{})
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	token, err := h.grants.GetByAccessToken(r.Context(), req.Token)
	if err != nil {
		logger.Errorw("failed to load token", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}
	if token != nil && token.UserID == principal.UserID {
		if err := h.grants.RevokeAccessToken(r.Context(), req.Token); err != nil {
			logger.Errorw("failed to revoke token", "error", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
			return
		}
		logger.Infow("revoked grant", "user_id", principal.UserID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

// revokeAll revokes every live grant the caller holds.
func (h *Handler) revokeAll(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authenticator.Authenticate(r, auth.Options{})
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	n, err := h.grants.RevokeAllForUser(r.Context(), principal.UserID)
	if err != nil {
		logger.Errorw("failed to revoke tokens", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}

	logger.Infow("revoked all grants", "user_id", principal.UserID, "count", n)
	writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
}
