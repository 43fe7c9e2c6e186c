// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package oauthserver

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// tokenRequest is the union of the authorization_code and refresh_token
// grant parameters, accepted as form data or JSON.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
}

func parseTokenRequest(r *http.Request) (*tokenRequest, bool) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, false
		}
		return &req, true
	}
	if err := r.ParseForm(); err != nil {
		return nil, false
	}
	return &tokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
	}, true
}

// token implements the token endpoint for both supported grants.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	// Token responses carry credentials and must never be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	req, ok := parseTokenRequest(r)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	switch req.GrantType {
	case "authorization_code":
		h.exchangeCode(w, r, req)
	case "refresh_token":
		h.refreshGrant(w, r, req)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type",
			"grant_type must be authorization_code or refresh_token")
	}
}

func (h *Handler) exchangeCode(w http.ResponseWriter, r *http.Request, req *tokenRequest) {
	if req.Code == "" || req.RedirectURI == "" || req.CodeVerifier == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request",
			"code, redirect_uri and code_verifier are required")
		return
	}

	code, err := h.grants.GetCode(r.Context(), req.Code)
	if err != nil {
		logger.Errorw("failed to load authorization code", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}
	if code == nil || h.now().After(code.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "invalid or expired authorization code")
		return
	}
	if req.RedirectURI != code.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match")
		return
	}
	if !verifyPKCE(req.CodeVerifier, code.CodeChallenge) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match challenge")
		return
	}

	// Consumption comes after validation so a failed PKCE attempt does not
	// burn the code, but before minting so a replay can never double-issue.
	consumed, err := h.grants.ConsumeCode(r.Context(), req.Code)
	if err != nil {
		logger.Errorw("failed to consume authorization code", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}
	if !consumed {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code already used")
		return
	}

	h.issueTokens(w, r, code.UserID, code.Scope, code.Resource,
		clientNameForRedirect(code.RedirectURI))
}

func (h *Handler) refreshGrant(w http.ResponseWriter, r *http.Request, req *tokenRequest) {
	if req.RefreshToken == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	old, err := h.grants.GetByRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		logger.Errorw("failed to load refresh token", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}
	if old == nil || !old.RefreshActive(h.now()) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "invalid or expired refresh token")
		return
	}

	// Rotation: the old pair dies before the new one is minted.
	if err := h.grants.RevokeByRefreshToken(r.Context(), req.RefreshToken); err != nil {
		logger.Errorw("failed to rotate refresh token", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}

	h.issueTokens(w, r, old.UserID, old.Scope, old.Resource, old.ClientName)
}

func (h *Handler) issueTokens(w http.ResponseWriter, r *http.Request, userID, scope string, resource *string, clientName string) {
	accessToken := randomToken(32)
	refreshToken := randomToken(32)
	accessExpires := h.now().Add(AccessTokenTTL)
	refreshExpires := h.now().Add(RefreshTokenTTL)

	err := h.grants.CreateToken(r.Context(), &store.OAuthToken{
		AccessToken:           accessToken,
		UserID:                userID,
		Scope:                 scope,
		Resource:              resource,
		ClientName:            clientName,
		ExpiresAt:             accessExpires,
		RefreshToken:          &refreshToken,
		RefreshTokenExpiresAt: &refreshExpires,
	})
	if err != nil {
		logger.Errorw("failed to store token", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}

	logger.Infow("issued tokens", "user_id", userID, "client_name", clientName)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    h.expiresIn(accessExpires),
		"refresh_token": refreshToken,
		"scope":         scope,
	})
}

// verifyPKCE checks S256: base64url(SHA256(verifier)) == challenge.
func verifyPKCE(verifier, challenge string) bool {
	return oauth2.S256ChallengeFromVerifier(verifier) == challenge
}

// revoke implements RFC 7009. Per the RFC the endpoint answers 200 whether or
// not the token existed, so callers learn nothing from probing.
func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	hint := r.PostFormValue("token_type_hint")
	var err error
	if hint == "refresh_token" {
		err = h.grants.RevokeByRefreshToken(r.Context(), token)
	} else {
		err = h.grants.RevokeAccessToken(r.Context(), token)
		if err == nil && hint == "" {
			err = h.grants.RevokeByRefreshToken(r.Context(), token)
		}
	}
	if err != nil {
		logger.Errorw("revocation failed", "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// splitScopes is used by introspection responses.
func splitScopes(scope string) []string {
	return strings.Fields(scope)
}
