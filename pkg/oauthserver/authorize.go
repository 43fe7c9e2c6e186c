// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package oauthserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/flaim-app/auth-broker/pkg/auth"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// register implements RFC 7591 dynamic client registration. Clients are
// public and registration is stateless accept-and-echo: the redirect URI
// policy is what actually gates the flow, enforced at authorize and mint time.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientName   string   `json:"client_name"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "request body must be JSON")
		return
	}

	clientID := "mcp_" + randomToken(32)
	logger.Infow("registered OAuth client", "client_id", clientID, "client_name", req.ClientName)
	writeJSON(w, http.StatusCreated, map[string]any{
		"client_id":                  clientID,
		"client_name":                req.ClientName,
		"redirect_uris":              req.RedirectURIs,
		"client_id_issued_at":        h.now().Unix(),
		"token_endpoint_auth_method": "none",
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
	})
}

// authorizeParams are the OAuth parameters carried through the consent hop.
var authorizeParams = []string{
	"client_id", "redirect_uri", "response_type", "scope", "state",
	"resource", "code_challenge", "code_challenge_method",
}

// authorize validates an authorization request and forwards the user, params
// and all, to the consent page. The redirect URI is validated before anything
// else: until it is trusted, errors must not be delivered by redirect.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || !redirectURIAllowed(redirectURI) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid or missing redirect_uri")
		return
	}

	if q.Get("response_type") != "code" {
		h.redirectError(w, r, redirectURI, q.Get("state"),
			"unsupported_response_type", "only response_type=code is supported")
		return
	}
	if q.Get("code_challenge") == "" {
		h.redirectError(w, r, redirectURI, q.Get("state"),
			"invalid_request", "code_challenge is required (PKCE)")
		return
	}
	if method := q.Get("code_challenge_method"); method != "" && method != "S256" {
		h.redirectError(w, r, redirectURI, q.Get("state"),
			"invalid_request", "only S256 code_challenge_method is supported")
		return
	}

	consent, err := url.Parse(h.consentURL)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}
	cq := consent.Query()
	for _, p := range authorizeParams {
		if v := q.Get(p); v != "" {
			cq.Set(p, v)
		}
	}
	consent.RawQuery = cq.Encode()
	http.Redirect(w, r, consent.String(), http.StatusFound)
}

// redirectError delivers an error to an already-validated redirect URI.
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state, code, description string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, code, description)
		return
	}
	q := u.Query()
	q.Set("error", code)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// mintCode exchanges a consented authorization request for a code. Only an
// IdP-authenticated user may call it: this is where the grant gets bound to a
// user identity, so every parameter is re-validated here rather than trusted
// from the consent page.
func (h *Handler) mintCode(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authenticator.Authenticate(r, auth.Options{})
	if err != nil || principal.Method != auth.MethodJWT {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "identity token required")
		return
	}

	var req struct {
		RedirectURI         string `json:"redirect_uri"`
		Scope               string `json:"scope"`
		State               string `json:"state"`
		Resource            string `json:"resource"`
		CodeChallenge       string `json:"code_challenge"`
		CodeChallengeMethod string `json:"code_challenge_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if req.RedirectURI == "" || !redirectURIAllowed(req.RedirectURI) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid or missing redirect_uri")
		return
	}
	if req.CodeChallenge == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code_challenge is required (PKCE)")
		return
	}
	method := req.CodeChallengeMethod
	if method == "" {
		method = "S256"
	}
	if method != "S256" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "only S256 code_challenge_method is supported")
		return
	}
	scope := req.Scope
	if scope == "" {
		scope = ScopeRead
	}
	var resource *string
	if req.Resource != "" {
		resource = &req.Resource
	}

	code := randomToken(32)
	err = h.grants.CreateCode(r.Context(), &store.OAuthCode{
		Code:                code,
		UserID:              principal.UserID,
		RedirectURI:         req.RedirectURI,
		Scope:               scope,
		Resource:            resource,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ExpiresAt:           h.now().Add(CodeTTL),
	})
	if err != nil {
		logger.Errorw("failed to create authorization code", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to process request")
		return
	}

	redirect, _ := url.Parse(req.RedirectURI)
	rq := redirect.Query()
	rq.Set("code", code)
	if req.State != "" {
		rq.Set("state", req.State)
	}
	redirect.RawQuery = rq.Encode()

	logger.Infow("minted authorization code", "user_id", principal.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"code":         code,
		"redirect_url": redirect.String(),
	})
}

// expiresIn converts a deadline to the RFC 6749 expires_in seconds field.
func (h *Handler) expiresIn(deadline time.Time) int {
	return int(deadline.Sub(h.now()).Seconds())
}
