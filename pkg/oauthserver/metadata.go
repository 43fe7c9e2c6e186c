// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package oauthserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// serverMetadata serves RFC 8414 authorization server metadata. Suffixed
// well-known paths (e.g. /.well-known/oauth-authorization-server/mcp) get the
// same document, since some MCP clients derive the metadata URL from the
// resource path.
func (h *Handler) serverMetadata(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                h.baseURL,
		"authorization_endpoint":                h.baseURL + "/authorize",
		"token_endpoint":                        h.baseURL + "/token",
		"registration_endpoint":                 h.baseURL + "/register",
		"revocation_endpoint":                   h.baseURL + "/revoke",
		"introspection_endpoint":                h.baseURL + "/introspect",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"scopes_supported":                      []string{ScopeRead, ScopeWrite},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_post"},
	})
}

// resourceMetadata serves RFC 9728 protected resource metadata for the MCP
// endpoint this server guards. A suffixed path names the resource directly;
// the bare path describes the default /mcp resource.
func (h *Handler) resourceMetadata(w http.ResponseWriter, r *http.Request) {
	suffix := "/mcp"
	if rest := chi.URLParam(r, "*"); rest != "" {
		suffix = "/" + rest
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]any{
		"resource":              h.baseURL + suffix,
		"authorization_servers": []string{h.baseURL},
		"scopes_supported":      []string{ScopeRead, ScopeWrite},
		"bearer_methods_supported": []string{
			"header",
		},
	})
}
