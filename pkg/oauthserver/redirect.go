// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package oauthserver

import (
	"net/url"
	"strings"
)

// allowedRedirectURIs is the exact-match allowlist for hosted MCP clients.
var allowedRedirectURIs = map[string]struct{}{
	"https://claude.ai/api/mcp/auth_callback":                   {},
	"https://claude.com/api/mcp/auth_callback":                  {},
	"https://chatgpt.com/connector_platform_oauth_redirect":     {},
	"https://chat.openai.com/connector_platform_oauth_redirect": {},
	"https://gemini.google.com/oauth/callback":                  {},
}

// redirectURIAllowed accepts the hosted-client allowlist plus loopback
// development callbacks: http://localhost or http://127.0.0.1 on any port,
// path exactly /callback or /oauth/callback, with no query or fragment.
func redirectURIAllowed(raw string) bool {
	if _, ok := allowedRedirectURIs[raw]; ok {
		return true
	}
	return isLoopbackRedirect(raw)
}

func isLoopbackRedirect(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return false
	}
	// A query or fragment smuggles attacker data into the callback; only the
	// bare path is a valid registration target.
	if u.RawQuery != "" || u.Fragment != "" {
		return false
	}
	return u.Path == "/callback" || u.Path == "/oauth/callback"
}

// clientNameForRedirect labels tokens by the client that requested them so
// users can tell their grants apart.
func clientNameForRedirect(raw string) string {
	if isLoopbackRedirect(raw) {
		return "Development"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "MCP Client"
	}
	host := u.Hostname()
	switch {
	case strings.HasSuffix(host, "claude.ai") || strings.HasSuffix(host, "claude.com"):
		return "Claude"
	case strings.HasSuffix(host, "chatgpt.com") || strings.HasSuffix(host, "openai.com"):
		return "ChatGPT"
	case strings.Contains(host, "gemini") || strings.HasSuffix(host, "google.com"):
		return "Gemini"
	default:
		return "MCP Client"
	}
}
