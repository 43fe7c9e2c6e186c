// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package auth resolves inbound requests to a user principal. Three bearer
// modes are tried in order: an RS256 identity token from the IdP, the shared
// evaluation API key, and an opaque OAuth access token issued by this broker.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
	"time"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// Method identifies which bearer mode resolved a request.
type Method string

// Bearer modes.
const (
	MethodJWT     Method = "jwt"
	MethodEvalKey Method = "eval_key"
	MethodOAuth   Method = "oauth_token"
)

// Principal is the resolved caller of a request.
type Principal struct {
	UserID     string
	Method     Method
	Scope      string
	ClientName string
}

// TokenReader is the slice of the OAuth store the authenticator needs.
type TokenReader interface {
	GetByAccessToken(ctx context.Context, accessToken string) (*store.OAuthToken, error)
}

// Options tune a single authentication attempt.
type Options struct {
	// ExpectedResource, when set, must match an OAuth token's bound
	// resource and must appear in the eval key's resource allowlist.
	ExpectedResource string

	// AllowEvalKey permits the shared evaluation key on this route.
	AllowEvalKey bool
}

// Authenticator runs the bearer mode pipeline.
type Authenticator struct {
	jwt    *JWTValidator
	tokens TokenReader

	evalKey       string
	evalUserID    string
	evalResources []string

	now func() time.Time
}

// Config wires an Authenticator.
type Config struct {
	JWT           *JWTValidator
	Tokens        TokenReader
	EvalKey       string
	EvalUserID    string
	EvalResources []string
}

// New creates an Authenticator. An eval key without an eval user ID is
// ignored, since there would be no principal to resolve it to.
func New(cfg Config) *Authenticator {
	a := &Authenticator{
		jwt:           cfg.JWT,
		tokens:        cfg.Tokens,
		evalKey:       cfg.EvalKey,
		evalUserID:    cfg.EvalUserID,
		evalResources: cfg.EvalResources,
		now:           time.Now,
	}
	if a.evalKey != "" && a.evalUserID == "" {
		logger.Warnw("EVAL_API_KEY set without EVAL_USER_ID, eval key disabled")
		a.evalKey = ""
	}
	return a
}

// BearerToken extracts the bearer token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// Authenticate resolves a request to a principal, or an unauthorized error.
func (a *Authenticator) Authenticate(r *http.Request, opts Options) (*Principal, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, brokererrors.NewUnauthorizedError("Missing or invalid Authorization header", nil)
	}
	return a.AuthenticateToken(r.Context(), token, opts)
}

// AuthenticateToken runs the pipeline on a raw bearer token: IdP JWT, then
// eval key, then opaque OAuth token. A failed JWT verification is logged and
// falls through to the opaque modes.
func (a *Authenticator) AuthenticateToken(ctx context.Context, token string, opts Options) (*Principal, error) {
	if looksLikeJWT(token) {
		userID, err := a.jwt.Validate(ctx, token)
		if err == nil {
			return &Principal{UserID: userID, Method: MethodJWT}, nil
		}
		logger.Debugw("jwt verification failed", "error", err)
	}

	if opts.AllowEvalKey && a.evalKey != "" && constantTimeEqual(token, a.evalKey) {
		if opts.ExpectedResource != "" && !slices.Contains(a.evalResources, opts.ExpectedResource) {
			return nil, brokererrors.NewUnauthorizedError("Resource not allowed for API key", nil)
		}
		return &Principal{UserID: a.evalUserID, Method: MethodEvalKey, Scope: "mcp:read"}, nil
	}

	return a.authenticateOAuth(ctx, token, opts)
}

func (a *Authenticator) authenticateOAuth(ctx context.Context, token string, opts Options) (*Principal, error) {
	t, err := a.tokens.GetByAccessToken(ctx, token)
	if err != nil {
		return nil, brokererrors.NewInternalError("token lookup failed", err)
	}
	if t == nil || !t.Active(a.now()) {
		return nil, brokererrors.NewUnauthorizedError("Invalid or expired token", nil)
	}
	if opts.ExpectedResource != "" && t.Resource != nil && *t.Resource != opts.ExpectedResource {
		return nil, brokererrors.NewUnauthorizedError("Token not valid for this resource", nil)
	}
	return &Principal{
		UserID:     t.UserID,
		Method:     MethodOAuth,
		Scope:      t.Scope,
		ClientName: t.ClientName,
	}, nil
}

// looksLikeJWT reports whether the token has JWT shape: three dot-separated
// segments.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// constantTimeEqual compares SHA-256 digests so the comparison cost does not
// depend on where the strings diverge or on their lengths.
func constantTimeEqual(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}
