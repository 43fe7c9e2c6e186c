// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// fakeTokens is an in-memory TokenReader.
type fakeTokens struct {
	tokens map[string]*store.OAuthToken
}

func (f *fakeTokens) GetByAccessToken(_ context.Context, accessToken string) (*store.OAuthToken, error) {
	return f.tokens[accessToken], nil
}

// newJWKSServer serves a single-key JWKS and returns the server plus the
// private key that signs test tokens.
func newJWKSServer(t *testing.T) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(priv.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "test-key-1"))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return srv, priv
}

func signToken(t *testing.T, priv *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key-1"
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestJWTValidator(t *testing.T) {
	t.Parallel()

	srv, priv := newJWKSServer(t)
	v := NewJWTValidator(srv.URL, false)
	ctx := context.Background()

	t.Run("valid token resolves subject", func(t *testing.T) {
		tok := signToken(t, priv, jwt.MapClaims{
			"iss": srv.URL,
			"sub": "user_2abc",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		sub, err := v.Validate(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, "user_2abc", sub)
	})

	t.Run("token without exp accepted", func(t *testing.T) {
		tok := signToken(t, priv, jwt.MapClaims{"iss": srv.URL, "sub": "user_2abc"})
		sub, err := v.Validate(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, "user_2abc", sub)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		tok := signToken(t, priv, jwt.MapClaims{
			"iss": srv.URL,
			"sub": "user_2abc",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := v.Validate(ctx, tok)
		require.Error(t, err)
		assert.True(t, brokererrors.IsUnauthorized(err))
	})

	t.Run("unknown issuer rejected", func(t *testing.T) {
		tok := signToken(t, priv, jwt.MapClaims{
			"iss": "https://evil.example.com",
			"sub": "user_2abc",
		})
		_, err := v.Validate(ctx, tok)
		require.Error(t, err)
		assert.True(t, brokererrors.IsUnauthorized(err))
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		tok := signToken(t, priv, jwt.MapClaims{
			"iss": srv.URL,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := v.Validate(ctx, tok)
		require.Error(t, err)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		tok := signToken(t, other, jwt.MapClaims{"iss": srv.URL, "sub": "user_2abc"})
		_, err = v.Validate(ctx, tok)
		require.Error(t, err)
	})
}

func TestIssuerAllowlist(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		issuer     string
		production bool
		want       bool
	}{
		{"configured issuer", "https://example.test", false, true},
		{"pinned production issuer", productionIssuer, true, true},
		{"clerk dev instance outside production", "https://humble-skink-42.clerk.accounts.dev", false, true},
		{"clerk dev instance in production", "https://humble-skink-42.clerk.accounts.dev", true, false},
		{"http clerk dev instance", "http://humble-skink-42.clerk.accounts.dev", false, false},
		{"lookalike host", "https://clerk.accounts.dev.evil.com", false, false},
		{"empty issuer", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := NewJWTValidator("https://example.test", tt.production)
			assert.Equal(t, tt.want, v.issuerAllowed(tt.issuer))
		})
	}
}

func TestAuthenticateTokenPipeline(t *testing.T) {
	t.Parallel()

	srv, priv := newJWKSServer(t)
	resource := "https://api.flaim.app/mcp"
	now := time.Now()
	revoked := now.Add(-time.Minute)

	tokens := &fakeTokens{tokens: map[string]*store.OAuthToken{
		"opaque_live": {
			AccessToken: "opaque_live", UserID: "user_oauth",
			Scope: "mcp:read mcp:write", Resource: &resource,
			ClientName: "Claude", ExpiresAt: now.Add(time.Hour),
		},
		"opaque_write_only": {
			AccessToken: "opaque_write_only", UserID: "user_oauth",
			Scope: "mcp:write", ExpiresAt: now.Add(time.Hour),
		},
		"opaque_expired": {
			AccessToken: "opaque_expired", UserID: "user_oauth",
			Scope: "mcp:read", ExpiresAt: now.Add(-time.Hour),
		},
		"opaque_revoked": {
			AccessToken: "opaque_revoked", UserID: "user_oauth",
			Scope: "mcp:read", ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked,
		},
	}}

	a := New(Config{
		JWT:           NewJWTValidator(srv.URL, false),
		Tokens:        tokens,
		EvalKey:       "eval-secret-key",
		EvalUserID:    "user_eval",
		EvalResources: []string{resource},
	})
	ctx := context.Background()

	t.Run("jwt wins", func(t *testing.T) {
		tok := signToken(t, priv, jwt.MapClaims{"iss": srv.URL, "sub": "user_jwt"})
		p, err := a.AuthenticateToken(ctx, tok, Options{AllowEvalKey: true})
		require.NoError(t, err)
		assert.Equal(t, MethodJWT, p.Method)
		assert.Equal(t, "user_jwt", p.UserID)
	})

	t.Run("invalid jwt ends unauthorized after all modes", func(t *testing.T) {
		_, err := a.AuthenticateToken(ctx, "aaa.bbb.ccc", Options{AllowEvalKey: true})
		require.Error(t, err)
		assert.True(t, brokererrors.IsUnauthorized(err))
	})

	t.Run("eval key", func(t *testing.T) {
		p, err := a.AuthenticateToken(ctx, "eval-secret-key",
			Options{AllowEvalKey: true, ExpectedResource: resource})
		require.NoError(t, err)
		assert.Equal(t, MethodEvalKey, p.Method)
		assert.Equal(t, "user_eval", p.UserID)
	})

	t.Run("eval key on disallowed resource", func(t *testing.T) {
		_, err := a.AuthenticateToken(ctx, "eval-secret-key",
			Options{AllowEvalKey: true, ExpectedResource: "https://api.flaim.app/other"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Resource not allowed")
	})

	t.Run("eval key not allowed on route", func(t *testing.T) {
		_, err := a.AuthenticateToken(ctx, "eval-secret-key", Options{AllowEvalKey: false})
		require.Error(t, err)
		assert.True(t, brokererrors.IsUnauthorized(err))
	})

	t.Run("oauth token", func(t *testing.T) {
		p, err := a.AuthenticateToken(ctx, "opaque_live",
			Options{ExpectedResource: resource})
		require.NoError(t, err)
		assert.Equal(t, MethodOAuth, p.Method)
		assert.Equal(t, "user_oauth", p.UserID)
		assert.Equal(t, "Claude", p.ClientName)
	})

	t.Run("oauth token with write-only scope", func(t *testing.T) {
		// Validation checks revocation, expiry, and resource; the granted
		// scope is reported, not gated.
		p, err := a.AuthenticateToken(ctx, "opaque_write_only", Options{})
		require.NoError(t, err)
		assert.Equal(t, MethodOAuth, p.Method)
		assert.Equal(t, "mcp:write", p.Scope)
	})

	t.Run("oauth token wrong resource", func(t *testing.T) {
		_, err := a.AuthenticateToken(ctx, "opaque_live",
			Options{ExpectedResource: "https://api.flaim.app/other"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Token not valid for this resource")
	})

	t.Run("expired oauth token", func(t *testing.T) {
		_, err := a.AuthenticateToken(ctx, "opaque_expired", Options{})
		require.Error(t, err)
		assert.True(t, brokererrors.IsUnauthorized(err))
	})

	t.Run("revoked oauth token", func(t *testing.T) {
		_, err := a.AuthenticateToken(ctx, "opaque_revoked", Options{})
		require.Error(t, err)
		assert.True(t, brokererrors.IsUnauthorized(err))
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := a.AuthenticateToken(ctx, "nope", Options{})
		require.Error(t, err)
		assert.True(t, brokererrors.IsUnauthorized(err))
	})
}

func TestEvalKeyWithoutUserIDDisabled(t *testing.T) {
	t.Parallel()

	a := New(Config{
		Tokens:  &fakeTokens{tokens: map[string]*store.OAuthToken{}},
		EvalKey: "eval-secret-key",
	})
	_, err := a.AuthenticateToken(context.Background(), "eval-secret-key", Options{AllowEvalKey: true})
	require.Error(t, err)
	assert.True(t, brokererrors.IsUnauthorized(err))
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"bearer", "Bearer abc", "abc", true},
		{"case insensitive scheme", "bearer abc", "abc", true},
		{"missing header", "", "", false},
		{"wrong scheme", "Basic abc", "", false},
		{"empty token", "Bearer ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := BearerToken(r)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
