// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package oauthserver

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flaim-app/auth-broker/pkg/auth"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// memGrants is an in-memory GrantStore.
type memGrants struct {
	mu     sync.Mutex
	codes  map[string]*store.OAuthCode
	tokens map[string]*store.OAuthToken
}

func newMemGrants() *memGrants {
	return &memGrants{
		codes:  make(map[string]*store.OAuthCode),
		tokens: make(map[string]*store.OAuthToken),
	}
}

func (m *memGrants) CreateCode(_ context.Context, c *store.OAuthCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.codes[c.Code] = &cp
	return nil
}

func (m *memGrants) GetCode(_ context.Context, code string) (*store.OAuthCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memGrants) ConsumeCode(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	now := time.Now()
	c.UsedAt = &now
	return true, nil
}

func (m *memGrants) CreateToken(_ context.Context, t *store.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	cp.CreatedAt = time.Now()
	m.tokens[t.AccessToken] = &cp
	return nil
}

func (m *memGrants) GetByAccessToken(_ context.Context, accessToken string) (*store.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[accessToken]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memGrants) GetByRefreshToken(_ context.Context, refreshToken string) (*store.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.RefreshToken != nil && *t.RefreshToken == refreshToken {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memGrants) RevokeAccessToken(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[accessToken]; ok && t.RevokedAt == nil {
		now := time.Now()
		t.RevokedAt = &now
	}
	return nil
}

func (m *memGrants) RevokeByRefreshToken(_ context.Context, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.RefreshToken != nil && *t.RefreshToken == refreshToken && t.RevokedAt == nil {
			now := time.Now()
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memGrants) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now()
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil && now.Before(t.ExpiresAt) {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *memGrants) ListActiveForUser(_ context.Context, userID string) ([]store.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.OAuthToken
	now := time.Now()
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil && now.Before(t.ExpiresAt) {
			out = append(out, *t)
		}
	}
	return out, nil
}

// testEnv wires a Handler behind chi with a real JWKS-backed authenticator.
type testEnv struct {
	router  *chi.Mux
	grants  *memGrants
	signJWT func(sub string) string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := jwk.FromRaw(priv.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "k1"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(jwks.Close)

	grants := newMemGrants()
	authenticator := auth.New(auth.Config{
		JWT:    auth.NewJWTValidator(jwks.URL, false),
		Tokens: grants,
	})

	h := New(grants, authenticator, "https://api.flaim.app", "https://www.flaim.app/oauth/consent")
	router := chi.NewRouter()
	h.Routes(router)

	return &testEnv{
		router: router,
		grants: grants,
		signJWT: func(sub string) string {
			token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
				"iss": jwks.URL,
				"sub": sub,
				"exp": time.Now().Add(time.Hour).Unix(),
			})
			token.Header["kid"] = "k1"
			signed, err := token.SignedString(priv)
			require.NoError(t, err)
			return signed
		},
	}
}

func pkcePair() (verifier, challenge string) {
	verifier = "test-verifier-0123456789-0123456789-0123456789"
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

const claudeCallback = "https://claude.ai/api/mcp/auth_callback"

// authorizeFlow drives authorize + consent + code mint and returns the minted
// code, replaying the forwarded consent params into the mint request the way
// the frontend does.
func (e *testEnv) authorizeFlow(t *testing.T, challenge, resource string) string {
	t.Helper()

	q := url.Values{
		"client_id":             {"mcp_test"},
		"redirect_uri":          {claudeCallback},
		"response_type":         {"code"},
		"scope":                 {"mcp:read mcp:write"},
		"state":                 {"client-state-1"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	if resource != "" {
		q.Set("resource", resource)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "www.flaim.app", loc.Host)
	assert.Equal(t, "/oauth/consent", loc.Path)
	fwd := loc.Query()
	require.Equal(t, claudeCallback, fwd.Get("redirect_uri"))
	require.Equal(t, challenge, fwd.Get("code_challenge"))
	require.Equal(t, "client-state-1", fwd.Get("state"))

	body, _ := json.Marshal(map[string]string{
		"redirect_uri":          fwd.Get("redirect_uri"),
		"scope":                 fwd.Get("scope"),
		"state":                 fwd.Get("state"),
		"resource":              fwd.Get("resource"),
		"code_challenge":        fwd.Get("code_challenge"),
		"code_challenge_method": fwd.Get("code_challenge_method"),
	})
	req := httptest.NewRequest(http.MethodPost, "/oauth/code", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer "+e.signJWT("user_1"))
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success     bool   `json:"success"`
		Code        string `json:"code"`
		RedirectURL string `json:"redirect_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Code)

	ru, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, resp.Code, ru.Query().Get("code"))
	assert.Equal(t, "client-state-1", ru.Query().Get("state"))
	return resp.Code
}

func (e *testEnv) exchange(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestFullAuthorizationFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	verifier, challenge := pkcePair()
	code := env.authorizeFlow(t, challenge, "https://api.flaim.app/mcp")

	rec := env.exchange(t, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {claudeCallback},
		"code_verifier": {verifier},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))

	var resp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "mcp:read mcp:write", resp.Scope)
	assert.InDelta(t, 3600, resp.ExpiresIn, 5)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)

	// The stored token carries the resource binding and client name.
	tok, err := env.grants.GetByAccessToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "user_1", tok.UserID)
	assert.Equal(t, "Claude", tok.ClientName)
	require.NotNil(t, tok.Resource)
	assert.Equal(t, "https://api.flaim.app/mcp", *tok.Resource)
}

func TestMintCodeRequiresIdentity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, challenge := pkcePair()

	body, _ := json.Marshal(map[string]string{
		"redirect_uri":   claudeCallback,
		"code_challenge": challenge,
	})

	req := httptest.NewRequest(http.MethodPost, "/oauth/code", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMintCodeValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, challenge := pkcePair()

	mint := func(body map[string]string) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/oauth/code", strings.NewReader(string(raw)))
		req.Header.Set("Authorization", "Bearer "+env.signJWT("user_1"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec := mint(map[string]string{
		"redirect_uri":   "https://evil.example.com/callback",
		"code_challenge": challenge,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = mint(map[string]string{"redirect_uri": claudeCallback})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = mint(map[string]string{
		"redirect_uri":          claudeCallback,
		"code_challenge":        challenge,
		"code_challenge_method": "plain",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCodeReplayRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	verifier, challenge := pkcePair()
	code := env.authorizeFlow(t, challenge, "")

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {claudeCallback},
		"code_verifier": {verifier},
	}
	require.Equal(t, http.StatusOK, env.exchange(t, form).Code)

	rec := env.exchange(t, form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_grant", resp.Error)
}

func TestPKCEMismatchRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, challenge := pkcePair()
	code := env.authorizeFlow(t, challenge, "")

	rec := env.exchange(t, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {claudeCallback},
		"code_verifier": {"wrong-verifier-wrong-verifier-wrong-verifier"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A failed PKCE attempt must not consume the code.
	c, err := env.grants.GetCode(context.Background(), code)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Nil(t, c.UsedAt)
}

func TestRedirectURIMustMatchByteExact(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	verifier, challenge := pkcePair()
	code := env.authorizeFlow(t, challenge, "")

	rec := env.exchange(t, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {claudeCallback + "/"},
		"code_verifier": {verifier},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	verifier, challenge := pkcePair()
	code := env.authorizeFlow(t, challenge, "https://api.flaim.app/mcp")

	rec := env.exchange(t, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {claudeCallback},
		"code_verifier": {verifier},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var first struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = env.exchange(t, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated pair keeps the resource binding and client name; the old
	// refresh token is dead.
	tok, err := env.grants.GetByAccessToken(context.Background(), second.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, tok.Resource)
	assert.Equal(t, "https://api.flaim.app/mcp", *tok.Resource)
	assert.Equal(t, "Claude", tok.ClientName)

	rec = env.exchange(t, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorizeValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, challenge := pkcePair()

	t.Run("bad redirect_uri gets JSON error, not a redirect", func(t *testing.T) {
		t.Parallel()
		q := url.Values{
			"redirect_uri":   {"https://evil.example.com/callback"},
			"response_type":  {"code"},
			"code_challenge": {challenge},
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing code_challenge redirects with PKCE error", func(t *testing.T) {
		t.Parallel()
		q := url.Values{
			"redirect_uri":  {claudeCallback},
			"response_type": {"code"},
			"state":         {"cs"},
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))
		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_request", loc.Query().Get("error"))
		assert.Equal(t, "code_challenge is required (PKCE)", loc.Query().Get("error_description"))
		assert.Equal(t, "cs", loc.Query().Get("state"))
	})

	t.Run("plain method rejected", func(t *testing.T) {
		t.Parallel()
		q := url.Values{
			"redirect_uri":          {claudeCallback},
			"response_type":         {"code"},
			"code_challenge":        {challenge},
			"code_challenge_method": {"plain"},
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))
		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_request", loc.Query().Get("error"))
	})

	t.Run("wrong response_type redirects", func(t *testing.T) {
		t.Parallel()
		q := url.Values{
			"redirect_uri":   {claudeCallback},
			"response_type":  {"token"},
			"code_challenge": {challenge},
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))
		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "unsupported_response_type", loc.Query().Get("error"))
	})
}

func TestServerMetadata(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	for _, path := range []string{
		"/.well-known/oauth-authorization-server",
		"/.well-known/oauth-authorization-server/mcp",
	} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

		var meta struct {
			Issuer                string   `json:"issuer"`
			CodeChallengeMethods  []string `json:"code_challenge_methods_supported"`
			GrantTypes            []string `json:"grant_types_supported"`
			TokenEndpointAuthMeth []string `json:"token_endpoint_auth_methods_supported"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
		assert.Equal(t, "https://api.flaim.app", meta.Issuer)
		assert.Equal(t, []string{"S256"}, meta.CodeChallengeMethods)
		assert.Equal(t, []string{"authorization_code", "refresh_token"}, meta.GrantTypes)
		assert.Equal(t, []string{"none", "client_secret_post"}, meta.TokenEndpointAuthMeth)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Resource string `json:"resource"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "https://api.flaim.app/mcp", res.Resource)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]any{
		"client_name":   "Claude",
		"redirect_uris": []string{claudeCallback},
	})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(string(body))))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ClientID string `json:"client_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ClientID, "mcp_"))

	// Registration is accept-and-echo; the redirect URI policy gates the
	// authorize and mint steps, not registration.
	body, _ = json.Marshal(map[string]any{
		"redirect_uris": []string{"https://evil.example.com/callback"},
	})
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(string(body))))
	require.Equal(t, http.StatusCreated, rec.Code)
	var echoed struct {
		ClientID     string   `json:"client_id"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &echoed))
	assert.NotEqual(t, resp.ClientID, echoed.ClientID)
	assert.Equal(t, []string{"https://evil.example.com/callback"}, echoed.RedirectURIs)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/authorize?client_id="+echoed.ClientID+
			"&redirect_uri=https%3A%2F%2Fevil.example.com%2Fcallback&response_type=code", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeAlwaysReturns200(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	form := url.Values{"token": {"does-not-exist"}}
	req := httptest.NewRequest(http.MethodPost, "/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIntrospect(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	verifier, challenge := pkcePair()
	code := env.authorizeFlow(t, challenge, "https://api.flaim.app/mcp")

	rec := env.exchange(t, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {claudeCallback},
		"code_verifier": {verifier},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var issued struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	introspect := func(token, expectedResource string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodGet, "/introspect", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		if expectedResource != "" {
			req.Header.Set("X-Flaim-Expected-Resource", expectedResource)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec.Code, out
	}

	status, body := introspect(issued.AccessToken, "https://api.flaim.app/mcp")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "user_1", body["userId"])
	assert.Equal(t, "mcp:read mcp:write", body["scope"])

	status, body = introspect(issued.AccessToken, "https://other.example.com/mcp")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["valid"])

	status, body = introspect("unknown-token", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["valid"])
}

func TestStatusAndRevocation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	verifier, challenge := pkcePair()
	code := env.authorizeFlow(t, challenge, "")

	rec := env.exchange(t, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {claudeCallback},
		"code_verifier": {verifier},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var issued struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	idp := env.signJWT("user_1")

	status := func() map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/oauth/status", nil)
		req.Header.Set("Authorization", "Bearer "+idp)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return out
	}

	st := status()
	assert.Equal(t, true, st["connected"])
	require.Len(t, st["grants"], 1)

	// Revoking someone else's token silently does nothing.
	body, _ := json.Marshal(map[string]string{"token": issued.AccessToken})
	req := httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer "+env.signJWT("user_2"))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, status()["connected"])

	// The owner can revoke it.
	req = httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer "+idp)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, status()["connected"])
}

func TestRevokeAll(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	verifier, challenge := pkcePair()

	for range 2 {
		code := env.authorizeFlow(t, challenge, "")
		rec := env.exchange(t, url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {claudeCallback},
			"code_verifier": {verifier},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/oauth/revoke-all", nil)
	req.Header.Set("Authorization", "Bearer "+env.signJWT("user_1"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Revoked int `json:"revoked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Revoked)
}

func TestRedirectURIPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uri  string
		want bool
	}{
		{claudeCallback, true},
		{"https://chatgpt.com/connector_platform_oauth_redirect", true},
		{"http://localhost:3000/callback", true},
		{"http://127.0.0.1:8080/oauth/callback", true},
		{"http://localhost/callback", true},
		{"https://localhost:3000/callback", false},
		{"http://localhost:3000/other", false},
		{"http://localhost:3000/oauth/callback?redirect=http://evil.com", false},
		{"http://127.0.0.1:8080/callback#frag", false},
		{claudeCallback + "?extra=1", false},
		{"http://192.168.1.5:3000/callback", false},
		{"https://evil.example.com/callback", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redirectURIAllowed(tt.uri), tt.uri)
	}
}

func TestClientNameForRedirect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uri  string
		want string
	}{
		{claudeCallback, "Claude"},
		{"https://chatgpt.com/connector_platform_oauth_redirect", "ChatGPT"},
		{"https://gemini.google.com/oauth/callback", "Gemini"},
		{"http://localhost:3000/callback", "Development"},
		{"https://example.com/callback", "MCP Client"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clientNameForRedirect(tt.uri), tt.uri)
	}
}
