// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// OAuthCode is a single-use authorization code awaiting exchange.
type OAuthCode struct {
	Code                string
	UserID              string
	RedirectURI         string
	Scope               string
	Resource            *string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}

// OAuthToken is an issued access/refresh token pair.
type OAuthToken struct {
	AccessToken           string
	UserID                string
	Scope                 string
	Resource              *string
	ClientName            string
	ExpiresAt             time.Time
	RevokedAt             *time.Time
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
}

// Active reports whether the access token is usable at now.
func (t *OAuthToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RefreshActive reports whether the refresh token is usable at now.
func (t *OAuthToken) RefreshActive(now time.Time) bool {
	return t.RevokedAt == nil && t.RefreshToken != nil &&
		t.RefreshTokenExpiresAt != nil && now.Before(*t.RefreshTokenExpiresAt)
}

// OAuthStore persists authorization codes and issued tokens.
type OAuthStore struct {
	db DB
}

// NewOAuthStore creates an OAuthStore backed by db.
func NewOAuthStore(db DB) *OAuthStore {
	return &OAuthStore{db: db}
}

// CreateCode stores a freshly minted authorization code.
func (s *OAuthStore) CreateCode(ctx context.Context, c *OAuthCode) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO oauth_codes (code, user_id, redirect_uri, scope, resource, code_challenge, code_challenge_method, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.Code, c.UserID, c.RedirectURI, c.Scope, c.Resource,
		c.CodeChallenge, c.CodeChallengeMethod, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create code: %w", err)
	}
	return nil
}

// GetCode loads a code without consuming it, or nil when absent.
func (s *OAuthStore) GetCode(ctx context.Context, code string) (*OAuthCode, error) {
	var c OAuthCode
	err := s.db.QueryRow(ctx, `
		SELECT code, user_id, redirect_uri, scope, resource, code_challenge, code_challenge_method, expires_at, used_at, created_at
		FROM oauth_codes WHERE code = $1`, code).
		Scan(&c.Code, &c.UserID, &c.RedirectURI, &c.Scope, &c.Resource,
			&c.CodeChallenge, &c.CodeChallengeMethod, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	return &c, nil
}

// ConsumeCode marks a code used. The UPDATE's WHERE clause makes consumption
// atomic: the second caller sees zero rows and loses.
func (s *OAuthStore) ConsumeCode(ctx context.Context, code string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE oauth_codes SET used_at = now()
		WHERE code = $1 AND used_at IS NULL`, code)
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteExpiredCodes drops codes past their expiry. Called opportunistically.
func (s *OAuthStore) DeleteExpiredCodes(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM oauth_codes WHERE expires_at < now()`)
	if err != nil {
		return fmt.Errorf("delete expired codes: %w", err)
	}
	return nil
}

// CreateToken stores an issued token pair.
func (s *OAuthStore) CreateToken(ctx context.Context, t *OAuthToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO oauth_tokens (access_token, user_id, scope, resource, client_name, expires_at, refresh_token, refresh_token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.AccessToken, t.UserID, t.Scope, t.Resource, t.ClientName,
		t.ExpiresAt, t.RefreshToken, t.RefreshTokenExpiresAt)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// GetByAccessToken loads a token row, or nil when absent. Revoked and expired
// rows are returned so the caller can distinguish the failure.
func (s *OAuthStore) GetByAccessToken(ctx context.Context, accessToken string) (*OAuthToken, error) {
	return s.getToken(ctx, `access_token = $1`, accessToken)
}

// GetByRefreshToken loads a token row by its refresh token, or nil.
func (s *OAuthStore) GetByRefreshToken(ctx context.Context, refreshToken string) (*OAuthToken, error) {
	return s.getToken(ctx, `refresh_token = $1`, refreshToken)
}

func (s *OAuthStore) getToken(ctx context.Context, where string, arg any) (*OAuthToken, error) {
	var t OAuthToken
	err := s.db.QueryRow(ctx, `
		SELECT access_token, user_id, scope, resource, client_name, expires_at, revoked_at, refresh_token, refresh_token_expires_at, created_at
		FROM oauth_tokens WHERE `+where, arg).
		Scan(&t.AccessToken, &t.UserID, &t.Scope, &t.Resource, &t.ClientName,
			&t.ExpiresAt, &t.RevokedAt, &t.RefreshToken, &t.RefreshTokenExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

// RevokeAccessToken marks one token revoked. Unknown tokens are not an error.
func (s *OAuthStore) RevokeAccessToken(ctx context.Context, accessToken string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE oauth_tokens SET revoked_at = now()
		WHERE access_token = $1 AND revoked_at IS NULL`, accessToken)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeByRefreshToken marks the pair owning a refresh token revoked.
func (s *OAuthStore) RevokeByRefreshToken(ctx context.Context, refreshToken string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE oauth_tokens SET revoked_at = now()
		WHERE refresh_token = $1 AND revoked_at IS NULL`, refreshToken)
	if err != nil {
		return fmt.Errorf("revoke by refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live token the user holds and returns how
// many were revoked.
func (s *OAuthStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE oauth_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()`, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListActiveForUser returns the user's live tokens, newest first.
func (s *OAuthStore) ListActiveForUser(ctx context.Context, userID string) ([]OAuthToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT access_token, user_id, scope, resource, client_name, expires_at, revoked_at, refresh_token, refresh_token_expires_at, created_at
		FROM oauth_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}
	defer rows.Close()

	var out []OAuthToken
	for rows.Next() {
		var t OAuthToken
		if err := rows.Scan(&t.AccessToken, &t.UserID, &t.Scope, &t.Resource, &t.ClientName,
			&t.ExpiresAt, &t.RevokedAt, &t.RefreshToken, &t.RefreshTokenExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

