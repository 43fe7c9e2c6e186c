// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flaim-app/auth-broker/pkg/season"
)

// RefreshBuffer is how close to expiry a Yahoo access token may get before a
// credentials read refreshes it.
const RefreshBuffer = 5 * time.Minute

// YahooCredentials is a user's Yahoo OAuth token pair.
type YahooCredentials struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	YahooGUID    *string
	UpdatedAt    time.Time
}

// NeedsRefresh reports whether the access token is within the proactive
// refresh buffer of expiry.
func (c *YahooCredentials) NeedsRefresh(now time.Time) bool {
	return c.ExpiresAt.Sub(now) < RefreshBuffer
}

// YahooLeague is one Yahoo fantasy league membership.
type YahooLeague struct {
	UserID     string
	LeagueKey  string
	SeasonYear int
	Sport      season.Sport
	LeagueName *string
	TeamKey    *string
	TeamName   *string
}

// YahooStore persists Yahoo OAuth credentials and league memberships.
type YahooStore struct {
	db DB
}

// NewYahooStore creates a YahooStore backed by db.
func NewYahooStore(db DB) *YahooStore {
	return &YahooStore{db: db}
}

// UpsertCredentials stores the token pair for a user.
func (s *YahooStore) UpsertCredentials(ctx context.Context, c *YahooCredentials) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO yahoo_credentials (user_id, access_token, refresh_token, expires_at, yahoo_guid, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    yahoo_guid = COALESCE(EXCLUDED.yahoo_guid, yahoo_credentials.yahoo_guid),
		    updated_at = now()`,
		c.UserID, c.AccessToken, c.RefreshToken, c.ExpiresAt, c.YahooGUID)
	if err != nil {
		return fmt.Errorf("upsert yahoo credentials: %w", err)
	}
	return nil
}

// GetCredentials returns the stored token pair, or nil when the user has not
// connected Yahoo.
func (s *YahooStore) GetCredentials(ctx context.Context, userID string) (*YahooCredentials, error) {
	var c YahooCredentials
	err := s.db.QueryRow(ctx, `
		SELECT user_id, access_token, refresh_token, expires_at, yahoo_guid, updated_at
		FROM yahoo_credentials WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.YahooGUID, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get yahoo credentials: %w", err)
	}
	return &c, nil
}

// DeleteCredentials disconnects the user from Yahoo. Stored leagues remain.
func (s *YahooStore) DeleteCredentials(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM yahoo_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete yahoo credentials: %w", err)
	}
	return nil
}

// UpsertLeague stores one league membership keyed by (user, leagueKey,
// seasonYear).
func (s *YahooStore) UpsertLeague(ctx context.Context, l *YahooLeague) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO yahoo_leagues (user_id, league_key, season_year, sport, league_name, team_key, team_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, league_key, season_year) DO UPDATE
		SET sport = EXCLUDED.sport,
		    league_name = COALESCE(EXCLUDED.league_name, yahoo_leagues.league_name),
		    team_key = COALESCE(EXCLUDED.team_key, yahoo_leagues.team_key),
		    team_name = COALESCE(EXCLUDED.team_name, yahoo_leagues.team_name)`,
		l.UserID, l.LeagueKey, l.SeasonYear, string(l.Sport), l.LeagueName, l.TeamKey, l.TeamName)
	if err != nil {
		return fmt.Errorf("upsert yahoo league: %w", err)
	}
	return nil
}

// ListLeagues returns every Yahoo league stored for the user.
func (s *YahooStore) ListLeagues(ctx context.Context, userID string) ([]YahooLeague, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, league_key, season_year, sport, league_name, team_key, team_name
		FROM yahoo_leagues WHERE user_id = $1
		ORDER BY season_year DESC, league_key`, userID)
	if err != nil {
		return nil, fmt.Errorf("list yahoo leagues: %w", err)
	}
	defer rows.Close()

	var out []YahooLeague
	for rows.Next() {
		var l YahooLeague
		var sport string
		if err := rows.Scan(&l.UserID, &l.LeagueKey, &l.SeasonYear, &sport,
			&l.LeagueName, &l.TeamKey, &l.TeamName); err != nil {
			return nil, fmt.Errorf("scan yahoo league: %w", err)
		}
		l.Sport = season.Sport(sport)
		out = append(out, l)
	}
	return out, rows.Err()
}

// RemoveLeague deletes all seasons of one league key. It returns true iff at
// least one row was deleted.
func (s *YahooStore) RemoveLeague(ctx context.Context, userID, leagueKey string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM yahoo_leagues WHERE user_id = $1 AND league_key = $2`,
		userID, leagueKey)
	if err != nil {
		return false, fmt.Errorf("remove yahoo league: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
