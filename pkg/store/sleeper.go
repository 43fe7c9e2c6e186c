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

// SleeperConnection links a user principal to their public Sleeper identity.
type SleeperConnection struct {
	UserID          string
	SleeperUserID   string
	SleeperUsername string
	UpdatedAt       time.Time
}

// SleeperLeague is one Sleeper league membership.
type SleeperLeague struct {
	UserID     string
	LeagueID   string
	SeasonYear int
	Sport      season.Sport
	LeagueName *string
	RosterID   *int
}

// SleeperStore persists Sleeper connections and league memberships.
type SleeperStore struct {
	db DB
}

// NewSleeperStore creates a SleeperStore backed by db.
func NewSleeperStore(db DB) *SleeperStore {
	return &SleeperStore{db: db}
}

// UpsertConnection stores the user's Sleeper identity.
func (s *SleeperStore) UpsertConnection(ctx context.Context, c *SleeperConnection) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sleeper_connections (user_id, sleeper_user_id, sleeper_username, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET sleeper_user_id = EXCLUDED.sleeper_user_id,
		    sleeper_username = EXCLUDED.sleeper_username,
		    updated_at = now()`,
		c.UserID, c.SleeperUserID, c.SleeperUsername)
	if err != nil {
		return fmt.Errorf("upsert sleeper connection: %w", err)
	}
	return nil
}

// GetConnection returns the user's Sleeper identity, or nil when they have
// not connected.
func (s *SleeperStore) GetConnection(ctx context.Context, userID string) (*SleeperConnection, error) {
	var c SleeperConnection
	err := s.db.QueryRow(ctx, `
		SELECT user_id, sleeper_user_id, sleeper_username, updated_at
		FROM sleeper_connections WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.SleeperUserID, &c.SleeperUsername, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sleeper connection: %w", err)
	}
	return &c, nil
}

// UpsertLeague stores one league membership keyed by (user, leagueID,
// seasonYear).
func (s *SleeperStore) UpsertLeague(ctx context.Context, l *SleeperLeague) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sleeper_leagues (user_id, league_id, season_year, sport, league_name, roster_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, league_id, season_year) DO UPDATE
		SET sport = EXCLUDED.sport,
		    league_name = COALESCE(EXCLUDED.league_name, sleeper_leagues.league_name),
		    roster_id = COALESCE(EXCLUDED.roster_id, sleeper_leagues.roster_id)`,
		l.UserID, l.LeagueID, l.SeasonYear, string(l.Sport), l.LeagueName, l.RosterID)
	if err != nil {
		return fmt.Errorf("upsert sleeper league: %w", err)
	}
	return nil
}

// LeagueExists probes for a league by its composite key.
func (s *SleeperStore) LeagueExists(ctx context.Context, userID, leagueID string, seasonYear int) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `
		SELECT 1 FROM sleeper_leagues
		WHERE user_id = $1 AND league_id = $2 AND season_year = $3`,
		userID, leagueID, seasonYear).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sleeper league exists: %w", err)
	}
	return true, nil
}

// ListLeagues returns every Sleeper league stored for the user.
func (s *SleeperStore) ListLeagues(ctx context.Context, userID string) ([]SleeperLeague, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, league_id, season_year, sport, league_name, roster_id
		FROM sleeper_leagues WHERE user_id = $1
		ORDER BY season_year DESC, league_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sleeper leagues: %w", err)
	}
	defer rows.Close()

	var out []SleeperLeague
	for rows.Next() {
		var l SleeperLeague
		var sport string
		if err := rows.Scan(&l.UserID, &l.LeagueID, &l.SeasonYear, &sport,
			&l.LeagueName, &l.RosterID); err != nil {
			return nil, fmt.Errorf("scan sleeper league: %w", err)
		}
		l.Sport = season.Sport(sport)
		out = append(out, l)
	}
	return out, rows.Err()
}
