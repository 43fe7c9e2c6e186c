// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/season"
)

// Preferences is a user's cross-platform defaults.
type Preferences struct {
	UserID            string
	DefaultSport      *season.Sport
	DefaultFootball   *DefaultLeague
	DefaultBaseball   *DefaultLeague
	DefaultBasketball *DefaultLeague
	DefaultHockey     *DefaultLeague
}

// defaultColumns maps sports to their user_preferences column. Column names
// never come from request input.
var defaultColumns = map[season.Sport]string{
	season.Football:   "default_football",
	season.Baseball:   "default_baseball",
	season.Basketball: "default_basketball",
	season.Hockey:     "default_hockey",
}

// PreferenceStore persists user defaults.
type PreferenceStore struct {
	db DB
}

// NewPreferenceStore creates a PreferenceStore backed by db.
func NewPreferenceStore(db DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the user's preferences. A user with no row gets empty
// preferences rather than an error.
func (s *PreferenceStore) Get(ctx context.Context, userID string) (*Preferences, error) {
	p := &Preferences{UserID: userID}
	var sport *string
	var football, baseball, basketball, hockey []byte

	err := s.db.QueryRow(ctx, `
		SELECT default_sport, default_football, default_baseball, default_basketball, default_hockey
		FROM user_preferences WHERE user_id = $1`, userID).
		Scan(&sport, &football, &baseball, &basketball, &hockey)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	if sport != nil {
		sp := season.Sport(*sport)
		p.DefaultSport = &sp
	}
	for _, col := range []struct {
		raw  []byte
		dest **DefaultLeague
	}{
		{football, &p.DefaultFootball},
		{baseball, &p.DefaultBaseball},
		{basketball, &p.DefaultBasketball},
		{hockey, &p.DefaultHockey},
	} {
		if len(col.raw) == 0 {
			continue
		}
		var d DefaultLeague
		if err := json.Unmarshal(col.raw, &d); err != nil {
			return nil, fmt.Errorf("decode default league: %w", err)
		}
		*col.dest = &d
	}
	return p, nil
}

// SetDefaultSport stores (or clears, when sport is nil) the user's default
// sport.
func (s *PreferenceStore) SetDefaultSport(ctx context.Context, userID string, sport *season.Sport) error {
	var value *string
	if sport != nil {
		v := string(*sport)
		value = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_preferences (user_id, default_sport, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET default_sport = EXCLUDED.default_sport, updated_at = now()`,
		userID, value)
	if err != nil {
		return fmt.Errorf("set default sport: %w", err)
	}
	return nil
}

// SetDefaultLeague validates that the referenced league exists for the user
// with a team bound, then upserts the per-sport default.
func (s *PreferenceStore) SetDefaultLeague(ctx context.Context, userID, platform string, sport season.Sport, leagueID string, seasonYear int) error {
	col, ok := defaultColumns[sport]
	if !ok {
		return brokererrors.NewInvalidArgumentError("invalid_sport", nil)
	}

	if err := s.validateLeagueBinding(ctx, userID, platform, sport, leagueID, seasonYear); err != nil {
		return err
	}

	payload, err := json.Marshal(DefaultLeague{Platform: platform, LeagueID: leagueID, SeasonYear: seasonYear})
	if err != nil {
		return fmt.Errorf("encode default league: %w", err)
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO user_preferences (user_id, %s, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET %s = EXCLUDED.%s, updated_at = now()`, col, col, col),
		userID, payload)
	if err != nil {
		return fmt.Errorf("set default league: %w", err)
	}
	return nil
}

// ClearDefaultLeague nulls the per-sport default.
func (s *PreferenceStore) ClearDefaultLeague(ctx context.Context, userID string, sport season.Sport) error {
	col, ok := defaultColumns[sport]
	if !ok {
		return brokererrors.NewInvalidArgumentError("invalid_sport", nil)
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO user_preferences (user_id, %s, updated_at)
		VALUES ($1, NULL, now())
		ON CONFLICT (user_id) DO UPDATE
		SET %s = NULL, updated_at = now()`, col, col),
		userID)
	if err != nil {
		return fmt.Errorf("clear default league: %w", err)
	}
	return nil
}

// validateLeagueBinding requires the referenced league to exist and carry a
// team binding before it may become a default.
func (s *PreferenceStore) validateLeagueBinding(ctx context.Context, userID, platform string, sport season.Sport, leagueID string, seasonYear int) error {
	var binding *string
	var err error

	switch platform {
	case "espn":
		err = s.db.QueryRow(ctx, `
			SELECT team_id FROM espn_leagues
			WHERE user_id = $1 AND sport = $2 AND league_id = $3 AND season_year = $4`,
			userID, string(sport), leagueID, seasonYear).Scan(&binding)
	case "yahoo":
		err = s.db.QueryRow(ctx, `
			SELECT team_key FROM yahoo_leagues
			WHERE user_id = $1 AND league_key = $2 AND season_year = $3`,
			userID, leagueID, seasonYear).Scan(&binding)
	case "sleeper":
		var roster *int
		err = s.db.QueryRow(ctx, `
			SELECT roster_id FROM sleeper_leagues
			WHERE user_id = $1 AND league_id = $2 AND season_year = $3`,
			userID, leagueID, seasonYear).Scan(&roster)
		if err == nil && roster != nil {
			v := fmt.Sprintf("%d", *roster)
			binding = &v
		}
	default:
		return brokererrors.NewInvalidArgumentError("unknown platform: "+platform, nil)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return brokererrors.NewNotFoundError("League not found", nil)
	}
	if err != nil {
		return fmt.Errorf("validate default league: %w", err)
	}
	if binding == nil || *binding == "" {
		return brokererrors.NewInvalidArgumentError("league has no team bound", nil)
	}
	return nil
}

// ByPlatformAndSport returns the default for a sport if it is set.
func (p *Preferences) ByPlatformAndSport(sport season.Sport) *DefaultLeague {
	switch sport {
	case season.Football:
		return p.DefaultFootball
	case season.Baseball:
		return p.DefaultBaseball
	case season.Basketball:
		return p.DefaultBasketball
	case season.Hockey:
		return p.DefaultHockey
	}
	return nil
}
