// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/season"
)

// swidPattern is the shape of ESPN's SWID cookie: a braced UUID.
var swidPattern = regexp.MustCompile(`^\{[0-9A-Fa-f-]{36}\}$`)

// minS2Length is the shortest espn_s2 cookie ESPN issues in practice.
const minS2Length = 50

// EspnCredentials is the cookie pair ESPN uses to authenticate a user.
type EspnCredentials struct {
	UserID    string
	SWID      string
	S2        string
	Email     *string
	UpdatedAt time.Time
}

// EspnLeague is one (league, season) membership discovered for a user.
type EspnLeague struct {
	UserID     string
	Sport      season.Sport
	LeagueID   string
	SeasonYear int
	TeamID     *string
	TeamName   *string
	LeagueName *string
}

// EspnStore persists ESPN credentials and league memberships.
type EspnStore struct {
	db DB
}

// NewEspnStore creates an EspnStore backed by db.
func NewEspnStore(db DB) *EspnStore {
	return &EspnStore{db: db}
}

// ValidateCredentials checks the SWID and espn_s2 cookie formats.
func ValidateCredentials(swid, s2 string) error {
	if !swidPattern.MatchString(swid) {
		return brokererrors.NewInvalidArgumentError("Invalid SWID format", nil)
	}
	if len(s2) < minS2Length {
		return brokererrors.NewInvalidArgumentError("Invalid espn_s2 format", nil)
	}
	return nil
}

// UpsertCredentials stores the cookie pair for a user, replacing any
// previous pair.
func (s *EspnStore) UpsertCredentials(ctx context.Context, userID, swid, s2 string, email *string) error {
	if err := ValidateCredentials(swid, s2); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO espn_credentials (user_id, swid, espn_s2, email, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE
		SET swid = EXCLUDED.swid, espn_s2 = EXCLUDED.espn_s2,
		    email = EXCLUDED.email, updated_at = now()`,
		userID, swid, s2, email)
	if err != nil {
		return fmt.Errorf("upsert espn credentials: %w", err)
	}
	return nil
}

// GetCredentials returns the stored cookie pair, or nil when the user has
// none. A row with an empty cookie counts as absent.
func (s *EspnStore) GetCredentials(ctx context.Context, userID string) (*EspnCredentials, error) {
	var c EspnCredentials
	err := s.db.QueryRow(ctx, `
		SELECT user_id, swid, espn_s2, email, updated_at
		FROM espn_credentials WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.SWID, &c.S2, &c.Email, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get espn credentials: %w", err)
	}
	if c.SWID == "" || c.S2 == "" {
		return nil, nil
	}
	return &c, nil
}

// HasCredentials reports whether the user has a usable cookie pair.
func (s *EspnStore) HasCredentials(ctx context.Context, userID string) (bool, error) {
	c, err := s.GetCredentials(ctx, userID)
	return c != nil, err
}

// DeleteCredentials removes the cookie pair and, in the same transaction,
// every ESPN league stored for the user.
func (s *EspnStore) DeleteCredentials(ctx context.Context, userID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete espn credentials: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM espn_leagues WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete espn leagues: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM espn_credentials WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete espn credentials: %w", err)
	}
	return tx.Commit(ctx)
}

// LeagueExists probes for a league by its composite key.
func (s *EspnStore) LeagueExists(ctx context.Context, userID string, sport season.Sport, leagueID string, seasonYear int) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `
		SELECT 1 FROM espn_leagues
		WHERE user_id = $1 AND sport = $2 AND league_id = $3 AND season_year = $4`,
		userID, string(sport), leagueID, seasonYear).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("league exists: %w", err)
	}
	return true, nil
}

// CountLeagues returns the user's total (league, season) row count.
func (s *EspnStore) CountLeagues(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM espn_leagues WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count leagues: %w", err)
	}
	return n, nil
}

// AddLeague inserts a single league, reporting duplicates and the per-user
// cap as outcomes rather than errors.
func (s *EspnStore) AddLeague(ctx context.Context, l *EspnLeague) (AddOutcome, error) {
	exists, err := s.LeagueExists(ctx, l.UserID, l.Sport, l.LeagueID, l.SeasonYear)
	if err != nil {
		return "", err
	}
	if exists {
		return LeagueDuplicate, nil
	}

	count, err := s.CountLeagues(ctx, l.UserID)
	if err != nil {
		return "", err
	}
	if count >= MaxLeaguesPerUser {
		return LeagueLimitExceeded, nil
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO espn_leagues (user_id, sport, league_id, season_year, team_id, team_name, league_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.UserID, string(l.Sport), l.LeagueID, l.SeasonYear, l.TeamID, l.TeamName, l.LeagueName)
	if err != nil {
		return "", fmt.Errorf("add league: %w", err)
	}
	return LeagueAdded, nil
}

// SetLeagues replaces the user's entire league set. The replacement is
// delete-then-insert inside one transaction; the per-user cap applies to the
// new set.
func (s *EspnStore) SetLeagues(ctx context.Context, userID string, leagues []EspnLeague) error {
	if len(leagues) > MaxLeaguesPerUser {
		return brokererrors.NewLimitExceededError(
			fmt.Sprintf("cannot store more than %d leagues", MaxLeaguesPerUser), nil)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set leagues: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM espn_leagues WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear leagues: %w", err)
	}
	for i := range leagues {
		l := &leagues[i]
		if _, err := tx.Exec(ctx, `
			INSERT INTO espn_leagues (user_id, sport, league_id, season_year, team_id, team_name, league_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			userID, string(l.Sport), l.LeagueID, l.SeasonYear, l.TeamID, l.TeamName, l.LeagueName); err != nil {
			return fmt.Errorf("insert league %s: %w", l.LeagueID, err)
		}
	}
	return tx.Commit(ctx)
}

// ListLeagues returns every ESPN league stored for the user.
func (s *EspnStore) ListLeagues(ctx context.Context, userID string) ([]EspnLeague, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, sport, league_id, season_year, team_id, team_name, league_name
		FROM espn_leagues WHERE user_id = $1
		ORDER BY sport, league_id, season_year DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list leagues: %w", err)
	}
	defer rows.Close()

	var out []EspnLeague
	for rows.Next() {
		var l EspnLeague
		var sport string
		if err := rows.Scan(&l.UserID, &sport, &l.LeagueID, &l.SeasonYear,
			&l.TeamID, &l.TeamName, &l.LeagueName); err != nil {
			return nil, fmt.Errorf("scan league: %w", err)
		}
		l.Sport = season.Sport(sport)
		out = append(out, l)
	}
	return out, rows.Err()
}

// RemoveLeague deletes all seasons of one (league, sport) tuple. It returns
// true iff at least one row was deleted.
func (s *EspnStore) RemoveLeague(ctx context.Context, userID, leagueID string, sport season.Sport) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM espn_leagues
		WHERE user_id = $1 AND league_id = $2 AND sport = $3`,
		userID, leagueID, string(sport))
	if err != nil {
		return false, fmt.Errorf("remove league: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateTeam binds or renames the user's team in one league. Optional fields
// left nil keep their stored values.
func (s *EspnStore) UpdateTeam(ctx context.Context, userID, leagueID string, sport season.Sport, seasonYear *int, teamID string, teamName, leagueName *string) (bool, error) {
	query := `
		UPDATE espn_leagues
		SET team_id = $4,
		    team_name = COALESCE($5, team_name),
		    league_name = COALESCE($6, league_name)
		WHERE user_id = $1 AND league_id = $2 AND sport = $3`
	args := []any{userID, leagueID, string(sport), teamID, teamName, leagueName}
	if seasonYear != nil {
		query += ` AND season_year = $7`
		args = append(args, *seasonYear)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update team: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
