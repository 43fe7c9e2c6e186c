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

// RateLimitStore counts rate-limited requests per user per UTC day.
type RateLimitStore struct {
	db DB
}

// NewRateLimitStore creates a RateLimitStore backed by db.
func NewRateLimitStore(db DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

// Increment bumps the user's counter for the UTC day containing now and
// returns the post-increment count. Upsert and increment are one statement so
// concurrent requests never lose a count.
func (s *RateLimitStore) Increment(ctx context.Context, userID string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT increment_rate_limit($1, $2)`,
		userID, now.UTC().Format("2006-01-02")).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment rate limit: %w", err)
	}
	return count, nil
}

// Get returns the user's current count for the UTC day, zero when no row.
func (s *RateLimitStore) Get(ctx context.Context, userID string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT request_count FROM rate_limits
		WHERE user_id = $1 AND window_date = $2`,
		userID, now.UTC().Format("2006-01-02")).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get rate limit: %w", err)
	}
	return count, nil
}

// NextUTCMidnight is when the current UTC window resets.
func NextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
