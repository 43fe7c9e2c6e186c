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

// PlatformState is a CSRF state for an outbound platform OAuth flow (Yahoo).
type PlatformState struct {
	State     string
	UserID    string
	Platform  string
	ExpiresAt time.Time
}

// PlatformStateStore persists outbound OAuth states.
type PlatformStateStore struct {
	db DB
}

// NewPlatformStateStore creates a PlatformStateStore backed by db.
func NewPlatformStateStore(db DB) *PlatformStateStore {
	return &PlatformStateStore{db: db}
}

// Create parks a state before redirecting the user to the platform.
func (s *PlatformStateStore) Create(ctx context.Context, st *PlatformState) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO platform_oauth_states (state, user_id, platform, expires_at)
		VALUES ($1, $2, $3, $4)`,
		st.State, st.UserID, st.Platform, st.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create platform state: %w", err)
	}
	return nil
}

// Consume deletes and returns a state. The delete happens even when the state
// is expired, so callbacks cannot replay it.
func (s *PlatformStateStore) Consume(ctx context.Context, state string) (*PlatformState, error) {
	var st PlatformState
	err := s.db.QueryRow(ctx, `
		DELETE FROM platform_oauth_states WHERE state = $1
		RETURNING state, user_id, platform, expires_at`, state).
		Scan(&st.State, &st.UserID, &st.Platform, &st.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume platform state: %w", err)
	}
	if time.Now().After(st.ExpiresAt) {
		return nil, nil
	}
	return &st, nil
}
