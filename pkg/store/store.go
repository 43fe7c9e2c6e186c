// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package store persists per-user platform credentials, discovered leagues,
// preferences, OAuth grants, and rate-limit counters in Postgres. Every store
// takes a DB at construction; *pgxpool.Pool satisfies it in production and
// pgxmock stands in for tests.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MaxLeaguesPerUser caps the number of (league, season) rows a user may hold
// per platform.
const MaxLeaguesPerUser = 10

// DB is the querier surface the stores need from pgx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DefaultLeague is the per-sport default stored in user preferences.
type DefaultLeague struct {
	Platform   string `json:"platform"`
	LeagueID   string `json:"leagueId"`
	SeasonYear int    `json:"seasonYear"`
}

// AddOutcome classifies the result of a single-league insert.
type AddOutcome string

// Single-league insert outcomes.
const (
	LeagueAdded         AddOutcome = "ADDED"
	LeagueDuplicate     AddOutcome = "DUPLICATE"
	LeagueLimitExceeded AddOutcome = "LIMIT_EXCEEDED"
)
