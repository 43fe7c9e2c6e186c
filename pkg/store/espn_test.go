// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/season"
)

const (
	testSWID = "{ABCDEF12-3456-7890-ABCD-EF1234567890}"
	testS2   = "AEB%2Fx0123456789012345678901234567890123456789012345678"
)

func TestValidateCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		swid    string
		s2      string
		wantErr string
	}{
		{"valid", testSWID, testS2, ""},
		{"swid without braces", "ABCDEF12-3456-7890-ABCD-EF1234567890", testS2, "Invalid SWID format"},
		{"swid wrong length", "{ABC}", testS2, "Invalid SWID format"},
		{"s2 too short", testSWID, "short", "Invalid espn_s2 format"},
		{"empty s2", testSWID, "", "Invalid espn_s2 format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateCredentials(tt.swid, tt.s2)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, brokererrors.IsType(err, brokererrors.ErrInvalidArgument))
		})
	}
}

func TestEspnStoreUpsertCredentials(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO espn_credentials").
		WithArgs("user_1", testSWID, testS2, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewEspnStore(mock)
	require.NoError(t, s.UpsertCredentials(context.Background(), "user_1", testSWID, testS2, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEspnStoreUpsertCredentialsRejectsInvalid(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewEspnStore(mock)
	err = s.UpsertCredentials(context.Background(), "user_1", "bad", testS2, nil)
	require.Error(t, err)
	// Nothing must reach the database on a validation failure.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEspnStoreGetCredentials(t *testing.T) {
	t.Parallel()

	cols := []string{"user_id", "swid", "espn_s2", "email", "updated_at"}

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT user_id, swid, espn_s2, email, updated_at").
			WithArgs("user_1").
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow("user_1", testSWID, testS2, nil, time.Now()))

		s := NewEspnStore(mock)
		c, err := s.GetCredentials(context.Background(), "user_1")
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, testSWID, c.SWID)
	})

	t.Run("no row means nil", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT user_id, swid, espn_s2, email, updated_at").
			WithArgs("user_1").
			WillReturnError(pgx.ErrNoRows)

		s := NewEspnStore(mock)
		c, err := s.GetCredentials(context.Background(), "user_1")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("empty cookie counts as absent", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT user_id, swid, espn_s2, email, updated_at").
			WithArgs("user_1").
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow("user_1", "", "", nil, time.Now()))

		s := NewEspnStore(mock)
		c, err := s.GetCredentials(context.Background(), "user_1")
		require.NoError(t, err)
		assert.Nil(t, c)
	})
}

func TestEspnStoreAddLeague(t *testing.T) {
	t.Parallel()

	league := &EspnLeague{
		UserID:     "user_1",
		Sport:      season.Football,
		LeagueID:   "12345",
		SeasonYear: 2025,
	}

	t.Run("added", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT 1 FROM espn_leagues").
			WithArgs("user_1", "football", "12345", 2025).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM espn_leagues`).
			WithArgs("user_1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectExec("INSERT INTO espn_leagues").
			WithArgs("user_1", "football", "12345", 2025, (*string)(nil), (*string)(nil), (*string)(nil)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		s := NewEspnStore(mock)
		outcome, err := s.AddLeague(context.Background(), league)
		require.NoError(t, err)
		assert.Equal(t, LeagueAdded, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT 1 FROM espn_leagues").
			WithArgs("user_1", "football", "12345", 2025).
			WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

		s := NewEspnStore(mock)
		outcome, err := s.AddLeague(context.Background(), league)
		require.NoError(t, err)
		assert.Equal(t, LeagueDuplicate, outcome)
	})

	t.Run("limit exceeded", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT 1 FROM espn_leagues").
			WithArgs("user_1", "football", "12345", 2025).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM espn_leagues`).
			WithArgs("user_1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(MaxLeaguesPerUser))

		s := NewEspnStore(mock)
		outcome, err := s.AddLeague(context.Background(), league)
		require.NoError(t, err)
		assert.Equal(t, LeagueLimitExceeded, outcome)
	})
}

func TestEspnStoreSetLeaguesRejectsOversizedSet(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	leagues := make([]EspnLeague, MaxLeaguesPerUser+1)
	for i := range leagues {
		leagues[i] = EspnLeague{UserID: "user_1", Sport: season.Football, LeagueID: "l", SeasonYear: 2020 + i}
	}

	s := NewEspnStore(mock)
	err = s.SetLeagues(context.Background(), "user_1", leagues)
	require.Error(t, err)
	assert.True(t, brokererrors.IsType(err, brokererrors.ErrLimitExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEspnStoreDeleteCredentialsCascades(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM espn_leagues").
		WithArgs("user_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("DELETE FROM espn_credentials").
		WithArgs("user_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	s := NewEspnStore(mock)
	require.NoError(t, s.DeleteCredentials(context.Background(), "user_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEspnStoreRemoveLeague(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM espn_leagues").
		WithArgs("user_1", "12345", "football").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	s := NewEspnStore(mock)
	removed, err := s.RemoveLeague(context.Background(), "user_1", "12345", season.Football)
	require.NoError(t, err)
	assert.True(t, removed)
}
