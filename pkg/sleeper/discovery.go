// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package sleeper

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/season"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// maxHistoryDepth bounds the previous_league_id walk per league.
const maxHistoryDepth = 5

// sleeperSports maps the Sleeper fantasy sports the broker tracks to their
// API codes.
var sleeperSports = []struct {
	sport season.Sport
	code  string
}{
	{season.Football, "nfl"},
	{season.Basketball, "nba"},
}

// ConnectionStore is the slice of the Sleeper store discovery writes to.
type ConnectionStore interface {
	UpsertConnection(ctx context.Context, c *store.SleeperConnection) error
	UpsertLeague(ctx context.Context, l *store.SleeperLeague) error
}

// Result summarizes a Sleeper discovery run.
type Result struct {
	Success           bool   `json:"success"`
	Username          string `json:"username"`
	LeaguesFound      int    `json:"leagues_found"`
	SeasonsDiscovered int    `json:"seasons_discovered"`
	Warning           string `json:"warning,omitempty"`
}

// Discoverer links a Sleeper username and persists the user's leagues.
type Discoverer struct {
	client *Client
	stores ConnectionStore
	now    func() time.Time
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(client *Client, stores ConnectionStore) *Discoverer {
	return &Discoverer{client: client, stores: stores, now: time.Now}
}

// Discover resolves the username, saves the linkage, and walks each sport's
// current leagues plus their history. One sport failing degrades the run to a
// warning instead of failing it: football results are still worth returning
// when the basketball fetch dies.
func (d *Discoverer) Discover(ctx context.Context, userID, username string) (*Result, error) {
	user, err := d.client.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}

	err = d.stores.UpsertConnection(ctx, &store.SleeperConnection{
		UserID:          userID,
		SleeperUserID:   user.UserID,
		SleeperUsername: user.Username,
	})
	if err != nil {
		return nil, fmt.Errorf("save sleeper connection: %w", err)
	}

	result := &Result{Username: user.Username}
	for _, s := range sleeperSports {
		year := season.DefaultSeasonYear(s.sport, d.now())
		leagues, err := d.client.GetLeagues(ctx, user.UserID, s.code, year)
		if err != nil {
			logger.Warnw("sleeper league fetch failed",
				"user_id", userID, "sport", s.sport, "error", err)
			result.Warning = fmt.Sprintf("failed to fetch %s leagues", s.sport)
			continue
		}

		for _, lg := range leagues {
			seasons := d.saveLeagueWithHistory(ctx, userID, user.UserID, s.sport, lg)
			if seasons > 0 {
				result.LeaguesFound++
				result.SeasonsDiscovered += seasons
			}
		}
	}

	result.Success = result.LeaguesFound > 0
	return result, nil
}

// saveLeagueWithHistory persists one league season and walks its
// previous_league_id chain. Returns how many seasons were saved.
func (d *Discoverer) saveLeagueWithHistory(ctx context.Context, userID, sleeperUserID string, sport season.Sport, lg League) int {
	saved := 0
	current := &lg
	for depth := 0; current != nil && depth <= maxHistoryDepth; depth++ {
		if d.saveSeason(ctx, userID, sleeperUserID, sport, current) {
			saved++
		}
		if current.PreviousLeagueID == "" {
			break
		}
		prev, err := d.client.GetLeague(ctx, current.PreviousLeagueID)
		if err != nil {
			logger.Debugw("sleeper history walk stopped",
				"league_id", current.PreviousLeagueID, "error", err)
			break
		}
		current = prev
	}
	return saved
}

func (d *Discoverer) saveSeason(ctx context.Context, userID, sleeperUserID string, sport season.Sport, lg *League) bool {
	year, err := strconv.Atoi(lg.Season)
	if err != nil {
		logger.Debugw("sleeper league with unparseable season",
			"league_id", lg.LeagueID, "season", lg.Season)
		return false
	}

	row := &store.SleeperLeague{
		UserID:     userID,
		LeagueID:   lg.LeagueID,
		SeasonYear: year,
		Sport:      sport,
	}
	if lg.Name != "" {
		name := lg.Name
		row.LeagueName = &name
	}
	if rosterID, ok := d.rosterFor(ctx, lg.LeagueID, sleeperUserID); ok {
		row.RosterID = &rosterID
	}

	if err := d.stores.UpsertLeague(ctx, row); err != nil {
		logger.Warnw("failed to save sleeper league",
			"user_id", userID, "league_id", lg.LeagueID, "error", err)
		return false
	}
	return true
}

// rosterFor finds the user's roster id in a league season, if they had one.
func (d *Discoverer) rosterFor(ctx context.Context, leagueID, sleeperUserID string) (int, bool) {
	rosters, err := d.client.GetRosters(ctx, leagueID)
	if err != nil {
		logger.Debugw("sleeper roster fetch failed", "league_id", leagueID, "error", err)
		return 0, false
	}
	for _, r := range rosters {
		if r.OwnerID == sleeperUserID {
			return r.RosterID, true
		}
	}
	return 0, false
}
