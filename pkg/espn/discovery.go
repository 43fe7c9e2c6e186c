// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package espn

import (
	"context"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/season"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// LeagueStore is the slice of the ESPN store discovery uses.
type LeagueStore interface {
	AddLeague(ctx context.Context, l *store.EspnLeague) (store.AddOutcome, error)
	LeagueExists(ctx context.Context, userID string, sport season.Sport, leagueID string, seasonYear int) (bool, error)
}

// SeasonTally counts what discovery did for one season bucket.
type SeasonTally struct {
	Found        int `json:"found"`
	Added        int `json:"added"`
	AlreadySaved int `json:"alreadySaved"`
}

func (t *SeasonTally) record(outcome store.AddOutcome) {
	t.Found++
	switch outcome {
	case store.LeagueAdded:
		t.Added++
	case store.LeagueDuplicate:
		t.AlreadySaved++
	case store.LeagueLimitExceeded:
		// Counted as found; the cap is reported through the store outcome
		// the first time an add hits it.
	}
}

// DiscoveredLeague is one membership pulled from the fan profile, as surfaced
// in the discovery response.
type DiscoveredLeague struct {
	GameID     int    `json:"gameId"`
	LeagueID   string `json:"leagueId"`
	LeagueName string `json:"leagueName"`
	SeasonID   int    `json:"seasonId"`
	TeamID     string `json:"teamId"`
	TeamName   string `json:"teamName"`
}

// Result summarizes a discovery run.
type Result struct {
	Discovered    []DiscoveredLeague `json:"discovered"`
	CurrentSeason SeasonTally        `json:"currentSeason"`
	PastSeasons   SeasonTally        `json:"pastSeasons"`
}

// Discoverer walks a user's fan profile and persists every fantasy league
// membership it can see, current seasons first, then each league's history.
type Discoverer struct {
	client  *Client
	leagues LeagueStore
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(client *Client, leagues LeagueStore) *Discoverer {
	return &Discoverer{client: client, leagues: leagues}
}

// Discover runs full discovery for the user. A profile with no fantasy
// entries is a discovery failure; a single league or season failing is not.
func (d *Discoverer) Discover(ctx context.Context, userID, swid, s2 string) (*Result, error) {
	profile, err := d.client.FanProfile(ctx, swid, s2)
	if err != nil {
		return nil, err
	}

	current := collectCurrentLeagues(profile)
	if len(current) == 0 {
		return nil, brokererrors.NewDiscoveryFailedError(
			"No fantasy leagues found on the ESPN profile", nil)
	}

	result := &Result{Discovered: current}
	for _, l := range current {
		sport, ok := season.SportFromGameID(l.GameID)
		if !ok {
			continue
		}
		outcome, err := d.addLeague(ctx, userID, sport, l)
		if err != nil {
			logger.Warnw("failed to save discovered league",
				"user_id", userID, "league_id", l.LeagueID, "error", err)
			continue
		}
		result.CurrentSeason.record(outcome)

		d.discoverHistory(ctx, userID, swid, s2, sport, l, &result.PastSeasons)
	}
	return result, nil
}

// collectCurrentLeagues filters the profile down to fantasy entries that
// belong to a league and a sport this broker knows.
func collectCurrentLeagues(profile *FanProfile) []DiscoveredLeague {
	var out []DiscoveredLeague
	for _, pref := range profile.Preferences {
		if pref.Type.Code != "fantasy" {
			continue
		}
		entry := pref.MetaData.Entry
		if entry == nil || len(entry.Groups) == 0 {
			continue
		}
		if _, ok := season.SportFromGameID(entry.GameID); !ok {
			continue
		}
		group := entry.Groups[0]
		out = append(out, DiscoveredLeague{
			GameID:     entry.GameID,
			LeagueID:   group.GroupID.String(),
			LeagueName: group.GroupName,
			SeasonID:   entry.SeasonID,
			TeamID:     entry.EntryID.String(),
			TeamName:   entry.Metadata.TeamName,
		})
	}
	return out
}

func (d *Discoverer) addLeague(ctx context.Context, userID string, sport season.Sport, l DiscoveredLeague) (store.AddOutcome, error) {
	lg := &store.EspnLeague{
		UserID:     userID,
		Sport:      sport,
		LeagueID:   l.LeagueID,
		SeasonYear: season.ToCanonicalYear(l.SeasonID, sport, "espn"),
	}
	if l.TeamID != "" {
		lg.TeamID = &l.TeamID
	}
	if l.TeamName != "" {
		lg.TeamName = &l.TeamName
	}
	if l.LeagueName != "" {
		lg.LeagueName = &l.LeagueName
	}
	return d.leagues.AddLeague(ctx, lg)
}

// discoverHistory walks a league's previous seasons and saves the ones the
// user actually played in. Season membership is decided per year by the
// current team id appearing in that year's team list: a league existing in
// 2019 says nothing about whether this user had a team then.
func (d *Discoverer) discoverHistory(ctx context.Context, userID, swid, s2 string, sport season.Sport, l DiscoveredLeague, tally *SeasonTally) {
	info, err := d.client.LeagueInfo(ctx, swid, s2, sport, l.SeasonID, l.LeagueID)
	if err != nil {
		logger.Debugw("failed to load league history",
			"league_id", l.LeagueID, "error", err)
		return
	}

	for _, year := range info.Status.PreviousSeasons {
		if year == l.SeasonID {
			continue
		}
		teams, err := d.client.LeagueTeams(ctx, swid, s2, sport, year, l.LeagueID)
		if err != nil {
			logger.Debugw("failed to load league season",
				"league_id", l.LeagueID, "year", year, "error", err)
			continue
		}
		if !hasTeamID(teams, l.TeamID) {
			continue
		}

		canonical := season.ToCanonicalYear(year, sport, "espn")
		exists, err := d.leagues.LeagueExists(ctx, userID, sport, l.LeagueID, canonical)
		if err != nil {
			logger.Warnw("failed to probe historical league season",
				"league_id", l.LeagueID, "year", year, "error", err)
			continue
		}
		if exists {
			tally.record(store.LeagueDuplicate)
			continue
		}

		// Each season carries the name the league had that year.
		name := l.LeagueName
		if yearInfo, err := d.client.LeagueInfo(ctx, swid, s2, sport, year, l.LeagueID); err == nil {
			name = yearInfo.Settings.Name
		}

		past := DiscoveredLeague{
			GameID:     l.GameID,
			LeagueID:   l.LeagueID,
			LeagueName: name,
			SeasonID:   year,
			TeamID:     l.TeamID,
			TeamName:   l.TeamName,
		}
		outcome, err := d.addLeague(ctx, userID, sport, past)
		if err != nil {
			logger.Warnw("failed to save historical league season",
				"league_id", l.LeagueID, "year", year, "error", err)
			continue
		}
		tally.record(outcome)
	}
}

// hasTeamID reports whether a team with the given id played that season.
func hasTeamID(teams []Team, teamID string) bool {
	for _, team := range teams {
		if team.ID.String() == teamID {
			return true
		}
	}
	return false
}
