// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package season maps sports to season years. A season is identified by its
// canonical year, the calendar year it starts in, regardless of how any
// platform labels it on the wire.
package season

import (
	"fmt"
	"time"
)

// Sport is one of the four fantasy sports the broker understands.
type Sport string

// Supported sports.
const (
	Football   Sport = "football"
	Baseball   Sport = "baseball"
	Basketball Sport = "basketball"
	Hockey     Sport = "hockey"
)

// Sports lists every supported sport.
var Sports = []Sport{Football, Baseball, Basketball, Hockey}

// rolloverMonth is the America/New_York month at which the default season
// year flips forward for each sport.
var rolloverMonth = map[Sport]time.Month{
	Baseball:   time.February,
	Football:   time.July,
	Basketball: time.August,
	Hockey:     time.August,
}

// crossYear marks the sports whose seasons span the new year and are
// labelled "YYYY-YY". ESPN addresses these by end year on the wire.
var crossYear = map[Sport]bool{
	Basketball: true,
	Hockey:     true,
}

// gameIDs maps ESPN's numeric fantasy game ids to sports.
var gameIDs = map[int]Sport{
	1: Football,
	2: Baseball,
	3: Basketball,
	4: Hockey,
}

// gameAbbrevs maps sports to ESPN's fantasy game abbreviations.
var gameAbbrevs = map[Sport]string{
	Football:   "ffl",
	Baseball:   "flb",
	Basketball: "fba",
	Hockey:     "fhl",
}

// eastern pins calendar arithmetic to the league-office timezone rather than
// whatever the process happens to run in.
var eastern *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Fixed offset fallback; only reachable without a tzdata bundle.
		loc = time.FixedZone("EST", -5*60*60)
	}
	eastern = loc
}

// Parse returns the Sport named by s, or an error for anything else.
func Parse(s string) (Sport, error) {
	switch Sport(s) {
	case Football, Baseball, Basketball, Hockey:
		return Sport(s), nil
	}
	return "", fmt.Errorf("invalid_sport: %q", s)
}

// Valid reports whether s names a supported sport.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// DefaultSeasonYear returns the canonical year of the season in progress (or
// most recently completed) for the sport at time now. Before the sport's
// rollover month the previous year's season is still the default.
func DefaultSeasonYear(sport Sport, now time.Time) int {
	local := now.In(eastern)
	year, month := local.Year(), local.Month()
	if month < rolloverMonth[sport] {
		return year - 1
	}
	return year
}

// IsCurrentSeason reports whether year is the default season for the sport at
// time now.
func IsCurrentSeason(sport Sport, year int, now time.Time) bool {
	return year == DefaultSeasonYear(sport, now)
}

// ToPlatformYear converts a canonical season year into the year a platform
// uses on the wire. ESPN addresses basketball and hockey seasons by their end
// year; everything else is canonical already.
func ToPlatformYear(year int, sport Sport, platform string) int {
	if platform == "espn" && crossYear[sport] {
		return year + 1
	}
	return year
}

// ToCanonicalYear converts a platform wire year back into canonical form.
// Round-trips with ToPlatformYear.
func ToCanonicalYear(year int, sport Sport, platform string) int {
	if platform == "espn" && crossYear[sport] {
		return year - 1
	}
	return year
}

// Label renders a season year for display: "2024-25" for cross-year sports,
// "2024" otherwise.
func Label(year int, sport Sport) string {
	if crossYear[sport] {
		return fmt.Sprintf("%d-%02d", year, (year+1)%100)
	}
	return fmt.Sprintf("%d", year)
}

// SportFromGameID maps an ESPN numeric fantasy game id to a sport. The second
// return is false for ids the broker does not track.
func SportFromGameID(id int) (Sport, bool) {
	s, ok := gameIDs[id]
	return s, ok
}

// GameAbbrev returns ESPN's fantasy game abbreviation for the sport (ffl,
// flb, fba, fhl).
func GameAbbrev(sport Sport) string {
	return gameAbbrevs[sport]
}
