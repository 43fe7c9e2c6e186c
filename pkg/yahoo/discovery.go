// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package yahoo

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/season"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// defaultFantasyBaseURL is Yahoo's fantasy API host, overridable for tests.
const defaultFantasyBaseURL = "https://fantasysports.yahooapis.com"

// fantasyContent is the envelope of every fantasy API response.
type fantasyContent struct {
	XMLName xml.Name `xml:"fantasy_content"`
	Users   struct {
		User struct {
			Games struct {
				Game []fantasyGame `xml:"game"`
			} `xml:"games"`
		} `xml:"user"`
	} `xml:"users"`
}

type fantasyGame struct {
	Code    string `xml:"code"`
	Season  string `xml:"season"`
	Leagues struct {
		League []fantasyLeague `xml:"league"`
	} `xml:"leagues"`
	Teams struct {
		Team []fantasyTeam `xml:"team"`
	} `xml:"teams"`
}

type fantasyLeague struct {
	LeagueKey string `xml:"league_key"`
	Name      string `xml:"name"`
	Season    string `xml:"season"`
}

type fantasyTeam struct {
	TeamKey string `xml:"team_key"`
	Name    string `xml:"name"`
}

// FantasyBaseURL overrides the fantasy API host, for tests.
func (c *Connector) FantasyBaseURL(baseURL string) {
	c.fantasyBaseURL = baseURL
}

// DiscoveryResult summarizes a Yahoo discovery run.
type DiscoveryResult struct {
	LeaguesFound int `json:"leagues_found"`
}

// Discover pulls the user's current leagues and teams from the fantasy API
// and upserts them. Team keys arrive with the leagues in one request: a team
// key nfl.l.12345.t.3 belongs to league nfl.l.12345.
func (c *Connector) Discover(ctx context.Context, userID string) (*DiscoveryResult, error) {
	creds, err := c.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	content, err := c.fetchLeagues(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}

	result := &DiscoveryResult{}
	for _, game := range content.Users.User.Games.Game {
		sportName, ok := sportForGameCode(game.Code)
		if !ok {
			continue
		}
		sport := season.Sport(sportName)

		teamsByLeague := make(map[string]fantasyTeam)
		for _, team := range game.Teams.Team {
			teamsByLeague[leagueKeyForTeam(team.TeamKey)] = team
		}

		for _, lg := range game.Leagues.League {
			year, err := strconv.Atoi(lg.Season)
			if err != nil {
				logger.Debugw("yahoo league with unparseable season",
					"league_key", lg.LeagueKey, "season", lg.Season)
				continue
			}
			row := &store.YahooLeague{
				UserID:     userID,
				LeagueKey:  lg.LeagueKey,
				SeasonYear: year,
				Sport:      sport,
			}
			if lg.Name != "" {
				name := lg.Name
				row.LeagueName = &name
			}
			if team, ok := teamsByLeague[lg.LeagueKey]; ok {
				tk, tn := team.TeamKey, team.Name
				row.TeamKey = &tk
				if tn != "" {
					row.TeamName = &tn
				}
			}
			if err := c.credentials.UpsertLeague(ctx, row); err != nil {
				logger.Warnw("failed to save yahoo league",
					"user_id", userID, "league_key", lg.LeagueKey, "error", err)
				continue
			}
			result.LeaguesFound++
		}
	}

	if result.LeaguesFound == 0 {
		return nil, brokererrors.NewDiscoveryFailedError(
			"No fantasy leagues found on the Yahoo account", nil)
	}
	return result, nil
}

func (c *Connector) fetchLeagues(ctx context.Context, accessToken string) (*fantasyContent, error) {
	base := c.fantasyBaseURL
	if base == "" {
		base = defaultFantasyBaseURL
	}
	u := base + "/fantasy/v2/users;use_login=1/games;game_keys=nfl,mlb,nba,nhl;out=leagues,teams"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, brokererrors.NewInternalError("failed to build Yahoo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := c.fantasyHTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, brokererrors.NewUpstreamError("Yahoo request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, brokererrors.NewUnauthorizedError("Yahoo rejected the access token", nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, brokererrors.NewUpstreamError(
			fmt.Sprintf("Yahoo returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var content fantasyContent
	if err := xml.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, brokererrors.NewUpstreamError("failed to decode Yahoo response", err)
	}
	return &content, nil
}

// leagueKeyForTeam turns nfl.l.12345.t.3 into nfl.l.12345.
func leagueKeyForTeam(teamKey string) string {
	if i := strings.Index(teamKey, ".t."); i >= 0 {
		return teamKey[:i]
	}
	return teamKey
}
