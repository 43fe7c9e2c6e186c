// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package espn talks to ESPN's fan and fantasy APIs with a user's cookie
// pair and discovers the fantasy leagues they belong to.
package espn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/season"
)

// Default API hosts, overridable for tests.
const (
	defaultFanBaseURL    = "https://fan.api.espn.com"
	defaultLeagueBaseURL = "https://lm-api-reads.fantasy.espn.com"
)

// Client is an ESPN API client. The zero timeouts ESPN can hang on are
// bounded per endpoint: the fan profile is the slow one.
type Client struct {
	fanHTTP    *http.Client
	leagueHTTP *http.Client

	fanBaseURL    string
	leagueBaseURL string
}

// NewClient creates a Client against the real ESPN hosts.
func NewClient() *Client {
	return &Client{
		fanHTTP:       &http.Client{Timeout: 10 * time.Second},
		leagueHTTP:    &http.Client{Timeout: 7 * time.Second},
		fanBaseURL:    defaultFanBaseURL,
		leagueBaseURL: defaultLeagueBaseURL,
	}
}

// NewClientWithBaseURLs creates a Client against alternate hosts, for tests.
func NewClientWithBaseURLs(fanBaseURL, leagueBaseURL string) *Client {
	c := NewClient()
	c.fanBaseURL = fanBaseURL
	c.leagueBaseURL = leagueBaseURL
	return c
}

// NormalizeSWID trims whitespace and braces, then re-wraps. ESPN hands the
// cookie out braced but users paste it in every shape.
func NormalizeSWID(swid string) string {
	s := strings.TrimSpace(swid)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	return "{" + s + "}"
}

// bareSWID is the SWID without braces, as the x-p13n-swid header wants it.
func bareSWID(swid string) string {
	return strings.Trim(NormalizeSWID(swid), "{}")
}

// FanProfile is the slice of the fan API response discovery needs.
type FanProfile struct {
	Preferences []FanPreference `json:"preferences"`
}

// FanPreference is one profile preference; fantasy entries carry the league
// membership.
type FanPreference struct {
	Type struct {
		Code string `json:"code"`
	} `json:"type"`
	MetaData struct {
		Entry *FanEntry `json:"entry"`
	} `json:"metaData"`
}

// FanEntry is a fantasy team entry in the fan profile.
type FanEntry struct {
	EntryID  json.Number `json:"entryId"`
	GameID   int         `json:"gameId"`
	SeasonID int         `json:"seasonId"`
	Groups   []FanGroup  `json:"groups"`
	Metadata struct {
		TeamName string `json:"teamName"`
	} `json:"entryMetadata"`
}

// FanGroup is the league a fan entry belongs to.
type FanGroup struct {
	GroupID   json.Number `json:"groupId"`
	GroupName string      `json:"groupName"`
}

// FanProfile fetches the user's fan profile, the index of all their fantasy
// entries across sports and seasons.
func (c *Client) FanProfile(ctx context.Context, swid, s2 string) (*FanProfile, error) {
	swid = NormalizeSWID(swid)
	u := fmt.Sprintf("%s/apis/v2/fans/%s?displayEvents=true",
		c.fanBaseURL, url.PathEscape(swid))

	var profile FanProfile
	if err := c.get(ctx, c.fanHTTP, u, swid, s2, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// LeagueInfo is league settings plus the seasons the league has existed.
type LeagueInfo struct {
	ID       json.Number `json:"id"`
	SeasonID int         `json:"seasonId"`
	Settings struct {
		Name string `json:"name"`
	} `json:"settings"`
	Status struct {
		PreviousSeasons []int `json:"previousSeasons"`
	} `json:"status"`
}

// Team is one team in a league season, with its owners' SWIDs.
type Team struct {
	ID     json.Number `json:"id"`
	Name   string      `json:"name"`
	Owners []string    `json:"owners"`
}

type teamsResponse struct {
	Teams []Team `json:"teams"`
}

// LeagueInfo fetches league settings for one (sport, platformYear, league).
func (c *Client) LeagueInfo(ctx context.Context, swid, s2 string, sport season.Sport, platformYear int, leagueID string) (*LeagueInfo, error) {
	u := fmt.Sprintf("%s/apis/v3/games/%s/seasons/%d/segments/0/leagues/%s?view=mSettings",
		c.leagueBaseURL, season.GameAbbrev(sport), platformYear, url.PathEscape(leagueID))

	var info LeagueInfo
	if err := c.get(ctx, c.leagueHTTP, u, NormalizeSWID(swid), s2, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// LeagueTeams fetches the teams of one league season with owner SWIDs.
func (c *Client) LeagueTeams(ctx context.Context, swid, s2 string, sport season.Sport, platformYear int, leagueID string) ([]Team, error) {
	u := fmt.Sprintf("%s/apis/v3/games/%s/seasons/%d/segments/0/leagues/%s?view=mStandings&view=mTeam",
		c.leagueBaseURL, season.GameAbbrev(sport), platformYear, url.PathEscape(leagueID))

	var resp teamsResponse
	if err := c.get(ctx, c.leagueHTTP, u, NormalizeSWID(swid), s2, &resp); err != nil {
		return nil, err
	}
	return resp.Teams, nil
}

func (c *Client) get(ctx context.Context, client *http.Client, u, swid, s2 string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return brokererrors.NewInternalError("failed to build ESPN request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", fmt.Sprintf("SWID=%s; espn_s2=%s", swid, s2))
	req.Header.Set("x-p13n-swid", bareSWID(swid))
	req.Header.Set("X-Personalization-Source", "ESPN.com - FAM")

	resp, err := client.Do(req)
	if err != nil {
		return brokererrors.NewUpstreamError("ESPN request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return brokererrors.NewEspnAuthError("ESPN authentication failed: stored cookies are expired or invalid", nil)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return brokererrors.NewEspnAPIError(
			fmt.Sprintf("ESPN returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return brokererrors.NewEspnAPIError("failed to decode ESPN response", err)
	}
	return nil
}
