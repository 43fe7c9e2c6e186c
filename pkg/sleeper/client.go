// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package sleeper links user accounts to Sleeper's public API by username and
// discovers their league history. Sleeper requires no credentials; the
// linkage is just a verified username.
package sleeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
)

// defaultBaseURL is Sleeper's public API host, overridable for tests.
const defaultBaseURL = "https://api.sleeper.app"

// Client is a Sleeper API client.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client against the real Sleeper host.
func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
}

// NewClientWithBaseURL creates a Client against an alternate host, for tests.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// User is a Sleeper account.
type User struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// League is one Sleeper league season.
type League struct {
	LeagueID         string `json:"league_id"`
	Name             string `json:"name"`
	Season           string `json:"season"`
	Sport            string `json:"sport"`
	PreviousLeagueID string `json:"previous_league_id"`
}

// Roster is one roster slot in a league.
type Roster struct {
	RosterID int    `json:"roster_id"`
	OwnerID  string `json:"owner_id"`
}

// GetUser looks a user up by username. Sleeper answers 200 with a null body
// for unknown usernames, so that case is surfaced as not found.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	body, err := c.get(ctx, "/v1/user/"+url.PathEscape(username))
	if err != nil {
		return nil, err
	}
	if isNull(body) {
		return nil, brokererrors.NewNotFoundError(
			fmt.Sprintf("Sleeper user %q not found", username), nil)
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, brokererrors.NewUpstreamError("failed to decode Sleeper user", err)
	}
	if u.UserID == "" {
		return nil, brokererrors.NewNotFoundError(
			fmt.Sprintf("Sleeper user %q not found", username), nil)
	}
	return &u, nil
}

// GetLeagues lists a user's leagues for one sport and season. sportCode is
// Sleeper's code (nfl, nba).
func (c *Client) GetLeagues(ctx context.Context, sleeperUserID, sportCode string, seasonYear int) ([]League, error) {
	path := fmt.Sprintf("/v1/user/%s/leagues/%s/%d",
		url.PathEscape(sleeperUserID), sportCode, seasonYear)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if isNull(body) {
		return nil, nil
	}
	var leagues []League
	if err := json.Unmarshal(body, &leagues); err != nil {
		return nil, brokererrors.NewUpstreamError("failed to decode Sleeper leagues", err)
	}
	return leagues, nil
}

// GetLeague fetches one league, used to walk previous_league_id chains.
func (c *Client) GetLeague(ctx context.Context, leagueID string) (*League, error) {
	body, err := c.get(ctx, "/v1/league/"+url.PathEscape(leagueID))
	if err != nil {
		return nil, err
	}
	if isNull(body) {
		return nil, nil
	}
	var l League
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, brokererrors.NewUpstreamError("failed to decode Sleeper league", err)
	}
	return &l, nil
}

// GetRosters lists a league's rosters.
func (c *Client) GetRosters(ctx context.Context, leagueID string) ([]Roster, error) {
	body, err := c.get(ctx, "/v1/league/"+url.PathEscape(leagueID)+"/rosters")
	if err != nil {
		return nil, err
	}
	if isNull(body) {
		return nil, nil
	}
	var rosters []Roster
	if err := json.Unmarshal(body, &rosters); err != nil {
		return nil, brokererrors.NewUpstreamError("failed to decode Sleeper rosters", err)
	}
	return rosters, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, brokererrors.NewInternalError("failed to build Sleeper request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, brokererrors.NewUpstreamError("Sleeper request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []byte("null"), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, brokererrors.NewUpstreamError(
			fmt.Sprintf("Sleeper returned status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, brokererrors.NewUpstreamError("failed to read Sleeper response", err)
	}
	return body, nil
}

func isNull(body []byte) bool {
	return len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null"))
}
