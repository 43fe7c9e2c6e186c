// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/season"
)

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	prefs, err := s.prefs.Get(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	var defaultSport *string
	if prefs.DefaultSport != nil {
		v := string(*prefs.DefaultSport)
		defaultSport = &v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"defaultSport":      defaultSport,
		"defaultFootball":   prefs.DefaultFootball,
		"defaultBaseball":   prefs.DefaultBaseball,
		"defaultBasketball": prefs.DefaultBasketball,
		"defaultHockey":     prefs.DefaultHockey,
	})
}

func (s *Server) setDefaultSport(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	// A JSON null sport clears the default, so absence and null must be
	// distinguishable from an invalid name.
	var req struct {
		Sport *string `json:"sport"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var sport *season.Sport
	if req.Sport != nil {
		parsed, err := parseSport(*req.Sport)
		if err != nil {
			writeError(w, err)
			return
		}
		sport = &parsed
	}

	if err := s.prefs.SetDefaultSport(r.Context(), principal.UserID, sport); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"defaultSport": req.Sport,
	})
}

// sleeperDiscover links a Sleeper account by username and imports its league
// history.
func (s *Server) sleeperDiscover(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireIdP(w, r)
	if !ok {
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" {
		writeError(w, brokererrors.NewInvalidArgumentError("username is required", nil))
		return
	}

	result, err := s.sleeperDisc.Discover(r.Context(), principal.UserID, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
