// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/season"
	"github.com/flaim-app/auth-broker/pkg/store"
)

// dailyRawLimit caps raw-credential reads per user per UTC day.
const dailyRawLimit = 200

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to write response", "error", err)
	}
}

// statusFor maps a typed error to its HTTP status.
func statusFor(err error) int {
	switch brokererrors.TypeOf(err) {
	case brokererrors.ErrInvalidArgument, brokererrors.ErrLimitExceeded:
		return http.StatusBadRequest
	case brokererrors.ErrUnauthorized, brokererrors.ErrEspnAuth:
		return http.StatusUnauthorized
	case brokererrors.ErrNotFound:
		return http.StatusNotFound
	case brokererrors.ErrDuplicate:
		return http.StatusConflict
	case brokererrors.ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a typed error to its wire shape. Untyped errors never leak
// their message to the client.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	message := "Internal server error"
	var e *brokererrors.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	if status == http.StatusInternalServerError {
		logger.Errorw("request failed", "error", err)
		if e == nil {
			message = "Internal server error"
		}
	}
	writeJSON(w, status, map[string]any{"error": message})
}

// parseSport validates a wire sport name, typed for the 400 mapping.
func parseSport(s string) (season.Sport, error) {
	sport, err := season.Parse(s)
	if err != nil {
		return "", brokererrors.NewInvalidArgumentError("invalid_sport", err)
	}
	return sport, nil
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return brokererrors.NewInvalidArgumentError("request body must be JSON", err)
	}
	return nil
}

// enforceRateLimit counts this request against the caller's daily quota and
// writes the 429 when it is spent. A storage failure never blocks the
// request. Returns false when the caller must stop.
func (s *Server) enforceRateLimit(w http.ResponseWriter, r *http.Request, userID string) bool {
	now := s.now()
	count, err := s.rates.Increment(r.Context(), userID, now)
	if err != nil {
		logger.Warnw("rate limit increment failed", "user_id", userID, "error", err)
		return true
	}

	reset := store.NextUTCMidnight(now)
	remaining := dailyRawLimit - count
	if remaining < 0 {
		remaining = 0
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(dailyRawLimit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

	if count > dailyRawLimit {
		h.Set("Retry-After", strconv.Itoa(int(reset.Sub(now).Seconds())))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "Rate limit exceeded"})
		return false
	}
	return true
}
