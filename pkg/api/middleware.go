// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/flaim-app/auth-broker/pkg/logger"
)

// corsAllowedOrigins is the fixed browser-origin allowlist. A leading "*."
// in the host matches any single-level or deeper subdomain.
var corsAllowedOrigins = []string{
	"https://flaim.app",
	"https://www.flaim.app",
	"https://*.flaim.app",
	"https://*.vercel.app",
	"http://localhost:3000",
	"http://localhost:8786",
}

func originAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	for _, allowed := range corsAllowedOrigins {
		scheme, host, ok := strings.Cut(allowed, "://")
		if !ok || scheme != u.Scheme {
			continue
		}
		if suffix, wild := strings.CutPrefix(host, "*."); wild {
			if strings.HasSuffix(u.Host, "."+suffix) {
				return true
			}
			continue
		}
		if u.Host == host {
			return true
		}
	}
	return false
}

// cors applies the fixed allowlist and answers preflights.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// traceEvent is the wire shape of one eval-trace line. Evaluation harnesses
// parse these as JSON lines, so the shape is fixed and emitted directly
// rather than through the structured logger.
type traceEvent struct {
	Service       string  `json:"service"`
	Phase         string  `json:"phase"`
	CorrelationID string  `json:"correlation_id,omitempty"`
	RunID         string  `json:"run_id,omitempty"`
	TraceID       string  `json:"trace_id,omitempty"`
	Path          string  `json:"path"`
	Method        string  `json:"method"`
	Status        int     `json:"status,omitempty"`
	DurationMS    float64 `json:"duration_ms,omitempty"`
	Message       string  `json:"message"`
}

func emitTrace(ev traceEvent) {
	ev.Service = "auth-worker"
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = os.Stdout.Write(append(line, '\n'))
}

// trace emits request_start/request_end events, but only for requests marked
// by an eval harness. Regular traffic produces no trace output.
func (s *Server) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := r.Header.Get("X-Flaim-Eval-Run")
		traceID := r.Header.Get("X-Flaim-Eval-Trace")
		if runID == "" && traceID == "" {
			next.ServeHTTP(w, r)
			return
		}

		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		ev := traceEvent{
			Phase:         "request_start",
			CorrelationID: correlationID,
			RunID:         runID,
			TraceID:       traceID,
			Path:          r.URL.Path,
			Method:        r.Method,
			Message:       "request received",
		}
		emitTrace(ev)

		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		ev.Phase = "request_end"
		ev.Status = ww.Status()
		ev.DurationMS = float64(time.Since(start).Microseconds()) / 1000
		ev.Message = "request completed"
		emitTrace(ev)
	})
}

// recoverer turns panics into a 500 instead of tearing down the connection.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorw("panic serving request",
					"path", r.URL.Path, "method", r.Method, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error":   "Internal server error",
					"details": fmt.Sprint(rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
