// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Command auth-broker serves the flaim credential and authorization broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flaim-app/auth-broker/pkg/api"
	"github.com/flaim-app/auth-broker/pkg/auth"
	"github.com/flaim-app/auth-broker/pkg/config"
	"github.com/flaim-app/auth-broker/pkg/database"
	"github.com/flaim-app/auth-broker/pkg/espn"
	"github.com/flaim-app/auth-broker/pkg/logger"
	"github.com/flaim-app/auth-broker/pkg/oauthserver"
	"github.com/flaim-app/auth-broker/pkg/sleeper"
	"github.com/flaim-app/auth-broker/pkg/store"
	"github.com/flaim-app/auth-broker/pkg/yahoo"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "auth-broker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Initialize(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	espnStore := store.NewEspnStore(pool)
	yahooStore := store.NewYahooStore(pool)
	sleeperStore := store.NewSleeperStore(pool)
	prefStore := store.NewPreferenceStore(pool)
	oauthStore := store.NewOAuthStore(pool)
	stateStore := store.NewPlatformStateStore(pool)
	rateStore := store.NewRateLimitStore(pool)

	authenticator := auth.New(auth.Config{
		JWT:           auth.NewJWTValidator(cfg.ClerkIssuer, cfg.IsProduction()),
		Tokens:        oauthStore,
		EvalKey:       cfg.EvalAPIKey,
		EvalUserID:    cfg.EvalUserID,
		EvalResources: cfg.AllowedEvalResources(),
	})

	yahooConn := yahoo.NewConnector(yahoo.Config{
		ClientID:     cfg.YahooClientID,
		ClientSecret: cfg.YahooClientSecret,
		RedirectURI:  cfg.YahooRedirectURI,
		FrontendURL:  cfg.FrontendURL,
		Credentials:  yahooStore,
		States:       stateStore,
	})
	if !yahooConn.Configured() {
		logger.Warnw("yahoo client credentials not set, yahoo connect disabled")
	}

	srv := api.NewServer(api.Deps{
		Config:        cfg,
		Authenticator: authenticator,
		OAuth:         oauthserver.New(oauthStore, authenticator, cfg.BaseURL, cfg.ConsentURL()),
		Espn:          espnStore,
		EspnDiscovery: espn.NewDiscoverer(espn.NewClient(), espnStore),
		Yahoo:         yahooConn,
		YahooLeagues:  yahooStore,
		Sleeper:       sleeper.NewDiscoverer(sleeper.NewClient(), sleeperStore),
		Preferences:   prefStore,
		RateLimiter:   rateStore,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("auth-broker listening",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"base_url", cfg.BaseURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
