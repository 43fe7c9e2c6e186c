// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

// Package config loads the auth broker configuration from environment
// variables via viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Environment names.
const (
	EnvProduction = "production"
	EnvPreview    = "preview"
	EnvDev        = "development"
)

// productionBaseURL is the canonical production API origin.
const productionBaseURL = "https://api.flaim.app"

// productionFrontendURL is the consent UI origin used when FRONTEND_URL is
// not set in production.
const productionFrontendURL = "https://www.flaim.app"

// Config carries every tunable the broker reads from the environment.
type Config struct {
	// Environment is one of production, preview, development.
	Environment string

	// Port is the HTTP listen port.
	Port int

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// BaseURL is the externally visible origin of this service. It is the
	// OAuth issuer and the prefix of the allowed resource indicators.
	BaseURL string

	// FrontendURL is the web UI origin hosting the OAuth consent page.
	FrontendURL string

	// ClerkIssuer is the configured identity-provider issuer. The fixed
	// production issuer is always accepted in addition to this one.
	ClerkIssuer string

	// EvalAPIKey, when set, enables the static eval bearer credential.
	EvalAPIKey string

	// EvalUserID is the principal the eval API key resolves to.
	EvalUserID string

	// YahooClientID and YahooClientSecret authenticate this service to
	// Yahoo's OAuth token endpoint.
	YahooClientID     string
	YahooClientSecret string

	// YahooRedirectURI is the callback registered with Yahoo.
	YahooRedirectURI string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENVIRONMENT", EnvDev)
	v.SetDefault("PORT", 8786)

	cfg := &Config{
		Environment:       v.GetString("ENVIRONMENT"),
		Port:              v.GetInt("PORT"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		BaseURL:           v.GetString("BASE_URL"),
		FrontendURL:       v.GetString("FRONTEND_URL"),
		ClerkIssuer:       v.GetString("CLERK_ISSUER"),
		EvalAPIKey:        v.GetString("EVAL_API_KEY"),
		EvalUserID:        v.GetString("EVAL_USER_ID"),
		YahooClientID:     v.GetString("YAHOO_CLIENT_ID"),
		YahooClientSecret: v.GetString("YAHOO_CLIENT_SECRET"),
		YahooRedirectURI:  v.GetString("YAHOO_REDIRECT_URI"),
	}

	if cfg.BaseURL == "" {
		if cfg.IsProduction() {
			cfg.BaseURL = productionBaseURL
		} else {
			cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
		}
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	if cfg.FrontendURL == "" {
		if cfg.IsProduction() {
			cfg.FrontendURL = productionFrontendURL
		} else {
			cfg.FrontendURL = "http://localhost:3000"
		}
	}
	cfg.FrontendURL = strings.TrimSuffix(cfg.FrontendURL, "/")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// IsProduction reports whether the broker runs against production traffic.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// IsPreview reports whether the broker runs in the preview environment.
func (c *Config) IsPreview() bool {
	return c.Environment == EnvPreview
}

// ConsentURL is where /authorize sends the user agent to approve an OAuth
// request. All original OAuth query parameters are forwarded to it.
func (c *Config) ConsentURL() string {
	return c.FrontendURL + "/oauth/consent"
}

// AllowedEvalResources is the resource-indicator allowlist for the eval API
// key.
func (c *Config) AllowedEvalResources() []string {
	return []string{c.BaseURL + "/mcp", c.BaseURL + "/fantasy/mcp"}
}
