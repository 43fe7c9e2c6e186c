// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/flaim-app/auth-broker/pkg/logger"
)

// jwksCacheTTL is how long a fetched key set stays fresh.
const jwksCacheTTL = 5 * time.Minute

// jwksEntry is one issuer's cached key set.
type jwksEntry struct {
	set       jwk.Set
	fetchedAt time.Time
}

// jwksCache fetches and caches JWKS documents per issuer. Production gets a
// short fetch timeout and no stale fallback; other environments tolerate a
// flaky IdP with a retry and an hour of staleness.
type jwksCache struct {
	mu      sync.Mutex
	entries map[string]*jwksEntry

	client   *http.Client
	retries  int
	staleTTL time.Duration
}

func newJWKSCache(production bool) *jwksCache {
	c := &jwksCache{entries: make(map[string]*jwksEntry)}
	if production {
		c.client = &http.Client{Timeout: 5 * time.Second}
		c.retries = 0
		c.staleTTL = 0
	} else {
		c.client = &http.Client{Timeout: 10 * time.Second}
		c.retries = 1
		c.staleTTL = time.Hour
	}
	return c
}

// jwksURL is the Clerk-style well-known location under an issuer.
func jwksURL(issuer string) string {
	return issuer + "/.well-known/jwks.json"
}

// keyFor returns the raw public key for kid under issuer, fetching or
// refreshing the issuer's key set as needed.
func (c *jwksCache) keyFor(ctx context.Context, issuer, kid string) (any, error) {
	set, err := c.setFor(ctx, issuer)
	if err != nil {
		return nil, err
	}
	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS for %s", kid, issuer)
	}
	var rawKey any
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("failed to get raw key: %w", err)
	}
	return rawKey, nil
}

func (c *jwksCache) setFor(ctx context.Context, issuer string) (jwk.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[issuer]
	if entry != nil && time.Since(entry.fetchedAt) < jwksCacheTTL {
		return entry.set, nil
	}

	set, err := c.fetch(ctx, jwksURL(issuer))
	if err != nil {
		if entry != nil && c.staleTTL > 0 && time.Since(entry.fetchedAt) < c.staleTTL {
			logger.Warnw("JWKS refresh failed, serving stale key set",
				"issuer", issuer, "error", err)
			return entry.set, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	c.entries[issuer] = &jwksEntry{set: set, fetchedAt: time.Now()}
	return set, nil
}

func (c *jwksCache) fetch(ctx context.Context, url string) (jwk.Set, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		set, err := jwk.Fetch(ctx, url, jwk.WithHTTPClient(c.client))
		if err == nil {
			return set, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
