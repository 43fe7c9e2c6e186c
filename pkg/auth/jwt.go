// SPDX-FileCopyrightText: Copyright 2025 Flaim
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	brokererrors "github.com/flaim-app/auth-broker/pkg/errors"
)

// productionIssuer is the pinned IdP issuer for the production deployment.
const productionIssuer = "https://clerk.flaim.app"

// devIssuerSuffix matches Clerk development instances, accepted outside
// production only.
const devIssuerSuffix = ".clerk.accounts.dev"

// JWTValidator verifies RS256 identity tokens from the configured IdP.
type JWTValidator struct {
	configuredIssuer string
	production       bool
	jwks             *jwksCache
	parser           *jwt.Parser
	now              func() time.Time
}

// NewJWTValidator creates a validator trusting the configured issuer plus the
// pinned production issuer, and Clerk dev instances outside production.
func NewJWTValidator(configuredIssuer string, production bool) *JWTValidator {
	return &JWTValidator{
		configuredIssuer: configuredIssuer,
		production:       production,
		jwks:             newJWKSCache(production),
		parser:           jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		now:              time.Now,
	}
}

// issuerAllowed applies the issuer allowlist.
func (v *JWTValidator) issuerAllowed(issuer string) bool {
	if issuer == "" {
		return false
	}
	if issuer == v.configuredIssuer || issuer == productionIssuer {
		return true
	}
	if v.production {
		return false
	}
	u, err := url.Parse(issuer)
	if err != nil || u.Scheme != "https" {
		return false
	}
	return strings.HasSuffix(u.Host, devIssuerSuffix)
}

// Validate verifies the token's signature against the issuer's JWKS and
// returns the subject. Tokens without exp are accepted; an expired exp is not.
func (v *JWTValidator) Validate(ctx context.Context, tokenString string) (string, error) {
	// The issuer has to come out of the unverified claims first: it picks
	// which JWKS the signature is checked against.
	unverified := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(tokenString, unverified); err != nil {
		return "", brokererrors.NewUnauthorizedError("Invalid token", err)
	}
	issuer, err := unverified.GetIssuer()
	if err != nil || !v.issuerAllowed(issuer) {
		return "", brokererrors.NewUnauthorizedError("Invalid token issuer", err)
	}

	token, err := v.parser.Parse(tokenString, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token header missing kid")
		}
		return v.jwks.keyFor(ctx, issuer, kid)
	})
	if err != nil {
		return "", brokererrors.NewUnauthorizedError("Invalid token", err)
	}
	if !token.Valid {
		return "", brokererrors.NewUnauthorizedError("Invalid token", nil)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", brokererrors.NewUnauthorizedError("Invalid token claims", nil)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", brokererrors.NewUnauthorizedError("Token missing subject", err)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(v.now()) {
		return "", brokererrors.NewUnauthorizedError("Token expired", nil)
	}
	return sub, nil
}
