// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package api

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/logging"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	rolesKey  contextKey = "roles"

	// adminRole is the Keycloak realm role that unlocks admin endpoints.
	adminRole = "admin"
)

// Authenticator validates Keycloak-issued bearer tokens. Tokens are RS256
// JWTs signed with the realm key; Candid never talks to Keycloak itself.
type Authenticator struct {
	enabled  bool
	issuer   string
	audience string
	key      *rsa.PublicKey
}

// realmClaims is the subset of Keycloak's token claims Candid reads.
type realmClaims struct {
	jwt.RegisteredClaims
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// NewAuthenticator parses the configured realm public key. With auth
// disabled the middleware admits every request under a nil user id,
// which only makes sense for local development.
func NewAuthenticator(cfg *config.AuthConfig) (*Authenticator, error) {
	a := &Authenticator{
		enabled:  cfg.Enabled,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}
	if !cfg.Enabled {
		logging.Warn().Msg("authentication disabled, all requests admitted")
		return a, nil
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse auth public key: %w", err)
	}
	a.key = key
	return a, nil
}

// Middleware authenticates the request and stores the caller's user id
// and realm roles in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.validate(raw)
		if err != nil {
			logging.Debug().Err(err).Msg("token validation failed")
			writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid token")
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid subject claim")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, rolesKey, claims.RealmAccess.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates admin endpoints on the Keycloak admin realm role.
// It must run after Middleware.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		for _, role := range rolesFromContext(r.Context()) {
			if role == adminRole {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, r, http.StatusForbidden, ErrCodeForbidden, "admin role required")
	})
}

func (a *Authenticator) validate(raw string) (*realmClaims, error) {
	claims := &realmClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// UserIDFromContext returns the authenticated caller's id, or uuid.Nil
// when authentication is disabled.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func rolesFromContext(ctx context.Context) []string {
	if roles, ok := ctx.Value(rolesKey).([]string); ok {
		return roles
	}
	return nil
}
