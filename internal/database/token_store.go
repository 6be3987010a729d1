// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TokenStore is the persisted tier of the external-service token cache.
// The in-process map in the Polis client is the first tier; this table
// keeps tokens across restarts so they are not re-issued every process
// lifetime.
type TokenStore struct {
	db *DB
}

// NewTokenStore creates a token store.
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

// Get returns the cached token and its expiry for a user if the token has
// not expired. A miss returns ok=false, never an error.
func (s *TokenStore) Get(ctx context.Context, userID uuid.UUID, now time.Time) (token string, expires time.Time, ok bool, err error) {
	err = s.db.pool.QueryRow(ctx, `
		SELECT token, expires_time FROM polis_tokens
		WHERE user_id = $1 AND expires_time > $2
	`, userID, now).Scan(&token, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("get token: %w", err)
	}
	return token, expires, true, nil
}

// Put stores or refreshes a user's token.
func (s *TokenStore) Put(ctx context.Context, userID uuid.UUID, token string, expires time.Time) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO polis_tokens (user_id, token, expires_time, updated_time)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id)
		DO UPDATE SET token = EXCLUDED.token, expires_time = EXCLUDED.expires_time, updated_time = now()
	`, userID, token, expires)
	if err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

// DeleteExpired prunes tokens past their expiry.
func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.pool.Exec(ctx, `
		DELETE FROM polis_tokens WHERE expires_time <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
