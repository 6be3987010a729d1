// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package database is the PostgreSQL data access layer. It owns the
// connection pool, the schema, and the store types built on top of it:
// the sync queue, conversations, votes, training logs, and the
// cross-process advisory lock used by the training worker.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/logging"
)

// DB wraps the pgx connection pool and provides data access methods.
type DB struct {
	pool *pgxpool.Pool
	cfg  *config.DatabaseConfig
}

// New creates a connection pool, verifies connectivity, and ensures the
// schema exists.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{pool: pool, cfg: cfg}

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logging.Info().
		Int32("max_conns", poolCfg.MaxConns).
		Msg("Database connection pool established")
	return db, nil
}

// Pool exposes the underlying pool for stores that need raw access.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Migrate applies the embedded schema. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS) so re-running on startup is safe.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logging.Info().Msg("Database schema up to date")
	return nil
}

// Ping verifies the database is reachable, for health checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}
