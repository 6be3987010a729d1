// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package testinfra provides test infrastructure for integration testing with containers.
//
// This package uses testcontainers-go to manage Docker containers for integration tests,
// providing realistic testing environments that closely match production.
//
// # Postgres Container
//
// The PostgresContainer provides a real PostgreSQL instance for testing the
// storage layer, queue claiming semantics, and advisory locks:
//
//	func TestQueueClaim(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer pg.Terminate(ctx)
//
//	    db, err := database.New(ctx, &config.DatabaseConfig{URL: pg.URL, MigrateOnStart: true})
//	    // ...
//	}
//
// Row-locking claims (FOR UPDATE SKIP LOCKED) and pg_try_advisory_lock cannot
// be exercised meaningfully against mocks, so the concurrency tests in
// internal/database run only against a real container and are guarded by the
// integration build tag.
package testinfra
