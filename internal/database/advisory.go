// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package database

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/logging"
)

// AdvisoryLocker provides cross-process named mutual exclusion via
// Postgres session advisory locks. The lock is tied to the dedicated
// connection acquired for it, so release must happen on the same
// connection; the returned release func owns both the unlock and the
// connection's return to the pool.
type AdvisoryLocker struct {
	db *DB
}

// NewAdvisoryLocker creates an advisory locker on the shared pool.
func NewAdvisoryLocker(db *DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// TryLock attempts to acquire the lock for namespace:id without
// blocking. When acquired is true the caller must invoke release
// exactly once, typically in a defer.
func (l *AdvisoryLocker) TryLock(ctx context.Context, namespace string, id uuid.UUID) (release func(), acquired bool, err error) {
	conn, err := l.db.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}

	key := advisoryKey64(namespace, id)
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release = func() {
		// Unlock with a background context: release must not be skipped
		// because the caller's context was already cancelled. A leaked
		// lock would starve this key until the session dies.
		var unlocked bool
		if err := conn.QueryRow(context.Background(), `SELECT pg_advisory_unlock($1)`, key).Scan(&unlocked); err != nil || !unlocked {
			logging.Warn().Err(err).Int64("key", key).Msg("Advisory unlock did not release the lock")
		}
		conn.Release()
	}
	return release, true, nil
}

// advisoryKey64 hashes namespace:id into the signed 64-bit key space
// Postgres advisory locks use. fnv64a keeps the mapping deterministic
// across processes.
func advisoryKey64(namespace string, id uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(id.String()))
	return int64(h.Sum64())
}
