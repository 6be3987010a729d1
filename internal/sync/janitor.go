// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package sync

import (
	"context"
	"time"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/metrics"
)

// Janitor prunes completed queue items past the retention window, returns
// processing items whose claim lease expired to pending, and keeps the
// queue depth gauges fresh. Runs independently of the worker so a stalled
// worker still reports accurate depths.
//
// Janitor implements suture.Service.
type Janitor struct {
	cfg   config.SyncConfig
	queue Store
}

// NewJanitor creates a queue janitor.
func NewJanitor(cfg config.SyncConfig, queue Store) *Janitor {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.CleanupRetentionDays <= 0 {
		cfg.CleanupRetentionDays = 7
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 15 * time.Minute
	}
	return &Janitor{cfg: cfg, queue: queue}
}

// String implements suture.Service for supervisor log output.
func (j *Janitor) String() string {
	return "sync-janitor"
}

// Serve runs cleanup passes until ctx is cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	for {
		j.runPass(ctx)

		if err := sleepCtx(ctx, j.cfg.CleanupInterval); err != nil {
			return err
		}
	}
}

// runPass deletes expired completed items, reclaims stranded processing
// items, and refreshes the depth gauges.
func (j *Janitor) runPass(ctx context.Context) {
	retention := time.Duration(j.cfg.CleanupRetentionDays) * 24 * time.Hour
	removed, err := j.queue.CleanupCompleted(ctx, retention)
	if err != nil {
		logging.Error().Err(err).Msg("Queue cleanup failed")
	} else if removed > 0 {
		logging.Info().Int64("removed", removed).Msg("Pruned completed sync queue items")
	}

	// A processing item past its lease belongs to a worker that died
	// before marking it; without this sweep it would never be claimable
	// again.
	reclaimed, err := j.queue.ReclaimStale(ctx, j.cfg.ClaimLease)
	if err != nil {
		logging.Error().Err(err).Msg("Stale claim reclaim failed")
	} else if reclaimed > 0 {
		logging.Warn().Int64("reclaimed", reclaimed).Dur("lease", j.cfg.ClaimLease).Msg("Returned stranded processing items to pending")
	}

	stats, err := j.queue.Stats(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Queue stats refresh failed")
		return
	}
	metrics.SetQueueDepths(stats.AsMap())
}
