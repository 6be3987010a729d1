// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/metrics"
	"github.com/GovThePPL/candid/internal/models"
)

// longBackoffFloor is the minimum retry delay applied when the external
// service itself is down. Keeps a fleet of workers from hammering a
// service that is already struggling.
const longBackoffFloor = 300 * time.Second

// QueueStore is the durable sync queue. Claiming uses FOR UPDATE SKIP
// LOCKED so concurrent worker processes partition the queue without
// ever double-claiming an item.
type QueueStore struct {
	db          *DB
	maxRetries  int
	baseBackoff time.Duration
	longFloor   time.Duration
}

// NewQueueStore creates a queue store with the given retry policy.
func NewQueueStore(db *DB, maxRetries int, baseBackoff, longFloor time.Duration) *QueueStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if longFloor <= 0 {
		longFloor = longBackoffFloor
	}
	return &QueueStore{db: db, maxRetries: maxRetries, baseBackoff: baseBackoff, longFloor: longFloor}
}

// MaxRetries returns the retry budget before an item goes terminal.
func (s *QueueStore) MaxRetries() int {
	return s.maxRetries
}

// Enqueue inserts a new pending item, eligible for claiming immediately.
func (s *QueueStore) Enqueue(ctx context.Context, opType models.OperationType, payload models.SyncPayload) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	var id uuid.UUID
	err = s.db.pool.QueryRow(ctx, `
		INSERT INTO sync_queue (operation_type, payload)
		VALUES ($1, $2)
		RETURNING id
	`, string(opType), body).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue %s: %w", opType, err)
	}

	metrics.QueueItemsEnqueuedTotal.WithLabelValues(string(opType)).Inc()
	return id, nil
}

// ClaimBatch atomically moves up to limit claimable rows to processing
// and returns them. Claimable rows are pending or partial with
// next_retry_time due, ordered oldest-first. Returns an empty slice
// when nothing is due.
func (s *QueueStore) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]models.SyncQueueItem, error) {
	start := time.Now()
	rows, err := s.db.pool.Query(ctx, `
		WITH claimed AS (
			SELECT id
			FROM sync_queue
			WHERE status IN ('pending', 'partial')
			  AND next_retry_time <= $2
			ORDER BY created_time
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE sync_queue q
		SET status = 'processing', updated_time = $2
		FROM claimed
		WHERE q.id = claimed.id
		RETURNING q.id, q.operation_type, q.payload, q.status, q.retry_count,
		          q.next_retry_time, q.error_message, q.created_time, q.updated_time
	`, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var items []models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var payload []byte
		if err := rows.Scan(&item.ID, &item.OperationType, &payload, &item.Status,
			&item.RetryCount, &item.NextRetryTime, &item.ErrorMessage,
			&item.CreatedTime, &item.UpdatedTime); err != nil {
			return nil, fmt.Errorf("scan claimed item: %w", err)
		}
		if err := json.Unmarshal(payload, &item.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim batch rows: %w", err)
	}

	metrics.QueueClaimDuration.Observe(time.Since(start).Seconds())
	return items, nil
}

// MarkCompleted transitions an item to completed. A non-empty note
// records a partial-success warning; the item is still terminal.
func (s *QueueStore) MarkCompleted(ctx context.Context, id uuid.UUID, note string) error {
	var errMsg *string
	if note != "" {
		errMsg = &note
	}
	_, err := s.db.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'completed', error_message = $2, next_retry_time = now(), updated_time = now()
		WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. Items that exhausted the retry
// budget go terminal; otherwise the item returns to pending with an
// exponential backoff, floored at the long-backoff minimum when the
// external service itself is down.
func (s *QueueStore) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, cause string, forceLongBackoff bool) error {
	if retryCount >= s.maxRetries {
		_, err := s.db.pool.Exec(ctx, `
			UPDATE sync_queue
			SET status = 'failed', retry_count = $2, error_message = $3, updated_time = now()
			WHERE id = $1
		`, id, retryCount, cause)
		if err != nil {
			return fmt.Errorf("mark failed terminal: %w", err)
		}
		return nil
	}

	backoff := s.Backoff(retryCount, forceLongBackoff)
	_, err := s.db.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'pending', retry_count = $2, error_message = $3,
		    next_retry_time = now() + $4, updated_time = now()
		WHERE id = $1
	`, id, retryCount, cause, backoff)
	if err != nil {
		return fmt.Errorf("mark failed retry: %w", err)
	}
	return nil
}

// MarkPartial records an attempt that synced some but not all targets.
// The item stays claimable so a later attempt can finish the remainder;
// already-synced targets are skipped on retry via the mapping table.
// A partial item that exhausts the retry budget goes terminal.
func (s *QueueStore) MarkPartial(ctx context.Context, id uuid.UUID, retryCount int, cause string, forceLongBackoff bool) error {
	if retryCount >= s.maxRetries {
		return s.MarkFailed(ctx, id, retryCount, cause, forceLongBackoff)
	}

	backoff := s.Backoff(retryCount, forceLongBackoff)
	_, err := s.db.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'partial', retry_count = $2, error_message = $3,
		    next_retry_time = now() + $4, updated_time = now()
		WHERE id = $1
	`, id, retryCount, cause, backoff)
	if err != nil {
		return fmt.Errorf("mark partial: %w", err)
	}
	return nil
}

// Backoff computes the retry delay for the given attempt count:
// base * 2^(retryCount-1), floored at the long-backoff minimum when
// forceLongBackoff is set.
func (s *QueueStore) Backoff(retryCount int, forceLongBackoff bool) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	backoff := s.baseBackoff << uint(retryCount-1)
	if forceLongBackoff && backoff < s.longFloor {
		backoff = s.longFloor
	}
	return backoff
}

// Stats returns the per-status item counts plus a total.
func (s *QueueStore) Stats(ctx context.Context) (models.QueueStats, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT status, count(*) FROM sync_queue GROUP BY status
	`)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats models.QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.QueueStats{}, fmt.Errorf("scan stats row: %w", err)
		}
		switch models.QueueStatus(status) {
		case models.StatusPending:
			stats.Pending = count
		case models.StatusProcessing:
			stats.Processing = count
		case models.StatusCompleted:
			stats.Completed = count
		case models.StatusFailed:
			stats.Failed = count
		case models.StatusPartial:
			stats.Partial = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return models.QueueStats{}, fmt.Errorf("stats rows: %w", err)
	}
	return stats, nil
}

// CleanupCompleted deletes completed items past the retention window and
// returns the number of rows removed.
func (s *QueueStore) CleanupCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.db.pool.Exec(ctx, `
		DELETE FROM sync_queue
		WHERE status = 'completed' AND updated_time < now() - $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReclaimStale returns processing rows whose claim has outlived the lease
// window to pending, immediately claimable. Recovers items stranded when a
// worker dies between claiming and marking; ClaimBatch stamps updated_time
// on claim, so a row still processing past the lease has lost its worker.
func (s *QueueStore) ReclaimStale(ctx context.Context, lease time.Duration) (int64, error) {
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'pending', next_retry_time = now(), updated_time = now()
		WHERE status = 'processing' AND updated_time < now() - $1
	`, lease)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Requeue resets a terminally failed item to pending with a fresh retry
// budget. Used by the admin endpoint for manual recovery.
func (s *QueueStore) Requeue(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'pending', retry_count = 0, error_message = NULL,
		    next_retry_time = now(), updated_time = now()
		WHERE id = $1 AND status = 'failed'
	`, id)
	if err != nil {
		return false, fmt.Errorf("requeue: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
