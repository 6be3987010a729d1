// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/database"
	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/metrics"
	"github.com/GovThePPL/candid/internal/models"
	"github.com/GovThePPL/candid/internal/polis"
	"github.com/GovThePPL/candid/internal/scoring"
)

// Store is the queue surface the worker needs. Implemented by
// database.QueueStore.
type Store interface {
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]models.SyncQueueItem, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, note string) error
	MarkPartial(ctx context.Context, id uuid.UUID, retryCount int, cause string, forceLongBackoff bool) error
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, cause string, forceLongBackoff bool) error
	MaxRetries() int
	Stats(ctx context.Context) (models.QueueStats, error)
	CleanupCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
	ReclaimStale(ctx context.Context, lease time.Duration) (int64, error)
}

// ConversationDirectory resolves which external conversations a position
// belongs to and tracks position-to-comment mappings. Implemented by
// database.ConversationStore.
type ConversationDirectory interface {
	FindActiveForPosition(ctx context.Context, locationID uuid.UUID, categoryID *uuid.UUID, now time.Time) ([]models.Conversation, error)
	MapPosition(ctx context.Context, conversationID, positionID uuid.UUID, externalCommentID string) error
	ExternalCommentID(ctx context.Context, conversationID, positionID uuid.UUID) (string, error)
}

// CoordinateSource provides positions and fitted ideological coordinates
// for vote weighting. Implemented by database.VoteStore.
type CoordinateSource interface {
	GetPosition(ctx context.Context, id uuid.UUID) (*models.Position, error)
	UserCoords(ctx context.Context, conversationID, userID uuid.UUID) (*models.Coords, error)
	ConversationCoords(ctx context.Context, conversationID uuid.UUID) ([]models.Coords, error)
}

// Worker drains the sync queue: claim a batch, dispatch each item to the
// external service, record the outcome. When a batch was non-empty the
// worker immediately claims again (drain); only an empty claim sleeps the
// full poll interval, so a backlog clears at full speed.
//
// Worker implements suture.Service.
type Worker struct {
	cfg           config.SyncConfig
	queue         Store
	conversations ConversationDirectory
	coords        CoordinateSource
	client        polis.ConsensusClient
}

// NewWorker creates a sync worker.
func NewWorker(cfg config.SyncConfig, queue Store, conversations ConversationDirectory, coords CoordinateSource, client polis.ConsensusClient) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &Worker{
		cfg:           cfg,
		queue:         queue,
		conversations: conversations,
		coords:        coords,
		client:        client,
	}
}

// String implements suture.Service for supervisor log output.
func (w *Worker) String() string {
	return "polis-sync-worker"
}

// Serve runs the claim/dispatch loop until ctx is cancelled.
func (w *Worker) Serve(ctx context.Context) error {
	logging.Info().
		Int("batch_size", w.cfg.BatchSize).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("Polis sync worker started")

	for {
		processed, err := w.runBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Error().Err(err).Msg("Sync batch claim failed")
		}

		// Drain: with work still flowing, claim again immediately.
		if processed > 0 {
			continue
		}
		if err := sleepCtx(ctx, w.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// runBatch claims and processes one batch, returning how many items it
// handled.
func (w *Worker) runBatch(ctx context.Context) (int, error) {
	items, err := w.queue.ClaimBatch(ctx, w.cfg.BatchSize, time.Now())
	if err != nil {
		return 0, err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			// Unprocessed claims stay in processing until the janitor's
			// lease-expiry sweep returns them to pending; the ones we
			// handled are already marked.
			return len(items), ctx.Err()
		}
		w.processItem(ctx, item)
	}
	return len(items), nil
}

// syncResult summarizes one dispatch attempt across an item's target
// conversations.
type syncResult struct {
	synced  int
	warning string
	err     error
	long    bool // long backoff class (auth / unavailable)
}

// processItem dispatches one claimed item and records its next state.
func (w *Worker) processItem(ctx context.Context, item models.SyncQueueItem) {
	opType := string(item.OperationType)

	var res syncResult
	switch item.OperationType {
	case models.OperationPosition:
		res = w.syncPosition(ctx, item)
	case models.OperationVote:
		res = w.syncVote(ctx, item)
	default:
		// Cannot succeed on retry either; burn the budget in one step.
		if err := w.queue.MarkFailed(ctx, item.ID, w.queue.MaxRetries(), fmt.Sprintf("unknown operation type %q", opType), false); err != nil {
			logging.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to mark unknown item failed")
		}
		metrics.QueueItemsProcessedTotal.WithLabelValues(opType, "failed").Inc()
		return
	}

	switch {
	case res.err == nil:
		if err := w.queue.MarkCompleted(ctx, item.ID, res.warning); err != nil {
			logging.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to mark item completed")
			return
		}
		metrics.QueueItemsProcessedTotal.WithLabelValues(opType, "completed").Inc()

	case res.synced > 0:
		// Some targets synced; keep the item claimable so a later attempt
		// finishes the rest.
		if err := w.queue.MarkPartial(ctx, item.ID, item.RetryCount+1, res.err.Error(), res.long); err != nil {
			logging.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to mark item partial")
			return
		}
		metrics.QueueItemsProcessedTotal.WithLabelValues(opType, "partial").Inc()
		logging.Warn().Err(res.err).Str("item_id", item.ID.String()).Int("synced", res.synced).Msg("Sync item partially completed")

	default:
		retryCount := item.RetryCount + 1
		if err := w.queue.MarkFailed(ctx, item.ID, retryCount, res.err.Error(), res.long); err != nil {
			logging.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to mark item failed")
			return
		}
		outcome := "retried"
		if retryCount >= w.queue.MaxRetries() {
			outcome = "failed"
			logging.Error().Err(res.err).Str("item_id", item.ID.String()).Int("retries", retryCount).Msg("Sync item permanently failed")
		} else {
			logging.Warn().Err(res.err).Str("item_id", item.ID.String()).Int("retry", retryCount).Bool("long_backoff", res.long).Msg("Sync item failed, will retry")
		}
		metrics.QueueItemsProcessedTotal.WithLabelValues(opType, outcome).Inc()
	}
}

// syncPosition mirrors a position as a comment in every active conversation
// covering its location, both the category conversation and the
// location-wide one. Already-mapped conversations are skipped, which makes
// retries of partial items idempotent.
func (w *Worker) syncPosition(ctx context.Context, item models.SyncQueueItem) syncResult {
	p := item.Payload.Position
	if p == nil {
		return syncResult{err: errors.New("position item missing position payload")}
	}

	convs, err := w.conversations.FindActiveForPosition(ctx, p.LocationID, p.CategoryID, time.Now())
	if err != nil {
		return syncResult{err: fmt.Errorf("find conversations: %w", err)}
	}
	if len(convs) == 0 {
		// Nothing to attach to this month; terminal success with a note
		// so operators can see why no comment exists.
		return syncResult{warning: "no active conversation for position"}
	}

	var res syncResult
	for _, conv := range convs {
		if _, err := w.conversations.ExternalCommentID(ctx, conv.ID, p.PositionID); err == nil {
			res.synced++ // already mirrored by an earlier attempt
			continue
		} else if !errors.Is(err, database.ErrNotFound) {
			res.record(fmt.Errorf("check mapping for conversation %s: %w", conv.ID, err))
			continue
		}

		comment, err := w.client.CreateComment(ctx, conv.ExternalConversationID, p.CreatorUserID, p.Statement)
		if err != nil {
			res.record(fmt.Errorf("create comment in conversation %s: %w", conv.ID, err))
			continue
		}
		if err := w.conversations.MapPosition(ctx, conv.ID, p.PositionID, comment.CommentID); err != nil {
			res.record(fmt.Errorf("map position in conversation %s: %w", conv.ID, err))
			continue
		}
		res.synced++
	}
	return res
}

// syncVote submits the vote to every conversation where the position is
// already mirrored. A conversation whose comment has not synced yet is a
// retryable failure: the vote item waits for the position item.
func (w *Worker) syncVote(ctx context.Context, item models.SyncQueueItem) syncResult {
	v := item.Payload.Vote
	if v == nil {
		return syncResult{err: errors.New("vote item missing vote payload")}
	}

	pos, err := w.coords.GetPosition(ctx, v.PositionID)
	if err != nil {
		return syncResult{err: fmt.Errorf("load position %s: %w", v.PositionID, err)}
	}

	convs, err := w.conversations.FindActiveForPosition(ctx, pos.LocationID, pos.CategoryID, time.Now())
	if err != nil {
		return syncResult{err: fmt.Errorf("find conversations: %w", err)}
	}
	if len(convs) == 0 {
		return syncResult{warning: "no active conversation for vote"}
	}

	var res syncResult
	for _, conv := range convs {
		commentID, err := w.conversations.ExternalCommentID(ctx, conv.ID, v.PositionID)
		if errors.Is(err, database.ErrNotFound) {
			res.record(fmt.Errorf("comment not yet synced in conversation %s", conv.ID))
			continue
		}
		if err != nil {
			res.record(fmt.Errorf("lookup comment in conversation %s: %w", conv.ID, err))
			continue
		}

		weight := w.voteWeight(ctx, conv.ID, v.UserID, pos.CreatorUserID)
		if err := w.client.SubmitVote(ctx, conv.ExternalConversationID, commentID, v.UserID, v.PolisVote, weight); err != nil {
			res.record(fmt.Errorf("submit vote in conversation %s: %w", conv.ID, err))
			continue
		}
		res.synced++
	}
	return res
}

// voteWeight computes the ideological-distance weight for a vote. Any
// lookup failure degrades to the baseline weight rather than blocking the
// sync; weighting is an enhancement, not a correctness requirement.
func (w *Worker) voteWeight(ctx context.Context, conversationID, voterID, authorID uuid.UUID) float64 {
	voter, err := w.coords.UserCoords(ctx, conversationID, voterID)
	if err != nil {
		logging.Warn().Err(err).Msg("Voter coordinate lookup failed, using baseline weight")
		return 1.0
	}
	author, err := w.coords.UserCoords(ctx, conversationID, authorID)
	if err != nil {
		logging.Warn().Err(err).Msg("Author coordinate lookup failed, using baseline weight")
		return 1.0
	}
	if voter == nil || author == nil {
		return 1.0 // cold start
	}

	all, err := w.coords.ConversationCoords(ctx, conversationID)
	if err != nil {
		logging.Warn().Err(err).Msg("Conversation coordinate lookup failed, using baseline weight")
		return 1.0
	}
	// The max pairwise distance over all coordinates is attained at hull
	// vertices, so the hull gives the same scale with far fewer pairs.
	maxDist := scoring.ComputeMaxDistance(scoring.ConvexHull(all))
	return scoring.VoteWeight(voter, author, maxDist)
}

// record folds one per-conversation error into the result, keeping the
// first error as the representative cause and escalating the backoff class
// if any error warrants it.
func (r *syncResult) record(err error) {
	if r.err == nil {
		r.err = err
	}
	if polis.IsAuthError(err) || polis.IsUnavailableError(err) {
		r.long = true
	}
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
