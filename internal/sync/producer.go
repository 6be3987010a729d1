// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package sync

import (
	"context"

	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/models"
)

// Enqueuer is the queue insert surface the producer needs. Implemented by
// database.QueueStore.
type Enqueuer interface {
	Enqueue(ctx context.Context, opType models.OperationType, payload models.SyncPayload) (uuid.UUID, error)
}

// Producer enqueues sync work from the API request path. Every method
// returns a plain bool: false means "not queued" (subsystem disabled, a
// non-syncable response type, or a queue outage) and must never fail the
// user-facing request that triggered it.
type Producer struct {
	enabled bool
	queue   Enqueuer
}

// NewProducer creates a producer. When sync is disabled every Queue* call
// is a no-op returning false.
func NewProducer(cfg *config.SyncConfig, queue Enqueuer) *Producer {
	return &Producer{enabled: cfg.Enabled, queue: queue}
}

// QueuePositionSync enqueues a position for mirroring as an external
// comment. Returns whether the item was queued.
func (p *Producer) QueuePositionSync(ctx context.Context, positionID uuid.UUID, statement string, categoryID *uuid.UUID, locationID, creatorUserID uuid.UUID) bool {
	if !p.enabled {
		return false
	}

	payload := models.SyncPayload{
		Position: &models.PositionSyncPayload{
			PositionID:    positionID,
			Statement:     statement,
			CategoryID:    categoryID,
			LocationID:    locationID,
			CreatorUserID: creatorUserID,
		},
	}
	if _, err := p.queue.Enqueue(ctx, models.OperationPosition, payload); err != nil {
		logging.Warn().Err(err).Str("position_id", positionID.String()).Msg("Failed to enqueue position sync")
		return false
	}
	return true
}

// QueueVoteSync enqueues a vote for submission to the external service.
// The response type is translated to the external -1/0/+1 scale at enqueue
// time; chat and unrecognized responses carry no opinion signal and are
// skipped.
func (p *Producer) QueueVoteSync(ctx context.Context, positionID, userID uuid.UUID, responseType string) bool {
	if !p.enabled {
		return false
	}

	polisVote, ok := models.PolisVote(responseType)
	if !ok {
		return false
	}

	payload := models.SyncPayload{
		Vote: &models.VoteSyncPayload{
			PositionID:   positionID,
			UserID:       userID,
			ResponseType: responseType,
			PolisVote:    polisVote,
		},
	}
	if _, err := p.queue.Enqueue(ctx, models.OperationVote, payload); err != nil {
		logging.Warn().Err(err).Str("position_id", positionID.String()).Msg("Failed to enqueue vote sync")
		return false
	}
	return true
}
