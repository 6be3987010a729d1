// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package models defines the domain types shared across Candid's storage,
// sync, and API layers.
package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// OperationType identifies what kind of sync work a queue item carries.
type OperationType string

const (
	OperationPosition OperationType = "position"
	OperationVote     OperationType = "vote"
)

// QueueStatus is the lifecycle state of a sync queue item.
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
	StatusPartial    QueueStatus = "partial"
)

// SyncQueueItem is one unit of work in the Polis sync queue.
//
// Items are created by producers on the API request path, claimed in batches
// by the sync worker, and end in completed or failed. A processing item is
// exclusively leased to one worker via the row-locking claim.
type SyncQueueItem struct {
	ID            uuid.UUID     `json:"id"`
	OperationType OperationType `json:"operation_type"`
	Payload       SyncPayload   `json:"payload"`
	Status        QueueStatus   `json:"status"`
	RetryCount    int           `json:"retry_count"`
	NextRetryTime time.Time     `json:"next_retry_time"`
	ErrorMessage  *string       `json:"error_message,omitempty"`
	CreatedTime   time.Time     `json:"created_time"`
	UpdatedTime   time.Time     `json:"updated_time"`
}

// SyncPayload is the tagged union of queue item payloads. Exactly one of
// Position and Vote is set, matching OperationType on the item.
type SyncPayload struct {
	Position *PositionSyncPayload
	Vote     *VoteSyncPayload
}

// PositionSyncPayload carries everything needed to mirror a position as a
// comment in the external conversation.
type PositionSyncPayload struct {
	PositionID    uuid.UUID  `json:"position_id"`
	Statement     string     `json:"statement"`
	CategoryID    *uuid.UUID `json:"category_id,omitempty"`
	LocationID    uuid.UUID  `json:"location_id"`
	CreatorUserID uuid.UUID  `json:"creator_user_id"`
}

// VoteSyncPayload carries a single vote translated to the external scale.
// PolisVote is fixed at enqueue time: agree -> -1, disagree -> +1, pass -> 0.
type VoteSyncPayload struct {
	PositionID   uuid.UUID `json:"position_id"`
	UserID       uuid.UUID `json:"user_id"`
	ResponseType string    `json:"response"`
	PolisVote    int       `json:"polis_vote"`
}

// payloadEnvelope is the wire form of SyncPayload. The kind tag catches
// payload-shape mismatches at decode time instead of deep in the worker.
type payloadEnvelope struct {
	Kind     OperationType        `json:"kind"`
	Position *PositionSyncPayload `json:"position,omitempty"`
	Vote     *VoteSyncPayload     `json:"vote,omitempty"`
}

// MarshalJSON serializes the payload with its kind tag.
func (p SyncPayload) MarshalJSON() ([]byte, error) {
	switch {
	case p.Position != nil && p.Vote == nil:
		return json.Marshal(payloadEnvelope{Kind: OperationPosition, Position: p.Position})
	case p.Vote != nil && p.Position == nil:
		return json.Marshal(payloadEnvelope{Kind: OperationVote, Vote: p.Vote})
	default:
		return nil, fmt.Errorf("sync payload must carry exactly one of position or vote")
	}
}

// UnmarshalJSON deserializes the payload, validating the kind tag against
// the populated variant.
func (p *SyncPayload) UnmarshalJSON(data []byte) error {
	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode sync payload: %w", err)
	}

	switch env.Kind {
	case OperationPosition:
		if env.Position == nil {
			return fmt.Errorf("sync payload kind %q missing position body", env.Kind)
		}
		p.Position = env.Position
		p.Vote = nil
	case OperationVote:
		if env.Vote == nil {
			return fmt.Errorf("sync payload kind %q missing vote body", env.Kind)
		}
		p.Vote = env.Vote
		p.Position = nil
	default:
		return fmt.Errorf("unknown sync payload kind %q", env.Kind)
	}
	return nil
}

// Kind returns the operation type implied by the populated variant.
func (p SyncPayload) Kind() OperationType {
	if p.Vote != nil {
		return OperationVote
	}
	return OperationPosition
}

// QueueStats is the per-status item count exposed for monitoring.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Partial    int `json:"partial"`
	Total      int `json:"total"`
}

// AsMap returns the stats keyed by status name, plus "total".
func (s QueueStats) AsMap() map[string]int {
	return map[string]int{
		string(StatusPending):    s.Pending,
		string(StatusProcessing): s.Processing,
		string(StatusCompleted):  s.Completed,
		string(StatusFailed):     s.Failed,
		string(StatusPartial):    s.Partial,
		"total":                  s.Total,
	}
}
