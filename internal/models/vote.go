// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package models

import (
	"time"

	"github.com/google/uuid"
)

// Response types a user can give on a position. Chat carries no directional
// opinion signal and is never synced to the external service.
const (
	ResponseAgree    = "agree"
	ResponseDisagree = "disagree"
	ResponsePass     = "pass"
	ResponseChat     = "chat"
)

// PolisVote maps a response type to the external system's vote scale.
// The mapping is fixed and bit-exact: agree -> -1, disagree -> +1,
// pass -> 0. The second return is false for chat and unrecognized
// responses, which must not be queued.
func PolisVote(responseType string) (int, bool) {
	switch responseType {
	case ResponseAgree:
		return -1, true
	case ResponseDisagree:
		return 1, true
	case ResponsePass:
		return 0, true
	default:
		return 0, false
	}
}

// Position is a statement a user takes a stance on. Positions are mirrored
// as comments in the external conversation.
type Position struct {
	ID            uuid.UUID  `json:"id"`
	Statement     string     `json:"statement"`
	CategoryID    *uuid.UUID `json:"category_id,omitempty"`
	LocationID    uuid.UUID  `json:"location_id"`
	CreatorUserID uuid.UUID  `json:"creator_user_id"`
	CreatedTime   time.Time  `json:"created_time"`
}

// Vote is a user's recorded response on a position.
type Vote struct {
	ID           uuid.UUID `json:"id"`
	PositionID   uuid.UUID `json:"position_id"`
	UserID       uuid.UUID `json:"user_id"`
	ResponseType string    `json:"response_type"`
	Weight       float64   `json:"weight"`
	CreatedTime  time.Time `json:"created_time"`
}

// VoteTriple is the sparse matrix entry consumed by the factorization
// engine: one user's vote on one comment, on the external -1/0/+1 scale.
type VoteTriple struct {
	UserID    uuid.UUID
	CommentID uuid.UUID
	Value     float64
}

// Coords is a 2D ideological coordinate. Nil pointers to Coords represent
// cold-start users with no clustering signal yet.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UserCoordinate is a persisted per-conversation user coordinate produced
// by a training run.
type UserCoordinate struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	X              float64   `json:"x"`
	Y              float64   `json:"y"`
	UpdatedTime    time.Time `json:"updated_time"`
}
