// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationType distinguishes category-scoped conversations from the
// location-wide catch-all conversation.
type ConversationType string

const (
	ConversationCategory    ConversationType = "category"
	ConversationLocationAll ConversationType = "location_all"
)

// ConversationStatus is the lifecycle state of an external conversation.
type ConversationStatus string

const (
	ConversationActive  ConversationStatus = "active"
	ConversationExpired ConversationStatus = "expired"
)

// Conversation mirrors a conversation held in the external consensus
// service. At most one active conversation exists per (location, category,
// month window). Conversations are never deleted; only their dependent
// mapping rows are pruned after expiry.
type Conversation struct {
	ID                     uuid.UUID          `json:"id"`
	LocationID             uuid.UUID          `json:"location_id"`
	CategoryID             *uuid.UUID         `json:"category_id,omitempty"`
	ExternalConversationID string             `json:"external_conversation_id"`
	ConversationType       ConversationType   `json:"conversation_type"`
	ActiveFrom             time.Time          `json:"active_from"`
	ActiveUntil            time.Time          `json:"active_until"`
	Status                 ConversationStatus `json:"status"`
	CreatedTime            time.Time          `json:"created_time"`
}

// ConversationTarget is one (location, category) combination the scheduler
// should hold a monthly conversation for. CategoryID is nil for the
// location-wide conversation.
type ConversationTarget struct {
	LocationID uuid.UUID
	CategoryID *uuid.UUID
}

// Type returns the conversation type for this target.
func (t ConversationTarget) Type() ConversationType {
	if t.CategoryID == nil {
		return ConversationLocationAll
	}
	return ConversationCategory
}

// MFTrainingLog is the append-only audit row written once per training
// attempt, success or failure. Rows are never mutated.
type MFTrainingLog struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	LocationID     uuid.UUID  `json:"location_id"`
	CategoryID     *uuid.UUID `json:"category_id,omitempty"`
	NUsers         int        `json:"n_users"`
	NComments      int        `json:"n_comments"`
	NVotes         int        `json:"n_votes"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedTime    time.Time  `json:"created_time"`
}
