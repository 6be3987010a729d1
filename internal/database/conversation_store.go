// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GovThePPL/candid/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("database: not found")

// ConversationStore manages the local mirror of external conversations
// and their position-to-comment mappings.
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a conversation store.
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Create inserts a new conversation row and returns its ID.
func (s *ConversationStore) Create(ctx context.Context, conv *models.Conversation) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.pool.QueryRow(ctx, `
		INSERT INTO polis_conversations
			(location_id, category_id, external_conversation_id, conversation_type,
			 active_from, active_until, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'active')
		RETURNING id
	`, conv.LocationID, conv.CategoryID, conv.ExternalConversationID,
		string(conv.ConversationType), conv.ActiveFrom, conv.ActiveUntil).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// ListActive returns all conversations with status=active.
func (s *ConversationStore) ListActive(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT id, location_id, category_id, external_conversation_id,
		       conversation_type, active_from, active_until, status, created_time
		FROM polis_conversations
		WHERE status = 'active'
		ORDER BY created_time
	`)
	if err != nil {
		return nil, fmt.Errorf("list active conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// FindActiveForTarget returns the active conversation covering activeFrom
// for the given (location, category), or ErrNotFound. A nil categoryID
// matches the location-wide conversation.
func (s *ConversationStore) FindActiveForTarget(ctx context.Context, target models.ConversationTarget, activeFrom time.Time) (*models.Conversation, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT id, location_id, category_id, external_conversation_id,
		       conversation_type, active_from, active_until, status, created_time
		FROM polis_conversations
		WHERE location_id = $1
		  AND category_id IS NOT DISTINCT FROM $2
		  AND active_from = $3
		LIMIT 1
	`, target.LocationID, target.CategoryID, activeFrom)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	defer rows.Close()

	convs, err := scanConversations(rows)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrNotFound
	}
	return &convs[0], nil
}

// FindActiveForPosition returns the active conversations a position
// belongs in: its category conversation (if any) and its location-wide
// conversation, covering the position's location.
func (s *ConversationStore) FindActiveForPosition(ctx context.Context, locationID uuid.UUID, categoryID *uuid.UUID, now time.Time) ([]models.Conversation, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT id, location_id, category_id, external_conversation_id,
		       conversation_type, active_from, active_until, status, created_time
		FROM polis_conversations
		WHERE location_id = $1
		  AND status = 'active'
		  AND active_from <= $3 AND active_until > $3
		  AND (category_id IS NULL OR category_id IS NOT DISTINCT FROM $2)
		ORDER BY conversation_type
	`, locationID, categoryID, now)
	if err != nil {
		return nil, fmt.Errorf("find conversations for position: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// ExpireOld bulk-transitions active conversations past their window to
// expired and returns how many changed. The external-system record is
// never touched; historical access stays intact.
func (s *ConversationStore) ExpireOld(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE polis_conversations
		SET status = 'expired'
		WHERE status = 'active' AND active_until <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire conversations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CleanupExpiredData prunes the locally cached mapping rows for
// conversations expired more than the given grace period ago. The
// conversation rows themselves are kept.
func (s *ConversationStore) CleanupExpiredData(ctx context.Context, expiredBefore time.Time) (int64, error) {
	tag, err := s.db.pool.Exec(ctx, `
		DELETE FROM conversation_positions
		WHERE conversation_id IN (
			SELECT id FROM polis_conversations
			WHERE status = 'expired' AND active_until < $1
		)
	`, expiredBefore)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired mappings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ActiveTargets enumerates every (location, category) combination with
// position activity since the cutoff, plus one location-only target per
// active location. These are the combinations the scheduler holds a
// monthly conversation for.
func (s *ConversationStore) ActiveTargets(ctx context.Context, since time.Time) ([]models.ConversationTarget, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT DISTINCT location_id, category_id FROM positions
		WHERE created_time >= $1 AND category_id IS NOT NULL
		UNION
		SELECT DISTINCT location_id, NULL::uuid FROM positions
		WHERE created_time >= $1
		ORDER BY location_id, category_id NULLS FIRST
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list active targets: %w", err)
	}
	defer rows.Close()

	var targets []models.ConversationTarget
	for rows.Next() {
		var t models.ConversationTarget
		if err := rows.Scan(&t.LocationID, &t.CategoryID); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("target rows: %w", err)
	}
	return targets, nil
}

// MapPosition records the external comment created for a position in a
// conversation. Idempotent on (conversation, position).
func (s *ConversationStore) MapPosition(ctx context.Context, conversationID, positionID uuid.UUID, externalCommentID string) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO conversation_positions (conversation_id, position_id, external_comment_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, position_id) DO NOTHING
	`, conversationID, positionID, externalCommentID)
	if err != nil {
		return fmt.Errorf("map position: %w", err)
	}
	return nil
}

// ExternalCommentID returns the external comment a position maps to in
// the given conversation, or ErrNotFound if the position was never
// mirrored there.
func (s *ConversationStore) ExternalCommentID(ctx context.Context, conversationID, positionID uuid.UUID) (string, error) {
	var commentID string
	err := s.db.pool.QueryRow(ctx, `
		SELECT external_comment_id FROM conversation_positions
		WHERE conversation_id = $1 AND position_id = $2
	`, conversationID, positionID).Scan(&commentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup comment mapping: %w", err)
	}
	return commentID, nil
}

func scanConversations(rows pgx.Rows) ([]models.Conversation, error) {
	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.LocationID, &c.CategoryID, &c.ExternalConversationID,
			&c.ConversationType, &c.ActiveFrom, &c.ActiveUntil, &c.Status, &c.CreatedTime); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation rows: %w", err)
	}
	return convs, nil
}
