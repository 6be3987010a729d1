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

// TrainingStore is the storage surface for the matrix-factorization
// training worker: vote matrices, pull coordinates, fitted coordinates,
// and the append-only training audit log.
type TrainingStore struct {
	db            *DB
	conversations *ConversationStore
}

// NewTrainingStore creates a training store.
func NewTrainingStore(db *DB, conversations *ConversationStore) *TrainingStore {
	return &TrainingStore{db: db, conversations: conversations}
}

// ListActiveConversations returns conversations eligible for training.
func (s *TrainingStore) ListActiveConversations(ctx context.Context) ([]models.Conversation, error) {
	return s.conversations.ListActive(ctx)
}

// NewestVoteTime returns the most recent vote timestamp among positions
// mapped into the conversation, or nil if it has no votes yet.
func (s *TrainingStore) NewestVoteTime(ctx context.Context, conversationID uuid.UUID) (*time.Time, error) {
	var newest *time.Time
	err := s.db.pool.QueryRow(ctx, `
		SELECT max(v.created_time)
		FROM votes v
		JOIN conversation_positions cp ON cp.position_id = v.position_id
		WHERE cp.conversation_id = $1
	`, conversationID).Scan(&newest)
	if err != nil {
		return nil, fmt.Errorf("newest vote time: %w", err)
	}
	return newest, nil
}

// LastSuccessfulTraining returns the timestamp of the latest audit row
// without an error message, or nil when the conversation has never been
// trained successfully.
func (s *TrainingStore) LastSuccessfulTraining(ctx context.Context, conversationID uuid.UUID) (*time.Time, error) {
	var last time.Time
	err := s.db.pool.QueryRow(ctx, `
		SELECT created_time FROM mf_training_log
		WHERE conversation_id = $1 AND error_message IS NULL
		ORDER BY created_time DESC
		LIMIT 1
	`, conversationID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last successful training: %w", err)
	}
	return &last, nil
}

// VoteMatrix returns the conversation's votes as sparse matrix entries
// on the external -1/0/+1 scale. Chat responses carry no signal and are
// excluded.
func (s *TrainingStore) VoteMatrix(ctx context.Context, conversationID uuid.UUID) ([]models.VoteTriple, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT v.user_id, v.position_id, v.response_type
		FROM votes v
		JOIN conversation_positions cp ON cp.position_id = v.position_id
		WHERE cp.conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load vote matrix: %w", err)
	}
	defer rows.Close()

	var triples []models.VoteTriple
	for rows.Next() {
		var userID, positionID uuid.UUID
		var responseType string
		if err := rows.Scan(&userID, &positionID, &responseType); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		value, ok := models.PolisVote(responseType)
		if !ok {
			continue
		}
		triples = append(triples, models.VoteTriple{
			UserID:    userID,
			CommentID: positionID,
			Value:     float64(value),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vote rows: %w", err)
	}
	return triples, nil
}

// PullCoordinates returns the externally reported per-user coordinates
// for the conversation, keyed by user ID.
func (s *TrainingStore) PullCoordinates(ctx context.Context, conversationID uuid.UUID) (map[uuid.UUID]models.Coords, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT user_id, x, y FROM polis_user_coordinates
		WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load pull coordinates: %w", err)
	}
	defer rows.Close()

	coords := make(map[uuid.UUID]models.Coords)
	for rows.Next() {
		var userID uuid.UUID
		var c models.Coords
		if err := rows.Scan(&userID, &c.X, &c.Y); err != nil {
			return nil, fmt.Errorf("scan pull coordinate: %w", err)
		}
		coords[userID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pull coordinate rows: %w", err)
	}
	return coords, nil
}

// SaveUserCoordinates upserts the fitted coordinates for a conversation
// in one transaction, so readers never observe a half-written run.
func (s *TrainingStore) SaveUserCoordinates(ctx context.Context, conversationID uuid.UUID, coords map[uuid.UUID]models.Coords) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save coordinates: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for userID, c := range coords {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_coordinates (conversation_id, user_id, x, y, updated_time)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (conversation_id, user_id)
			DO UPDATE SET x = EXCLUDED.x, y = EXCLUDED.y, updated_time = now()
		`, conversationID, userID, c.X, c.Y); err != nil {
			return fmt.Errorf("upsert coordinate for user %s: %w", userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit coordinates: %w", err)
	}
	return nil
}

// UserCoordinates returns the fitted coordinates for a conversation.
func (s *TrainingStore) UserCoordinates(ctx context.Context, conversationID uuid.UUID) ([]models.UserCoordinate, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT conversation_id, user_id, x, y, updated_time
		FROM user_coordinates
		WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load user coordinates: %w", err)
	}
	defer rows.Close()

	var out []models.UserCoordinate
	for rows.Next() {
		var uc models.UserCoordinate
		if err := rows.Scan(&uc.ConversationID, &uc.UserID, &uc.X, &uc.Y, &uc.UpdatedTime); err != nil {
			return nil, fmt.Errorf("scan user coordinate: %w", err)
		}
		out = append(out, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user coordinate rows: %w", err)
	}
	return out, nil
}

// AppendTrainingLog appends one audit row. Rows are never updated.
func (s *TrainingStore) AppendTrainingLog(ctx context.Context, entry *models.MFTrainingLog) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO mf_training_log
			(conversation_id, location_id, category_id, n_users, n_comments, n_votes, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ConversationID, entry.LocationID, entry.CategoryID,
		entry.NUsers, entry.NComments, entry.NVotes, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("append training log: %w", err)
	}
	return nil
}
