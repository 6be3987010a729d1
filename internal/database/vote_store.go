// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GovThePPL/candid/internal/models"
)

// VoteStore persists positions and votes. Thin by design: the request
// controllers validate, this layer executes SQL.
type VoteStore struct {
	db *DB
}

// NewVoteStore creates a vote store.
func NewVoteStore(db *DB) *VoteStore {
	return &VoteStore{db: db}
}

// CreatePosition inserts a position.
func (s *VoteStore) CreatePosition(ctx context.Context, p *models.Position) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO positions (id, statement, category_id, location_id, creator_user_id, created_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Statement, p.CategoryID, p.LocationID, p.CreatorUserID, p.CreatedTime)
	if err != nil {
		return fmt.Errorf("create position: %w", err)
	}
	return nil
}

// GetPosition loads a position by ID, or ErrNotFound.
func (s *VoteStore) GetPosition(ctx context.Context, id uuid.UUID) (*models.Position, error) {
	var p models.Position
	err := s.db.pool.QueryRow(ctx, `
		SELECT id, statement, category_id, location_id, creator_user_id, created_time
		FROM positions WHERE id = $1
	`, id).Scan(&p.ID, &p.Statement, &p.CategoryID, &p.LocationID, &p.CreatorUserID, &p.CreatedTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return &p, nil
}

// UpsertVote records a user's response on a position, replacing any
// earlier response. Revotes are expected; the external system receives
// the latest response via the sync queue.
func (s *VoteStore) UpsertVote(ctx context.Context, v *models.Vote) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO votes (id, position_id, user_id, response_type, weight, created_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (position_id, user_id)
		DO UPDATE SET response_type = EXCLUDED.response_type,
		              weight = EXCLUDED.weight,
		              created_time = EXCLUDED.created_time
	`, v.ID, v.PositionID, v.UserID, v.ResponseType, v.Weight, v.CreatedTime)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// VoteTotals returns the summed weights of agree and disagree responses
// on a position, for score endpoints.
func (s *VoteStore) VoteTotals(ctx context.Context, positionID uuid.UUID) (up, down float64, err error) {
	err = s.db.pool.QueryRow(ctx, `
		SELECT
			COALESCE(sum(weight) FILTER (WHERE response_type = 'agree'), 0),
			COALESCE(sum(weight) FILTER (WHERE response_type = 'disagree'), 0)
		FROM votes WHERE position_id = $1
	`, positionID).Scan(&up, &down)
	if err != nil {
		return 0, 0, fmt.Errorf("vote totals: %w", err)
	}
	return up, down, nil
}

// ConversationCoords returns every fitted user coordinate in a
// conversation, used to derive the normalization scale for vote weights.
func (s *VoteStore) ConversationCoords(ctx context.Context, conversationID uuid.UUID) ([]models.Coords, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT x, y FROM user_coordinates WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation coords: %w", err)
	}
	defer rows.Close()

	var coords []models.Coords
	for rows.Next() {
		var c models.Coords
		if err := rows.Scan(&c.X, &c.Y); err != nil {
			return nil, fmt.Errorf("scan coords row: %w", err)
		}
		coords = append(coords, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation coords rows: %w", err)
	}
	return coords, nil
}

// UserCoords returns a user's fitted coordinates in a conversation, or
// nil when the user has no coordinates yet (cold start).
func (s *VoteStore) UserCoords(ctx context.Context, conversationID, userID uuid.UUID) (*models.Coords, error) {
	var c models.Coords
	err := s.db.pool.QueryRow(ctx, `
		SELECT x, y FROM user_coordinates
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID).Scan(&c.X, &c.Y)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user coords: %w", err)
	}
	return &c, nil
}
