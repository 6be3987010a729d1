// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package mf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/metrics"
	"github.com/GovThePPL/candid/internal/models"
)

// advisoryLockNamespace namespaces the per-conversation training lock so
// the key cannot collide with other advisory lock users.
const advisoryLockNamespace = "mf_training"

// TrainingStore is the storage surface the trainer needs. Implemented by
// the database layer.
type TrainingStore interface {
	// ListActiveConversations returns conversations eligible for training.
	ListActiveConversations(ctx context.Context) ([]models.Conversation, error)

	// NewestVoteTime returns the most recent vote timestamp in the
	// conversation, or nil if it has no votes.
	NewestVoteTime(ctx context.Context, conversationID uuid.UUID) (*time.Time, error)

	// LastSuccessfulTraining returns the timestamp of the last training
	// attempt that produced coordinates, or nil if none exists.
	LastSuccessfulTraining(ctx context.Context, conversationID uuid.UUID) (*time.Time, error)

	// VoteMatrix returns the conversation's votes on the -1/0/+1 scale.
	VoteMatrix(ctx context.Context, conversationID uuid.UUID) ([]models.VoteTriple, error)

	// PullCoordinates returns externally supplied per-user coordinates
	// for the conversation, keyed by user ID. May be empty.
	PullCoordinates(ctx context.Context, conversationID uuid.UUID) (map[uuid.UUID]models.Coords, error)

	// SaveUserCoordinates upserts the fitted per-user coordinates.
	SaveUserCoordinates(ctx context.Context, conversationID uuid.UUID, coords map[uuid.UUID]models.Coords) error

	// AppendTrainingLog appends one audit row. Never updates existing rows.
	AppendTrainingLog(ctx context.Context, entry *models.MFTrainingLog) error
}

// AdvisoryLocker provides a cross-process, non-blocking named lock.
// Implemented by the database layer on top of pg_try_advisory_lock.
type AdvisoryLocker interface {
	// TryLock attempts to acquire the lock for namespace:id without
	// blocking. When acquired is true, release must be called exactly
	// once; it is safe to call in a defer.
	TryLock(ctx context.Context, namespace string, id uuid.UUID) (release func(), acquired bool, err error)
}

// TrainerConfig controls the training worker's pass cadence.
type TrainerConfig struct {
	StartupDelay time.Duration
	PassInterval time.Duration
	Engine       Config
}

// Trainer periodically retrains conversations with new votes. One pass
// visits every active conversation; the advisory lock keeps concurrent
// instances from training the same conversation twice, and the staleness
// check keeps instances from redoing work that already happened.
//
// Trainer implements suture.Service.
type Trainer struct {
	cfg    TrainerConfig
	store  TrainingStore
	locker AdvisoryLocker
}

// NewTrainer creates a training worker.
func NewTrainer(cfg TrainerConfig, store TrainingStore, locker AdvisoryLocker) *Trainer {
	if cfg.PassInterval <= 0 {
		cfg.PassInterval = 15 * time.Minute
	}
	return &Trainer{cfg: cfg, store: store, locker: locker}
}

// String implements suture.Service for supervisor log output.
func (t *Trainer) String() string {
	return "mf-trainer"
}

// Serve runs training passes until ctx is cancelled.
func (t *Trainer) Serve(ctx context.Context) error {
	if t.cfg.StartupDelay > 0 {
		logging.Info().Dur("delay", t.cfg.StartupDelay).Msg("MF trainer waiting before first pass")
		if err := sleepCtx(ctx, t.cfg.StartupDelay); err != nil {
			return err
		}
	}

	for {
		t.runPass(ctx)

		if err := sleepCtx(ctx, t.cfg.PassInterval); err != nil {
			return err
		}
	}
}

// runPass trains every active conversation that needs it. Per-conversation
// failures are recorded and do not abort the pass.
func (t *Trainer) runPass(ctx context.Context) {
	conversations, err := t.store.ListActiveConversations(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("MF trainer failed to list conversations")
		return
	}

	for _, conv := range conversations {
		if ctx.Err() != nil {
			return
		}
		t.maybeTrain(ctx, conv)
	}
}

// maybeTrain trains one conversation if it holds the advisory lock and the
// conversation has votes newer than its last successful training.
func (t *Trainer) maybeTrain(ctx context.Context, conv models.Conversation) {
	release, acquired, err := t.locker.TryLock(ctx, advisoryLockNamespace, conv.ID)
	if err != nil {
		logging.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Advisory lock attempt failed")
		return
	}
	if !acquired {
		// Another instance is training this conversation right now.
		metrics.TrainingRunsTotal.WithLabelValues("skipped_lock").Inc()
		return
	}
	defer release()

	stale, err := t.needsTraining(ctx, conv.ID)
	if err != nil {
		logging.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Staleness check failed")
		return
	}
	if !stale {
		metrics.TrainingRunsTotal.WithLabelValues("skipped_stale").Inc()
		return
	}

	start := time.Now()
	if err := t.train(ctx, conv); err != nil {
		if errors.Is(err, ErrInsufficientData) {
			metrics.TrainingRunsTotal.WithLabelValues("skipped_data").Inc()
			return
		}
		metrics.TrainingRunsTotal.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("MF training failed")
		t.recordFailure(ctx, conv, err)
		return
	}

	metrics.TrainingRunsTotal.WithLabelValues("trained").Inc()
	metrics.TrainingDuration.Observe(time.Since(start).Seconds())
}

// needsTraining reports whether the conversation has votes newer than its
// last successful training. A training run at or after the newest vote
// means nothing changed since.
func (t *Trainer) needsTraining(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	newestVote, err := t.store.NewestVoteTime(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("newest vote time: %w", err)
	}
	if newestVote == nil {
		return false, nil
	}

	lastTraining, err := t.store.LastSuccessfulTraining(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("last training time: %w", err)
	}
	if lastTraining != nil && !lastTraining.Before(*newestVote) {
		return false, nil
	}
	return true, nil
}

// train loads the vote matrix and pull coordinates, fits the model, and
// persists the result plus one audit row.
func (t *Trainer) train(ctx context.Context, conv models.Conversation) error {
	votes, err := t.store.VoteMatrix(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("load vote matrix: %w", err)
	}

	pulls, err := t.store.PullCoordinates(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("load pull coordinates: %w", err)
	}

	engine := NewEngine(t.cfg.Engine)
	result, err := engine.Train(ctx, votes, pulls)
	if err != nil {
		return err
	}

	if err := t.store.SaveUserCoordinates(ctx, conv.ID, result.UserCoords); err != nil {
		return fmt.Errorf("save coordinates: %w", err)
	}

	if err := t.store.AppendTrainingLog(ctx, &models.MFTrainingLog{
		ConversationID: conv.ID,
		LocationID:     conv.LocationID,
		CategoryID:     conv.CategoryID,
		NUsers:         result.NumUsers,
		NComments:      result.NumComments,
		NVotes:         result.NumVotes,
	}); err != nil {
		return fmt.Errorf("append training log: %w", err)
	}

	logging.Info().
		Str("conversation_id", conv.ID.String()).
		Int("users", result.NumUsers).
		Int("comments", result.NumComments).
		Int("votes", result.NumVotes).
		Int("epochs", result.Epochs).
		Msg("MF training completed")
	return nil
}

// recordFailure appends an audit row with the error message and zero
// counts. Errors writing the audit row itself are only logged.
func (t *Trainer) recordFailure(ctx context.Context, conv models.Conversation, trainErr error) {
	msg := trainErr.Error()
	if err := t.store.AppendTrainingLog(ctx, &models.MFTrainingLog{
		ConversationID: conv.ID,
		LocationID:     conv.LocationID,
		CategoryID:     conv.CategoryID,
		ErrorMessage:   &msg,
	}); err != nil {
		logging.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to append training audit row")
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
