// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package scheduler manages the external conversation lifecycle: one
// conversation per active (location, category) combination per month, plus
// a location-wide conversation, expired when their window passes and pruned
// of dependent mapping rows after a grace period. The conversation records
// themselves are never deleted.
package scheduler

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
)

// Store is the conversation storage surface the scheduler needs.
// Implemented by database.ConversationStore.
type Store interface {
	ActiveTargets(ctx context.Context, since time.Time) ([]models.ConversationTarget, error)
	FindActiveForTarget(ctx context.Context, target models.ConversationTarget, activeFrom time.Time) (*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) (uuid.UUID, error)
	ExpireOld(ctx context.Context, now time.Time) (int64, error)
	CleanupExpiredData(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// TokenPruner prunes expired participant tokens during the cleanup pass.
// Implemented by database.TokenStore.
type TokenPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler runs the periodic conversation lifecycle pass.
//
// Scheduler implements suture.Service.
type Scheduler struct {
	cfg    config.SchedulerConfig
	store  Store
	tokens TokenPruner
	client polis.ConsensusClient
}

// New creates a conversation scheduler. tokens may be nil, in which case
// expired participant tokens are left to their row-level expiry check.
func New(cfg config.SchedulerConfig, store Store, tokens TokenPruner, client polis.ConsensusClient) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.ActivityWindowMonths <= 0 {
		cfg.ActivityWindowMonths = 6
	}
	if cfg.CleanupDaysAfterExpiry <= 0 {
		cfg.CleanupDaysAfterExpiry = 30
	}
	return &Scheduler{cfg: cfg, store: store, tokens: tokens, client: client}
}

// String implements suture.Service for supervisor log output.
func (s *Scheduler) String() string {
	return "conversation-scheduler"
}

// Serve runs lifecycle passes until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	for {
		s.runPass(ctx, time.Now().UTC())

		if err := sleepCtx(ctx, s.cfg.CheckInterval); err != nil {
			return err
		}
	}
}

// runPass expires finished conversations, creates the current month's
// missing ones, and prunes stale mapping rows. Step failures are logged
// and do not abort the remaining steps.
func (s *Scheduler) runPass(ctx context.Context, now time.Time) {
	if err := s.ExpireOldConversations(ctx, now); err != nil {
		logging.Error().Err(err).Msg("Conversation expiry failed")
	}
	if err := s.CreateMonthlyConversations(ctx, now); err != nil {
		logging.Error().Err(err).Msg("Monthly conversation creation incomplete")
	}
	if err := s.CleanupExpiredData(ctx, now); err != nil {
		logging.Error().Err(err).Msg("Expired conversation cleanup failed")
	}
}

// CreateMonthlyConversations creates a conversation for the current month
// window for every (location, category) combination with activity in the
// trailing window, plus one location-wide conversation per location.
// Per-target errors accumulate; one broken target never blocks the rest.
func (s *Scheduler) CreateMonthlyConversations(ctx context.Context, now time.Time) error {
	windowStart, windowEnd := monthWindow(now)
	activitySince := now.AddDate(0, -s.cfg.ActivityWindowMonths, 0)

	targets, err := s.store.ActiveTargets(ctx, activitySince)
	if err != nil {
		return fmt.Errorf("list active targets: %w", err)
	}

	var errs []error
	created := 0
	for _, target := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok, err := s.ensureConversation(ctx, target, windowStart, windowEnd)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		logging.Info().Int("created", created).Str("window", windowStart.Format("2006-01")).Msg("Monthly conversations created")
	}
	return errors.Join(errs...)
}

// ensureConversation creates the month's conversation for one target if it
// does not exist. Returns whether a conversation was created.
func (s *Scheduler) ensureConversation(ctx context.Context, target models.ConversationTarget, windowStart, windowEnd time.Time) (bool, error) {
	_, err := s.store.FindActiveForTarget(ctx, target, windowStart)
	if err == nil {
		return false, nil // this month's conversation already exists
	}
	if !errors.Is(err, database.ErrNotFound) {
		return false, fmt.Errorf("check existing conversation for location %s: %w", target.LocationID, err)
	}

	resp, err := s.client.CreateConversation(ctx, &polis.ConversationRequest{
		Topic:       conversationTopic(target, windowStart),
		Description: "Automatically created monthly deliberation conversation",
	})
	if err != nil {
		return false, fmt.Errorf("create external conversation for location %s: %w", target.LocationID, err)
	}

	conv := &models.Conversation{
		ID:                     uuid.New(),
		LocationID:             target.LocationID,
		CategoryID:             target.CategoryID,
		ExternalConversationID: resp.ConversationID,
		ConversationType:       target.Type(),
		ActiveFrom:             windowStart,
		ActiveUntil:            windowEnd,
		Status:                 models.ConversationActive,
	}
	if _, err := s.store.Create(ctx, conv); err != nil {
		return false, fmt.Errorf("persist conversation for location %s: %w", target.LocationID, err)
	}

	metrics.ConversationsCreatedTotal.Inc()
	return true, nil
}

// ExpireOldConversations transitions conversations past their window from
// active to expired. The external record stays untouched for historical
// access.
func (s *Scheduler) ExpireOldConversations(ctx context.Context, now time.Time) error {
	expired, err := s.store.ExpireOld(ctx, now)
	if err != nil {
		return fmt.Errorf("expire conversations: %w", err)
	}
	if expired > 0 {
		metrics.ConversationsExpiredTotal.Add(float64(expired))
		logging.Info().Int64("expired", expired).Msg("Conversations expired")
	}
	return nil
}

// CleanupExpiredData prunes locally cached external-service data:
// position-to-comment mapping rows for conversations expired longer than
// the grace period, and participant tokens past their expiry. Only the
// dependent rows go; the conversation record is permanent.
func (s *Scheduler) CleanupExpiredData(ctx context.Context, now time.Time) error {
	cutoff := now.AddDate(0, 0, -s.cfg.CleanupDaysAfterExpiry)
	removed, err := s.store.CleanupExpiredData(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup expired data: %w", err)
	}
	if removed > 0 {
		logging.Info().Int64("removed", removed).Msg("Pruned expired conversation mappings")
	}

	if s.tokens != nil {
		pruned, err := s.tokens.DeleteExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("prune expired tokens: %w", err)
		}
		if pruned > 0 {
			logging.Info().Int64("pruned", pruned).Msg("Pruned expired participant tokens")
		}
	}
	return nil
}

// monthWindow returns the UTC calendar-month window containing now.
func monthWindow(now time.Time) (start, end time.Time) {
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// conversationTopic names the external conversation after its target and
// month so operators can identify it in the remote service's UI.
func conversationTopic(target models.ConversationTarget, windowStart time.Time) string {
	month := windowStart.Format("January 2006")
	if target.CategoryID == nil {
		return fmt.Sprintf("All topics, location %s (%s)", target.LocationID, month)
	}
	return fmt.Sprintf("Category %s, location %s (%s)", *target.CategoryID, target.LocationID, month)
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
