// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Command server runs the Candid backend: the REST API, the chat relay,
// and the background workers that keep the external consensus service
// and the ideological coordinates up to date.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GovThePPL/candid/internal/api"
	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/database"
	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/nlp"
	"github.com/GovThePPL/candid/internal/polis"
	"github.com/GovThePPL/candid/internal/scheduler"
	"github.com/GovThePPL/candid/internal/scoring/mf"
	"github.com/GovThePPL/candid/internal/supervisor"
	candidsync "github.com/GovThePPL/candid/internal/sync"
	"github.com/GovThePPL/candid/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting candid")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === DATABASE ===

	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	queueStore := database.NewQueueStore(db, cfg.Sync.MaxRetries, cfg.Sync.BaseBackoff, cfg.Sync.LongBackoffFloor)
	conversationStore := database.NewConversationStore(db)
	voteStore := database.NewVoteStore(db)
	tokenStore := database.NewTokenStore(db)
	trainingStore := database.NewTrainingStore(db, conversationStore)
	locker := database.NewAdvisoryLocker(db)

	// === EXTERNAL CLIENTS ===

	polisClient := polis.NewCircuitBreakerClient(&cfg.Polis, tokenStore)

	var moderator api.ImageModerator
	if cfg.NLP.Enabled {
		moderator = nlp.NewClient(&cfg.NLP)
		logging.Info().Str("url", cfg.NLP.URL).Msg("NLP moderation enabled")
	}

	// === BACKGROUND SERVICES ===

	producer := candidsync.NewProducer(&cfg.Sync, queueStore)
	worker := candidsync.NewWorker(cfg.Sync, queueStore, conversationStore, voteStore, polisClient)
	janitor := candidsync.NewJanitor(cfg.Sync, queueStore)

	trainer := mf.NewTrainer(mf.TrainerConfig{
		StartupDelay: cfg.Trainer.StartupDelay,
		PassInterval: cfg.Trainer.PassInterval,
		Engine: mf.Config{
			LearningRate:       cfg.Trainer.LearningRate,
			Regularization:     cfg.Trainer.Regularization,
			PullRegularization: cfg.Trainer.PullRegularization,
			MaxEpochs:          cfg.Trainer.MaxEpochs,
			ConvergenceTol:     cfg.Trainer.ConvergenceTol,
			MinVoters:          cfg.Trainer.MinVoters,
			MinVotes:           cfg.Trainer.MinVotes,
		},
	}, trainingStore, locker)

	sched := scheduler.New(cfg.Scheduler, conversationStore, tokenStore, polisClient)

	hub := websocket.NewHub()

	// === HTTP SURFACE ===

	auth, err := api.NewAuthenticator(&cfg.Auth)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authenticator")
	}

	handler := api.NewHandler(voteStore, queueStore, producer, trainingStore, hub, moderator)
	router := api.NewRouter(&cfg.API, handler, auth)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Routes(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === SUPERVISOR TREE ===

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if cfg.Sync.Enabled {
		tree.AddWorker(worker)
		tree.AddWorker(janitor)
		logging.Info().Msg("Polis sync worker and janitor added to supervisor tree")
	}
	if cfg.Trainer.Enabled {
		tree.AddWorker(trainer)
		logging.Info().Msg("MF trainer added to supervisor tree")
	}
	if cfg.Scheduler.Enabled {
		tree.AddWorker(sched)
		logging.Info().Msg("Conversation scheduler added to supervisor tree")
	}

	tree.AddRelay(hub)
	tree.AddAPI(supervisor.NewHTTPService(server, 10*time.Second))

	// === RUN ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Candid stopped gracefully")
}
