// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GovThePPL/candid/internal/config"
)

// Router assembles the HTTP surface from its dependencies.
type Router struct {
	cfg     *config.APIConfig
	handler *Handler
	auth    *Authenticator
}

// NewRouter creates a router over the given handler and authenticator.
func NewRouter(cfg *config.APIConfig, handler *Handler, auth *Authenticator) *Router {
	return &Router{cfg: cfg, handler: handler, auth: auth}
}

// Routes builds the complete route tree.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Unauthenticated operational endpoints.
	r.Get("/health", rt.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByRealIP(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))
		r.Use(prometheusMetrics)
		r.Use(rt.auth.Middleware)

		r.Post("/positions", rt.handler.CreatePosition)
		r.Post("/positions/{id}/votes", rt.handler.CreateVote)
		r.Get("/positions/{id}/scores", rt.handler.PositionScores)
		r.Get("/conversations/{id}/coordinates", rt.handler.ConversationCoordinates)

		r.Get("/chats/{id}/ws", rt.handler.ChatWebSocket)
		r.Post("/moderate/image", rt.handler.ModerateImage)

		r.Route("/admin", func(r chi.Router) {
			r.Use(rt.auth.RequireAdmin)
			r.Get("/sync-queue/stats", rt.handler.QueueStats)
			r.Post("/sync-queue/{id}/requeue", rt.handler.RequeueItem)
		})
	})

	return r
}
