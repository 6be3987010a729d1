// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package metrics provides Prometheus instrumentation for Candid:
// sync queue health, external Polis call outcomes, circuit breaker state,
// matrix-factorization training runs, and API latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync queue metrics

	QueueItemsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candid_sync_queue_enqueued_total",
			Help: "Total number of items enqueued for Polis sync",
		},
		[]string{"operation_type"},
	)

	QueueItemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candid_sync_queue_processed_total",
			Help: "Total number of queue items processed by outcome",
		},
		[]string{"operation_type", "outcome"}, // completed, retried, failed
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "candid_sync_queue_depth",
			Help: "Current number of queue items per status",
		},
		[]string{"status"},
	)

	QueueClaimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "candid_sync_queue_claim_duration_seconds",
			Help:    "Duration of queue claim transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// External consensus service metrics

	PolisRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candid_polis_requests_total",
			Help: "Total number of requests to the external consensus service",
		},
		[]string{"operation", "result"}, // success, auth_error, unavailable, api_error
	)

	PolisRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "candid_polis_request_duration_seconds",
			Help:    "Duration of external consensus service calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "candid_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candid_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candid_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker by outcome",
		},
		[]string{"name", "outcome"}, // success, failure, rejected
	)

	// Training metrics

	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candid_mf_training_runs_total",
			Help: "Total number of matrix-factorization training attempts by outcome",
		},
		[]string{"outcome"}, // trained, skipped_lock, skipped_stale, skipped_data, failed
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "candid_mf_training_duration_seconds",
			Help:    "Duration of matrix-factorization training runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	// Conversation scheduler metrics

	ConversationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "candid_conversations_created_total",
			Help: "Total number of external conversations created",
		},
	)

	ConversationsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "candid_conversations_expired_total",
			Help: "Total number of conversations transitioned to expired",
		},
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candid_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "candid_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket metrics

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "candid_websocket_connections",
			Help: "Current number of connected chat relay clients",
		},
	)
)

// SetQueueDepths updates the per-status queue depth gauges from a stats map.
func SetQueueDepths(stats map[string]int) {
	for status, count := range stats {
		QueueDepth.WithLabelValues(status).Set(float64(count))
	}
}
