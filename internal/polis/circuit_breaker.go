// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package polis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/metrics"
)

// CircuitBreakerClient wraps Client with the circuit breaker pattern,
// preventing cascading failures when the external consensus service is
// unavailable or slow.
//
// DETERMINISM NOTE: The circuit breaker uses real time (via sony/gobreaker)
// for its interval and timeout calculations. Tests should exercise the
// wrapped client directly rather than timing the breaker.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient creates a consensus-service client with circuit
// breaker protection.
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(cfg *config.PolisConfig, persist TokenPersistence) *CircuitBreakerClient {
	client := NewClient(cfg, persist)
	cbName := "polis-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps an API call with circuit breaker protection. An open circuit
// surfaces as an UnavailableError so the sync worker applies the same long
// backoff it uses when the service itself is down.
func (cbc *CircuitBreakerClient) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Str("operation", op).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, &UnavailableError{Operation: op, Err: err}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return result, nil
}

// castResult safely type-casts the circuit breaker result with error checking.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Ping verifies connectivity with circuit breaker protection.
func (cbc *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := cbc.execute("ping", func() (interface{}, error) {
		return nil, cbc.client.Ping(ctx)
	})
	return err
}

// CreateConversation creates a remote conversation with circuit breaker protection.
func (cbc *CircuitBreakerClient) CreateConversation(ctx context.Context, req *ConversationRequest) (*ConversationResponse, error) {
	return castResult[ConversationResponse](cbc.execute("create_conversation", func() (interface{}, error) {
		return cbc.client.CreateConversation(ctx, req)
	}))
}

// CreateComment creates a remote comment with circuit breaker protection.
func (cbc *CircuitBreakerClient) CreateComment(ctx context.Context, conversationID string, userID uuid.UUID, text string) (*CommentResponse, error) {
	return castResult[CommentResponse](cbc.execute("create_comment", func() (interface{}, error) {
		return cbc.client.CreateComment(ctx, conversationID, userID, text)
	}))
}

// SubmitVote submits a weighted vote with circuit breaker protection.
func (cbc *CircuitBreakerClient) SubmitVote(ctx context.Context, conversationID, commentID string, userID uuid.UUID, vote int, weight float64) error {
	_, err := cbc.execute("submit_vote", func() (interface{}, error) {
		return nil, cbc.client.SubmitVote(ctx, conversationID, commentID, userID, vote, weight)
	})
	return err
}

// InvalidateToken drops a user's cached participant token. Cache
// maintenance does not go through the breaker.
func (cbc *CircuitBreakerClient) InvalidateToken(ctx context.Context, userID uuid.UUID) {
	cbc.client.InvalidateToken(ctx, userID)
}
