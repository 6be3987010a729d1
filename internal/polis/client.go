// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package polis implements the HTTP client for the external
// consensus-clustering service: conversation creation, comment and vote
// submission, and per-user pseudonymous identity (xid) token issuance with a
// two-tier cache (in-process map, persisted fallback).
//
// Failures are classified into three kinds that drive the sync worker's
// backoff choice:
//   - AuthError (401): long backoff, the token may simply have expired
//   - UnavailableError (refused/timeout/gateway 5xx): long backoff
//   - APIError (anything else): normal backoff
package polis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/metrics"
)

// xidPrefix namespaces local user IDs in the external system so they cannot
// collide with identities issued by other integrations.
const xidPrefix = "candid:"

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// defaultTokenTTL is assumed when the service omits an expiry on an issued
// participant token.
const defaultTokenTTL = 24 * time.Hour

// tokenRefreshMargin re-issues tokens slightly before they expire so an
// in-flight request never carries a token that dies mid-call.
const tokenRefreshMargin = 30 * time.Second

// GenerateXid derives the external system's pseudonymous identity token for
// a local user.
func GenerateXid(userID uuid.UUID) string {
	return xidPrefix + userID.String()
}

// StripXid recovers the local user ID string from an xid. An xid without the
// expected prefix yields an empty string rather than an error.
func StripXid(xid string) string {
	id, ok := strings.CutPrefix(xid, xidPrefix)
	if !ok {
		return ""
	}
	return id
}

// ConversationRequest is the payload for creating a remote conversation.
type ConversationRequest struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

// ConversationResponse is the remote identity of a created conversation.
type ConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// CommentResponse is the remote identity of a created comment.
type CommentResponse struct {
	CommentID string `json:"comment_id"`
}

// tokenResponse is the participant-token issuance payload.
type tokenResponse struct {
	Token       string    `json:"token"`
	ExpiresTime time.Time `json:"expires_time"`
}

// ConsensusClient is the operation surface consumed by the sync worker and
// the conversation scheduler. Implemented by Client and by
// CircuitBreakerClient.
type ConsensusClient interface {
	Ping(ctx context.Context) error
	CreateConversation(ctx context.Context, req *ConversationRequest) (*ConversationResponse, error)
	CreateComment(ctx context.Context, conversationID string, userID uuid.UUID, text string) (*CommentResponse, error)
	SubmitVote(ctx context.Context, conversationID, commentID string, userID uuid.UUID, vote int, weight float64) error
}

// TokenPersistence is the second tier of the participant-token cache,
// surviving process restarts. Implemented by database.TokenStore.
type TokenPersistence interface {
	Get(ctx context.Context, userID uuid.UUID, now time.Time) (token string, expires time.Time, ok bool, err error)
	Put(ctx context.Context, userID uuid.UUID, token string, expires time.Time) error
}

// Client talks to the external consensus service over HTTP.
//
// Thread safety: all methods are safe for concurrent use. The token cache is
// guarded by its own mutex; each request builds its own http.Request.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	persist TokenPersistence

	mu     sync.RWMutex
	tokens map[uuid.UUID]cachedToken
}

type cachedToken struct {
	token   string
	expires time.Time
}

// NewClient creates a consensus-service client. persist may be nil, in which
// case tokens live only for the process lifetime.
func NewClient(cfg *config.PolisConfig, persist TokenPersistence) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
		// Outbound ceiling protecting the remote service from bursts when
		// the sync worker drains a large backlog.
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		persist: persist,
		tokens:  make(map[uuid.UUID]cachedToken),
	}
}

// readBodyForError reads at most maxErrorBodySize of a response body for
// error reporting.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	if len(body) == maxErrorBodySize {
		return string(body) + "... (truncated)"
	}
	return string(body)
}

// doJSON performs one API call, classifies failures, and decodes the
// response. A nil result, a 204, or an empty body all count as an empty
// success. participantToken is added as a header when non-empty; the admin
// API key is always sent.
func (c *Client) doJSON(ctx context.Context, op, method, path, participantToken string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if participantToken != "" {
		req.Header.Set("X-Participant-Token", participantToken)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.PolisRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		// Caller-initiated cancellation is not a service failure.
		if errors.Is(err, context.Canceled) {
			return err
		}
		metrics.PolisRequestsTotal.WithLabelValues(op, "unavailable").Inc()
		return &UnavailableError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.PolisRequestsTotal.WithLabelValues(op, "auth_error").Inc()
		return &AuthError{Operation: op, Message: readBodyForError(resp.Body)}
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		metrics.PolisRequestsTotal.WithLabelValues(op, "unavailable").Inc()
		return &UnavailableError{Operation: op, Err: fmt.Errorf("gateway status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		metrics.PolisRequestsTotal.WithLabelValues(op, "api_error").Inc()
		return &APIError{Operation: op, StatusCode: resp.StatusCode, Body: readBodyForError(resp.Body)}
	}

	metrics.PolisRequestsTotal.WithLabelValues(op, "success").Inc()

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}
	// Some endpoints answer 200 with no body; treat that as an empty
	// success rather than a parse error.
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// Ping verifies connectivity to the external service.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, "ping", http.MethodGet, "/api/v3/health", "", nil, nil)
}

// CreateConversation creates a remote conversation using the admin API key.
func (c *Client) CreateConversation(ctx context.Context, req *ConversationRequest) (*ConversationResponse, error) {
	var result ConversationResponse
	if err := c.doJSON(ctx, "create_conversation", http.MethodPost, "/api/v3/conversations", "", req, &result); err != nil {
		return nil, err
	}
	if result.ConversationID == "" {
		return nil, &APIError{Operation: "create_conversation", StatusCode: http.StatusOK, Body: "response missing conversation_id"}
	}
	return &result, nil
}

// CreateComment mirrors a local position as a comment in the remote
// conversation, authored by the user's pseudonymous identity.
func (c *Client) CreateComment(ctx context.Context, conversationID string, userID uuid.UUID, text string) (*CommentResponse, error) {
	token, err := c.participantToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	body := map[string]string{
		"conversation_id": conversationID,
		"txt":             text,
		"xid":             GenerateXid(userID),
	}
	var result CommentResponse
	if err := c.doJSON(ctx, "create_comment", http.MethodPost, "/api/v3/comments", token, body, &result); err != nil {
		c.invalidateOnAuthError(ctx, userID, err)
		return nil, err
	}
	if result.CommentID == "" {
		return nil, &APIError{Operation: "create_comment", StatusCode: http.StatusOK, Body: "response missing comment_id"}
	}
	return &result, nil
}

// SubmitVote records a weighted vote on a remote comment. The service
// answers votes with 204, which maps to a plain nil error here.
func (c *Client) SubmitVote(ctx context.Context, conversationID, commentID string, userID uuid.UUID, vote int, weight float64) error {
	token, err := c.participantToken(ctx, userID)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"conversation_id": conversationID,
		"comment_id":      commentID,
		"xid":             GenerateXid(userID),
		"vote":            vote,
		"weight":          weight,
	}
	if err := c.doJSON(ctx, "submit_vote", http.MethodPost, "/api/v3/votes", token, body, nil); err != nil {
		c.invalidateOnAuthError(ctx, userID, err)
		return err
	}
	return nil
}

// participantToken returns a valid participation token for the user,
// consulting the in-process cache, then the persisted store, and finally
// issuing a fresh token from the remote service.
func (c *Client) participantToken(ctx context.Context, userID uuid.UUID) (string, error) {
	now := time.Now()
	deadline := now.Add(tokenRefreshMargin)

	c.mu.RLock()
	cached, ok := c.tokens[userID]
	c.mu.RUnlock()
	if ok && cached.expires.After(deadline) {
		return cached.token, nil
	}

	if c.persist != nil {
		token, expires, ok, err := c.persist.Get(ctx, userID, deadline)
		if err != nil {
			logging.Warn().Err(err).Str("user_id", userID.String()).Msg("persisted token lookup failed, issuing fresh token")
		} else if ok {
			c.mu.Lock()
			c.tokens[userID] = cachedToken{token: token, expires: expires}
			c.mu.Unlock()
			return token, nil
		}
	}

	body := map[string]string{"xid": GenerateXid(userID)}
	var result tokenResponse
	if err := c.doJSON(ctx, "participation_init", http.MethodPost, "/api/v3/participants", "", body, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", &APIError{Operation: "participation_init", StatusCode: http.StatusOK, Body: "response missing token"}
	}

	expires := result.ExpiresTime
	if expires.IsZero() {
		expires = now.Add(defaultTokenTTL)
	}

	c.mu.Lock()
	c.tokens[userID] = cachedToken{token: result.Token, expires: expires}
	c.mu.Unlock()

	if c.persist != nil {
		if err := c.persist.Put(ctx, userID, result.Token, expires); err != nil {
			// Persistence is an optimization; the in-process tier already
			// has the token.
			logging.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to persist participant token")
		}
	}
	return result.Token, nil
}

// invalidateOnAuthError drops the user's cached token after a participant
// call came back 401. The service just rejected that token, so replaying it
// on the retry can never succeed; the next attempt issues a fresh one.
func (c *Client) invalidateOnAuthError(ctx context.Context, userID uuid.UUID, err error) {
	if !IsAuthError(err) {
		return
	}
	logging.Warn().Str("user_id", userID.String()).Msg("participant token rejected, dropping cached token")
	c.InvalidateToken(ctx, userID)
}

// InvalidateToken drops a user's cached token from both tiers so the next
// call re-issues. Used after an AuthError that may be a simple expiry.
func (c *Client) InvalidateToken(ctx context.Context, userID uuid.UUID) {
	c.mu.Lock()
	delete(c.tokens, userID)
	c.mu.Unlock()

	if c.persist != nil {
		// Overwrite with an already-expired entry so the persisted tier
		// cannot serve the stale token again.
		if err := c.persist.Put(ctx, userID, "", time.Unix(0, 0)); err != nil {
			logging.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to invalidate persisted token")
		}
	}
}
