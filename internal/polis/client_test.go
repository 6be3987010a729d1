// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package polis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/config"
)

func newTestClient(t *testing.T, serverURL string, persist TokenPersistence) *Client {
	t.Helper()
	return NewClient(&config.PolisConfig{
		Enabled: true,
		URL:     serverURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, persist)
}

// fakePersist is an in-memory TokenPersistence for tests.
type fakePersist struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]cachedToken
	gets   int
	puts   int
}

func newFakePersist() *fakePersist {
	return &fakePersist{tokens: make(map[uuid.UUID]cachedToken)}
}

func (p *fakePersist) Get(_ context.Context, userID uuid.UUID, now time.Time) (string, time.Time, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	tok, ok := p.tokens[userID]
	if !ok || !tok.expires.After(now) {
		return "", time.Time{}, false, nil
	}
	return tok.token, tok.expires, true, nil
}

func (p *fakePersist) Put(_ context.Context, userID uuid.UUID, token string, expires time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.puts++
	p.tokens[userID] = cachedToken{token: token, expires: expires}
	return nil
}

func TestXidRoundTrip(t *testing.T) {
	userID := uuid.New()

	xid := GenerateXid(userID)
	if !strings.HasPrefix(xid, "candid:") {
		t.Errorf("GenerateXid(%s) = %q, want candid: prefix", userID, xid)
	}
	if got := StripXid(xid); got != userID.String() {
		t.Errorf("StripXid(%q) = %q, want %q", xid, got, userID.String())
	}
}

func TestStripXidInvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		xid  string
	}{
		{"no prefix", uuid.New().String()},
		{"wrong prefix", "polis:" + uuid.New().String()},
		{"empty", ""},
		{"prefix embedded", "x-candid:abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripXid(tt.xid); got != "" {
				t.Errorf("StripXid(%q) = %q, want empty string", tt.xid, got)
			}
		})
	}
}

func TestCreateConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v3/conversations" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"conversation_id":"conv-42"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	resp, err := client.CreateConversation(context.Background(), &ConversationRequest{Topic: "Transit"})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if resp.ConversationID != "conv-42" {
		t.Errorf("ConversationID = %q, want conv-42", resp.ConversationID)
	}
}

func TestCreateCommentIssuesAndCachesToken(t *testing.T) {
	var mu sync.Mutex
	participantCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/participants":
			mu.Lock()
			participantCalls++
			mu.Unlock()
			_, _ = w.Write([]byte(`{"token":"ptok-1","expires_time":"2099-01-01T00:00:00Z"}`))
		case "/api/v3/comments":
			if tok := r.Header.Get("X-Participant-Token"); tok != "ptok-1" {
				t.Errorf("X-Participant-Token = %q, want ptok-1", tok)
			}
			_, _ = w.Write([]byte(`{"comment_id":"tid-7"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		resp, err := client.CreateComment(context.Background(), "conv-1", userID, "statement text")
		if err != nil {
			t.Fatalf("CreateComment() call %d error = %v", i, err)
		}
		if resp.CommentID != "tid-7" {
			t.Errorf("CommentID = %q, want tid-7", resp.CommentID)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if participantCalls != 1 {
		t.Errorf("participant token issued %d times, want 1 (in-process cache)", participantCalls)
	}
}

func TestPersistedTokenTierAvoidsIssuance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/participants" {
			t.Error("token issuance endpoint called despite persisted token")
		}
		_, _ = w.Write([]byte(`{"comment_id":"tid-9"}`))
	}))
	defer srv.Close()

	userID := uuid.New()
	persist := newFakePersist()
	if err := persist.Put(context.Background(), userID, "persisted-tok", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed persist: %v", err)
	}

	client := newTestClient(t, srv.URL, persist)
	if _, err := client.CreateComment(context.Background(), "conv-1", userID, "text"); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
}

func TestTokenPersistedOnIssuance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/participants":
			_, _ = w.Write([]byte(`{"token":"fresh-tok"}`))
		default:
			_, _ = w.Write([]byte(`{"comment_id":"tid-1"}`))
		}
	}))
	defer srv.Close()

	userID := uuid.New()
	persist := newFakePersist()
	client := newTestClient(t, srv.URL, persist)

	if _, err := client.CreateComment(context.Background(), "conv-1", userID, "text"); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	tok, _, ok, err := persist.Get(context.Background(), userID, time.Now())
	if err != nil || !ok {
		t.Fatalf("persisted token lookup = (%v, %v), want hit", ok, err)
	}
	if tok != "fresh-tok" {
		t.Errorf("persisted token = %q, want fresh-tok", tok)
	}
}

func TestInvalidateTokenForcesReissue(t *testing.T) {
	var mu sync.Mutex
	participantCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/participants":
			mu.Lock()
			participantCalls++
			mu.Unlock()
			_, _ = w.Write([]byte(`{"token":"ptok","expires_time":"2099-01-01T00:00:00Z"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakePersist())
	userID := uuid.New()

	if err := client.SubmitVote(context.Background(), "conv-1", "tid-1", userID, -1, 1.0); err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	client.InvalidateToken(context.Background(), userID)
	if err := client.SubmitVote(context.Background(), "conv-1", "tid-1", userID, 1, 1.5); err != nil {
		t.Fatalf("SubmitVote() after invalidate error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if participantCalls != 2 {
		t.Errorf("participant token issued %d times, want 2 (invalidate drops both tiers)", participantCalls)
	}
}

func TestAuthErrorDropsCachedTokenForReissue(t *testing.T) {
	var mu sync.Mutex
	participantCalls := 0
	var tokensSeen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/participants":
			mu.Lock()
			participantCalls++
			tok := fmt.Sprintf("tok-%d", participantCalls)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"token":"` + tok + `","expires_time":"2099-01-01T00:00:00Z"}`))
		case "/api/v3/comments":
			// Every participant token is treated as revoked.
			mu.Lock()
			tokensSeen = append(tokensSeen, r.Header.Get("X-Participant-Token"))
			mu.Unlock()
			w.WriteHeader(http.StatusUnauthorized)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	persist := newFakePersist()
	client := newTestClient(t, srv.URL, persist)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := client.CreateComment(context.Background(), "conv-1", userID, "text")
		if !IsAuthError(err) {
			t.Fatalf("CreateComment() call %d error = %v, want AuthError", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	// Each rejection must drop the cached token, so each attempt issues and
	// sends a fresh one instead of replaying the revoked token.
	if participantCalls != 3 {
		t.Errorf("participant token issued %d times, want 3 (one per rejected attempt)", participantCalls)
	}
	want := []string{"tok-1", "tok-2", "tok-3"}
	if len(tokensSeen) != len(want) {
		t.Fatalf("comment attempts sent tokens %v, want %v", tokensSeen, want)
	}
	for i, tok := range want {
		if tokensSeen[i] != tok {
			t.Errorf("attempt %d sent token %q, want %q", i, tokensSeen[i], tok)
		}
	}

	// Invalidation overwrites the persisted tier too, so a restart cannot
	// resurrect the revoked token.
	if _, _, ok, err := persist.Get(context.Background(), userID, time.Now()); err != nil || ok {
		t.Errorf("persisted lookup after invalidation = (ok=%v, err=%v), want miss", ok, err)
	}
}

func TestSubmitVoteNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/participants" {
			_, _ = w.Write([]byte(`{"token":"ptok"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	if err := client.SubmitVote(context.Background(), "conv-1", "tid-1", uuid.New(), 0, 1.0); err != nil {
		t.Errorf("SubmitVote() with 204 response error = %v, want nil", err)
	}
}

func TestEmptyBodyIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with an empty body, not valid JSON.
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() with empty body error = %v, want nil", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		check      func(error) bool
		wantDesc   string
	}{
		{"401 auth", http.StatusUnauthorized, IsAuthError, "AuthError"},
		{"502 gateway", http.StatusBadGateway, IsUnavailableError, "UnavailableError"},
		{"503 unavailable", http.StatusServiceUnavailable, IsUnavailableError, "UnavailableError"},
		{"504 gateway timeout", http.StatusGatewayTimeout, IsUnavailableError, "UnavailableError"},
		{"500 server error", http.StatusInternalServerError, func(err error) bool {
			var ae *APIError
			return errors.As(err, &ae) && ae.StatusCode == http.StatusInternalServerError
		}, "APIError"},
		{"400 bad request", http.StatusBadRequest, func(err error) bool {
			var ae *APIError
			return errors.As(err, &ae)
		}, "APIError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL, nil)
			err := client.Ping(context.Background())
			if err == nil {
				t.Fatalf("Ping() = nil, want %s", tt.wantDesc)
			}
			if !tt.check(err) {
				t.Errorf("Ping() error = %v, want %s", err, tt.wantDesc)
			}
		})
	}
}

func TestUnavailableOnConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Refuse all connections from here on.

	client := newTestClient(t, srv.URL, nil)
	err := client.Ping(context.Background())
	if !IsUnavailableError(err) {
		t.Errorf("Ping() against closed server error = %v, want UnavailableError", err)
	}
}

func TestAuthErrorOnParticipationInitPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	_, err := client.CreateComment(context.Background(), "conv-1", uuid.New(), "text")
	if !IsAuthError(err) {
		t.Errorf("CreateComment() error = %v, want AuthError from token issuance", err)
	}
}
