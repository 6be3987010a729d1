// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package models

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

func TestPolisVote(t *testing.T) {
	tests := []struct {
		response string
		want     int
		wantOK   bool
	}{
		{ResponseAgree, -1, true},
		{ResponseDisagree, 1, true},
		{ResponsePass, 0, true},
		{ResponseChat, 0, false},
		{"upvote", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			got, ok := PolisVote(tt.response)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("PolisVote(%q) = (%d, %v), want (%d, %v)",
					tt.response, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSyncPayloadRoundTrip(t *testing.T) {
	positionID := uuid.New()
	userID := uuid.New()

	t.Run("vote payload carries polis_vote", func(t *testing.T) {
		p := SyncPayload{Vote: &VoteSyncPayload{
			PositionID:   positionID,
			UserID:       userID,
			ResponseType: ResponseAgree,
			PolisVote:    -1,
		}}

		data, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if !strings.Contains(string(data), `"polis_vote":-1`) {
			t.Errorf("serialized payload missing polis_vote: %s", data)
		}

		var decoded SyncPayload
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if decoded.Vote == nil || decoded.Position != nil {
			t.Fatal("decoded payload has wrong variant")
		}
		if decoded.Vote.PolisVote != -1 || decoded.Vote.UserID != userID {
			t.Errorf("decoded vote = %+v", decoded.Vote)
		}
		if decoded.Kind() != OperationVote {
			t.Errorf("Kind() = %q, want %q", decoded.Kind(), OperationVote)
		}
	})

	t.Run("position payload", func(t *testing.T) {
		p := SyncPayload{Position: &PositionSyncPayload{
			PositionID:    positionID,
			Statement:     "transit should run later at night",
			LocationID:    uuid.New(),
			CreatorUserID: userID,
		}}

		data, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}

		var decoded SyncPayload
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if decoded.Position == nil || decoded.Vote != nil {
			t.Fatal("decoded payload has wrong variant")
		}
		if decoded.Position.Statement != p.Position.Statement {
			t.Errorf("statement = %q", decoded.Position.Statement)
		}
	})
}

func TestSyncPayloadRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown kind", `{"kind":"comment"}`},
		{"kind without body", `{"kind":"vote"}`},
		{"position kind without body", `{"kind":"position"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p SyncPayload
			if err := json.Unmarshal([]byte(tt.data), &p); err == nil {
				t.Errorf("Unmarshal(%s) expected error, got nil", tt.data)
			}
		})
	}
}

func TestSyncPayloadRejectsBothVariants(t *testing.T) {
	p := SyncPayload{
		Position: &PositionSyncPayload{PositionID: uuid.New()},
		Vote:     &VoteSyncPayload{PositionID: uuid.New()},
	}
	if _, err := json.Marshal(p); err == nil {
		t.Error("Marshal() with both variants expected error, got nil")
	}
}

func TestQueueStatsAsMap(t *testing.T) {
	stats := QueueStats{Pending: 3, Processing: 1, Completed: 10, Failed: 2, Partial: 1, Total: 17}
	m := stats.AsMap()

	if m["pending"] != 3 || m["failed"] != 2 || m["total"] != 17 {
		t.Errorf("AsMap() = %v", m)
	}
}

func TestConversationTargetType(t *testing.T) {
	catID := uuid.New()

	if got := (ConversationTarget{LocationID: uuid.New()}).Type(); got != ConversationLocationAll {
		t.Errorf("Type() without category = %q, want %q", got, ConversationLocationAll)
	}
	if got := (ConversationTarget{LocationID: uuid.New(), CategoryID: &catID}).Type(); got != ConversationCategory {
		t.Errorf("Type() with category = %q, want %q", got, ConversationCategory)
	}
}
