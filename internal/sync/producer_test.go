// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/models"
)

type enqueueCall struct {
	opType  models.OperationType
	payload models.SyncPayload
}

type fakeEnqueuer struct {
	calls []enqueueCall
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, opType models.OperationType, payload models.SyncPayload) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.calls = append(f.calls, enqueueCall{opType: opType, payload: payload})
	return uuid.New(), nil
}

func TestQueueVoteSyncMapsResponse(t *testing.T) {
	tests := []struct {
		response string
		want     int
	}{
		{models.ResponseAgree, -1},
		{models.ResponseDisagree, 1},
		{models.ResponsePass, 0},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			queue := &fakeEnqueuer{}
			p := NewProducer(&config.SyncConfig{Enabled: true}, queue)

			if ok := p.QueueVoteSync(context.Background(), uuid.New(), uuid.New(), tt.response); !ok {
				t.Fatalf("QueueVoteSync(%q) = false, want true", tt.response)
			}
			if len(queue.calls) != 1 {
				t.Fatalf("enqueued %d items, want 1", len(queue.calls))
			}

			call := queue.calls[0]
			if call.opType != models.OperationVote {
				t.Errorf("operation type = %q, want vote", call.opType)
			}
			if call.payload.Vote == nil {
				t.Fatal("payload.Vote is nil")
			}
			if call.payload.Vote.PolisVote != tt.want {
				t.Errorf("PolisVote = %d, want %d", call.payload.Vote.PolisVote, tt.want)
			}
		})
	}
}

func TestQueueVoteSyncSkipsChatAndUnknown(t *testing.T) {
	queue := &fakeEnqueuer{}
	p := NewProducer(&config.SyncConfig{Enabled: true}, queue)

	for _, response := range []string{models.ResponseChat, "emphatic-maybe", ""} {
		if ok := p.QueueVoteSync(context.Background(), uuid.New(), uuid.New(), response); ok {
			t.Errorf("QueueVoteSync(%q) = true, want false", response)
		}
	}
	if len(queue.calls) != 0 {
		t.Errorf("enqueued %d items, want 0", len(queue.calls))
	}
}

func TestQueuePositionSync(t *testing.T) {
	queue := &fakeEnqueuer{}
	p := NewProducer(&config.SyncConfig{Enabled: true}, queue)

	positionID := uuid.New()
	categoryID := uuid.New()
	if ok := p.QueuePositionSync(context.Background(), positionID, "more bike lanes", &categoryID, uuid.New(), uuid.New()); !ok {
		t.Fatal("QueuePositionSync() = false, want true")
	}

	if len(queue.calls) != 1 {
		t.Fatalf("enqueued %d items, want 1", len(queue.calls))
	}
	call := queue.calls[0]
	if call.opType != models.OperationPosition {
		t.Errorf("operation type = %q, want position", call.opType)
	}
	if call.payload.Position == nil || call.payload.Position.PositionID != positionID {
		t.Errorf("payload position = %+v, want PositionID %s", call.payload.Position, positionID)
	}
}

func TestProducerDisabled(t *testing.T) {
	queue := &fakeEnqueuer{}
	p := NewProducer(&config.SyncConfig{Enabled: false}, queue)

	if p.QueuePositionSync(context.Background(), uuid.New(), "text", nil, uuid.New(), uuid.New()) {
		t.Error("QueuePositionSync() = true with sync disabled")
	}
	if p.QueueVoteSync(context.Background(), uuid.New(), uuid.New(), models.ResponseAgree) {
		t.Error("QueueVoteSync() = true with sync disabled")
	}
	if len(queue.calls) != 0 {
		t.Errorf("enqueued %d items, want 0", len(queue.calls))
	}
}

func TestProducerSwallowsEnqueueError(t *testing.T) {
	queue := &fakeEnqueuer{err: errors.New("connection reset")}
	p := NewProducer(&config.SyncConfig{Enabled: true}, queue)

	// Must return false, never panic or propagate the error.
	if p.QueueVoteSync(context.Background(), uuid.New(), uuid.New(), models.ResponseAgree) {
		t.Error("QueueVoteSync() = true despite enqueue failure")
	}
	if p.QueuePositionSync(context.Background(), uuid.New(), "text", nil, uuid.New(), uuid.New()) {
		t.Error("QueuePositionSync() = true despite enqueue failure")
	}
}
