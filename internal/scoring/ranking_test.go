// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package scoring

import (
	"testing"
	"time"
)

func TestWilsonScoreRange(t *testing.T) {
	tests := []struct {
		name     string
		up, down float64
	}{
		{"no votes", 0, 0},
		{"single up", 1, 0},
		{"single down", 0, 1},
		{"balanced", 50, 50},
		{"heavy up", 1000, 10},
		{"weighted sums", 12.5, 3.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WilsonScore(tt.up, tt.down)
			if got < 0 || got > 1 {
				t.Errorf("WilsonScore(%f, %f) = %f, want in [0, 1]", tt.up, tt.down, got)
			}
		})
	}
}

func TestWilsonScoreZeroVotes(t *testing.T) {
	if got := WilsonScore(0, 0); got != 0.0 {
		t.Errorf("WilsonScore(0, 0) = %f, want exactly 0", got)
	}
}

func TestWilsonScoreMoreVotesMoreConfidence(t *testing.T) {
	// Same 90% approval; more votes should push the lower bound higher.
	small := WilsonScore(9, 1)
	large := WilsonScore(900, 100)
	if large <= small {
		t.Errorf("WilsonScore(900, 100) = %f should exceed WilsonScore(9, 1) = %f", large, small)
	}
}

func TestHotScoreDecay(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	fresh := HotScore(10, 0, now.Add(-time.Hour), now)
	stale := HotScore(10, 0, now.Add(-10*time.Hour), now)

	if fresh <= stale {
		t.Errorf("HotScore fresh = %f should exceed stale = %f", fresh, stale)
	}
}

func TestHotScoreSign(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-2 * time.Hour)

	if got := HotScore(10, 2, created, now); got <= 0 {
		t.Errorf("HotScore positive-net = %f, want > 0", got)
	}
	if got := HotScore(2, 10, created, now); got >= 0 {
		t.Errorf("HotScore negative-net = %f, want < 0", got)
	}
	if got := HotScore(5, 5, created, now); got != 0 {
		t.Errorf("HotScore zero-net = %f, want 0", got)
	}
}

func TestHotScoreFutureCreatedTimeClamped(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Clock skew can put created_time slightly in the future; the age is
	// clamped to zero rather than amplifying the score.
	skewed := HotScore(10, 0, now.Add(time.Minute), now)
	atNow := HotScore(10, 0, now, now)
	if skewed != atNow {
		t.Errorf("HotScore with future created time = %f, want %f", skewed, atNow)
	}
}

func TestControversialScore(t *testing.T) {
	tests := []struct {
		name     string
		up, down float64
		want     float64
	}{
		{"no votes", 0, 0, 0},
		{"only up", 10, 0, 0},
		{"only down", 0, 10, 0},
		{"even split", 10, 10, 20},
		{"uneven split", 10, 5, 7.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ControversialScore(tt.up, tt.down); got != tt.want {
				t.Errorf("ControversialScore(%f, %f) = %f, want %f", tt.up, tt.down, got, tt.want)
			}
		})
	}
}

func TestControversialScoreRewardsVolume(t *testing.T) {
	small := ControversialScore(5, 5)
	large := ControversialScore(500, 500)
	if large <= small {
		t.Errorf("ControversialScore(500, 500) = %f should exceed (5, 5) = %f", large, small)
	}
}
