// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package scoring

import (
	"math"
	"testing"

	"github.com/GovThePPL/candid/internal/models"
)

func TestIdeologicalDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Coords
		want float64
	}{
		{"identical points", models.Coords{X: 1, Y: 1}, models.Coords{X: 1, Y: 1}, 0},
		{"unit x", models.Coords{}, models.Coords{X: 1}, 1},
		{"3-4-5 triangle", models.Coords{}, models.Coords{X: 3, Y: 4}, 5},
		{"negative quadrant", models.Coords{X: -1, Y: -1}, models.Coords{X: 2, Y: 3}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdeologicalDistance(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("IdeologicalDistance() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestComputeMaxDistance(t *testing.T) {
	t.Run("nil for fewer than two centroids", func(t *testing.T) {
		if got := ComputeMaxDistance(nil); got != nil {
			t.Errorf("ComputeMaxDistance(nil) = %v, want nil", *got)
		}
		if got := ComputeMaxDistance([]models.Coords{{X: 1, Y: 1}}); got != nil {
			t.Errorf("ComputeMaxDistance(1 centroid) = %v, want nil", *got)
		}
	})

	t.Run("equals true max pairwise distance", func(t *testing.T) {
		centroids := []models.Coords{
			{X: 0, Y: 0},
			{X: 1, Y: 0},
			{X: 0, Y: 1},
			{X: 3, Y: 4}, // farthest from origin: distance 5
		}
		got := ComputeMaxDistance(centroids)
		if got == nil {
			t.Fatal("ComputeMaxDistance() = nil, want value")
		}
		if math.Abs(*got-5.0) > 1e-12 {
			t.Errorf("ComputeMaxDistance() = %f, want 5.0", *got)
		}
	})
}

func TestVoteWeightColdStart(t *testing.T) {
	coords := &models.Coords{X: 1, Y: 1}
	maxDist := 2.0
	zero := 0.0
	negative := -1.0

	tests := []struct {
		name          string
		voter, author *models.Coords
		maxDistance   *float64
	}{
		{"nil voter", nil, coords, &maxDist},
		{"nil author", coords, nil, &maxDist},
		{"nil max distance", coords, coords, nil},
		{"zero max distance", coords, coords, &zero},
		{"negative max distance", coords, coords, &negative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VoteWeight(tt.voter, tt.author, tt.maxDistance); got != 1.0 {
				t.Errorf("VoteWeight() = %f, want exactly 1.0", got)
			}
		})
	}
}

func TestVoteWeightMonotonicInDistance(t *testing.T) {
	voter := &models.Coords{X: 0, Y: 0}
	maxDist := 10.0

	prev := -1.0
	for d := 0.0; d <= 15.0; d += 0.5 {
		author := &models.Coords{X: d, Y: 0}
		w := VoteWeight(voter, author, &maxDist)
		if w < prev {
			t.Fatalf("VoteWeight not monotonic: weight %f at distance %f < previous %f", w, d, prev)
		}
		if w < 1.0 || w > 2.0 {
			t.Fatalf("VoteWeight out of range [1, 2]: %f at distance %f", w, d)
		}
		prev = w
	}
}

func TestVoteWeightCapsAtTwo(t *testing.T) {
	voter := &models.Coords{X: 0, Y: 0}
	author := &models.Coords{X: 100, Y: 0}
	maxDist := 10.0

	if got := VoteWeight(voter, author, &maxDist); got != 2.0 {
		t.Errorf("VoteWeight() beyond max distance = %f, want 2.0", got)
	}
}

func TestVoteWeightLinearInNormalizedDistance(t *testing.T) {
	voter := &models.Coords{X: 0, Y: 0}
	author := &models.Coords{X: 5, Y: 0}
	maxDist := 10.0

	if got := VoteWeight(voter, author, &maxDist); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("VoteWeight() at half max distance = %f, want 1.5", got)
	}
}

func TestCentroid(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, ok := Centroid(nil); ok {
			t.Error("Centroid(nil) ok = true, want false")
		}
	})

	t.Run("mean of points", func(t *testing.T) {
		c, ok := Centroid([]models.Coords{{X: 0, Y: 0}, {X: 2, Y: 4}})
		if !ok {
			t.Fatal("Centroid() ok = false")
		}
		if c.X != 1 || c.Y != 2 {
			t.Errorf("Centroid() = %+v, want {1 2}", c)
		}
	})
}
