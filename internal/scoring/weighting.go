// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package scoring provides the pure functions behind Candid's vote
// weighting and position ranking: ideological distance, distance-based
// vote weights, Wilson-score confidence bounds, time-decayed hot scores,
// and controversy scores.
//
// Every function in this package is total and deterministic: validated
// numeric inputs in, number out, no I/O and no failure modes.
package scoring

import (
	"math"

	"github.com/GovThePPL/candid/internal/models"
)

// BaselineWeight is the weight of a vote carrying no clustering signal.
const BaselineWeight = 1.0

// IdeologicalDistance returns the Euclidean distance between two points in
// the 2D ideological coordinate space.
func IdeologicalDistance(a, b models.Coords) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// ComputeMaxDistance returns the maximum pairwise distance among cluster
// centroids, used as the normalization scale for vote weights. With fewer
// than 2 centroids there is no scale, and the result is nil.
func ComputeMaxDistance(centroids []models.Coords) *float64 {
	if len(centroids) < 2 {
		return nil
	}

	var maxDist float64
	for i := 0; i < len(centroids); i++ {
		for j := i + 1; j < len(centroids); j++ {
			if d := IdeologicalDistance(centroids[i], centroids[j]); d > maxDist {
				maxDist = d
			}
		}
	}
	return &maxDist
}

// VoteWeight returns the weight applied to a vote based on the ideological
// distance between voter and author, normalized by the maximum centroid
// distance. Weight is linear in normalized distance and lies in [1.0, 2.0].
//
// Cold-start policy: if either coordinate is missing or there is no
// normalization scale, the baseline weight 1.0 is returned. A vote is never
// penalized for lack of signal.
func VoteWeight(voter, author *models.Coords, maxDistance *float64) float64 {
	if voter == nil || author == nil || maxDistance == nil || *maxDistance <= 0 {
		return BaselineWeight
	}

	normalized := IdeologicalDistance(*voter, *author) / *maxDistance
	return BaselineWeight + math.Min(normalized, 1.0)
}

// Centroid returns the arithmetic mean of the given points. The second
// return is false for an empty slice.
func Centroid(points []models.Coords) (models.Coords, bool) {
	if len(points) == 0 {
		return models.Coords{}, false
	}

	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return models.Coords{X: sumX / n, Y: sumY / n}, true
}
