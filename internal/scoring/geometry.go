// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package scoring

import (
	"sort"

	"github.com/GovThePPL/candid/internal/models"
)

// ConvexHull returns the convex hull of the given points in counterclockwise
// order, computed with Andrew's monotone chain. Used to draw cluster
// outlines in the opinion-space visualization. Fewer than three distinct
// points return the sorted unique points; a fully collinear set collapses
// to its two extreme points, which preserves the max pairwise distance.
func ConvexHull(points []models.Coords) []models.Coords {
	if len(points) < 3 {
		return dedupeSorted(points)
	}

	pts := dedupeSorted(points)
	if len(pts) < 3 {
		return pts
	}

	// Lower hull
	var lower []models.Coords
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	// Upper hull
	var upper []models.Coords
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	// Concatenate, dropping the duplicated endpoints.
	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	return hull
}

// cross returns the z-component of (b-a) x (c-a). Positive means the turn
// a->b->c is counterclockwise.
func cross(a, b, c models.Coords) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// dedupeSorted returns the unique points sorted by (x, y).
func dedupeSorted(points []models.Coords) []models.Coords {
	pts := make([]models.Coords, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	out := make([]models.Coords, 0, len(pts))
	for i, p := range pts {
		if i == 0 || p != pts[i-1] {
			out = append(out, p)
		}
	}
	return out
}
