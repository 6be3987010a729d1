// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package scoring

import (
	"math"
	"time"
)

// wilsonZ is the z-score for a 95% confidence interval.
const wilsonZ = 1.96

// WilsonScore returns the lower bound of the 95% Wilson score interval for
// the proportion of up votes, using weighted vote sums. The bound ranks
// positions with few votes conservatively instead of letting a single
// upvote produce a perfect score. Returns 0 when total weight is 0.
func WilsonScore(up, down float64) float64 {
	total := up + down
	if total <= 0 {
		return 0.0
	}

	phat := up / total
	z2 := wilsonZ * wilsonZ

	numerator := phat + z2/(2*total) - wilsonZ*math.Sqrt((phat*(1-phat)+z2/(4*total))/total)
	return numerator / (1 + z2/total)
}

// HotScore returns a time-decayed ranking score. The net score's sign is
// preserved so negative-net positions rank below zero, while the magnitude
// compresses logarithmically so viral positions don't dominate forever:
//
//	sign(score) * log10(max(|score|, 1)) / (ageHours + 2)^1.5
func HotScore(up, down float64, createdTime, now time.Time) float64 {
	score := up - down

	var sign float64
	switch {
	case score > 0:
		sign = 1
	case score < 0:
		sign = -1
	}

	magnitude := math.Log10(math.Max(math.Abs(score), 1))
	ageHours := now.Sub(createdTime).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	return sign * magnitude / math.Pow(ageHours+2, 1.5)
}

// ControversialScore rewards positions that attract both high volume and a
// near-even split: total weight times the min/max ratio. Returns 0 when
// there are no votes on either side.
func ControversialScore(up, down float64) float64 {
	if up <= 0 || down <= 0 {
		return 0.0
	}

	ratio := math.Min(up, down) / math.Max(up, down)
	return (up + down) * ratio
}
