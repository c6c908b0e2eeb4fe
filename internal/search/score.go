package search

import (
	"math"
	"time"
)

const (
	// ratingWeight converts a 0–5 star average into a 0–100 component.
	ratingWeight = 20.0

	// reviewWeight is the per-review contribution.
	reviewWeight = 5.0

	// viewWeight scales the log-compressed view count.
	viewWeight = 10.0

	// decayFloor is the minimum age-decay factor, reached at 60 days.
	decayFloor = 0.1

	// freshnessWindowDays is the age window that earns a freshness boost.
	freshnessWindowDays = 7.0

	// freshnessMax is the boost for a listing created today.
	freshnessMax = 15.0
)

// ComputeRecommendedScore returns the composite relevance score used by the
// default (recommended) sort. It blends rating, review volume, view count
// and listing age:
//
//	ratingScore = avgRating * 20
//	reviewScore = reviewCount * 5
//	viewScore   = ln(viewCount + 1) * 10 * decay(ageDays)
//	freshness   = 15 * (1 - ageDays/7) for ageDays in [0, 7), else 0
//
// where decay(age) = max(0.1, 1 - (age/30)*0.5): 1.0 at age 0, 0.5 at 30
// days, floored at 0.1 from 60 days on. The view count is log-compressed
// before decay is applied, so raw view magnitude is what gets blunted, not
// the decayed value.
//
// The total is comparative, not normalized; it is never clamped.
func ComputeRecommendedScore(avgRating float64, viewCount, reviewCount int, createdAt, now time.Time) float64 {
	ageDays := math.Floor(now.Sub(createdAt).Hours() / 24.0)
	if ageDays < 0 {
		ageDays = 0
	}

	ratingScore := avgRating * ratingWeight
	reviewScore := float64(reviewCount) * reviewWeight

	decay := math.Max(decayFloor, 1.0-(ageDays/30.0)*0.5)
	viewScore := math.Log(float64(viewCount)+1.0) * viewWeight * decay

	freshness := 0.0
	if ageDays < freshnessWindowDays {
		freshness = freshnessMax * (1.0 - ageDays/freshnessWindowDays)
	}

	return ratingScore + reviewScore + viewScore + freshness
}
