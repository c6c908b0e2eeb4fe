package search

import (
	"math"
	"testing"
	"time"
)

func TestRecommendedScoreFreshListing(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// Brand new, unrated, unviewed: the only contribution is the full
	// freshness boost.
	score := ComputeRecommendedScore(0, 0, 0, now, now)
	if math.Abs(score-15.0) > 1e-9 {
		t.Errorf("expected bare freshness boost 15.0, got %f", score)
	}

	// Freshness fades linearly over the first week and is gone after it.
	threeDays := ComputeRecommendedScore(0, 0, 0, now.Add(-3*24*time.Hour), now)
	if want := 15.0 * (1.0 - 3.0/7.0); math.Abs(threeDays-want) > 1e-9 {
		t.Errorf("expected freshness %f at 3 days, got %f", want, threeDays)
	}

	sevenDays := ComputeRecommendedScore(0, 0, 0, now.Add(-7*24*time.Hour), now)
	if sevenDays != 0 {
		t.Errorf("expected no freshness at 7 days, got %f", sevenDays)
	}
}

func TestRecommendedScoreRatingComponent(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-30 * 24 * time.Hour)

	base := ComputeRecommendedScore(0, 100, 5, created, now)
	rated := ComputeRecommendedScore(5.0, 100, 5, created, now)

	// A perfect rating is worth exactly 100 points regardless of age.
	if delta := rated - base; math.Abs(delta-100.0) > 1e-9 {
		t.Errorf("expected rating delta 100.0, got %f", delta)
	}
}

func TestRecommendedScoreReviewComponent(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-45 * 24 * time.Hour)

	base := ComputeRecommendedScore(4.0, 50, 0, created, now)
	reviewed := ComputeRecommendedScore(4.0, 50, 10, created, now)

	if delta := reviewed - base; math.Abs(delta-50.0) > 1e-9 {
		t.Errorf("expected review delta 50.0 for 10 reviews, got %f", delta)
	}
}

func TestRecommendedScoreViewLogCompression(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-10 * 24 * time.Hour)

	low := ComputeRecommendedScore(0, 100, 0, created, now)
	high := ComputeRecommendedScore(0, 1000, 0, created, now)

	if high <= low {
		t.Fatalf("more views must score higher: %f vs %f", high, low)
	}
	// Ten times the views must not come close to ten times the score.
	if ratio := high / low; ratio >= 2.0 {
		t.Errorf("log compression too weak: 10x views gave %fx score", ratio)
	}
}

func TestRecommendedScoreViewDecay(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	views := 500

	tests := []struct {
		ageDays int
		decay   float64
	}{
		{0, 1.0},
		{30, 0.5},
		{60, 0.1},
		{365, 0.1}, // floored
	}

	for _, tt := range tests {
		created := now.Add(-time.Duration(tt.ageDays) * 24 * time.Hour)
		got := ComputeRecommendedScore(0, views, 0, created, now)

		want := math.Log(float64(views)+1.0) * 10.0 * tt.decay
		if tt.ageDays < 7 {
			want += 15.0 * (1.0 - float64(tt.ageDays)/7.0)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("age %d days: expected %f, got %f", tt.ageDays, want, got)
		}
	}
}

func TestRecommendedScoreMonotonicInAge(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	var prev float64 = math.Inf(1)
	for _, age := range []int{0, 7, 30, 60, 120} {
		created := now.Add(-time.Duration(age) * 24 * time.Hour)
		score := ComputeRecommendedScore(4.5, 300, 12, created, now)
		if score > prev {
			t.Errorf("score increased with age at %d days: %f > %f", age, score, prev)
		}
		prev = score
	}
}

func TestRecommendedScoreFutureCreatedAt(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// Clock skew can put created_at slightly in the future; the age must
	// clamp to zero instead of going negative.
	future := ComputeRecommendedScore(0, 0, 0, now.Add(2*time.Hour), now)
	if math.Abs(future-15.0) > 1e-9 {
		t.Errorf("expected future timestamp to clamp to age 0 (score 15), got %f", future)
	}
}
