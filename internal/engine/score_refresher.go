// Package engine orchestrates the RoomHaven search flow: request
// validation, pagination path selection, response shaping, and the
// background recommended-score refresh.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/roomhaven/roomhaven/internal/storage"
)

// defaultRefreshInterval is how often recommended scores are recomputed
// when no interval is configured. The score formula only moves on day
// boundaries (age is floored to whole days), so hourly is already generous.
const defaultRefreshInterval = 1 * time.Hour

// ScoreRefresher periodically recomputes the precomputed recommended_score
// column that the recommended sort reads. It is the upstream producer of
// that column; search requests never compute scores inline.
type ScoreRefresher struct {
	refresher storage.ScoreRefresher
	interval  time.Duration

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	lastRefresh time.Time
	lastCount   int
}

// NewScoreRefresher creates a refresher. A non-positive interval selects
// the default.
func NewScoreRefresher(refresher storage.ScoreRefresher, interval time.Duration) *ScoreRefresher {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &ScoreRefresher{
		refresher: refresher,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the refresh loop until the context is cancelled or Stop is
// called. One refresh runs immediately so a fresh deployment does not serve
// stale scores for a full interval.
func (r *ScoreRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("score refresher is already running")
	}
	r.running = true
	r.mu.Unlock()

	log.Printf("score refresher started: interval=%v", r.interval)
	r.refreshOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("score refresher stopping (context cancelled)")
			return ctx.Err()

		case <-r.stopCh:
			log.Println("score refresher stopping (stop requested)")
			return nil

		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

// Stop stops the refresh loop.
func (r *ScoreRefresher) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return fmt.Errorf("score refresher is not running")
	}
	close(r.stopCh)
	r.running = false
	return nil
}

// RefreshNow runs one refresh immediately, outside the schedule.
func (r *ScoreRefresher) RefreshNow(ctx context.Context) (int, error) {
	n, err := r.refresher.RefreshRecommendedScores(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: recommended score refresh: %w", err)
	}
	r.mu.Lock()
	r.lastRefresh = time.Now()
	r.lastCount = n
	r.mu.Unlock()
	return n, nil
}

// LastRefresh reports when the last successful refresh ran and how many
// listings it updated.
func (r *ScoreRefresher) LastRefresh() (time.Time, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefresh, r.lastCount
}

func (r *ScoreRefresher) refreshOnce(ctx context.Context) {
	n, err := r.RefreshNow(ctx)
	if err != nil {
		log.Printf("scheduled score refresh failed: %v", err)
		return
	}
	log.Printf("scheduled score refresh completed: %d listings updated", n)
}
