package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/pkg/types"
)

// BreakerConfig holds the circuit breaker tuning for the search provider.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 5.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing a probe
	// request. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxRequests is the number of probe requests allowed in
	// half-open state. Default: 2.
	HalfOpenMaxRequests uint32
}

// BreakerProvider wraps a SearchProvider with a circuit breaker so a
// failing database does not stack up doomed queries. When the circuit is
// open every method returns ErrSearchUnavailable immediately.
type BreakerProvider struct {
	inner   SearchProvider
	breaker *gobreaker.CircuitBreaker
}

// Compile-time interface checks.
var (
	_ SearchProvider     = (*BreakerProvider)(nil)
	_ SimilarityProvider = (*BreakerProvider)(nil)
)

// NewBreakerProvider wraps inner with default breaker settings.
func NewBreakerProvider(inner SearchProvider) *BreakerProvider {
	return NewBreakerProviderWithConfig(inner, BreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	})
}

// NewBreakerProviderWithConfig wraps inner with custom breaker settings.
func NewBreakerProviderWithConfig(inner SearchProvider, cfg BreakerConfig) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:        "SearchStorageBreaker",
		MaxRequests: cfg.HalfOpenMaxRequests,
		Interval:    0, // never clear counts periodically
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the breaker state as "closed", "open" or "half-open".
func (b *BreakerProvider) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// execute runs fn through the breaker, normalizing open-circuit and
// too-many-requests rejections to ErrSearchUnavailable.
func (b *BreakerProvider) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrSearchUnavailable
		}
		return nil, err
	}
	return result, nil
}

func (b *BreakerProvider) SearchFirstPage(ctx context.Context, f search.Filters, sort search.Sort, limit int) (*SearchPage, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.SearchFirstPage(ctx, f, sort, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SearchPage), nil
}

func (b *BreakerProvider) SearchAfterCursor(ctx context.Context, f search.Filters, sort search.Sort, cursor *search.KeysetCursor, limit int) (*SearchPage, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.SearchAfterCursor(ctx, f, sort, cursor, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SearchPage), nil
}

func (b *BreakerProvider) SearchOffset(ctx context.Context, f search.Filters, sort search.Sort, page, limit int) (*SearchPage, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.SearchOffset(ctx, f, sort, page, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SearchPage), nil
}

func (b *BreakerProvider) MapPins(ctx context.Context, f search.Filters, limit int) ([]types.MapPin, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.MapPins(ctx, f, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.MapPin), nil
}

func (b *BreakerProvider) FacetCounts(ctx context.Context, f search.Filters) (*FacetCounts, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.FacetCounts(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return result.(*FacetCounts), nil
}

// SimilarListings delegates through the breaker when the wrapped provider
// has similarity support, and reports ErrNotFound otherwise.
func (b *BreakerProvider) SimilarListings(ctx context.Context, listingID string, limit int) ([]types.Listing, error) {
	sim, ok := b.inner.(SimilarityProvider)
	if !ok {
		return nil, ErrNotFound
	}
	result, err := b.execute(ctx, func() (interface{}, error) {
		return sim.SimilarListings(ctx, listingID, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.Listing), nil
}

// Close closes the wrapped provider; it is never gated by the breaker.
func (b *BreakerProvider) Close() error {
	if err := b.inner.Close(); err != nil {
		return fmt.Errorf("breaker: close inner provider: %w", err)
	}
	return nil
}
