// Package storage provides the storage interfaces consumed by the RoomHaven
// search engine.
//
// The layer is split into small, focused interfaces so backends can be
// implemented independently and composed as needed: PostgreSQL is the
// production backend, SQLite serves development and tests, and the circuit
// breaker wrapper composes over either.
package storage

import (
	"context"

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/pkg/types"
)

// SearchProvider executes the listing search read paths. All methods take
// fully validated filters; validation belongs to the engine layer.
type SearchProvider interface {
	// SearchFirstPage runs the keyset first-page query: no cursor
	// predicate, keyset ordering (never FTS-ranked).
	SearchFirstPage(ctx context.Context, f search.Filters, sort search.Sort, limit int) (*SearchPage, error)

	// SearchAfterCursor runs the keyset continuation query, returning rows
	// strictly after the cursor's key tuple in the sort order.
	SearchAfterCursor(ctx context.Context, f search.Filters, sort search.Sort, cursor *search.KeysetCursor, limit int) (*SearchPage, error)

	// SearchOffset runs the legacy offset query (page is 1-based). With an
	// active text query the ordering is FTS-rank primary.
	SearchOffset(ctx context.Context, f search.Filters, sort search.Sort, page, limit int) (*SearchPage, error)

	// MapPins returns up to limit lightweight markers matching the filters,
	// for the map portion of a search response.
	MapPins(ctx context.Context, f search.Filters, limit int) ([]types.MapPin, error)

	// FacetCounts computes per-value result counts for every facet
	// dimension, applying all active filters except the one contributed by
	// the dimension being counted.
	FacetCounts(ctx context.Context, f search.Filters) (*FacetCounts, error)

	// Close releases any resources held by the provider.
	Close() error
}

// SimilarityProvider is an optional capability: backends with vector
// support (pgvector) return listings nearest to a reference listing's
// embedding. Callers discover it by type assertion, and backends without
// embeddings may approximate (e.g. recent listings of the same room type).
type SimilarityProvider interface {
	SimilarListings(ctx context.Context, listingID string, limit int) ([]types.Listing, error)
}

// ScoreRefresher recomputes the precomputed recommended_score column for
// every listing. It is invoked periodically by the engine's refresher, not
// per request.
type ScoreRefresher interface {
	// RefreshRecommendedScores returns the number of listings updated.
	RefreshRecommendedScores(ctx context.Context) (int, error)
}
