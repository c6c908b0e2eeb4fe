package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/internal/storage"
	"github.com/roomhaven/roomhaven/pkg/types"
)

// Compile-time interface checks.
var (
	_ storage.SearchProvider     = (*ListingStore)(nil)
	_ storage.SimilarityProvider = (*ListingStore)(nil)
	_ storage.ScoreRefresher     = (*ListingStore)(nil)
)

// SearchFirstPage runs the keyset first-page query.
func (s *ListingStore) SearchFirstPage(ctx context.Context, f search.Filters, sort search.Sort, limit int) (*storage.SearchPage, error) {
	query, args := buildFirstPageQuery(f, sort, limit)
	return s.runListingPage(ctx, f, query, args, limit)
}

// SearchAfterCursor runs the keyset continuation query: rows strictly after
// the cursor's key tuple in the sort order.
func (s *ListingStore) SearchAfterCursor(ctx context.Context, f search.Filters, sort search.Sort, cursor *search.KeysetCursor, limit int) (*storage.SearchPage, error) {
	if cursor == nil {
		return nil, storage.ErrInvalidInput
	}
	query, args, err := buildAfterCursorQuery(f, sort, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: build continuation query: %w", err)
	}
	return s.runListingPage(ctx, f, query, args, limit)
}

// SearchOffset runs the legacy offset query (page is 1-based).
func (s *ListingStore) SearchOffset(ctx context.Context, f search.Filters, sort search.Sort, page, limit int) (*storage.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	query, args := buildOffsetQuery(f, sort, page, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: offset search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items, err := scanListingRows(rows)
	if err != nil {
		return nil, err
	}

	total, err := s.countListings(ctx, f)
	if err != nil {
		return nil, err
	}

	return &storage.SearchPage{
		Items:       items,
		Total:       total,
		HasNextPage: (page-1)*limit+len(items) < total,
	}, nil
}

// runListingPage executes a keyset listing query that over-fetched one row,
// trims it back to limit, and attaches the filtered total.
func (s *ListingStore) runListingPage(ctx context.Context, f search.Filters, query string, args []interface{}, limit int) (*storage.SearchPage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: keyset search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items, err := scanListingRows(rows)
	if err != nil {
		return nil, err
	}

	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}

	total, err := s.countListings(ctx, f)
	if err != nil {
		return nil, err
	}

	return &storage.SearchPage{
		Items:       items,
		Total:       total,
		HasNextPage: hasNext,
	}, nil
}

// countListings counts rows matching the filters. Counts arrive as 64-bit
// values and are coerced to int for JSON transport.
func (s *ListingStore) countListings(ctx context.Context, f search.Filters) (int, error) {
	query, args := buildCountQuery(f)
	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return int(total), nil
}

// MapPins returns up to limit lightweight markers for the map payload.
func (s *ListingStore) MapPins(ctx context.Context, f search.Filters, limit int) ([]types.MapPin, error) {
	query, args := buildMapPinsQuery(f, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: map pins query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pins []types.MapPin
	for rows.Next() {
		var p types.MapPin
		var price sql.NullString
		if err := rows.Scan(&p.ID, &p.Title, &p.Lat, &p.Lng, &price); err != nil {
			return nil, fmt.Errorf("postgres: scan map pin: %w", err)
		}
		if price.Valid {
			p.Price = &price.String
		}
		pins = append(pins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: map pins rows error: %w", err)
	}
	return pins, nil
}

// FacetCounts runs the four facet-count queries inside one transaction
// prefixed by a session-local statement timeout, so the cap applies to
// every aggregate in the group.
func (s *ListingStore) FacetCounts(ctx context.Context, f search.Filters) (*storage.FacetCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin facet tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The timeout is a constant safety cap, not user data — emitted as a
	// literal because SET LOCAL does not accept bind parameters anyway.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("SET LOCAL statement_timeout = %d", facetStatementTimeoutMillis)); err != nil {
		return nil, fmt.Errorf("postgres: set facet statement timeout: %w", err)
	}

	facets := &storage.FacetCounts{}

	amenitiesQuery, amenitiesArgs := buildAmenitiesFacetQuery(f)
	if facets.Amenities, err = queryFacetCounts(ctx, tx, amenitiesQuery, amenitiesArgs); err != nil {
		return nil, fmt.Errorf("postgres: amenities facet: %w", err)
	}

	rulesQuery, rulesArgs := buildHouseRulesFacetQuery(f)
	if facets.HouseRules, err = queryFacetCounts(ctx, tx, rulesQuery, rulesArgs); err != nil {
		return nil, fmt.Errorf("postgres: house rules facet: %w", err)
	}

	roomTypesQuery, roomTypesArgs := buildRoomTypesFacetQuery(f)
	if facets.RoomTypes, err = queryFacetCounts(ctx, tx, roomTypesQuery, roomTypesArgs); err != nil {
		return nil, fmt.Errorf("postgres: room types facet: %w", err)
	}

	if facets.PriceRange, facets.PriceHistogram, err = queryPriceFacet(ctx, tx, f); err != nil {
		return nil, fmt.Errorf("postgres: price facet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: commit facet tx: %w", err)
	}
	return facets, nil
}

// queryFacetCounts runs a two-column (value, count) aggregate query.
func queryFacetCounts(ctx context.Context, tx *sql.Tx, query string, args []interface{}) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int{}
	for rows.Next() {
		var value string
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return nil, err
		}
		counts[value] = int(count)
	}
	return counts, rows.Err()
}

// queryPriceFacet computes the price range and, when the range is
// non-degenerate, the 10-bucket histogram. width_bucket places the maximum
// itself in bucket n+1, which is folded into the last bucket.
func queryPriceFacet(ctx context.Context, tx *sql.Tx, f search.Filters) (*storage.PriceRange, []storage.HistogramBucket, error) {
	rangeQuery, rangeArgs := buildPriceRangeFacetQuery(f)

	var min, max, median sql.NullString
	if err := tx.QueryRowContext(ctx, rangeQuery, rangeArgs...).Scan(&min, &max, &median); err != nil {
		return nil, nil, err
	}

	pr := &storage.PriceRange{}
	if min.Valid {
		pr.Min = &min.String
	}
	if max.Valid {
		pr.Max = &max.String
	}
	if median.Valid {
		pr.Median = &median.String
	}

	if !min.Valid || !max.Valid {
		return pr, nil, nil
	}
	lo, err := strconv.ParseFloat(min.String, 64)
	if err != nil {
		return pr, nil, nil
	}
	hi, err := strconv.ParseFloat(max.String, 64)
	if err != nil || hi <= lo {
		return pr, nil, nil
	}

	histQuery, histArgs := buildPriceHistogramQuery(f, lo, hi)
	rows, err := tx.QueryContext(ctx, histQuery, histArgs...)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	width := (hi - lo) / priceHistogramBuckets
	buckets := make([]storage.HistogramBucket, priceHistogramBuckets)
	for i := range buckets {
		buckets[i] = storage.HistogramBucket{
			Lower: lo + float64(i)*width,
			Upper: lo + float64(i+1)*width,
		}
	}

	for rows.Next() {
		var bucket int
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, nil, err
		}
		if bucket > priceHistogramBuckets {
			bucket = priceHistogramBuckets // max value lands in bucket n+1
		}
		if bucket >= 1 && bucket <= priceHistogramBuckets {
			buckets[bucket-1].Count += int(count)
		}
	}
	return pr, buckets, rows.Err()
}

// SimilarListings returns the listings nearest to listingID by embedding
// cosine distance. Without pgvector, or when the reference listing has no
// embedding yet, it falls back to recent listings of the same room type.
func (s *ListingStore) SimilarListings(ctx context.Context, listingID string, limit int) ([]types.Listing, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)", listingID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("postgres: check listing %s: %w", listingID, err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	if s.pgvectorAvailable {
		query := "SELECT " + listingSelectColumns + ` FROM listings
			WHERE id <> $1 AND embedding IS NOT NULL
			  AND (SELECT embedding FROM listings WHERE id = $1) IS NOT NULL
			ORDER BY embedding <=> (SELECT embedding FROM listings WHERE id = $1)
			LIMIT $2`

		rows, err := s.db.QueryContext(ctx, query, listingID, limit)
		if err != nil {
			return nil, fmt.Errorf("postgres: similar listings query: %w", err)
		}
		defer func() { _ = rows.Close() }()

		items, err := scanListingRows(rows)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			return items, nil
		}
		// No embeddings yet; fall through to the room-type fallback.
	}

	query := "SELECT " + listingSelectColumns + ` FROM listings
		WHERE id <> $1 AND room_type = (SELECT room_type FROM listings WHERE id = $1)
		ORDER BY listing_created_at DESC, id ASC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: similar listings fallback query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanListingRows(rows)
}
