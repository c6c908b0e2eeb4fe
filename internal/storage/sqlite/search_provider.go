package sqlite

import (
	"context"
	"database/sql"
	"fmt"

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
func (s *ListingStore) SearchFirstPage(ctx context.Context, f search.Filters, srt search.Sort, limit int) (*storage.SearchPage, error) {
	query, args := buildFirstPageQuery(f, srt, limit)
	return s.runListingPage(ctx, f, query, args, limit)
}

// SearchAfterCursor runs the keyset continuation query.
func (s *ListingStore) SearchAfterCursor(ctx context.Context, f search.Filters, srt search.Sort, cursor *search.KeysetCursor, limit int) (*storage.SearchPage, error) {
	if cursor == nil {
		return nil, storage.ErrInvalidInput
	}
	query, args, err := buildAfterCursorQuery(f, srt, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: build continuation query: %w", err)
	}
	return s.runListingPage(ctx, f, query, args, limit)
}

// SearchOffset runs the legacy offset query (page is 1-based).
func (s *ListingStore) SearchOffset(ctx context.Context, f search.Filters, srt search.Sort, page, limit int) (*storage.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	query, args := buildOffsetQuery(f, srt, page, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: offset search query: %w", err)
	}
	defer rows.Close()

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

func (s *ListingStore) runListingPage(ctx context.Context, f search.Filters, query string, args []interface{}, limit int) (*storage.SearchPage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keyset search query: %w", err)
	}
	defer rows.Close()

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

func (s *ListingStore) countListings(ctx context.Context, f search.Filters) (int, error) {
	query, args := buildCountQuery(f)
	var total int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: count listings: %w", err)
	}
	return total, nil
}

// MapPins returns up to limit lightweight markers for the map payload.
func (s *ListingStore) MapPins(ctx context.Context, f search.Filters, limit int) ([]types.MapPin, error) {
	query, args := buildMapPinsQuery(f, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: map pins query: %w", err)
	}
	defer rows.Close()

	var pins []types.MapPin
	for rows.Next() {
		var p types.MapPin
		var price sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Title, &p.Lat, &p.Lng, &price); err != nil {
			return nil, fmt.Errorf("sqlite: scan map pin: %w", err)
		}
		if price.Valid {
			v := formatReal(price.Float64)
			p.Price = &v
		}
		pins = append(pins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: map pins rows error: %w", err)
	}
	return pins, nil
}

// FacetCounts runs the facet aggregates. SQLite has no statement_timeout;
// the request context deadline is the only cap here, which is acceptable for
// a development backend.
func (s *ListingStore) FacetCounts(ctx context.Context, f search.Filters) (*storage.FacetCounts, error) {
	facets := &storage.FacetCounts{}
	var err error

	amenitiesQuery, amenitiesArgs := buildJoinFacetQuery(f, "listing_amenities", "name", storage.DimAmenities)
	if facets.Amenities, err = s.queryFacetCounts(ctx, amenitiesQuery, amenitiesArgs); err != nil {
		return nil, fmt.Errorf("sqlite: amenities facet: %w", err)
	}

	rulesQuery, rulesArgs := buildJoinFacetQuery(f, "listing_house_rules", "name", storage.DimHouseRules)
	if facets.HouseRules, err = s.queryFacetCounts(ctx, rulesQuery, rulesArgs); err != nil {
		return nil, fmt.Errorf("sqlite: house rules facet: %w", err)
	}

	roomTypesQuery, roomTypesArgs := buildRoomTypesFacetQuery(f)
	if facets.RoomTypes, err = s.queryFacetCounts(ctx, roomTypesQuery, roomTypesArgs); err != nil {
		return nil, fmt.Errorf("sqlite: room types facet: %w", err)
	}

	if facets.PriceRange, facets.PriceHistogram, err = s.queryPriceFacet(ctx, f); err != nil {
		return nil, fmt.Errorf("sqlite: price facet: %w", err)
	}

	return facets, nil
}

func (s *ListingStore) queryFacetCounts(ctx context.Context, query string, args []interface{}) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var value string
		var count int
		if err := rows.Scan(&value, &count); err != nil {
			return nil, err
		}
		counts[value] = count
	}
	return counts, rows.Err()
}

// queryPriceFacet loads the ordered price list once and derives range,
// median and histogram from it in Go.
func (s *ListingStore) queryPriceFacet(ctx context.Context, f search.Filters) (*storage.PriceRange, []storage.HistogramBucket, error) {
	query, args := buildPricesQuery(f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, nil, err
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	pr := &storage.PriceRange{}
	if len(prices) == 0 {
		return pr, nil, nil
	}

	lo, hi := prices[0], prices[len(prices)-1]
	median := percentile(prices, 0.5)

	loStr, hiStr, medStr := formatReal(lo), formatReal(hi), formatReal(median)
	pr.Min, pr.Max, pr.Median = &loStr, &hiStr, &medStr

	if hi <= lo {
		return pr, nil, nil
	}

	const bucketCount = 10
	width := (hi - lo) / bucketCount
	buckets := make([]storage.HistogramBucket, bucketCount)
	for i := range buckets {
		buckets[i] = storage.HistogramBucket{
			Lower: lo + float64(i)*width,
			Upper: lo + float64(i+1)*width,
		}
	}
	for _, p := range prices {
		i := int((p - lo) / width)
		if i >= bucketCount {
			i = bucketCount - 1 // the maximum falls on the last bucket's upper edge
		}
		buckets[i].Count++
	}
	return pr, buckets, nil
}

// percentile interpolates linearly on an ascending slice, matching
// PostgreSQL's PERCENTILE_CONT.
func percentile(ascending []float64, q float64) float64 {
	if len(ascending) == 1 {
		return ascending[0]
	}
	pos := q * float64(len(ascending)-1)
	i := int(pos)
	frac := pos - float64(i)
	if i+1 >= len(ascending) {
		return ascending[len(ascending)-1]
	}
	return ascending[i] + frac*(ascending[i+1]-ascending[i])
}

// SimilarListings has no embedding index in this backend; it returns recent
// listings of the same room type.
func (s *ListingStore) SimilarListings(ctx context.Context, listingID string, limit int) ([]types.Listing, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM listings WHERE id = ?)", listingID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("sqlite: check listing %s: %w", listingID, err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	query := "SELECT " + listingSelectColumns + ` FROM listings
		WHERE id <> ? AND room_type = (SELECT room_type FROM listings WHERE id = ?)
		ORDER BY listing_created_at DESC, id ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, listingID, listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: similar listings query: %w", err)
	}
	defer rows.Close()

	return scanListingRows(rows)
}
