package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/internal/storage"
	"github.com/roomhaven/roomhaven/internal/storage/sqlite"
	"github.com/roomhaven/roomhaven/pkg/types"
)

// testBounds covers every fixture listing seeded by seedListings.
var testBoundsRequest = SearchRequest{
	MinLat: "40.0", MinLng: "-74.2", MaxLat: "40.9", MaxLng: "-73.7",
}

func newTestStore(t *testing.T) *sqlite.ListingStore {
	t.Helper()
	store, err := sqlite.NewListingStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestService(t *testing.T, store *sqlite.ListingStore, opts Options) *SearchService {
	t.Helper()
	return NewSearchService(store, opts)
}

// seedListings inserts n listings inside testBoundsRequest, newest first by
// ascending id, and refreshes the recommended scores.
func seedListings(t *testing.T, store *sqlite.ListingStore, n int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < n; i++ {
		price := fmt.Sprintf("%d", 50+i)
		rating := "4.5"
		l := &types.Listing{
			ID:          fmt.Sprintf("l-%03d", i),
			Title:       fmt.Sprintf("Listing %03d", i),
			Description: "a cozy place near the park",
			RoomType:    types.RoomTypeEntirePlace,
			Price:       &price,
			AvgRating:   &rating,
			ReviewCount: i % 7,
			ViewCount:   i * 3,
			Lat:         40.1 + float64(i)*0.001,
			Lng:         -74.0 + float64(i)*0.001,
			CreatedAt:   base.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.UpsertListing(ctx, l, []string{"wifi"}, nil, nil))
	}

	_, err := store.RefreshRecommendedScores(context.Background())
	require.NoError(t, err)
}

func boundedRequest(mutate func(*SearchRequest)) SearchRequest {
	req := testBoundsRequest
	if mutate != nil {
		mutate(&req)
	}
	return req
}

func TestSearchKeysetPaginationWalk(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 45)
	service := newTestService(t, store, Options{KeysetPagination: true, PageSize: 20})

	ctx := context.Background()
	req := boundedRequest(func(r *SearchRequest) { r.Sort = "newest" })

	seen := map[string]bool{}
	var pageSizes []int

	for page := 0; ; page++ {
		require.Less(t, page, 10, "pagination did not terminate")

		resp, err := service.Search(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 45, resp.List.Total)
		assert.Equal(t, 20, resp.List.PageSize)
		assert.Zero(t, resp.List.Page, "keyset pagination carries no page number")
		pageSizes = append(pageSizes, len(resp.List.Items))

		var prev time.Time
		for i, item := range resp.List.Items {
			assert.False(t, seen[item.ID], "listing %s appeared twice", item.ID)
			seen[item.ID] = true
			if i > 0 {
				assert.False(t, item.CreatedAt.After(prev), "page not in newest-first order")
			}
			prev = item.CreatedAt
		}

		if resp.List.NextCursor == nil {
			assert.False(t, resp.List.HasNextPage)
			break
		}
		assert.True(t, resp.List.HasNextPage)
		req.Cursor = *resp.List.NextCursor
	}

	assert.Equal(t, []int{20, 20, 5}, pageSizes)
	assert.Len(t, seen, 45)
}

func TestSearchKeysetPriceSortWithNulls(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// Four priced listings and three without a price. Under price_asc the
	// NULL prices sort last, and the cursor must be able to resume inside
	// the NULL tail.
	prices := []*string{
		strPointer("80"), strPointer("120"), strPointer("95.50"), strPointer("60"),
		nil, nil, nil,
	}
	for i, p := range prices {
		l := &types.Listing{
			ID:        fmt.Sprintf("p-%d", i),
			Title:     fmt.Sprintf("Priced %d", i),
			RoomType:  types.RoomTypePrivateRoom,
			Price:     p,
			Lat:       40.2,
			Lng:       -74.0,
			CreatedAt: base.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.UpsertListing(ctx, l, nil, nil, nil))
	}

	service := newTestService(t, store, Options{KeysetPagination: true, PageSize: 3})
	req := boundedRequest(func(r *SearchRequest) { r.Sort = "price_asc" })

	var order []string
	for {
		resp, err := service.Search(context.Background(), req)
		require.NoError(t, err)
		for _, item := range resp.List.Items {
			order = append(order, item.ID)
		}
		if resp.List.NextCursor == nil {
			break
		}
		req.Cursor = *resp.List.NextCursor
	}

	require.Len(t, order, 7)
	// Ascending by price: 60, 80, 95.50, 120, then the NULL tail newest
	// first (p-4, p-5, p-6 by created_at desc).
	assert.Equal(t, []string{"p-3", "p-0", "p-2", "p-1", "p-4", "p-5", "p-6"}, order)
}

func TestSearchOffsetFallback(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 30)
	service := newTestService(t, store, Options{KeysetPagination: false, PageSize: 20})

	ctx := context.Background()
	req := boundedRequest(func(r *SearchRequest) { r.Sort = "newest" })

	first, err := service.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.List.Page)
	assert.Len(t, first.List.Items, 20)
	assert.True(t, first.List.HasNextPage)
	require.NotNil(t, first.List.NextCursor)

	// The fallback path emits legacy page cursors, not keyset cursors.
	codec := search.NewCodec("")
	assert.Equal(t, 2, codec.DecodeLegacy(*first.List.NextCursor))

	req.Cursor = *first.List.NextCursor
	second, err := service.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, second.List.Page)
	assert.Len(t, second.List.Items, 10)
	assert.False(t, second.List.HasNextPage)
	assert.Nil(t, second.List.NextCursor)

	assert.NotEqual(t, first.List.Items[0].ID, second.List.Items[0].ID)
}

func TestSearchInvalidCursorStartsOver(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 25)

	ctx := context.Background()
	signed := newTestService(t, store, Options{KeysetPagination: true, PageSize: 20, CursorSecret: "secret"})
	unsigned := newTestService(t, store, Options{KeysetPagination: true, PageSize: 20})

	baseline, err := signed.Search(ctx, boundedRequest(nil))
	require.NoError(t, err)
	require.NotEmpty(t, baseline.List.Items)

	// An unsigned cursor handed to a signing service fails authentication.
	foreign, err := unsigned.Search(ctx, boundedRequest(nil))
	require.NoError(t, err)
	require.NotNil(t, foreign.List.NextCursor)

	cursors := []string{
		"garbage",
		"eyJ2IjoyfQ", // wrong version
		*foreign.List.NextCursor,
	}
	for _, cursor := range cursors {
		resp, err := signed.Search(ctx, boundedRequest(func(r *SearchRequest) { r.Cursor = cursor }))
		require.NoError(t, err, "cursor %q must degrade, not fail", cursor)
		assert.Equal(t, baseline.List.Items[0].ID, resp.List.Items[0].ID,
			"cursor %q must restart from the first page", cursor)
	}
}

func TestSearchSortMismatchedCursorStartsOver(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 25)
	service := newTestService(t, store, Options{KeysetPagination: true, PageSize: 10})
	ctx := context.Background()

	newest, err := service.Search(ctx, boundedRequest(func(r *SearchRequest) { r.Sort = "newest" }))
	require.NoError(t, err)
	require.NotNil(t, newest.List.NextCursor)

	// Replaying a newest cursor under the rating sort silently starts the
	// rating result set from its first page.
	resp, err := service.Search(ctx, boundedRequest(func(r *SearchRequest) {
		r.Sort = "rating"
		r.Cursor = *newest.List.NextCursor
	}))
	require.NoError(t, err)
	assert.Len(t, resp.List.Items, 10)
}

func TestSearchBoundsRequired(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 5)
	service := newTestService(t, store, Options{KeysetPagination: true})

	_, err := service.Search(context.Background(), SearchRequest{Query: "cozy"})
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrBoundsRequired)

	// With a center point the same query succeeds: bounds are derived.
	resp, err := service.Search(context.Background(), SearchRequest{
		Query: "cozy", Lat: "40.1", Lng: "-74.0",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.List.Items)
}

func TestSearchValidationErrors(t *testing.T) {
	store := newTestStore(t)
	service := newTestService(t, store, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"partial bounds", SearchRequest{MinLat: "40.0", MaxLat: "40.9"}},
		{"non-numeric bound", SearchRequest{MinLat: "a", MinLng: "0", MaxLat: "1", MaxLng: "1"}},
		{"non-finite price", boundedRequest(func(r *SearchRequest) { r.PriceMin = "NaN" })},
		{"latitude out of range", SearchRequest{MinLat: "-95", MinLng: "0", MaxLat: "1", MaxLng: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Search(ctx, tt.req)
			require.Error(t, err)
			var verr *search.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestSearchOversizedBoundsClamped(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 5)
	service := newTestService(t, store, Options{KeysetPagination: true})

	// A whole-world viewport is clamped around its center, not rejected.
	resp, err := service.Search(context.Background(), SearchRequest{
		MinLat: "-80", MinLng: "-170", MaxLat: "80", MaxLng: "170",
	})
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestSearchMapModes(t *testing.T) {
	ctx := context.Background()

	t.Run("few results use pins mode", func(t *testing.T) {
		store := newTestStore(t)
		seedListings(t, store, 10)
		service := newTestService(t, store, Options{KeysetPagination: true})

		resp, err := service.Search(ctx, boundedRequest(nil))
		require.NoError(t, err)
		assert.Equal(t, "pins", resp.Meta.Mode)
		assert.Len(t, resp.Map.Pins, 10)
		assert.Len(t, resp.Map.GeoJSON.Features, 10)
		assert.Equal(t, "FeatureCollection", resp.Map.GeoJSON.Type)
	})

	t.Run("many results use geojson mode", func(t *testing.T) {
		store := newTestStore(t)
		seedListings(t, store, 60)
		service := newTestService(t, store, Options{KeysetPagination: true})

		resp, err := service.Search(ctx, boundedRequest(nil))
		require.NoError(t, err)
		assert.Equal(t, "geojson", resp.Meta.Mode)
		assert.Nil(t, resp.Map.Pins)
		assert.Len(t, resp.Map.GeoJSON.Features, 60)
	})
}

func TestSearchAllOfFilterSemantics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	fixtures := []struct {
		id        string
		amenities []string
	}{
		{"a-both", []string{"wifi", "kitchen"}},
		{"a-wifi", []string{"wifi"}},
		{"a-kitchen", []string{"kitchen"}},
		{"a-none", nil},
	}
	for i, f := range fixtures {
		l := &types.Listing{
			ID: f.id, Title: f.id, RoomType: types.RoomTypeEntirePlace,
			Lat: 40.2, Lng: -74.0, CreatedAt: base.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.UpsertListing(ctx, l, f.amenities, nil, nil))
	}

	service := newTestService(t, store, Options{KeysetPagination: true})
	resp, err := service.Search(ctx, boundedRequest(func(r *SearchRequest) {
		r.Amenities = []string{"wifi", "kitchen"}
	}))
	require.NoError(t, err)

	require.Len(t, resp.List.Items, 1, "AND semantics: only the listing with both amenities matches")
	assert.Equal(t, "a-both", resp.List.Items[0].ID)
}

func TestFacetsShortCircuit(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 10)
	service := newTestService(t, store, Options{})
	ctx := context.Background()

	// No query and no location context: all-empty structures, no counting.
	facets, err := service.Facets(ctx, SearchRequest{})
	require.NoError(t, err)
	assert.Empty(t, facets.Amenities)
	assert.Empty(t, facets.RoomTypes)
	require.NotNil(t, facets.PriceRange)
	assert.Nil(t, facets.PriceRange.Min)

	// With bounds the real counts come back.
	facets, err = service.Facets(ctx, boundedRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, 10, facets.Amenities["wifi"])
	assert.Equal(t, 10, facets.RoomTypes[types.RoomTypeEntirePlace])
	require.NotNil(t, facets.PriceRange.Min)
	assert.Equal(t, "50", *facets.PriceRange.Min)
	assert.Equal(t, "59", *facets.PriceRange.Max)
	assert.NotEmpty(t, facets.PriceHistogram)
}

func TestFacetExclusionEndToEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	roomTypes := []string{
		types.RoomTypeEntirePlace, types.RoomTypeEntirePlace, types.RoomTypePrivateRoom,
	}
	for i, rt := range roomTypes {
		l := &types.Listing{
			ID: fmt.Sprintf("f-%d", i), Title: "facet fixture", RoomType: rt,
			Lat: 40.2, Lng: -74.0, CreatedAt: base.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.UpsertListing(ctx, l, nil, nil, nil))
	}

	service := newTestService(t, store, Options{})

	// Filtering on entire_place must still count private_room: the room
	// type dimension ignores its own filter.
	facets, err := service.Facets(ctx, boundedRequest(func(r *SearchRequest) {
		r.RoomType = types.RoomTypeEntirePlace
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, facets.RoomTypes[types.RoomTypeEntirePlace])
	assert.Equal(t, 1, facets.RoomTypes[types.RoomTypePrivateRoom])
}

func TestSimilarListings(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 8)
	service := newTestService(t, store, Options{PageSize: 5})
	ctx := context.Background()

	t.Run("missing id", func(t *testing.T) {
		_, err := service.SimilarListings(ctx, "", 5)
		var verr *search.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("unknown listing", func(t *testing.T) {
		_, err := service.SimilarListings(ctx, "no-such-listing", 5)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("returns similar listings", func(t *testing.T) {
		items, err := service.SimilarListings(ctx, "l-000", 5)
		require.NoError(t, err)
		assert.NotEmpty(t, items)
		assert.LessOrEqual(t, len(items), 5)
		for _, item := range items {
			assert.NotEqual(t, "l-000", item.ID, "the reference listing is excluded")
			assert.Equal(t, types.RoomTypeEntirePlace, item.RoomType)
		}
	})

	t.Run("limit clamps to page size", func(t *testing.T) {
		items, err := service.SimilarListings(ctx, "l-000", 1000)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(items), 5)
	})
}

func TestQueryHashStability(t *testing.T) {
	store := newTestStore(t)
	seedListings(t, store, 3)
	service := newTestService(t, store, Options{})
	ctx := context.Background()

	a, err := service.Search(ctx, boundedRequest(nil))
	require.NoError(t, err)
	b, err := service.Search(ctx, boundedRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, a.Meta.QueryHash, b.Meta.QueryHash, "same filters, same fingerprint")
	assert.Len(t, a.Meta.QueryHash, 16)

	c, err := service.Search(ctx, boundedRequest(func(r *SearchRequest) { r.RoomType = "private_room" }))
	require.NoError(t, err)
	assert.NotEqual(t, a.Meta.QueryHash, c.Meta.QueryHash, "different filters, different fingerprint")
}

func strPointer(s string) *string {
	return &s
}
