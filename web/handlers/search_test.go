package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomhaven/roomhaven/internal/engine"
	"github.com/roomhaven/roomhaven/internal/storage/sqlite"
	"github.com/roomhaven/roomhaven/pkg/types"
)

func newTestHandler(t *testing.T) *SearchHandler {
	t.Helper()
	store, err := sqlite.NewListingStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		price := fmt.Sprintf("%d", 80+i)
		l := &types.Listing{
			ID:          fmt.Sprintf("l-%d", i),
			Title:       fmt.Sprintf("Harbor Loft %d", i),
			Description: "bright loft with harbor view",
			RoomType:    types.RoomTypeEntirePlace,
			Price:       &price,
			Lat:         40.1,
			Lng:         -74.0,
			CreatedAt:   base.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.UpsertListing(ctx, l, []string{"wifi"}, nil, nil))
	}
	_, err = store.RefreshRecommendedScores(ctx)
	require.NoError(t, err)

	service := engine.NewSearchService(store, engine.Options{KeysetPagination: true, PageSize: 3})
	return NewSearchHandler(service)
}

func TestSearchHandlerOK(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v2/search?minLat=40.0&minLng=-74.2&maxLat=40.9&maxLng=-73.7&sort=newest", nil)
	w := httptest.NewRecorder()
	handler.Search(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp engine.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.List.Items, 3)
	assert.Equal(t, 5, resp.List.Total)
	assert.True(t, resp.List.HasNextPage)
	require.NotNil(t, resp.List.NextCursor)
	assert.Equal(t, "pins", resp.Meta.Mode)
	assert.NotEmpty(t, resp.Meta.QueryHash)

	// The emitted cursor pages through when echoed back.
	req = httptest.NewRequest(http.MethodGet,
		"/api/v2/search?minLat=40.0&minLng=-74.2&maxLat=40.9&maxLng=-73.7&sort=newest&cursor="+*resp.List.NextCursor, nil)
	w = httptest.NewRecorder()
	handler.Search(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var second engine.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Len(t, second.List.Items, 2)
	assert.NotEqual(t, resp.List.Items[0].ID, second.List.Items[0].ID)
}

func TestSearchHandlerBoundsRequired(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/search?q=loft", nil)
	w := httptest.NewRecorder()
	handler.Search(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.BoundsRequired)
	assert.NotEmpty(t, resp.Error)
}

func TestSearchHandlerValidationError(t *testing.T) {
	handler := newTestHandler(t)

	// Partial bounds: only minLat supplied.
	req := httptest.NewRequest(http.MethodGet, "/api/v2/search?minLat=40.0", nil)
	w := httptest.NewRecorder()
	handler.Search(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.BoundsRequired)
	assert.Equal(t, "bounds", resp.Field)
}

func TestSearchHandlerRepeatableParams(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v2/search?minLat=40.0&minLng=-74.2&maxLat=40.9&maxLng=-73.7&amenity=wifi&amenity=kitchen", nil)
	w := httptest.NewRecorder()
	handler.Search(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp engine.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// Fixtures carry wifi only; requiring kitchen as well matches nothing.
	assert.Empty(t, resp.List.Items)
	assert.Equal(t, 0, resp.List.Total)
}

func TestFacetsHandler(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v2/search/facets?minLat=40.0&minLng=-74.2&maxLat=40.9&maxLng=-73.7", nil)
	w := httptest.NewRecorder()
	handler.Facets(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Amenities map[string]int `json:"amenities"`
		RoomTypes map[string]int `json:"roomTypes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Amenities["wifi"])
	assert.Equal(t, 5, resp.RoomTypes[types.RoomTypeEntirePlace])
}

func TestSimilarHandler(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v2/listings/similar?id=l-0&limit=2", nil)
		w := httptest.NewRecorder()
		handler.Similar(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Items []types.Listing `json:"items"`
			Total int             `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Items, 2)
		assert.Equal(t, 2, resp.Total)
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v2/listings/similar", nil)
		w := httptest.NewRecorder()
		handler.Similar(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown listing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v2/listings/similar?id=nope", nil)
		w := httptest.NewRecorder()
		handler.Similar(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
