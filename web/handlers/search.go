package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/roomhaven/roomhaven/internal/engine"
)

// SearchHandler serves the v2 search API endpoints.
type SearchHandler struct {
	service *engine.SearchService
}

// NewSearchHandler creates a new SearchHandler over the search service.
func NewSearchHandler(service *engine.SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search handles GET /api/v2/search.
//
// Query parameters:
//   - q                                  — free-text query (requires bounds or lat/lng)
//   - sort                               — recommended | newest | price_asc | price_desc | rating
//   - cursor                             — opaque pagination cursor from a previous response
//   - minLat, minLng, maxLat, maxLng     — explicit bounding box (all four together)
//   - lat, lng                           — center point; derives a bounding box when no explicit bounds
//   - priceMin, priceMax                 — nightly price range
//   - roomType                           — entire_place | private_room | shared_room
//   - amenity, houseRule, language       — repeatable; AND semantics within each
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req := searchRequestFromQuery(r.URL.Query())

	resp, err := h.service.Search(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Facets handles GET /api/v2/search/facets. Same parameters as Search;
// the cursor and sort are ignored.
func (h *SearchHandler) Facets(w http.ResponseWriter, r *http.Request) {
	req := searchRequestFromQuery(r.URL.Query())

	facets, err := h.service.Facets(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, facets)
}

// Similar handles GET /api/v2/listings/similar?id=<listing>&limit=<n>.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	limit := parseInt(r.URL.Query().Get("limit"), 0)

	items, err := h.service.SimilarListings(r.Context(), id, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// searchRequestFromQuery maps URL query parameters onto the raw engine
// request. No validation happens here; the engine owns it.
func searchRequestFromQuery(q url.Values) engine.SearchRequest {
	return engine.SearchRequest{
		Query:      q.Get("q"),
		Sort:       q.Get("sort"),
		Cursor:     q.Get("cursor"),
		MinLat:     q.Get("minLat"),
		MinLng:     q.Get("minLng"),
		MaxLat:     q.Get("maxLat"),
		MaxLng:     q.Get("maxLng"),
		Lat:        q.Get("lat"),
		Lng:        q.Get("lng"),
		PriceMin:   q.Get("priceMin"),
		PriceMax:   q.Get("priceMax"),
		RoomType:   q.Get("roomType"),
		Amenities:  q["amenity"],
		HouseRules: q["houseRule"],
		Languages:  q["language"],
	}
}

// parseInt parses s, returning defaultValue for empty or invalid input.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}
