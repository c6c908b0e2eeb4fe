package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/internal/storage"
	"github.com/roomhaven/roomhaven/pkg/types"
)

const (
	// defaultPageSize is the listing page size when Options leaves it zero.
	defaultPageSize = 20

	// pinModeThreshold selects the map payload mode: below this many
	// markers the response mode is "pins", otherwise "geojson".
	pinModeThreshold = 50

	// mapPinLimit caps how many markers one search response carries.
	mapPinLimit = 500
)

// Options is the read-only configuration injected into the search service
// at construction. There is no module-level flag state; both pagination
// paths are testable by constructing two services.
type Options struct {
	// KeysetPagination selects cursor-based pagination. When false the
	// service always uses offset pagination and emits legacy cursors,
	// regardless of what the client sends.
	KeysetPagination bool

	// CursorSecret enables HMAC-signed cursors when non-empty.
	CursorSecret string

	// PageSize is the listing page size (default 20).
	PageSize int

	// CenterRadiusKm is the bounding-box radius derived from a bare center
	// point (default search.DefaultCenterRadiusKm).
	CenterRadiusKm float64
}

// SearchService orchestrates one search request end-to-end: parameter
// validation, bounds resolution, pagination path selection, the list+map
// fetch, and response shaping.
type SearchService struct {
	provider   storage.SearchProvider
	similarity storage.SimilarityProvider
	codec      *search.Codec
	opts       Options
}

// NewSearchService creates a search service over the given provider. When
// the provider also implements storage.SimilarityProvider (both bundled
// backends do), similar-listings lookups are served through it.
func NewSearchService(provider storage.SearchProvider, opts Options) *SearchService {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.CenterRadiusKm <= 0 {
		opts.CenterRadiusKm = search.DefaultCenterRadiusKm
	}
	s := &SearchService{
		provider: provider,
		codec:    search.NewCodec(opts.CursorSecret),
		opts:     opts,
	}
	if sim, ok := provider.(storage.SimilarityProvider); ok {
		s.similarity = sim
	}
	return s
}

// SearchRequest carries the raw, unvalidated request parameters.
type SearchRequest struct {
	Query  string
	Sort   string
	Cursor string

	// Explicit bounding box; all four must be present together.
	MinLat, MinLng, MaxLat, MaxLng string

	// Center point (used when no explicit bounds are supplied).
	Lat, Lng string

	PriceMin, PriceMax string
	RoomType           string

	Amenities  []string
	HouseRules []string
	Languages  []string
}

// SearchMeta is the response envelope metadata.
type SearchMeta struct {
	QueryHash   string    `json:"queryHash"`
	GeneratedAt time.Time `json:"generatedAt"`
	Mode        string    `json:"mode"`
}

// ListResult is the list portion of a search response.
type ListResult struct {
	Items       []types.Listing `json:"items"`
	NextCursor  *string         `json:"nextCursor"`
	Total       int             `json:"total"`
	HasNextPage bool            `json:"hasNextPage"`
	Page        int             `json:"page,omitempty"`
	PageSize    int             `json:"pageSize"`
}

// MapResult is the map portion of a search response. GeoJSON is always
// present; Pins only in pins mode.
type MapResult struct {
	GeoJSON types.FeatureCollection `json:"geojson"`
	Pins    []types.MapPin          `json:"pins,omitempty"`
}

// SearchResponse is the full search payload.
type SearchResponse struct {
	Meta SearchMeta `json:"meta"`
	List ListResult `json:"list"`
	Map  MapResult  `json:"map"`
}

// Search runs one search request. Validation errors come back as
// *search.ValidationError; datastore failures as a single wrapped error
// (list and map are fetched as a unit, either failing fails the response).
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	filters, sort, err := s.resolveFilters(req)
	if err != nil {
		return nil, err
	}

	page, err := s.fetchPage(ctx, req, filters, sort)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to fetch search results: %w", err)
	}

	pins, err := s.provider.MapPins(ctx, *filters, mapPinLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to fetch search results: %w", err)
	}

	mode := "geojson"
	result := MapResult{GeoJSON: types.NewFeatureCollection(pins)}
	if len(pins) < pinModeThreshold {
		mode = "pins"
		result.Pins = pins
	}

	resp := &SearchResponse{
		Meta: SearchMeta{
			QueryHash:   queryHash(filters, sort),
			GeneratedAt: time.Now().UTC(),
			Mode:        mode,
		},
		List: *page,
		Map:  result,
	}
	return resp, nil
}

// Facets computes the facet counts for a request. A query-less, bounds-less
// browse returns all-empty structures without touching the datastore.
func (s *SearchService) Facets(ctx context.Context, req SearchRequest) (*storage.FacetCounts, error) {
	filters, _, err := s.resolveFilters(req)
	if err != nil {
		return nil, err
	}

	if !filters.HasQuery() && filters.Bounds == nil {
		return storage.EmptyFacetCounts(), nil
	}

	facets, err := s.provider.FacetCounts(ctx, *filters)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to fetch facet counts: %w", err)
	}
	return facets, nil
}

// SimilarListings returns listings similar to the given one.
func (s *SearchService) SimilarListings(ctx context.Context, listingID string, limit int) ([]types.Listing, error) {
	if listingID == "" {
		return nil, &search.ValidationError{Field: "id", Message: "listing id is required"}
	}
	if s.similarity == nil {
		return nil, storage.ErrNotFound
	}
	if limit <= 0 || limit > s.opts.PageSize {
		limit = s.opts.PageSize
	}
	return s.similarity.SimilarListings(ctx, listingID, limit)
}

// fetchPage selects the pagination path and runs the listing query.
//
// Keyset enabled: a decodable, value-valid keyset cursor with matching sort
// continues after its key tuple; anything else (absent, legacy, stale,
// tampered, sort-mismatched) silently starts from the first page.
// Keyset disabled: always offset pagination; a legacy cursor selects the
// page, anything else means page 1.
func (s *SearchService) fetchPage(ctx context.Context, req SearchRequest, filters *search.Filters, sort search.Sort) (*ListResult, error) {
	limit := s.opts.PageSize

	if !s.opts.KeysetPagination {
		page := 1
		if req.Cursor != "" {
			if decoded := s.codec.DecodeAny(req.Cursor, sort); decoded.Type == search.CursorLegacy {
				page = decoded.Page
			}
		}

		result, err := s.provider.SearchOffset(ctx, *filters, sort, page, limit)
		if err != nil {
			return nil, err
		}

		var next *string
		if result.HasNextPage {
			c := s.codec.EncodeLegacy(page + 1)
			next = &c
		}
		return &ListResult{
			Items:       result.Items,
			NextCursor:  next,
			Total:       result.Total,
			HasNextPage: result.HasNextPage,
			Page:        page,
			PageSize:    limit,
		}, nil
	}

	var cursor *search.KeysetCursor
	if req.Cursor != "" {
		if c := s.codec.DecodeKeyset(req.Cursor, sort); c != nil && c.ValidValues() {
			cursor = c
		}
	}

	var result *storage.SearchPage
	var err error
	if cursor != nil {
		result, err = s.provider.SearchAfterCursor(ctx, *filters, sort, cursor, limit)
	} else {
		result, err = s.provider.SearchFirstPage(ctx, *filters, sort, limit)
	}
	if err != nil {
		return nil, err
	}

	var next *string
	if result.HasNextPage && len(result.Items) > 0 {
		last := result.Items[len(result.Items)-1]
		nextCursor := search.BuildCursorFromRow(search.CursorRow{
			ID:               last.ID,
			CreatedAt:        last.CreatedAt,
			RecommendedScore: last.RecommendedScore,
			Price:            last.Price,
			AvgRating:        last.AvgRating,
			ReviewCount:      last.ReviewCount,
		}, sort)
		c := s.codec.EncodeKeyset(nextCursor)
		next = &c
	}

	return &ListResult{
		Items:       result.Items,
		NextCursor:  next,
		Total:       result.Total,
		HasNextPage: result.HasNextPage,
		PageSize:    limit,
	}, nil
}

// resolveFilters validates the raw request parameters into the immutable
// per-request filter set. The bounds pipeline runs here: explicit bounds are
// validated and clamped, a bare center point derives a radius box, and a
// text query without any location context is rejected before any datastore
// access.
func (s *SearchService) resolveFilters(req SearchRequest) (*search.Filters, search.Sort, error) {
	sort := search.ParseSort(req.Sort)

	explicit, err := parseExplicitBounds(req)
	if err != nil {
		return nil, sort, err
	}
	centerLat, err := parseOptionalFloat("lat", req.Lat)
	if err != nil {
		return nil, sort, err
	}
	centerLng, err := parseOptionalFloat("lng", req.Lng)
	if err != nil {
		return nil, sort, err
	}

	bounds, err := search.ResolveBounds(explicit, centerLat, centerLng, s.opts.CenterRadiusKm)
	if err != nil {
		return nil, sort, err
	}

	priceMin, err := parseOptionalFloat("priceMin", req.PriceMin)
	if err != nil {
		return nil, sort, err
	}
	priceMax, err := parseOptionalFloat("priceMax", req.PriceMax)
	if err != nil {
		return nil, sort, err
	}

	filters := &search.Filters{
		Bounds:     bounds,
		PriceMin:   priceMin,
		PriceMax:   priceMax,
		RoomType:   strings.TrimSpace(req.RoomType),
		Query:      strings.TrimSpace(req.Query),
		Amenities:  cleanValues(req.Amenities),
		HouseRules: cleanValues(req.HouseRules),
		Languages:  cleanValues(req.Languages),
	}

	if filters.HasQuery() && filters.Bounds == nil {
		return nil, sort, search.ErrBoundsRequired
	}

	return filters, sort, nil
}

// parseExplicitBounds returns the explicit bounding box, nil when none of
// the four coordinates are present, or a validation error when only some
// are.
func parseExplicitBounds(req SearchRequest) (*search.Bounds, error) {
	raw := []string{req.MinLat, req.MinLng, req.MaxLat, req.MaxLng}
	present := 0
	for _, v := range raw {
		if strings.TrimSpace(v) != "" {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present != len(raw) {
		return nil, &search.ValidationError{
			Field:   "bounds",
			Message: "bounds require all of minLat, minLng, maxLat, maxLng",
		}
	}

	fields := []string{"minLat", "minLng", "maxLat", "maxLng"}
	vals := make([]float64, len(raw))
	for i, v := range raw {
		f, err := parseFiniteFloat(fields[i], v)
		if err != nil {
			return nil, err
		}
		vals[i] = f
	}
	return &search.Bounds{MinLat: vals[0], MinLng: vals[1], MaxLat: vals[2], MaxLng: vals[3]}, nil
}

func parseOptionalFloat(field, raw string) (*float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := parseFiniteFloat(field, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseFiniteFloat(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &search.ValidationError{Field: field, Message: "must be a finite number"}
	}
	return v, nil
}

// cleanValues trims and drops blank entries, preserving order.
func cleanValues(values []string) []string {
	var out []string
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// queryHash fingerprints the effective filters and sort so clients and
// caches can tell two result sets apart without comparing full parameter
// lists.
func queryHash(f *search.Filters, sort search.Sort) string {
	var b strings.Builder
	b.WriteString(string(sort))
	b.WriteByte('|')
	b.WriteString(f.Query)
	b.WriteByte('|')
	b.WriteString(f.RoomType)
	b.WriteByte('|')
	if f.Bounds != nil {
		fmt.Fprintf(&b, "%g,%g,%g,%g", f.Bounds.MinLat, f.Bounds.MinLng, f.Bounds.MaxLat, f.Bounds.MaxLng)
	}
	b.WriteByte('|')
	if f.PriceMin != nil {
		fmt.Fprintf(&b, "%g", *f.PriceMin)
	}
	b.WriteByte('|')
	if f.PriceMax != nil {
		fmt.Fprintf(&b, "%g", *f.PriceMax)
	}
	for _, group := range [][]string{f.Amenities, f.HouseRules, f.Languages} {
		b.WriteByte('|')
		b.WriteString(strings.Join(group, ","))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
