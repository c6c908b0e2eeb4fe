package storage

import (
	"errors"

	"github.com/roomhaven/roomhaven/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSearchUnavailable indicates the search backend is failing or the
	// circuit breaker is open. Callers surface it as a generic "search
	// temporarily unavailable" condition without internal detail.
	ErrSearchUnavailable = errors.New("search temporarily unavailable")
)

// SearchPage is one page of listing results plus the pagination metadata
// the engine needs to build the response and the next cursor.
type SearchPage struct {
	// Items holds at most the requested limit of listings.
	Items []types.Listing

	// Total is the number of rows matching the filters across all pages.
	Total int

	// HasNextPage reports whether rows exist beyond this page.
	HasNextPage bool
}

// PriceRange summarizes the price distribution of the filtered result set.
type PriceRange struct {
	Min    *string `json:"min"`
	Max    *string `json:"max"`
	Median *string `json:"median"`
}

// HistogramBucket is one bar of the price histogram.
type HistogramBucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// FacetCounts answers, per facet value, "how many results would selecting
// this value yield if only this dimension's own constraint were removed".
type FacetCounts struct {
	Amenities      map[string]int    `json:"amenities"`
	HouseRules     map[string]int    `json:"houseRules"`
	RoomTypes      map[string]int    `json:"roomTypes"`
	PriceRange     *PriceRange       `json:"priceRanges"`
	PriceHistogram []HistogramBucket `json:"priceHistogram"`
}

// EmptyFacetCounts returns all-empty facet structures. Used when the
// request carries neither a query nor any location context: enumerating
// facet counts over the entire table is not a supported operation, so the
// datastore is never touched.
func EmptyFacetCounts() *FacetCounts {
	return &FacetCounts{
		Amenities:  map[string]int{},
		HouseRules: map[string]int{},
		RoomTypes:  map[string]int{},
		PriceRange: &PriceRange{},
	}
}

// Dimension identifies a facet dimension for the facet-exclusion rule: the
// count query for a dimension suppresses that dimension's own filter while
// keeping every other active filter.
type Dimension int

const (
	// DimNone excludes nothing (listing/map queries).
	DimNone Dimension = iota
	DimAmenities
	DimHouseRules
	DimRoomType
	DimPrice
)
