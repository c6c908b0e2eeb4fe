package search

import "strings"

// Filters is the request-scoped value object describing every active search
// constraint. It is derived once at the start of request handling and never
// mutated afterwards.
type Filters struct {
	// Bounds is the effective bounding box (already validated, derived and
	// clamped). Nil means the request carries no location context.
	Bounds *Bounds

	// PriceMin / PriceMax bound the nightly price. Nil means unbounded.
	PriceMin *float64
	PriceMax *float64

	// RoomType filters to a single room type ("entire_place",
	// "private_room", "shared_room"). Empty means no filter.
	RoomType string

	// Query is the normalized free-text query. Empty means no text filter.
	Query string

	// Amenities, HouseRules and Languages must all be present on a listing
	// for it to match (AND semantics within each dimension).
	Amenities  []string
	HouseRules []string
	Languages  []string
}

// HasQuery reports whether a non-blank text query is active.
func (f *Filters) HasQuery() bool {
	return strings.TrimSpace(f.Query) != ""
}
