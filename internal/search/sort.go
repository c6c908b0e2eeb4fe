// Package search implements the ranking and keyset-pagination core for
// listing search: the recommended-score function, the opaque cursor codec,
// the ORDER BY planner, and the request-scoped filter/bounds value types.
//
// Everything in this package is pure and stateless between requests; the
// storage backends (internal/storage/...) consume these types to build SQL.
package search

// Sort identifies one of the fixed listing sort modes.
type Sort string

const (
	SortRecommended Sort = "recommended"
	SortNewest      Sort = "newest"
	SortPriceAsc    Sort = "price_asc"
	SortPriceDesc   Sort = "price_desc"
	SortRating      Sort = "rating"
)

// ValidSort reports whether s is one of the recognized sort modes.
func ValidSort(s Sort) bool {
	switch s {
	case SortRecommended, SortNewest, SortPriceAsc, SortPriceDesc, SortRating:
		return true
	}
	return false
}

// ParseSort maps a raw request parameter to a Sort, defaulting to
// SortRecommended for empty or unrecognized input.
func ParseSort(raw string) Sort {
	s := Sort(raw)
	if !ValidSort(s) {
		return SortRecommended
	}
	return s
}

// ColumnKind describes how a sort-key column's cursor value (always
// transported as a string) must be interpreted when rebuilding a keyset
// predicate.
type ColumnKind int

const (
	KindNumeric ColumnKind = iota
	KindInteger
	KindTimestamp
)

// KeyColumn is one column of a sort mode's keyset tuple.
type KeyColumn struct {
	// Column is the column name on the listings table.
	Column string

	// Desc is true when the column sorts descending.
	Desc bool

	// Nullable is true when the column may hold NULL. Nullable columns
	// always sort NULLS LAST regardless of direction.
	Nullable bool

	// Kind selects the cast/parse applied to the cursor's string value.
	Kind ColumnKind
}

// SortKeyColumns returns the ordered keyset columns for a sort mode,
// excluding the final id tie-break (which every mode appends).
//
// The lengths here define the expected cursor key counts:
// recommended=2, newest=1, price_asc=2, price_desc=2, rating=3.
func SortKeyColumns(sort Sort) []KeyColumn {
	switch sort {
	case SortNewest:
		return []KeyColumn{
			{Column: "listing_created_at", Desc: true, Kind: KindTimestamp},
		}
	case SortPriceAsc:
		return []KeyColumn{
			{Column: "price", Nullable: true, Kind: KindNumeric},
			{Column: "listing_created_at", Desc: true, Kind: KindTimestamp},
		}
	case SortPriceDesc:
		return []KeyColumn{
			{Column: "price", Desc: true, Nullable: true, Kind: KindNumeric},
			{Column: "listing_created_at", Desc: true, Kind: KindTimestamp},
		}
	case SortRating:
		return []KeyColumn{
			{Column: "avg_rating", Desc: true, Nullable: true, Kind: KindNumeric},
			{Column: "review_count", Desc: true, Kind: KindInteger},
			{Column: "listing_created_at", Desc: true, Kind: KindTimestamp},
		}
	default: // SortRecommended
		return []KeyColumn{
			{Column: "recommended_score", Desc: true, Nullable: true, Kind: KindNumeric},
			{Column: "listing_created_at", Desc: true, Kind: KindTimestamp},
		}
	}
}

// KeyCount returns the number of cursor key values expected for a sort mode.
func KeyCount(sort Sort) int {
	return len(SortKeyColumns(sort))
}
