package sqlite

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/internal/storage"
)

// listingSelectColumns is the canonical SELECT column list for listing
// queries; it must match the scan order in scanListingRows.
const listingSelectColumns = `
	id, title, description, room_type,
	price, avg_rating, review_count, view_count,
	recommended_score, lat, lng, listing_created_at
`

// condBuilder accumulates WHERE conditions and their positional arguments.
type condBuilder struct {
	conds []string
	args  []interface{}
}

func (b *condBuilder) param(v interface{}) {
	b.args = append(b.args, v)
}

func (b *condBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *condBuilder) whereClause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// filterDimensions mirrors the PostgreSQL facet-exclusion table: counting a
// dimension skips exactly that dimension's own predicate.
var filterDimensions = []struct {
	dim   storage.Dimension
	apply func(b *condBuilder, f *search.Filters)
}{
	{storage.DimNone, applyBoundsFilter},
	{storage.DimPrice, applyPriceFilter},
	{storage.DimRoomType, applyRoomTypeFilter},
	{storage.DimNone, applyQueryFilter},
	{storage.DimAmenities, applyAmenitiesFilter},
	{storage.DimHouseRules, applyHouseRulesFilter},
	{storage.DimNone, applyLanguagesFilter},
}

func applyFilters(b *condBuilder, f *search.Filters, exclude storage.Dimension) {
	for _, fd := range filterDimensions {
		if fd.dim != storage.DimNone && fd.dim == exclude {
			continue
		}
		fd.apply(b, f)
	}
}

func applyBoundsFilter(b *condBuilder, f *search.Filters) {
	if f.Bounds == nil {
		return
	}
	b.add("l.lat >= ?")
	b.param(f.Bounds.MinLat)
	b.add("l.lat <= ?")
	b.param(f.Bounds.MaxLat)
	b.add("l.lng >= ?")
	b.param(f.Bounds.MinLng)
	b.add("l.lng <= ?")
	b.param(f.Bounds.MaxLng)
}

func applyPriceFilter(b *condBuilder, f *search.Filters) {
	if f.PriceMin != nil {
		b.add("l.price >= ?")
		b.param(*f.PriceMin)
	}
	if f.PriceMax != nil {
		b.add("l.price <= ?")
		b.param(*f.PriceMax)
	}
}

func applyRoomTypeFilter(b *condBuilder, f *search.Filters) {
	if f.RoomType == "" {
		return
	}
	b.add("l.room_type = ?")
	b.param(f.RoomType)
}

// applyQueryFilter matches title and description with LIKE. SQLite has no
// tsvector; LIKE is close enough for development and keeps tests hermetic.
func applyQueryFilter(b *condBuilder, f *search.Filters) {
	if !f.HasQuery() {
		return
	}
	pattern := "%" + strings.TrimSpace(f.Query) + "%"
	b.add("(l.title LIKE ? OR l.description LIKE ?)")
	b.param(pattern)
	b.param(pattern)
}

func applyAmenitiesFilter(b *condBuilder, f *search.Filters) {
	applyAllOfFilter(b, "listing_amenities", "name", f.Amenities)
}

func applyHouseRulesFilter(b *condBuilder, f *search.Filters) {
	applyAllOfFilter(b, "listing_house_rules", "name", f.HouseRules)
}

func applyLanguagesFilter(b *condBuilder, f *search.Filters) {
	applyAllOfFilter(b, "listing_languages", "code", f.Languages)
}

// applyAllOfFilter requires a listing to carry every requested value of a
// join-table dimension (AND semantics via grouped count).
func applyAllOfFilter(b *condBuilder, table, column string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	for _, v := range values {
		b.param(v)
	}
	b.add(fmt.Sprintf(
		"l.id IN (SELECT listing_id FROM %s WHERE %s IN (%s) GROUP BY listing_id HAVING COUNT(*) = ?)",
		table, column, placeholders))
	b.param(len(values))
}

// parseKeyValue converts a cursor's string-typed key value to the Go type
// bound for the matching column. Timestamps become unix nanoseconds to match
// the storage representation.
func parseKeyValue(kind search.ColumnKind, raw string) (interface{}, error) {
	switch kind {
	case search.KindInteger:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer cursor value %q: %w", raw, err)
		}
		return n, nil
	case search.KindTimestamp:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp cursor value %q: %w", raw, err)
		}
		return t.UTC().UnixNano(), nil
	default:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric cursor value %q: %w", raw, err)
		}
		return v, nil
	}
}

// buildKeysetPredicate renders the compound "strictly after the cursor's
// key tuple" condition, structurally identical to the PostgreSQL variant:
// an expanded disjunction with per-position equality prefixes, NULLS LAST
// semantics for nullable keys, and the id tie-break as the final disjunct.
func buildKeysetPredicate(b *condBuilder, sort search.Sort, cursor *search.KeysetCursor) (string, error) {
	keys := search.SortKeyColumns(sort)
	if len(cursor.K) != len(keys) {
		return "", fmt.Errorf("cursor key count %d does not match sort %q", len(cursor.K), sort)
	}

	var disjuncts []string
	var equals []string
	var equalArgs []interface{}

	for i, kc := range keys {
		v := cursor.K[i]
		if v == nil {
			if !kc.Nullable {
				return "", fmt.Errorf("null cursor value for non-nullable column %s", kc.Column)
			}
			equals = append(equals, "l."+kc.Column+" IS NULL")
			continue
		}

		typed, err := parseKeyValue(kc.Kind, *v)
		if err != nil {
			return "", err
		}

		op := ">"
		if kc.Desc {
			op = "<"
		}
		after := fmt.Sprintf("l.%s %s ?", kc.Column, op)
		if kc.Nullable {
			after = fmt.Sprintf("(%s OR l.%s IS NULL)", after, kc.Column)
		}

		clause := strings.Join(append(append([]string{}, equals...), after), " AND ")
		disjuncts = append(disjuncts, "("+clause+")")
		b.args = append(b.args, equalArgs...)
		b.param(typed)

		equals = append(equals, fmt.Sprintf("l.%s = ?", kc.Column))
		equalArgs = append(equalArgs, typed)
	}

	final := strings.Join(append(append([]string{}, equals...), "l.id > ?"), " AND ")
	disjuncts = append(disjuncts, "("+final+")")
	b.args = append(b.args, equalArgs...)
	b.param(cursor.ID)

	return "(" + strings.Join(disjuncts, " OR ") + ")", nil
}

// buildFirstPageQuery builds the keyset first-page listing query, fetching
// one row beyond the limit to detect a next page.
func buildFirstPageQuery(f search.Filters, sort search.Sort, limit int) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimNone)
	orderBy := search.BuildOrderByClause(sort, nil, true)
	b.param(limit + 1)

	query := "SELECT " + listingSelectColumns + " FROM listings l" +
		b.whereClause() +
		" ORDER BY " + orderBy +
		" LIMIT ?"
	return query, b.args
}

// buildAfterCursorQuery builds the keyset continuation query.
//
// The keyset predicate binds arguments in clause order, which is why it is
// rendered after the filters and before the limit.
func buildAfterCursorQuery(f search.Filters, sort search.Sort, cursor *search.KeysetCursor, limit int) (string, []interface{}, error) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimNone)

	predicate, err := buildKeysetPredicate(b, sort, cursor)
	if err != nil {
		return "", nil, err
	}
	b.add(predicate)

	orderBy := search.BuildOrderByClause(sort, nil, true)
	b.param(limit + 1)

	query := "SELECT " + listingSelectColumns + " FROM listings l" +
		b.whereClause() +
		" ORDER BY " + orderBy +
		" LIMIT ?"
	return query, b.args, nil
}

// buildOffsetQuery builds the legacy offset listing query. This backend has
// no relevance ranking, so the ORDER BY matches the keyset one.
func buildOffsetQuery(f search.Filters, sort search.Sort, page, limit int) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimNone)
	orderBy := search.BuildOrderByClause(sort, nil, true)

	b.param(limit)
	b.param((page - 1) * limit)

	query := "SELECT " + listingSelectColumns + " FROM listings l" +
		b.whereClause() +
		" ORDER BY " + orderBy +
		" LIMIT ? OFFSET ?"
	return query, b.args
}

// buildCountQuery counts all rows matching the filters.
func buildCountQuery(f search.Filters) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimNone)
	return "SELECT COUNT(*) FROM listings l" + b.whereClause(), b.args
}

// buildMapPinsQuery builds the lightweight map marker query.
func buildMapPinsQuery(f search.Filters, limit int) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimNone)
	b.param(limit)

	query := "SELECT l.id, l.title, l.lat, l.lng, l.price FROM listings l" +
		b.whereClause() +
		" ORDER BY listing_created_at DESC, id ASC LIMIT ?"
	return query, b.args
}

func buildJoinFacetQuery(f search.Filters, table, column string, dim storage.Dimension) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, dim)

	query := fmt.Sprintf(
		"SELECT d.%s, COUNT(DISTINCT d.listing_id) FROM %s d JOIN listings l ON l.id = d.listing_id",
		column, table) +
		b.whereClause() +
		fmt.Sprintf(" GROUP BY d.%s ORDER BY d.%s", column, column)
	return query, b.args
}

func buildRoomTypesFacetQuery(f search.Filters) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimRoomType)

	query := "SELECT l.room_type, COUNT(*) FROM listings l" +
		b.whereClause() +
		" GROUP BY l.room_type ORDER BY l.room_type"
	return query, b.args
}

// buildPricesQuery selects the ordered price list of the filtered set,
// excluding the price filter. Range, median and histogram are derived from
// it in Go; SQLite has no PERCENTILE_CONT or width_bucket.
func buildPricesQuery(f search.Filters) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimPrice)
	b.add("l.price IS NOT NULL")

	query := "SELECT l.price FROM listings l" +
		b.whereClause() +
		" ORDER BY l.price ASC"
	return query, b.args
}
