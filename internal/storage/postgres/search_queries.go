package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/internal/storage"
)

// listingSelectColumns is the canonical SELECT column list for listing
// queries. Numeric columns are cast to text so exact decimal precision
// survives the scan; it must match the scan order in scanListingRow.
const listingSelectColumns = `
	id, title, description, room_type,
	price::text, avg_rating::text, review_count, view_count,
	recommended_score::text, lat, lng, listing_created_at
`

// facetStatementTimeoutMillis caps runaway facet aggregates. It is emitted
// as a SQL literal: a compile-time constant is not user-influenced data, so
// parameterizing it would only widen the injection surface for no benefit.
const facetStatementTimeoutMillis = 5000

// condBuilder accumulates WHERE conditions and their ordinal parameters.
type condBuilder struct {
	conds []string
	args  []interface{}
}

// param binds a value and returns its 1-based placeholder ordinal.
func (b *condBuilder) param(v interface{}) int {
	b.args = append(b.args, v)
	return len(b.args)
}

func (b *condBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

// whereClause renders " WHERE ..." or "" when no condition is active.
func (b *condBuilder) whereClause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// filterDimensions is the declarative facet-exclusion table: each entry
// names the dimension its predicate belongs to, and applyFilters skips
// exactly the entry matching the dimension being counted. This keeps the
// filter assembly in one place instead of five hand-rolled variants.
var filterDimensions = []struct {
	dim   storage.Dimension
	apply func(b *condBuilder, f *search.Filters) (ftsParam *int)
}{
	{storage.DimNone, applyBoundsFilter},
	{storage.DimPrice, applyPriceFilter},
	{storage.DimRoomType, applyRoomTypeFilter},
	{storage.DimNone, applyQueryFilter},
	{storage.DimAmenities, applyAmenitiesFilter},
	{storage.DimHouseRules, applyHouseRulesFilter},
	{storage.DimNone, applyLanguagesFilter},
}

// applyFilters adds every active filter except the excluded dimension's
// own predicate. It returns the placeholder ordinal of the text-query
// parameter when one was bound (the order-by planner needs it).
func applyFilters(b *condBuilder, f *search.Filters, exclude storage.Dimension) *int {
	var ftsParam *int
	for _, fd := range filterDimensions {
		if fd.dim != storage.DimNone && fd.dim == exclude {
			continue
		}
		if p := fd.apply(b, f); p != nil {
			ftsParam = p
		}
	}
	return ftsParam
}

func applyBoundsFilter(b *condBuilder, f *search.Filters) *int {
	if f.Bounds == nil {
		return nil
	}
	b.add(fmt.Sprintf("l.lat >= $%d", b.param(f.Bounds.MinLat)))
	b.add(fmt.Sprintf("l.lat <= $%d", b.param(f.Bounds.MaxLat)))
	b.add(fmt.Sprintf("l.lng >= $%d", b.param(f.Bounds.MinLng)))
	b.add(fmt.Sprintf("l.lng <= $%d", b.param(f.Bounds.MaxLng)))
	return nil
}

func applyPriceFilter(b *condBuilder, f *search.Filters) *int {
	if f.PriceMin != nil {
		b.add(fmt.Sprintf("l.price >= $%d", b.param(*f.PriceMin)))
	}
	if f.PriceMax != nil {
		b.add(fmt.Sprintf("l.price <= $%d", b.param(*f.PriceMax)))
	}
	return nil
}

func applyRoomTypeFilter(b *condBuilder, f *search.Filters) *int {
	if f.RoomType == "" {
		return nil
	}
	b.add(fmt.Sprintf("l.room_type = $%d", b.param(f.RoomType)))
	return nil
}

// applyQueryFilter matches against the precomputed search vector with a
// normalized full-text operator — not LIKE — for stem/prefix correctness
// and index use.
func applyQueryFilter(b *condBuilder, f *search.Filters) *int {
	if !f.HasQuery() {
		return nil
	}
	n := b.param(strings.TrimSpace(f.Query))
	b.add(fmt.Sprintf("l.search_vector @@ websearch_to_tsquery('english', $%d)", n))
	return &n
}

func applyAmenitiesFilter(b *condBuilder, f *search.Filters) *int {
	applyAllOfFilter(b, "listing_amenities", "name", f.Amenities)
	return nil
}

func applyHouseRulesFilter(b *condBuilder, f *search.Filters) *int {
	applyAllOfFilter(b, "listing_house_rules", "name", f.HouseRules)
	return nil
}

func applyLanguagesFilter(b *condBuilder, f *search.Filters) *int {
	applyAllOfFilter(b, "listing_languages", "code", f.Languages)
	return nil
}

// applyAllOfFilter requires a listing to carry every requested value of a
// join-table dimension (AND semantics via grouped count).
func applyAllOfFilter(b *condBuilder, table, column string, values []string) {
	if len(values) == 0 {
		return
	}
	arr := b.param(pq.Array(values))
	count := b.param(len(values))
	b.add(fmt.Sprintf(
		"l.id IN (SELECT listing_id FROM %s WHERE %s = ANY($%d) GROUP BY listing_id HAVING COUNT(*) = $%d)",
		table, column, arr, count))
}

// castFor returns the SQL cast applied to a cursor value placeholder.
// Cursor values travel as strings; the cast restores the column type.
func castFor(kind search.ColumnKind) string {
	switch kind {
	case search.KindInteger:
		return "::integer"
	case search.KindTimestamp:
		return "::timestamptz"
	default:
		return "::numeric"
	}
}

// buildKeysetPredicate renders the compound "strictly after the cursor's
// key tuple" condition. A plain row-value comparison cannot express mixed
// sort directions or NULLS LAST, so the predicate is the expanded
// disjunction: for each key position, equality on all prior keys AND
// strictly-after on this one; the final disjunct ties break on id.
//
// NULL cursor values resume inside the NULLS LAST region: their position
// contributes "col IS NULL" to the equality prefix and no strictly-after
// disjunct (nothing sorts after NULL within one key).
func buildKeysetPredicate(b *condBuilder, sort search.Sort, cursor *search.KeysetCursor) (string, error) {
	keys := search.SortKeyColumns(sort)
	if len(cursor.K) != len(keys) {
		return "", fmt.Errorf("cursor key count %d does not match sort %q", len(cursor.K), sort)
	}

	var disjuncts []string
	var equals []string

	for i, kc := range keys {
		v := cursor.K[i]
		if v == nil {
			if !kc.Nullable {
				return "", fmt.Errorf("null cursor value for non-nullable column %s", kc.Column)
			}
			equals = append(equals, "l."+kc.Column+" IS NULL")
			continue
		}

		ref := fmt.Sprintf("$%d%s", b.param(*v), castFor(kc.Kind))

		op := ">"
		if kc.Desc {
			op = "<"
		}
		after := fmt.Sprintf("l.%s %s %s", kc.Column, op, ref)
		if kc.Nullable {
			after = fmt.Sprintf("(%s OR l.%s IS NULL)", after, kc.Column)
		}

		clause := strings.Join(append(append([]string{}, equals...), after), " AND ")
		disjuncts = append(disjuncts, "("+clause+")")

		equals = append(equals, fmt.Sprintf("l.%s = %s", kc.Column, ref))
	}

	idRef := fmt.Sprintf("l.id > $%d", b.param(cursor.ID))
	final := strings.Join(append(append([]string{}, equals...), idRef), " AND ")
	disjuncts = append(disjuncts, "("+final+")")

	return "(" + strings.Join(disjuncts, " OR ") + ")", nil
}

// buildFirstPageQuery builds the keyset first-page listing query. One row
// beyond the limit is fetched to detect a next page without a second
// round-trip.
func buildFirstPageQuery(f search.Filters, sort search.Sort, limit int) (string, []interface{}) {
	b := &condBuilder{}
	ftsParam := applyFilters(b, &f, storage.DimNone)
	orderBy := search.BuildOrderByClause(sort, ftsParam, true)
	limitParam := b.param(limit + 1)

	query := "SELECT " + listingSelectColumns + " FROM listings l" +
		b.whereClause() +
		" ORDER BY " + orderBy +
		fmt.Sprintf(" LIMIT $%d", limitParam)
	return query, b.args
}

// buildAfterCursorQuery builds the keyset continuation query: first-page
// filters plus the strictly-after predicate, same keyset ordering.
func buildAfterCursorQuery(f search.Filters, sort search.Sort, cursor *search.KeysetCursor, limit int) (string, []interface{}, error) {
	b := &condBuilder{}
	ftsParam := applyFilters(b, &f, storage.DimNone)

	predicate, err := buildKeysetPredicate(b, sort, cursor)
	if err != nil {
		return "", nil, err
	}
	b.add(predicate)

	orderBy := search.BuildOrderByClause(sort, ftsParam, true)
	limitParam := b.param(limit + 1)

	query := "SELECT " + listingSelectColumns + " FROM listings l" +
		b.whereClause() +
		" ORDER BY " + orderBy +
		fmt.Sprintf(" LIMIT $%d", limitParam)
	return query, b.args, nil
}

// buildOffsetQuery builds the legacy offset listing query. Unlike the
// keyset queries it may rank by text relevance: with no persisted cursor to
// keep consistent, re-ranking between pages is acceptable.
func buildOffsetQuery(f search.Filters, sort search.Sort, page, limit int) (string, []interface{}) {
	b := &condBuilder{}
	ftsParam := applyFilters(b, &f, storage.DimNone)
	orderBy := search.BuildOrderByClause(sort, ftsParam, false)

	limitParam := b.param(limit)
	offsetParam := b.param((page - 1) * limit)

	query := "SELECT " + listingSelectColumns + " FROM listings l" +
		b.whereClause() +
		" ORDER BY " + orderBy +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", limitParam, offsetParam)
	return query, b.args
}

// buildCountQuery counts all rows matching the filters.
func buildCountQuery(f search.Filters) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimNone)
	return "SELECT COUNT(*) FROM listings l" + b.whereClause(), b.args
}

// buildMapPinsQuery builds the map/pin query: the lightweight marker subset
// of the filtered result set, newest first.
func buildMapPinsQuery(f search.Filters, limit int) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimNone)
	limitParam := b.param(limit)

	query := "SELECT l.id, l.title, l.lat, l.lng, l.price::text FROM listings l" +
		b.whereClause() +
		fmt.Sprintf(" ORDER BY listing_created_at DESC, id ASC LIMIT $%d", limitParam)
	return query, b.args
}

// buildAmenitiesFacetQuery counts listings per amenity with every filter
// except the amenities filter itself applied.
func buildAmenitiesFacetQuery(f search.Filters) (string, []interface{}) {
	return buildJoinFacetQuery(f, "listing_amenities", "name", storage.DimAmenities)
}

// buildHouseRulesFacetQuery counts listings per house rule, excluding the
// house-rules filter.
func buildHouseRulesFacetQuery(f search.Filters) (string, []interface{}) {
	return buildJoinFacetQuery(f, "listing_house_rules", "name", storage.DimHouseRules)
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

// buildRoomTypesFacetQuery counts listings per room type, excluding the
// room-type filter.
func buildRoomTypesFacetQuery(f search.Filters) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimRoomType)

	query := "SELECT l.room_type, COUNT(*) FROM listings l" +
		b.whereClause() +
		" GROUP BY l.room_type ORDER BY l.room_type"
	return query, b.args
}

// buildPriceRangeFacetQuery returns min/max/median over the filtered set,
// excluding the price filter. Values are cast to text for precision.
func buildPriceRangeFacetQuery(f search.Filters) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimPrice)
	b.add("l.price IS NOT NULL")

	query := "SELECT MIN(l.price)::text, MAX(l.price)::text," +
		" (PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY l.price))::text" +
		" FROM listings l" + b.whereClause()
	return query, b.args
}

// priceHistogramBuckets is the fixed bar count of the price histogram.
const priceHistogramBuckets = 10

// buildPriceHistogramQuery buckets prices over [min, max], excluding the
// price filter. width_bucket assigns max itself to bucket n+1; the caller
// folds it into the last bucket.
func buildPriceHistogramQuery(f search.Filters, min, max float64) (string, []interface{}) {
	b := &condBuilder{}
	applyFilters(b, &f, storage.DimPrice)
	b.add("l.price IS NOT NULL")

	minParam := b.param(min)
	maxParam := b.param(max)

	query := fmt.Sprintf(
		"SELECT width_bucket(l.price, $%d, $%d, %d) AS bucket, COUNT(*) FROM listings l",
		minParam, maxParam, priceHistogramBuckets) +
		b.whereClause() +
		" GROUP BY bucket ORDER BY bucket"
	return query, b.args
}
