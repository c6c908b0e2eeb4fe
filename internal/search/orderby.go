package search

import (
	"fmt"
	"strings"
)

// BuildOrderByClause returns the ORDER BY column list for a sort mode,
// always terminated by the unique "id ASC" tie-break. Nullable sort columns
// carry NULLS LAST so NULL values sort after every real value in both
// directions, which the keyset continuation predicates rely on.
//
// A full-text relevance term is prepended as the primary key only when
// ftsParam is non-nil AND useKeyset is false. Relevance rank is
// query-relative, not a stored column, so it is not a stable total order
// across pages: a keyset cursor cannot carry it, and keyset pagination
// therefore always orders by the plain column list even when a text query
// is active. Offset pagination has no persisted cursor to keep consistent
// and may re-rank freely.
//
// When ftsParam is nil the clause is identical for both pagination modes.
func BuildOrderByClause(sort Sort, ftsParam *int, useKeyset bool) string {
	var parts []string

	if ftsParam != nil && !useKeyset {
		parts = append(parts, fmt.Sprintf(
			"ts_rank_cd(search_vector, websearch_to_tsquery('english', $%d)) DESC", *ftsParam))
	}

	for _, kc := range SortKeyColumns(sort) {
		dir := "ASC"
		if kc.Desc {
			dir = "DESC"
		}
		clause := kc.Column + " " + dir
		if kc.Nullable {
			clause += " NULLS LAST"
		}
		parts = append(parts, clause)
	}

	parts = append(parts, "id ASC")
	return strings.Join(parts, ", ")
}
