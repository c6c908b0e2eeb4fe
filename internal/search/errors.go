package search

// ValidationError reports a malformed or unsafe request parameter. It is
// produced before any datastore access and maps to a 400-class response at
// the HTTP layer.
type ValidationError struct {
	// Field names the offending parameter (may be empty for cross-field
	// conditions such as missing location context).
	Field string

	// Message is the human-readable reason.
	Message string

	// BoundsRequired flags the specific "free-text query without any
	// location context" rejection so callers can surface it distinctly.
	BoundsRequired bool
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ErrBoundsRequired rejects a free-text search that has neither explicit
// bounds nor a derivable center point. An unbounded full-text scan over the
// whole listings table is treated as a denial-of-service vector, so the
// request never reaches the datastore.
var ErrBoundsRequired = &ValidationError{
	Message:        "a text query requires map bounds or a center point",
	BoundsRequired: true,
}
