package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/internal/storage"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	// BoundsRequired flags the "text query without location context"
	// rejection so clients can prompt for a map area instead of showing a
	// generic validation message.
	BoundsRequired bool `json:"boundsRequired,omitempty"`

	// Field names the offending request parameter, when known.
	Field string `json:"field,omitempty"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing to do but log.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError maps an engine/storage error to the API error taxonomy:
// validation errors are 400s with their specific reason, unavailable
// backends are 503s, missing resources 404s, and everything else is a
// generic 500 with no internal detail exposed.
func respondError(w http.ResponseWriter, err error) {
	var verr *search.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:          verr.Message,
			Code:           http.StatusText(http.StatusBadRequest),
			BoundsRequired: verr.BoundsRequired,
			Field:          verr.Field,
		})
	case errors.Is(err, storage.ErrSearchUnavailable):
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "search temporarily unavailable",
			Code:  http.StatusText(http.StatusServiceUnavailable),
		})
	case errors.Is(err, storage.ErrNotFound):
		respondJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "not found",
			Code:  http.StatusText(http.StatusNotFound),
		})
	default:
		log.Printf("handlers: request failed: %v", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to fetch search results",
			Code:  http.StatusText(http.StatusInternalServerError),
		})
	}
}
