package search

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// CursorVersion is the current keyset cursor format version.
const CursorVersion = 1

// KeysetCursor is an opaque pagination token identifying the resume point
// in a sorted result set. K holds the sort-key values of the last row of
// the previous page, in SortKeyColumns order; entries are string-or-nil so
// that numeric values survive JSON transport without precision loss.
type KeysetCursor struct {
	V  int       `json:"v"`
	S  Sort      `json:"s"`
	K  []*string `json:"k"`
	ID string    `json:"id"`
}

// CursorRow is the subset of a result row needed to build the next cursor.
// Numeric columns arrive as strings (scanned verbatim from the database) to
// preserve exact decimal precision; nil means the column was NULL.
type CursorRow struct {
	ID               string
	CreatedAt        time.Time
	RecommendedScore *string
	Price            *string
	AvgRating        *string
	ReviewCount      int
}

// CursorType discriminates the result of DecodeAny.
type CursorType int

const (
	CursorNone CursorType = iota
	CursorKeyset
	CursorLegacy
)

// DecodedCursor is the sum-type result of DecodeAny: exactly one of Keyset
// or Page is meaningful, selected by Type.
type DecodedCursor struct {
	Type   CursorType
	Keyset *KeysetCursor
	Page   int
}

// signedEnvelope wraps a cursor payload with its HMAC in signed mode.
type signedEnvelope struct {
	P string `json:"p"`
	M string `json:"m"`
}

// Codec encodes and decodes pagination cursors. With a non-empty secret it
// operates in signed mode: payloads are HMAC-SHA256 authenticated and any
// tampered or unsigned cursor decodes to nil. With an empty secret it runs
// in a deliberately permitted unsigned mode for environments without secret
// management.
type Codec struct {
	secret []byte
}

// NewCodec returns a Codec. An empty secret selects unsigned mode.
func NewCodec(secret string) *Codec {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Codec{secret: key}
}

// Signed reports whether the codec authenticates cursors.
func (c *Codec) Signed() bool {
	return len(c.secret) > 0
}

// EncodeKeyset serializes cursor to a URL-safe opaque string. The payload
// is canonical JSON {v,s,k,id}; in signed mode it is wrapped as
// {p: base64(payload), m: hex(HMAC-SHA256(payload))} before the final
// base64url pass. The output contains no '+', '/' or '=' characters.
func (c *Codec) EncodeKeyset(cursor KeysetCursor) string {
	payload, err := json.Marshal(cursor)
	if err != nil {
		// KeysetCursor contains only JSON-safe fields; Marshal cannot fail.
		return ""
	}

	if !c.Signed() {
		return base64.RawURLEncoding.EncodeToString(payload)
	}

	env := signedEnvelope{
		P: base64.StdEncoding.EncodeToString(payload),
		M: c.sign(payload),
	}
	wrapped, err := json.Marshal(env)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(wrapped)
}

// DecodeKeyset reverses EncodeKeyset. It returns nil — never an error — for
// anything that is not a currently valid keyset cursor: malformed base64 or
// JSON, HMAC mismatch, wrong version, unknown sort, empty id, key-count
// mismatch, or (when expected is non-empty) a sort mismatch. An invalid
// cursor must degrade to "start from the first page", not fail the request.
func (c *Codec) DecodeKeyset(s string, expected Sort) *KeysetCursor {
	payload := c.openPayload(s)
	if payload == nil {
		return nil
	}

	var cursor KeysetCursor
	if err := json.Unmarshal(payload, &cursor); err != nil {
		return nil
	}

	if cursor.V != CursorVersion {
		return nil
	}
	if !ValidSort(cursor.S) {
		return nil
	}
	if cursor.ID == "" {
		return nil
	}
	if len(cursor.K) != KeyCount(cursor.S) {
		return nil
	}
	if expected != "" && cursor.S != expected {
		return nil
	}

	return &cursor
}

// EncodeLegacy serializes an offset-pagination cursor {p: page}.
func (c *Codec) EncodeLegacy(page int) string {
	payload, _ := json.Marshal(map[string]int{"p": page})
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeLegacy decodes an offset cursor {p: page}, returning the page
// number or 0 when the string is not a valid legacy cursor. A payload
// containing a "v" key is rejected outright so a keyset cursor can never be
// misread as an offset. Non-numeric or non-positive pages are rejected.
// Legacy cursors predate signing and are never HMAC-wrapped.
func (c *Codec) DecodeLegacy(s string) int {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return 0
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return 0
	}
	if _, hasVersion := fields["v"]; hasVersion {
		return 0
	}

	pRaw, ok := fields["p"]
	if !ok {
		return 0
	}
	var page float64
	if err := json.Unmarshal(pRaw, &page); err != nil {
		return 0
	}
	if page <= 0 || page != math.Trunc(page) {
		return 0
	}
	return int(page)
}

// DecodeAny tries keyset first, then legacy. Keyset takes precedence so
// that, with keyset pagination live, a legacy-shaped string occurring by
// coincidence cannot hijack it; in practice the two formats are structurally
// distinguished by the "v" key.
func (c *Codec) DecodeAny(s string, expected Sort) DecodedCursor {
	if cursor := c.DecodeKeyset(s, expected); cursor != nil {
		return DecodedCursor{Type: CursorKeyset, Keyset: cursor}
	}
	if page := c.DecodeLegacy(s); page > 0 {
		return DecodedCursor{Type: CursorLegacy, Page: page}
	}
	return DecodedCursor{Type: CursorNone}
}

// BuildCursorFromRow projects the sort-mode-specific fields of row into a
// cursor. NULL column values are preserved as nil entries rather than
// coerced to defaults, so the continuation predicate can resume inside the
// NULLS LAST region.
func BuildCursorFromRow(row CursorRow, sort Sort) KeysetCursor {
	createdAt := row.CreatedAt.UTC().Format(time.RFC3339Nano)
	reviewCount := strconv.Itoa(row.ReviewCount)

	var k []*string
	switch sort {
	case SortNewest:
		k = []*string{&createdAt}
	case SortPriceAsc, SortPriceDesc:
		k = []*string{row.Price, &createdAt}
	case SortRating:
		k = []*string{row.AvgRating, &reviewCount, &createdAt}
	default: // SortRecommended
		k = []*string{row.RecommendedScore, &createdAt}
	}

	return KeysetCursor{
		V:  CursorVersion,
		S:  sort,
		K:  k,
		ID: row.ID,
	}
}

// ValidValues reports whether every non-nil key value parses as its
// column's kind. DecodeKeyset checks shape, not content; in unsigned mode a
// client can hand us a well-shaped cursor with garbage values, and those
// must degrade to the first page rather than fail a datastore cast.
func (c *KeysetCursor) ValidValues() bool {
	keys := SortKeyColumns(c.S)
	if len(c.K) != len(keys) {
		return false
	}
	for i, kc := range keys {
		v := c.K[i]
		if v == nil {
			if !kc.Nullable {
				return false
			}
			continue
		}
		switch kc.Kind {
		case KindInteger:
			if _, err := strconv.Atoi(*v); err != nil {
				return false
			}
		case KindTimestamp:
			if _, err := time.Parse(time.RFC3339Nano, *v); err != nil {
				return false
			}
		default:
			if _, err := strconv.ParseFloat(*v, 64); err != nil {
				return false
			}
		}
	}
	return true
}

// openPayload base64url-decodes s and, in signed mode, verifies and unwraps
// the HMAC envelope. Returns the raw cursor payload JSON, or nil when the
// string cannot be authenticated/decoded.
func (c *Codec) openPayload(s string) []byte {
	if s == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil
	}

	if !c.Signed() {
		return raw
	}

	var env signedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if env.P == "" || env.M == "" {
		return nil
	}
	payload, err := base64.StdEncoding.DecodeString(env.P)
	if err != nil {
		return nil
	}

	want, err := hex.DecodeString(env.M)
	if err != nil {
		return nil
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), want) {
		return nil
	}
	return payload
}

// sign returns the hex HMAC-SHA256 of payload under the codec secret.
func (c *Codec) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
