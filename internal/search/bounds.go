package search

import (
	"fmt"
	"math"
)

const (
	// DefaultCenterRadiusKm is the bounding-box half-width derived from a
	// bare center point when no explicit bounds are supplied.
	DefaultCenterRadiusKm = 10.0

	// maxSpanDegrees is the largest allowed bounding-box span on either
	// axis. Oversized boxes (a map zoomed out to the whole world) are
	// silently clamped around their center rather than rejected.
	maxSpanDegrees = 5.0

	// kmPerDegreeLat is the approximate surface distance of one degree of
	// latitude.
	kmPerDegreeLat = 111.32
)

// Bounds is a geographic bounding box in WGS84 degrees.
type Bounds struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

// ValidateBounds checks that every coordinate is finite and inside the
// valid lat/lng ranges, returning a *ValidationError otherwise. Swapped
// min/max pairs are normalized in place rather than rejected.
func ValidateBounds(b *Bounds) error {
	coords := map[string]float64{
		"minLat": b.MinLat, "maxLat": b.MaxLat,
		"minLng": b.MinLng, "maxLng": b.MaxLng,
	}
	for field, v := range coords {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: field, Message: "coordinate must be a finite number"}
		}
	}
	if b.MinLat < -90 || b.MaxLat > 90 {
		return &ValidationError{Field: "bounds", Message: fmt.Sprintf("latitude out of range [-90, 90]: %g..%g", b.MinLat, b.MaxLat)}
	}
	if b.MinLng < -180 || b.MaxLng > 180 {
		return &ValidationError{Field: "bounds", Message: fmt.Sprintf("longitude out of range [-180, 180]: %g..%g", b.MinLng, b.MaxLng)}
	}

	if b.MinLat > b.MaxLat {
		b.MinLat, b.MaxLat = b.MaxLat, b.MinLat
	}
	if b.MinLng > b.MaxLng {
		b.MinLng, b.MaxLng = b.MaxLng, b.MinLng
	}
	return nil
}

// DeriveBounds builds a bounding box of roughly radiusKm around a center
// point. The longitude delta widens with latitude; near the poles the
// cosine is floored to keep the box finite.
func DeriveBounds(lat, lng, radiusKm float64) Bounds {
	latDelta := radiusKm / kmPerDegreeLat

	cos := math.Cos(lat * math.Pi / 180.0)
	if cos < 0.01 {
		cos = 0.01
	}
	lngDelta := radiusKm / (kmPerDegreeLat * cos)

	return Bounds{
		MinLat: math.Max(lat-latDelta, -90),
		MaxLat: math.Min(lat+latDelta, 90),
		MinLng: math.Max(lng-lngDelta, -180),
		MaxLng: math.Min(lng+lngDelta, 180),
	}
}

// ClampBounds shrinks an oversized box to maxSpanDegrees per axis, centered
// on the original box's midpoint. Legitimate but sloppy inputs (whole-world
// viewports) still succeed instead of erroring.
func ClampBounds(b Bounds) Bounds {
	if span := b.MaxLat - b.MinLat; span > maxSpanDegrees {
		mid := (b.MinLat + b.MaxLat) / 2
		b.MinLat = mid - maxSpanDegrees/2
		b.MaxLat = mid + maxSpanDegrees/2
	}
	if span := b.MaxLng - b.MinLng; span > maxSpanDegrees {
		mid := (b.MinLng + b.MaxLng) / 2
		b.MinLng = mid - maxSpanDegrees/2
		b.MaxLng = mid + maxSpanDegrees/2
	}
	return b
}

// ResolveBounds produces the effective bounding box for a request:
// explicit bounds are validated and clamped; otherwise a box is derived
// from the center point when one is present. Returns nil when the request
// carries no location context at all.
func ResolveBounds(explicit *Bounds, centerLat, centerLng *float64, radiusKm float64) (*Bounds, error) {
	if explicit != nil {
		if err := ValidateBounds(explicit); err != nil {
			return nil, err
		}
		clamped := ClampBounds(*explicit)
		return &clamped, nil
	}

	if centerLat != nil && centerLng != nil {
		for field, v := range map[string]float64{"lat": *centerLat, "lng": *centerLng} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &ValidationError{Field: field, Message: "coordinate must be a finite number"}
			}
		}
		if *centerLat < -90 || *centerLat > 90 || *centerLng < -180 || *centerLng > 180 {
			return nil, &ValidationError{Field: "lat/lng", Message: "center point out of range"}
		}
		if radiusKm <= 0 {
			radiusKm = DefaultCenterRadiusKm
		}
		derived := DeriveBounds(*centerLat, *centerLng, radiusKm)
		return &derived, nil
	}

	return nil, nil
}
