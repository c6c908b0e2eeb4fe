// Package types defines the core domain types shared across the RoomHaven
// search service: listings, map pins and GeoJSON payloads.
package types

import "time"

// Room type classification values for Listing.RoomType.
const (
	RoomTypeEntirePlace = "entire_place"
	RoomTypePrivateRoom = "private_room"
	RoomTypeSharedRoom  = "shared_room"
)

// Listing is one search-result row. Price, AvgRating and RecommendedScore
// are numeric columns scanned as strings: cursor construction must preserve
// their exact decimal representation, and float64 round-trips would not.
// Nil marks a NULL column.
type Listing struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	RoomType         string     `json:"roomType"`
	Price            *string    `json:"price"`
	AvgRating        *string    `json:"avgRating"`
	ReviewCount      int        `json:"reviewCount"`
	ViewCount        int        `json:"viewCount"`
	RecommendedScore *string    `json:"recommendedScore,omitempty"`
	Lat              float64    `json:"lat"`
	Lng              float64    `json:"lng"`
	CreatedAt        time.Time  `json:"listingCreatedAt"`
}

// MapPin is the lightweight marker representation used when the map result
// set is small enough to render individual markers.
type MapPin struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Price *string `json:"price"`
}

// FeatureCollection is a minimal GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a minimal GeoJSON Feature with a Point geometry.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   PointGeometry          `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// PointGeometry is a GeoJSON Point ([lng, lat] coordinate order).
type PointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewFeatureCollection builds a FeatureCollection from map pins. GeoJSON
// mandates [lng, lat] coordinate order.
func NewFeatureCollection(pins []MapPin) FeatureCollection {
	features := make([]Feature, 0, len(pins))
	for _, p := range pins {
		props := map[string]interface{}{
			"id":    p.ID,
			"title": p.Title,
		}
		if p.Price != nil {
			props["price"] = *p.Price
		}
		features = append(features, Feature{
			Type: "Feature",
			Geometry: PointGeometry{
				Type:        "Point",
				Coordinates: [2]float64{p.Lng, p.Lat},
			},
			Properties: props,
		})
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}
