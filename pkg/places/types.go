// Package places finds candidate food venues through external providers.
package places

import (
	"context"
	"fmt"

	"food-search-be/pkg/failure"
)

// ErrUnavailable wraps every transport or provider failure.
var ErrUnavailable = fmt.Errorf("places: %w", failure.ErrExternalFetch)

// Route is the search strategy chosen by the intent stage.
type Route string

const (
	RouteTextSearch Route = "TEXTSEARCH"
	RouteNearby     Route = "NEARBY"
	RouteLandmark   Route = "LANDMARK"
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Query is a strategy-specific search built by the route mapping stage.
type Query struct {
	Route        Route   `json:"route"`
	TextQuery    string  `json:"textQuery,omitempty"`
	Keyword      string  `json:"keyword,omitempty"`
	Center       *LatLng `json:"center,omitempty"`
	RadiusMeters int     `json:"radiusMeters,omitempty"`
	Language     string  `json:"language,omitempty"`
	Region       string  `json:"region,omitempty"`
	OpenNow      bool    `json:"openNow,omitempty"`
	MaxResults   int     `json:"maxResults,omitempty"`
}

// Candidate is one venue returned by a provider. Pointer fields are nil when
// the provider did not report the value.
type Candidate struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Address         string   `json:"address,omitempty"`
	Location        LatLng   `json:"location"`
	PriceLevel      *int     `json:"priceLevel,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
	UserRatingCount *int     `json:"userRatingCount,omitempty"`
	OpenNow         *bool    `json:"openNow,omitempty"`
	Types           []string `json:"types,omitempty"`
	MapsURL         string   `json:"mapsUrl,omitempty"`
}

// Searcher runs a vendor search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Candidate, error)
}

// Geocoder resolves a landmark or address to a coordinate. found is false
// when the provider answered but knows no such place.
type Geocoder interface {
	Geocode(ctx context.Context, text, language string) (loc LatLng, label string, found bool, err error)
}
