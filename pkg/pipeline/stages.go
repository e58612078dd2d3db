package pipeline

import (
	"food-search-be/pkg/failure"
	"food-search-be/pkg/places"
	"food-search-be/pkg/postfilter"
)

// Stage names, recorded as keys of RequestState.StageResults.
const (
	StageGate        = "gate"
	StageIntent      = "intent"
	StageBaseFilters = "base_filters"
	StageRouteMapper = "route_mapper"
	StageGeocode     = failure.StageGeocode
	StageFetch       = failure.StageFetch
	StagePostFilter  = "post_filter"
	StageNarration   = "narration"
)

// GateVerdict classifies whether the input is a food query at all.
type GateVerdict string

const (
	GateYes       GateVerdict = "YES"
	GateNo        GateVerdict = "NO"
	GateUncertain GateVerdict = "UNCERTAIN"
)

type GateResult struct {
	Verdict  GateVerdict `json:"verdict" validate:"required,oneof=YES NO UNCERTAIN"`
	Language string      `json:"language,omitempty" validate:"omitempty,max=16"`
	Reason   string      `json:"reason,omitempty"`
}

type IntentResult struct {
	Route     places.Route `json:"route" validate:"required,oneof=TEXTSEARCH NEARBY LANDMARK"`
	FoodQuery string       `json:"foodQuery,omitempty" validate:"max=200"`
	Landmark  string       `json:"landmark,omitempty" validate:"max=200"`
	Area      string       `json:"area,omitempty" validate:"max=200"`
}

type BaseFilters struct {
	Language   string                   `json:"language,omitempty" validate:"omitempty,max=16"`
	OpenNow    bool                     `json:"openNow"`
	Price      *postfilter.PriceIntent  `json:"price,omitempty" validate:"omitempty,oneof=CHEAP MID EXPENSIVE"`
	MinReviews *postfilter.ReviewBucket `json:"minReviews,omitempty" validate:"omitempty,oneof=C25 C100 C500"`
}

type RouteMapping struct {
	TextQuery    string `json:"textQuery" validate:"required,max=200"`
	RadiusMeters int    `json:"radiusMeters,omitempty" validate:"omitempty,min=100,max=50000"`
}

type GeocodeResult struct {
	Landmark string        `json:"landmark"`
	Label    string        `json:"label,omitempty"`
	Found    bool          `json:"found"`
	Location places.LatLng `json:"location"`
}

type FetchResult struct {
	Query places.Query `json:"query"`
	Count int          `json:"count"`
}

type PostFilterResult struct {
	Kept    int    `json:"kept"`
	Dropped int    `json:"dropped"`
	Relaxed string `json:"relaxed,omitempty"`
	// Thresholds the filters applied, before any relaxation.
	PriceLevels []int `json:"priceLevels,omitempty"`
	MinReviews  int   `json:"minReviews,omitempty"`

	Candidates []places.Candidate `json:"candidates"`
}

type Narration struct {
	Message         string `json:"message" validate:"required,max=2000"`
	SuggestedAction string `json:"suggestedAction,omitempty" validate:"max=200"`
}
