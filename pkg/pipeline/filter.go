package pipeline

import (
	"food-search-be/pkg/places"
	"food-search-be/pkg/postfilter"
)

// Filter names as reported in refine nudges.
const (
	FilterPrice   = "price"
	FilterReviews = "reviews"
	FilterOpenNow = "openNow"
)

func activeFilters(f BaseFilters) []string {
	var active []string
	if f.Price != nil && f.Price.Valid() {
		active = append(active, FilterPrice)
	}
	if f.MinReviews != nil && f.MinReviews.Valid() {
		active = append(active, FilterReviews)
	}
	if f.OpenNow {
		active = append(active, FilterOpenNow)
	}
	return active
}

// applyFilters keeps the candidates passing every active filter except skip.
func applyFilters(candidates []places.Candidate, f BaseFilters, skip string) []places.Candidate {
	kept := make([]places.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if skip != FilterPrice && f.Price != nil && !postfilter.PriceAllowed(c.PriceLevel, *f.Price) {
			continue
		}
		if skip != FilterReviews && !postfilter.ReviewsAllowed(c.UserRatingCount, f.MinReviews) {
			continue
		}
		if skip != FilterOpenNow && !postfilter.OpenNowAllowed(c.OpenNow, f.OpenNow) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// postFilter applies the filters. When they empty a non-empty result and
// exactly one active filter is responsible (dropping it alone brings
// candidates back) that filter is relaxed once and its name returned.
func postFilter(candidates []places.Candidate, f BaseFilters) ([]places.Candidate, string) {
	kept := applyFilters(candidates, f, "")
	if len(kept) > 0 || len(candidates) == 0 {
		return kept, ""
	}

	var (
		blocking string
		relaxed  []places.Candidate
	)
	for _, name := range activeFilters(f) {
		retry := applyFilters(candidates, f, name)
		if len(retry) == 0 {
			continue
		}
		if blocking != "" {
			return kept, ""
		}
		blocking, relaxed = name, retry
	}
	if blocking == "" {
		return kept, ""
	}
	return relaxed, blocking
}
