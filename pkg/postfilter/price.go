package postfilter

// PriceIntent is the coarse price bucket extracted from the user's query.
type PriceIntent string

const (
	PriceCheap     PriceIntent = "CHEAP"
	PriceMid       PriceIntent = "MID"
	PriceExpensive PriceIntent = "EXPENSIVE"
)

// priceLevels maps each intent to the raw vendor price levels it accepts.
// Loaded once, never mutated.
var priceLevels = map[PriceIntent]map[int]struct{}{
	PriceCheap:     {1: {}},
	PriceMid:       {2: {}},
	PriceExpensive: {3: {}, 4: {}},
}

// Valid reports whether the intent is one of the known buckets.
func (p PriceIntent) Valid() bool {
	_, ok := priceLevels[p]
	return ok
}

// AllowedPriceLevels returns the raw levels accepted by intent, in ascending order.
func AllowedPriceLevels(intent PriceIntent) []int {
	levels := make([]int, 0, 2)
	for level := 1; level <= 4; level++ {
		if _, ok := priceLevels[intent][level]; ok {
			levels = append(levels, level)
		}
	}
	return levels
}

// PriceAllowed reports whether a candidate with the given price level survives
// the price filter. A nil level is unknown data and always passes, as does an
// empty or unrecognised intent.
func PriceAllowed(level *int, intent PriceIntent) bool {
	if level == nil {
		return true
	}
	allowed, ok := priceLevels[intent]
	if !ok {
		return true
	}
	_, ok = allowed[*level]
	return ok
}
