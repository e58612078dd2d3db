package postfilter

// ReviewBucket is the coarse "well reviewed" bucket extracted from the query.
type ReviewBucket string

const (
	ReviewsC25  ReviewBucket = "C25"
	ReviewsC100 ReviewBucket = "C100"
	ReviewsC500 ReviewBucket = "C500"
)

var reviewThresholds = map[ReviewBucket]int{
	ReviewsC25:  25,
	ReviewsC100: 100,
	ReviewsC500: 500,
}

// Valid reports whether the bucket is one of the known buckets.
func (b ReviewBucket) Valid() bool {
	_, ok := reviewThresholds[b]
	return ok
}

// MinReviews returns the minimum review count for bucket and whether the bucket is known.
func MinReviews(bucket ReviewBucket) (int, bool) {
	n, ok := reviewThresholds[bucket]
	return n, ok
}

// ReviewsAllowed reports whether a candidate with the given review count
// survives the review filter. A nil bucket means no filter; a nil count is
// unknown data and always passes.
func ReviewsAllowed(count *int, bucket *ReviewBucket) bool {
	if bucket == nil || count == nil {
		return true
	}
	min, ok := reviewThresholds[*bucket]
	if !ok {
		return true
	}
	return *count >= min
}
