package postfilter

// OpenNowAllowed reports whether a candidate survives the "open now" filter.
// Unknown opening state is kept.
func OpenNowAllowed(openNow *bool, wantOpen bool) bool {
	if !wantOpen || openNow == nil {
		return true
	}
	return *openNow
}
