package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrickmn/go-cache"
)

const DefaultGeoapifyBaseURL = "https://api.geoapify.com/v1"

// GeoapifyGeocoder implements Geocoder with the Geoapify geocoding API.
// Answers, including "not found", are cached.
type GeoapifyGeocoder struct {
	apiKey  string
	baseURL string
	client  *retryablehttp.Client
	cache   *cache.Cache
}

var _ Geocoder = (*GeoapifyGeocoder)(nil)

type geocodeResult struct {
	Loc   LatLng
	Label string
	Found bool
}

func NewGeoapifyGeocoder(apiKey, baseURL string, timeout, cacheTTL time.Duration) *GeoapifyGeocoder {
	if baseURL == "" {
		baseURL = DefaultGeoapifyBaseURL
	}
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &GeoapifyGeocoder{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  newRetryClient(timeout),
		cache:   cache.New(cacheTTL, time.Hour),
	}
}

func (g *GeoapifyGeocoder) Geocode(ctx context.Context, text, lang string) (LatLng, string, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return LatLng{}, "", false, nil
	}

	cacheKey := fmt.Sprintf("geocode:%s:%s", lang, strings.ToLower(text))
	if v, ok := g.cache.Get(cacheKey); ok {
		r := v.(geocodeResult)
		return r.Loc, r.Label, r.Found, nil
	}

	params := url.Values{}
	params.Add("text", text)
	params.Add("limit", "1")
	params.Add("format", "json")
	params.Add("apiKey", g.apiKey)
	if lang != "" {
		params.Add("lang", lang)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/geocode/search?"+params.Encode(), nil)
	if err != nil {
		return LatLng{}, "", false, fmt.Errorf("%w: build geocode request: %v", ErrUnavailable, err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return LatLng{}, "", false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return LatLng{}, "", false, fmt.Errorf("%w: read geocode response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return LatLng{}, "", false, fmt.Errorf("%w: geocode status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		Results []struct {
			Lat       float64 `json:"lat"`
			Lon       float64 `json:"lon"`
			Formatted string  `json:"formatted"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return LatLng{}, "", false, fmt.Errorf("%w: decode geocode response: %v", ErrUnavailable, err)
	}

	r := geocodeResult{}
	if len(result.Results) > 0 {
		first := result.Results[0]
		r = geocodeResult{Loc: LatLng{Lat: first.Lat, Lng: first.Lon}, Label: first.Formatted, Found: true}
	}
	g.cache.Set(cacheKey, r, cache.DefaultExpiration)
	return r.Loc, r.Label, r.Found, nil
}
