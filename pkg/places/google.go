package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultGoogleBaseURL = "https://places.googleapis.com/v1"
	DefaultRadiusMeters  = 1500
	DefaultMaxResults    = 20

	googleFieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
		"places.priceLevel,places.rating,places.userRatingCount,places.currentOpeningHours.openNow," +
		"places.types,places.googleMapsUri"
)

// googlePriceLevels maps the Places API enum onto raw levels 1-4. Free and
// unspecified levels are treated as unknown.
var googlePriceLevels = map[string]int{
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

// GoogleSearcher implements Searcher with the Google Places API (New).
type GoogleSearcher struct {
	apiKey  string
	baseURL string
	client  *retryablehttp.Client
}

var _ Searcher = (*GoogleSearcher)(nil)

// NewGoogleSearcher builds a searcher. An empty baseURL uses the public endpoint.
func NewGoogleSearcher(apiKey, baseURL string, timeout time.Duration) *GoogleSearcher {
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	return &GoogleSearcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  newRetryClient(timeout),
	}
}

func newRetryClient(timeout time.Duration) *retryablehttp.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = nil
	return c
}

type googleCircle struct {
	Center struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"center"`
	Radius float64 `json:"radius"`
}

type googleArea struct {
	Circle googleCircle `json:"circle"`
}

type googleTextRequest struct {
	TextQuery      string      `json:"textQuery"`
	LanguageCode   string      `json:"languageCode,omitempty"`
	RegionCode     string      `json:"regionCode,omitempty"`
	MaxResultCount int         `json:"maxResultCount,omitempty"`
	OpenNow        bool        `json:"openNow,omitempty"`
	LocationBias   *googleArea `json:"locationBias,omitempty"`
}

type googleNearbyRequest struct {
	IncludedTypes       []string   `json:"includedTypes"`
	LanguageCode        string     `json:"languageCode,omitempty"`
	RegionCode          string     `json:"regionCode,omitempty"`
	MaxResultCount      int        `json:"maxResultCount,omitempty"`
	LocationRestriction googleArea `json:"locationRestriction"`
}

type googlePlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string `json:"formattedAddress"`
	Location         struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	PriceLevel          string   `json:"priceLevel"`
	Rating              *float64 `json:"rating"`
	UserRatingCount     *int     `json:"userRatingCount"`
	CurrentOpeningHours *struct {
		OpenNow *bool `json:"openNow"`
	} `json:"currentOpeningHours"`
	Types         []string `json:"types"`
	GoogleMapsURI string   `json:"googleMapsUri"`
}

type googleResponse struct {
	Places []googlePlace `json:"places"`
}

func (g *GoogleSearcher) Search(ctx context.Context, q Query) ([]Candidate, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 || maxResults > DefaultMaxResults {
		maxResults = DefaultMaxResults
	}
	radius := q.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}

	var (
		endpoint string
		body     any
	)
	switch {
	case q.Center != nil && q.TextQuery == "" && q.Keyword == "":
		endpoint = "/places:searchNearby"
		body = googleNearbyRequest{
			IncludedTypes:       []string{"restaurant"},
			LanguageCode:        q.Language,
			RegionCode:          q.Region,
			MaxResultCount:      maxResults,
			LocationRestriction: circle(*q.Center, radius),
		}
	default:
		text := q.TextQuery
		if text == "" {
			text = q.Keyword
		}
		if text == "" {
			return nil, fmt.Errorf("%w: empty text query", ErrUnavailable)
		}
		req := googleTextRequest{
			TextQuery:      text,
			LanguageCode:   q.Language,
			RegionCode:     q.Region,
			MaxResultCount: maxResults,
			OpenNow:        q.OpenNow,
		}
		if q.Center != nil {
			area := circle(*q.Center, radius)
			req.LocationBias = &area
		}
		endpoint = "/places:searchText"
		body = req
	}

	var resp googleResponse
	if err := g.post(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.Places))
	for _, p := range resp.Places {
		out = append(out, p.toCandidate())
	}
	return out, nil
}

func circle(center LatLng, radius int) googleArea {
	var c googleCircle
	c.Center.Latitude = center.Lat
	c.Center.Longitude = center.Lng
	c.Radius = float64(radius)
	return googleArea{Circle: c}
}

func (p googlePlace) toCandidate() Candidate {
	c := Candidate{
		ID:              p.ID,
		Name:            p.DisplayName.Text,
		Address:         p.FormattedAddress,
		Location:        LatLng{Lat: p.Location.Latitude, Lng: p.Location.Longitude},
		Rating:          p.Rating,
		UserRatingCount: p.UserRatingCount,
		Types:           p.Types,
		MapsURL:         p.GoogleMapsURI,
	}
	if level, ok := googlePriceLevels[p.PriceLevel]; ok {
		c.PriceLevel = &level
	}
	if p.CurrentOpeningHours != nil {
		c.OpenNow = p.CurrentOpeningHours.OpenNow
	}
	return c
}

func (g *GoogleSearcher) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal places request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)
	req.Header.Set("X-Goog-FieldMask", googleFieldMask)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
