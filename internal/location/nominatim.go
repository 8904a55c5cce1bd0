package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultNominatimURL is the public OpenStreetMap search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// Address is the structured part of a geocoder answer.
type Address struct {
	State       string `json:"state"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}

// Place is the best match returned for a free-text query.
type Place struct {
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

// Geocoder looks up a free-text query. It returns nil, nil when nothing
// matched.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Place, error)
}

// NominatimClient queries a Nominatim search endpoint.
type NominatimClient struct {
	BaseURL    string
	UserAgent  string
	Language   string
	HTTPClient *http.Client
}

// NewNominatimClient creates a client with a bounded request timeout.
// Nominatim rejects requests without an identifying User-Agent.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NominatimClient{
		BaseURL:    baseURL,
		UserAgent:  userAgent,
		Language:   "en",
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Geocode implements Geocoder.
func (c *NominatimClient) Geocode(ctx context.Context, query string) (*Place, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("addressdetails", "1")
	if c.Language != "" {
		q.Set("accept-language", c.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var places []Place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}
	return &places[0], nil
}

// BestEffortParse splits a display name such as
// "Toronto, Golden Horseshoe, Ontario, Canada" on commas and takes the second
// segment as the state and the last as the country. It is a positional
// heuristic for answers that carry no structured address and is wrong
// whenever the geocoder inserts extra segments (county, region) after the
// city.
func BestEffortParse(displayName string) (state, country string) {
	var parts []string
	for _, p := range strings.Split(displayName, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return parts[1], parts[len(parts)-1]
	}
}
