package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultAlphaVantageURL is the public Alpha Vantage query endpoint.
const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

const (
	timeSeriesField = "Time Series FX (Daily)"
	closeField      = "4. close"
)

// Source returns daily closing rates for a currency pair, keyed by ISO date
// ("2006-01-02").
type Source interface {
	DailyCloses(ctx context.Context, from, to string) (map[string]float64, error)
}

// AlphaVantageClient fetches FX_DAILY series from Alpha Vantage.
type AlphaVantageClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewAlphaVantageClient creates a client with a bounded request timeout.
// An empty baseURL selects the public endpoint.
func NewAlphaVantageClient(baseURL, apiKey string, timeout time.Duration) *AlphaVantageClient {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AlphaVantageClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type fxDailyResponse struct {
	TimeSeries   map[string]map[string]string `json:"Time Series FX (Daily)"`
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
}

// DailyCloses implements Source.
func (c *AlphaVantageClient) DailyCloses(ctx context.Context, from, to string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("function", "FX_DAILY")
	q.Set("from_symbol", from)
	q.Set("to_symbol", to)
	q.Set("outputsize", "full")
	q.Set("apikey", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rate source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	var body fxDailyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rate response: %w", err)
	}

	switch {
	case body.ErrorMessage != "":
		return nil, fmt.Errorf("rate source error: %s", body.ErrorMessage)
	case body.TimeSeries == nil && body.Note != "":
		return nil, fmt.Errorf("rate source throttled: %s", body.Note)
	case body.TimeSeries == nil && body.Information != "":
		return nil, fmt.Errorf("rate source refused request: %s", body.Information)
	}

	closes := make(map[string]float64, len(body.TimeSeries))
	for day, fields := range body.TimeSeries {
		raw, ok := fields[closeField]
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate <= 0 {
			continue
		}
		closes[day] = rate
	}
	return closes, nil
}
