package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/daily-alert-service/internal/models"
	"github.com/kjstillabower/daily-alert-service/internal/observability"
)

// Geocoder resolves a free-text city name to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, city string) (models.Location, error)
}

var (
	// ErrCityNotFound is returned when the provider has zero matches for the city.
	// Terminal for a subscription: the alert loop never starts.
	ErrCityNotFound = errors.New("city not found")

	// ErrUpstream is returned on network failure or a non-success provider status.
	ErrUpstream = errors.New("geocoding upstream failure")
)

// NominatimClient resolves city names via an OpenStreetMap Nominatim search API.
// Each Resolve is a single lookup: no retries, no caching.
type NominatimClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

// NewNominatimClient returns a client against the given search endpoint.
func NewNominatimClient(apiURL string, timeout time.Duration) *NominatimClient {
	return &NominatimClient{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// nominatimResult is one candidate from the search response. Nominatim encodes
// coordinates as strings.
type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Resolve looks up the city, requesting at most one result, and returns the
// first candidate's coordinates. Fails with ErrCityNotFound on zero matches
// and ErrUpstream on transport or decoding problems.
func (c *NominatimClient) Resolve(ctx context.Context, city string) (models.Location, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.ObserveProviderCall("geocode", "error", time.Since(start).Seconds())
		return models.Location{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveProviderCall("geocode", "error", time.Since(start).Seconds())
		return models.Location{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	status := observability.StatusLabel(resp.StatusCode)
	observability.ObserveProviderCall("geocode", status, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Location{}, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: read response body: %v", ErrUpstream, err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return models.Location{}, fmt.Errorf("%w: parse response: %v", ErrUpstream, err)
	}
	if len(results) == 0 {
		return models.Location{}, fmt.Errorf("%w: %q", ErrCityNotFound, city)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: malformed latitude %q", ErrUpstream, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: malformed longitude %q", ErrUpstream, results[0].Lon)
	}

	return models.Location{Latitude: lat, Longitude: lon}, nil
}

func (c *NominatimClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("format", "json")
	params.Set("limit", "1")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	// Nominatim's usage policy requires an identifying User-Agent.
	req.Header.Set("User-Agent", "daily-alert-service/1.0")
	return req, nil
}
