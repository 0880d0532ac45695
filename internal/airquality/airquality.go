package airquality

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

// Client fetches recent fine-particulate measurements near a location.
type Client interface {
	Fetch(ctx context.Context, loc models.Location) (models.AirQualitySnapshot, error)
}

// ErrUpstream is returned on network failure or a non-success provider status.
// An empty result set is not an error; it yields an absent average.
var ErrUpstream = errors.New("air quality upstream failure")

const (
	// DefaultRadiusMeters bounds the sensor search around the location.
	DefaultRadiusMeters = 5000

	// DefaultLookback is the trailing window queried for measurements.
	DefaultLookback = 24 * time.Hour

	// measurementLimit bounds the result count per query.
	measurementLimit = 100
)

// OpenAQClient averages PM2.5 measurements from an OpenAQ v3 style API over a
// trailing lookback window ending at the call time.
type OpenAQClient struct {
	apiURL       string
	timeout      time.Duration
	radiusMeters int
	lookback     time.Duration
	client       *http.Client
	now          func() time.Time
}

// NewOpenAQClient returns a client against the given measurements endpoint.
// radiusMeters and lookback fall back to the defaults when non-positive.
func NewOpenAQClient(apiURL string, timeout time.Duration, radiusMeters int, lookback time.Duration) *OpenAQClient {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &OpenAQClient{
		apiURL:       apiURL,
		timeout:      timeout,
		radiusMeters: radiusMeters,
		lookback:     lookback,
		client: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// openAQResponse holds the measurement result set. Values may be null for
// sensors that reported without a reading.
type openAQResponse struct {
	Results []struct {
		Value *float64 `json:"value"`
	} `json:"results"`
}

// Fetch queries PM2.5 measurements within the lookback window and returns
// their arithmetic mean. A result set with no valid values yields a snapshot
// with a nil average and no error.
func (c *OpenAQClient) Fetch(ctx context.Context, loc models.Location) (models.AirQualitySnapshot, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, loc)
	if err != nil {
		observability.ObserveProviderCall("air_quality", "error", time.Since(start).Seconds())
		return models.AirQualitySnapshot{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveProviderCall("air_quality", "error", time.Since(start).Seconds())
		return models.AirQualitySnapshot{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	status := observability.StatusLabel(resp.StatusCode)
	observability.ObserveProviderCall("air_quality", status, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.AirQualitySnapshot{}, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AirQualitySnapshot{}, fmt.Errorf("%w: read response body: %v", ErrUpstream, err)
	}

	var apiResp openAQResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.AirQualitySnapshot{}, fmt.Errorf("%w: parse response: %v", ErrUpstream, err)
	}

	return mapResponse(apiResp), nil
}

func (c *OpenAQClient) buildRequest(ctx context.Context, loc models.Location) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	now := c.now().UTC()
	params := url.Values{}
	params.Set("coordinates", formatFloat(loc.Latitude)+","+formatFloat(loc.Longitude))
	params.Set("radius", strconv.Itoa(c.radiusMeters))
	params.Set("parameter", "pm25")
	params.Set("date_from", now.Add(-c.lookback).Format(time.RFC3339))
	params.Set("date_to", now.Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(measurementLimit))
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// mapResponse averages all non-null values in the result set.
func mapResponse(apiResp openAQResponse) models.AirQualitySnapshot {
	sum := 0.0
	n := 0
	for _, m := range apiResp.Results {
		if m.Value == nil {
			continue
		}
		sum += *m.Value
		n++
	}
	if n == 0 {
		return models.AirQualitySnapshot{}
	}
	avg := sum / float64(n)
	return models.AirQualitySnapshot{PM25AvgUGM3: &avg}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
