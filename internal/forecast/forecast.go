package forecast

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

// Client fetches a one-day forecast summary for a location.
type Client interface {
	Fetch(ctx context.Context, loc models.Location) (models.WeatherSnapshot, error)
}

// ErrUpstream is returned on network failure, a non-success provider status,
// or a response missing the required daily series.
var ErrUpstream = errors.New("weather upstream failure")

// dailyFields is the comma-joined list of daily aggregates requested from the provider.
const dailyFields = "temperature_2m_max,temperature_2m_min,precipitation_sum,uv_index_max,shortwave_radiation_sum"

// OpenMeteoClient fetches daily forecasts from an Open-Meteo style API,
// scoped to the current UTC calendar date.
type OpenMeteoClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
	now     func() time.Time
}

// NewOpenMeteoClient returns a client against the given forecast endpoint.
func NewOpenMeteoClient(apiURL string, timeout time.Duration) *OpenMeteoClient {
	return &OpenMeteoClient{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// openMeteoResponse holds parallel per-field arrays indexed by day.
// Optional series (uv_index_max, shortwave_radiation_sum) may be absent
// entirely or contain nulls.
type openMeteoResponse struct {
	Daily struct {
		Time             []string   `json:"time"`
		TemperatureMax   []float64  `json:"temperature_2m_max"`
		TemperatureMin   []float64  `json:"temperature_2m_min"`
		PrecipitationSum []float64  `json:"precipitation_sum"`
		UVIndexMax       []*float64 `json:"uv_index_max"`
		RadiationSum     []*float64 `json:"shortwave_radiation_sum"`
	} `json:"daily"`
}

// Fetch retrieves today's forecast summary (UTC) for the location.
// Missing optional fields yield nil pointers rather than failure.
func (c *OpenMeteoClient) Fetch(ctx context.Context, loc models.Location) (models.WeatherSnapshot, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, loc)
	if err != nil {
		observability.ObserveProviderCall("weather", "error", time.Since(start).Seconds())
		return models.WeatherSnapshot{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveProviderCall("weather", "error", time.Since(start).Seconds())
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	status := observability.StatusLabel(resp.StatusCode)
	observability.ObserveProviderCall("weather", status, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: read response body: %v", ErrUpstream, err)
	}

	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: parse response: %v", ErrUpstream, err)
	}

	return c.mapResponse(apiResp)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, loc models.Location) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	today := c.now().UTC().Format("2006-01-02")
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	params.Set("daily", dailyFields)
	params.Set("timezone", "UTC")
	params.Set("start_date", today)
	params.Set("end_date", today)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// mapResponse extracts day 0 from the parallel series. Required series must be
// present; optional UV/radiation values fall back to nil when the provider
// omits the series or returns null.
func (c *OpenMeteoClient) mapResponse(apiResp openMeteoResponse) (models.WeatherSnapshot, error) {
	d := apiResp.Daily
	if len(d.Time) == 0 || len(d.TemperatureMax) == 0 || len(d.TemperatureMin) == 0 || len(d.PrecipitationSum) == 0 {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: empty daily series", ErrUpstream)
	}

	snap := models.WeatherSnapshot{
		Date:     d.Time[0],
		TempMaxC: d.TemperatureMax[0],
		TempMinC: d.TemperatureMin[0],
		PrecipMM: d.PrecipitationSum[0],
	}
	if len(d.UVIndexMax) > 0 {
		snap.UVIndexMax = d.UVIndexMax[0]
	}
	if len(d.RadiationSum) > 0 {
		snap.RadiationWM2 = d.RadiationSum[0]
	}
	return snap, nil
}
