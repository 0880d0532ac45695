package models

// Subscription is one registered email/city pair. Immutable after intake;
// exists only as the captured state of a running alert loop.
type Subscription struct {
	Email string `json:"email"`
	City  string `json:"city"`
}

// Location is a geocoded city position, resolved once per subscription.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherSnapshot summarizes one UTC calendar day's forecast.
// UVIndexMax and RadiationWM2 are nil when the provider omits them.
type WeatherSnapshot struct {
	Date         string   `json:"date"`
	TempMaxC     float64  `json:"tempMaxC"`
	TempMinC     float64  `json:"tempMinC"`
	PrecipMM     float64  `json:"precipMm"`
	UVIndexMax   *float64 `json:"uvIndexMax,omitempty"`
	RadiationWM2 *float64 `json:"radiationWM2,omitempty"`
}

// AirQualitySnapshot holds the averaged PM2.5 reading for the lookback window.
// PM25AvgUGM3 is nil when the window contained no valid measurements; that is
// a successful empty answer, not an error.
type AirQualitySnapshot struct {
	PM25AvgUGM3 *float64 `json:"pm25AvgUgm3,omitempty"`
}
