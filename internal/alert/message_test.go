package alert

import (
	"strings"
	"testing"

	"github.com/kjstillabower/daily-alert-service/internal/models"
)

func TestSubject(t *testing.T) {
	got := Subject("2024-06-01", "Paris")
	want := "Daily Alert 2024-06-01 - Paris"
	if got != want {
		t.Errorf("Subject() = %q, want %q", got, want)
	}
}

func TestBody_AllMetricsPresent(t *testing.T) {
	body := Body("Paris",
		models.Location{Latitude: 48.8566, Longitude: 2.3522},
		models.WeatherSnapshot{
			Date:         "2024-06-01",
			TempMaxC:     22.0,
			TempMinC:     14.0,
			PrecipMM:     0.0,
			UVIndexMax:   f64(6.1),
			RadiationWM2: f64(210.0),
		},
		models.AirQualitySnapshot{PM25AvgUGM3: f64(8.3)},
	)

	for _, want := range []string{
		"Hello,",
		"Daily Weather & Air Quality Alert for 2024-06-01 in Paris (48.86,2.35) UTC:",
		"- Max Temp: 22 °C",
		"- Min Temp: 14 °C",
		"- Precipitation: 0 mm",
		"- UV Index (max): 6.1",
		"- Solar Radiation: 210 W/m²",
		"- PM2.5 Average: 8.3 μg/m³",
		"Have a great day!",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestBody_AbsentMetricsRenderAsNA(t *testing.T) {
	body := Body("Cairo",
		models.Location{Latitude: 30.04, Longitude: 31.24},
		models.WeatherSnapshot{
			Date:     "2024-06-01",
			TempMaxC: 35.5,
			TempMinC: 21.0,
			PrecipMM: 0.0,
		},
		models.AirQualitySnapshot{},
	)

	for _, want := range []string{
		"- UV Index (max): N/A",
		"- Solar Radiation: N/A",
		"- PM2.5 Average: N/A",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if !strings.Contains(body, "- Max Temp: 35.5 °C") {
		t.Errorf("body missing max temp:\n%s", body)
	}
}
