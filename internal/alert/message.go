package alert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kjstillabower/daily-alert-service/internal/models"
)

// Subject builds the daily alert subject line for a forecast date and city.
func Subject(date, city string) string {
	return fmt.Sprintf("Daily Alert %s - %s", date, city)
}

// Body builds the plain-text alert message from the two snapshots.
// Absent metrics render as N/A rather than being dropped.
func Body(city string, loc models.Location, weather models.WeatherSnapshot, air models.AirQualitySnapshot) string {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "Daily Weather & Air Quality Alert for %s in %s (%.2f,%.2f) UTC:\n\n",
		weather.Date, city, loc.Latitude, loc.Longitude)
	fmt.Fprintf(&b, "- Max Temp: %s °C\n", fmtValue(weather.TempMaxC))
	fmt.Fprintf(&b, "- Min Temp: %s °C\n", fmtValue(weather.TempMinC))
	fmt.Fprintf(&b, "- Precipitation: %s mm\n", fmtValue(weather.PrecipMM))
	fmt.Fprintf(&b, "- UV Index (max): %s\n", fmtOptional(weather.UVIndexMax))
	fmt.Fprintf(&b, "- Solar Radiation: %s W/m²\n", fmtOptional(weather.RadiationWM2))
	fmt.Fprintf(&b, "- PM2.5 Average: %s μg/m³\n", fmtOptional(air.PM25AvgUGM3))
	b.WriteString("\nHave a great day!\n")
	return b.String()
}

func fmtValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func fmtOptional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmtValue(*v)
}
