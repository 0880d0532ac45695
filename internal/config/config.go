package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
// Values are fixed at load time; nothing mutates a Config after Load returns.
type Config struct {
	ServerPort string

	AlertHourUTC  int
	RetryInterval time.Duration
	SenderName    string
	SenderEmail   string

	EmailMaxLength int
	CityMaxLength  int

	GeocodeAPIURL    string
	WeatherAPIURL    string
	AirQualityAPIURL string
	EmailAPIURL      string
	ProviderTimeout  time.Duration

	AirQualityRadiusMeters int
	AirQualityLookback     time.Duration

	BrevoAPIKey string

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout       time.Duration
	InFlightTimeout       time.Duration
	InFlightCheckInterval time.Duration
	RequestTimeout        time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Alert struct {
		HourUTC       *int   `yaml:"hour_utc"`
		RetryInterval string `yaml:"retry_interval"`
		SenderName    string `yaml:"sender_name"`
		SenderEmail   string `yaml:"sender_email"`
	} `yaml:"alert"`

	Intake struct {
		EmailMaxLength int `yaml:"email_max_length"`
		CityMaxLength  int `yaml:"city_max_length"`
	} `yaml:"intake"`

	Providers struct {
		Timeout    string `yaml:"timeout"`
		Geocode    string `yaml:"geocode_url"`
		Weather    string `yaml:"weather_url"`
		AirQuality string `yaml:"airquality_url"`
		Email      string `yaml:"email_url"`
	} `yaml:"providers"`

	AirQuality struct {
		RadiusMeters int    `yaml:"radius_meters"`
		Lookback     string `yaml:"lookback"`
	} `yaml:"airquality"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct *int   `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	BrevoAPIKey string `yaml:"brevo_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. A .env file in the working directory is loaded first
// so local runs can set BREVO_API_KEY without exporting it. The Brevo API key
// comes from the BREVO_API_KEY env var or the secrets file. Call from
// project root.
func Load() (*Config, error) {
	// Missing .env is fine; env vars win over file values either way.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.AlertHourUTC = 6
	if fc.Alert.HourUTC != nil {
		cfg.AlertHourUTC = *fc.Alert.HourUTC
	}
	cfg.RetryInterval = parseDuration(fc.Alert.RetryInterval, 60*time.Second)
	cfg.SenderName = strings.TrimSpace(fc.Alert.SenderName)
	if cfg.SenderName == "" {
		cfg.SenderName = "Daily Alert"
	}
	cfg.SenderEmail = strings.TrimSpace(fc.Alert.SenderEmail)
	if cfg.SenderEmail == "" {
		cfg.SenderEmail = "alerts@example.com"
	}

	cfg.EmailMaxLength = fc.Intake.EmailMaxLength
	if cfg.EmailMaxLength <= 0 {
		cfg.EmailMaxLength = 254
	}
	cfg.CityMaxLength = fc.Intake.CityMaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 100
	}

	cfg.ProviderTimeout = parseDuration(fc.Providers.Timeout, 20*time.Second)
	cfg.GeocodeAPIURL = fc.Providers.Geocode
	if cfg.GeocodeAPIURL == "" {
		cfg.GeocodeAPIURL = "https://nominatim.openstreetmap.org/search"
	}
	cfg.WeatherAPIURL = fc.Providers.Weather
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.open-meteo.com/v1/forecast"
	}
	cfg.AirQualityAPIURL = fc.Providers.AirQuality
	if cfg.AirQualityAPIURL == "" {
		cfg.AirQualityAPIURL = "https://api.openaq.org/v3/measurements"
	}
	cfg.EmailAPIURL = fc.Providers.Email
	if cfg.EmailAPIURL == "" {
		cfg.EmailAPIURL = "https://api.brevo.com/v3/smtp/email"
	}

	cfg.AirQualityRadiusMeters = fc.AirQuality.RadiusMeters
	if cfg.AirQualityRadiusMeters <= 0 {
		cfg.AirQualityRadiusMeters = 5000
	}
	cfg.AirQualityLookback = parseDuration(fc.AirQuality.Lookback, 24*time.Hour)

	cfg.BrevoAPIKey = os.Getenv("BREVO_API_KEY")
	if cfg.BrevoAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.BrevoAPIKey = sec.BrevoAPIKey
		}
	}
	if cfg.BrevoAPIKey == "" {
		return nil, fmt.Errorf("BREVO_API_KEY required (set env or config/secrets.yaml brevo_api_key)")
	}

	// Rate limiting is off unless configured; zero RPS means no limiter.
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.InFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = 50
	if fc.Health.DegradedErrorPct != nil {
		cfg.DegradedErrorPct = *fc.Health.DegradedErrorPct
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if the string
// is empty, fails to parse, or is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.AlertHourUTC < 0 || cfg.AlertHourUTC > 23 {
		return fmt.Errorf("alert.hour_utc must be in [0,23], got %d", cfg.AlertHourUTC)
	}
	if cfg.ProviderTimeout <= 0 {
		return fmt.Errorf("providers.timeout must be positive")
	}
	if cfg.DegradedErrorPct < 0 || cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be in [0,100], got %d", cfg.DegradedErrorPct)
	}
	return nil
}
