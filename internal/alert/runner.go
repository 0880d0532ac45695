package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daily-alert-service/internal/airquality"
	"github.com/kjstillabower/daily-alert-service/internal/forecast"
	"github.com/kjstillabower/daily-alert-service/internal/geocode"
	"github.com/kjstillabower/daily-alert-service/internal/health"
	"github.com/kjstillabower/daily-alert-service/internal/models"
	"github.com/kjstillabower/daily-alert-service/internal/notify"
	"github.com/kjstillabower/daily-alert-service/internal/observability"
)

const dateLayout = "2006-01-02"

// DefaultRetryInterval is how long a runner waits before re-attempting a
// failed delivery cycle within the same day.
const DefaultRetryInterval = 60 * time.Second

// Runner owns one subscription's lifecycle: resolve the city once, then
// deliver one alert per UTC calendar day at the configured hour.
//
// Scheduling is due-time based rather than poll-and-compare: the runner sleeps
// until the next alert instant, and after a failed cycle retries every
// retryInterval for the remainder of the UTC day. A failure just before the
// hour rolls over therefore no longer loses that day's alert; at most one
// successful delivery per day is still guaranteed by lastSent.
type Runner struct {
	sub      models.Subscription
	geocoder geocode.Geocoder
	weather  forecast.Client
	air      airquality.Client
	notifier notify.Notifier
	logger   *zap.Logger

	alertHour     int
	retryInterval time.Duration

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	lastSent string // UTC date of last successful delivery, "" if none
}

// NewRunner builds a runner for one subscription. alertHour is the UTC hour
// of day; retryInterval falls back to DefaultRetryInterval when non-positive.
func NewRunner(
	sub models.Subscription,
	geocoder geocode.Geocoder,
	weather forecast.Client,
	air airquality.Client,
	notifier notify.Notifier,
	alertHour int,
	retryInterval time.Duration,
	logger *zap.Logger,
) *Runner {
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &Runner{
		sub:           sub,
		geocoder:      geocoder,
		weather:       weather,
		air:           air,
		notifier:      notifier,
		logger:        logger,
		alertHour:     alertHour,
		retryInterval: retryInterval,
		now:           time.Now,
		sleep:         sleepCtx,
	}
}

// Run resolves the city and then loops until ctx is cancelled, delivering at
// most one alert per UTC calendar day. A geocoding failure is terminal and
// returned to the caller; cancellation returns nil.
func (r *Runner) Run(ctx context.Context) error {
	loc, err := r.geocoder.Resolve(ctx, r.sub.City)
	if err != nil {
		return fmt.Errorf("resolve city %q: %w", r.sub.City, err)
	}
	r.logger.Info("city resolved",
		zap.String("city", r.sub.City),
		zap.Float64("latitude", loc.Latitude),
		zap.Float64("longitude", loc.Longitude))

	for {
		now := r.now().UTC()
		today := now.Format(dateLayout)

		if now.Hour() >= r.alertHour && r.LastSentDate() != today {
			if err := r.deliver(ctx, loc); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Warn("delivery cycle failed",
					zap.String("city", r.sub.City),
					zap.String("date", today),
					zap.Error(err))
				if r.sleep(ctx, r.retryInterval) != nil {
					return nil
				}
				continue
			}
			r.setLastSent(today)
			continue
		}

		wait := nextDue(now, r.alertHour).Sub(now)
		if r.sleep(ctx, wait) != nil {
			return nil
		}
	}
}

// deliver runs one fetch-format-send cycle. Any failure, including a rejected
// send, leaves lastSent untouched so the day is retried.
func (r *Runner) deliver(ctx context.Context, loc models.Location) error {
	weather, err := r.weather.Fetch(ctx, loc)
	if err != nil {
		observability.DeliveryCyclesTotal.WithLabelValues("weather_error").Inc()
		health.RecordCycleError()
		return fmt.Errorf("fetch weather: %w", err)
	}

	air, err := r.air.Fetch(ctx, loc)
	if err != nil {
		observability.DeliveryCyclesTotal.WithLabelValues("air_quality_error").Inc()
		health.RecordCycleError()
		return fmt.Errorf("fetch air quality: %w", err)
	}

	subject := Subject(weather.Date, r.sub.City)
	body := Body(r.sub.City, loc, weather, air)
	if err := r.notifier.Send(ctx, r.sub.Email, subject, body); err != nil {
		observability.DeliveryCyclesTotal.WithLabelValues("delivery_error").Inc()
		health.RecordCycleError()
		return fmt.Errorf("send alert: %w", err)
	}

	observability.DeliveryCyclesTotal.WithLabelValues("success").Inc()
	health.RecordCycleSuccess()
	r.logger.Info("daily alert sent",
		zap.String("email", r.sub.Email),
		zap.String("city", r.sub.City),
		zap.String("date", weather.Date))
	return nil
}

// LastSentDate returns the UTC date of the last successful delivery, or "".
func (r *Runner) LastSentDate() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSent
}

func (r *Runner) setLastSent(date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSent = date
}

// nextDue returns the next alert instant strictly after now: today at the
// alert hour if that is still ahead, otherwise the same hour tomorrow.
func nextDue(now time.Time, alertHour int) time.Time {
	due := time.Date(now.Year(), now.Month(), now.Day(), alertHour, 0, 0, 0, time.UTC)
	if !now.Before(due) {
		due = due.Add(24 * time.Hour)
	}
	return due
}

// sleepCtx blocks for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
