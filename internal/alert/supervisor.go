package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daily-alert-service/internal/airquality"
	"github.com/kjstillabower/daily-alert-service/internal/forecast"
	"github.com/kjstillabower/daily-alert-service/internal/geocode"
	"github.com/kjstillabower/daily-alert-service/internal/models"
	"github.com/kjstillabower/daily-alert-service/internal/notify"
	"github.com/kjstillabower/daily-alert-service/internal/observability"
)

// Supervisor starts one Runner per accepted subscription and observes each
// runner's termination, so a failed geocode no longer disappears silently.
// Duplicate registrations deliberately start duplicate independent runners.
type Supervisor struct {
	geocoder      geocode.Geocoder
	weather       forecast.Client
	air           airquality.Client
	notifier      notify.Notifier
	alertHour     int
	retryInterval time.Duration
	logger        *zap.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	active int
}

// NewSupervisor wires the provider clients shared by all runners.
func NewSupervisor(
	geocoder geocode.Geocoder,
	weather forecast.Client,
	air airquality.Client,
	notifier notify.Notifier,
	alertHour int,
	retryInterval time.Duration,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		geocoder:      geocoder,
		weather:       weather,
		air:           air,
		notifier:      notifier,
		alertHour:     alertHour,
		retryInterval: retryInterval,
		logger:        logger,
	}
}

// Subscribe starts a runner for the subscription, detached from the caller.
// ctx must outlive the request that triggered the registration; cancelling it
// stops the runner.
func (s *Supervisor) Subscribe(ctx context.Context, sub models.Subscription) {
	runner := NewRunner(sub, s.geocoder, s.weather, s.air, s.notifier, s.alertHour, s.retryInterval, s.logger)

	observability.SubscriptionsStartedTotal.Inc()
	s.add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.add(-1)

		err := runner.Run(ctx)
		if err != nil {
			reason := "geocode_error"
			if errors.Is(err, geocode.ErrCityNotFound) {
				reason = "city_not_found"
			}
			observability.SubscriptionsTerminatedTotal.WithLabelValues(reason).Inc()
			s.logger.Warn("subscription terminated",
				zap.String("email", sub.Email),
				zap.String("city", sub.City),
				zap.Error(err))
			return
		}
		observability.SubscriptionsTerminatedTotal.WithLabelValues("stopped").Inc()
		s.logger.Info("subscription stopped",
			zap.String("email", sub.Email),
			zap.String("city", sub.City))
	}()
}

// Active returns the number of runners currently alive.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Wait blocks until all runners have exited or ctx is cancelled. Call during
// graceful shutdown after cancelling the runners' context.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Supervisor) add(delta int) {
	s.mu.Lock()
	s.active += delta
	active := s.active
	s.mu.Unlock()
	observability.SubscriptionsActive.Set(float64(active))
}
