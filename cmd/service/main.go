package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/daily-alert-service/internal/airquality"
	"github.com/kjstillabower/daily-alert-service/internal/alert"
	"github.com/kjstillabower/daily-alert-service/internal/config"
	"github.com/kjstillabower/daily-alert-service/internal/forecast"
	"github.com/kjstillabower/daily-alert-service/internal/geocode"
	httphandler "github.com/kjstillabower/daily-alert-service/internal/http"
	"github.com/kjstillabower/daily-alert-service/internal/lifecycle"
	"github.com/kjstillabower/daily-alert-service/internal/notify"
	"github.com/kjstillabower/daily-alert-service/internal/observability"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	geocoder := geocode.NewNominatimClient(cfg.GeocodeAPIURL, cfg.ProviderTimeout)
	weatherClient := forecast.NewOpenMeteoClient(cfg.WeatherAPIURL, cfg.ProviderTimeout)
	airClient := airquality.NewOpenAQClient(cfg.AirQualityAPIURL, cfg.ProviderTimeout, cfg.AirQualityRadiusMeters, cfg.AirQualityLookback)
	notifier, err := notify.NewBrevoClient(cfg.BrevoAPIKey, cfg.EmailAPIURL, cfg.SenderName, cfg.SenderEmail, cfg.ProviderTimeout)
	if err != nil {
		logger.Fatal("email client", zap.Error(err))
	}

	supervisor := alert.NewSupervisor(geocoder, weatherClient, airClient, notifier, cfg.AlertHourUTC, cfg.RetryInterval, logger)

	// Alert loops outlive the requests that start them; they stop when
	// loopCancel fires during shutdown.
	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		ActiveLoops:      supervisor.Active,
	}
	handler := httphandler.NewHandler(supervisor, loopCtx, healthConfig, logger, cfg.AlertHourUTC, cfg.EmailMaxLength, cfg.CityMaxLength)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	subscribeRouter := router.PathPrefix("/subscribe").Subrouter()
	subscribeRouter.Use(httphandler.RateLimitMiddleware(limiter))
	subscribeRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	subscribeRouter.HandleFunc("", handler.PostSubscribe).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      cors.AllowAll().Handler(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.Int("alert_hour_utc", cfg.AlertHourUTC))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	logger.Info("stopping alert loops", zap.Int("active", supervisor.Active()))
	loopCancel()
	loopWaitCtx, loopWaitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer loopWaitCancel()
	if err := supervisor.Wait(loopWaitCtx); err != nil {
		logger.Warn("alert loops did not stop in time", zap.Error(err), zap.Int("remaining", supervisor.Active()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
