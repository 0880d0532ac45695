package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daily-alert-service/internal/health"
	"github.com/kjstillabower/daily-alert-service/internal/lifecycle"
	"github.com/kjstillabower/daily-alert-service/internal/models"
	"github.com/kjstillabower/daily-alert-service/internal/validation"
)

// Subscriber starts a detached alert loop for a subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, sub models.Subscription)
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	// DegradedWindow and DegradedErrorPct control the delivery-cycle error
	// rate check. Zero values disable it.
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// ActiveLoops, when set, reports the number of running alert loops.
	ActiveLoops func() int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	subscriber Subscriber
	// loopCtx outlives individual requests; alert loops started at intake are
	// bound to it so they survive the request and stop on shutdown.
	loopCtx        context.Context
	healthConfig   *HealthConfig
	logger         *zap.Logger
	alertHour      int
	emailMaxLength int
	cityMaxLength  int

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	subscriber Subscriber,
	loopCtx context.Context,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	alertHour int,
	emailMaxLength int,
	cityMaxLength int,
) *Handler {
	return &Handler{
		subscriber:     subscriber,
		loopCtx:        loopCtx,
		healthConfig:   healthConfig,
		logger:         logger,
		alertHour:      alertHour,
		emailMaxLength: emailMaxLength,
		cityMaxLength:  cityMaxLength,
	}
}

// PostSubscribe handles POST /subscribe with form-encoded email and city.
// Registration is fire-and-forget: the caller gets a confirmation immediately
// and is never told whether geocoding or delivery later succeed.
func (h *Handler) PostSubscribe(w http.ResponseWriter, r *http.Request) {
	if lifecycle.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORM", "request body must be form-encoded")
		return
	}

	email, err := validation.ValidateEmail(r.PostFormValue("email"), h.emailMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_EMAIL", err.Error())
		return
	}
	city, err := validation.ValidateCity(r.PostFormValue("city"), h.cityMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	sub := models.Subscription{Email: email, City: city}
	h.subscriber.Subscribe(h.loopCtx, sub)

	if logger := loggerFromRequest(r); logger != nil {
		logger.Info("subscription accepted", zap.String("email", email), zap.String("city", city))
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Daily alert started for %s in %s at %02d:00 UTC", email, city, h.alertHour),
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"delivery": "healthy"}
	if result.status == "degraded" {
		checks["delivery"] = "unhealthy"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "daily-alert-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && h.healthConfig.ActiveLoops != nil {
		resp["activeSubscriptions"] = h.healthConfig.ActiveLoops()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > degraded (delivery cycle error rate breach) > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := health.CycleErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errCount) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// loggerFromRequest extracts the request-scoped zap.Logger, if any.
func loggerFromRequest(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return nil
}
