package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "success"},
		{201, "success"},
		{299, "success"},
		{429, "rate_limited"},
		{400, "client_error"},
		{404, "client_error"},
		{500, "server_error"},
		{503, "server_error"},
		{100, "error"},
	}
	for _, tt := range tests {
		if got := StatusLabel(tt.code); got != tt.want {
			t.Errorf("StatusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestObserveProviderCall_IncrementsCounter(t *testing.T) {
	ObserveProviderCall("geocode", "success", 0.05)
	ObserveProviderCall("email", "server_error", 1.2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `providerCallsTotal{provider="geocode",status="success"}`) {
		t.Error("metrics output missing geocode success counter")
	}
	if !strings.Contains(body, `providerCallsTotal{provider="email",status="server_error"}`) {
		t.Error("metrics output missing email server_error counter")
	}
}

func TestMetricsHandler_ExposesDomainMetrics(t *testing.T) {
	SubscriptionsStartedTotal.Inc()
	SubscriptionsActive.Set(3)
	DeliveryCyclesTotal.WithLabelValues("success").Inc()
	EmailsSentTotal.WithLabelValues("success").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, name := range []string{
		"subscriptionsStartedTotal",
		"subscriptionsActive",
		"deliveryCyclesTotal",
		"emailsSentTotal",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
