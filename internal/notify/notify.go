package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kjstillabower/daily-alert-service/internal/observability"
)

// Notifier delivers a plain-text message to a single recipient.
type Notifier interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

var (
	// ErrInvalidAPIKey is returned at construction when no API key is configured.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrDeliveryFailed is returned when the email provider rejects the send.
	// Callers must treat the cycle as failed rather than marking the day sent.
	ErrDeliveryFailed = errors.New("email delivery failed")
)

// BrevoClient sends transactional email through a Brevo (Sendinblue) style API.
type BrevoClient struct {
	apiKey      string
	apiURL      string
	senderName  string
	senderEmail string
	timeout     time.Duration
	client      *http.Client
}

// NewBrevoClient returns a client for the given endpoint and sender identity.
// The sender email must match a sender verified with the provider.
func NewBrevoClient(apiKey, apiURL, senderName, senderEmail string, timeout time.Duration) (*BrevoClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	return &BrevoClient{
		apiKey:      apiKey,
		apiURL:      apiURL,
		senderName:  senderName,
		senderEmail: senderEmail,
		timeout:     timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type emailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type sendRequest struct {
	Sender      emailAddress   `json:"sender"`
	To          []emailAddress `json:"to"`
	Subject     string         `json:"subject"`
	TextContent string         `json:"textContent"`
}

// Send posts one email. Any 2xx provider status is success; everything else is
// ErrDeliveryFailed with the status and a snippet of the provider's reply.
func (c *BrevoClient) Send(ctx context.Context, toEmail, subject, body string) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(sendRequest{
		Sender:      emailAddress{Name: c.senderName, Email: c.senderEmail},
		To:          []emailAddress{{Email: toEmail}},
		Subject:     subject,
		TextContent: body,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, "POST", c.apiURL, bytes.NewReader(payload))
	if err != nil {
		observability.ObserveProviderCall("email", "error", time.Since(start).Seconds())
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveProviderCall("email", "error", time.Since(start).Seconds())
		observability.EmailsSentTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	status := observability.StatusLabel(resp.StatusCode)
	observability.ObserveProviderCall("email", status, time.Since(start).Seconds())
	observability.EmailsSentTotal.WithLabelValues(status).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrDeliveryFailed, resp.StatusCode, readSnippet(resp.Body))
	}
	return nil
}

// readSnippet returns up to 256 bytes of the provider's error reply for logging.
func readSnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 256))
	if err != nil || len(b) == 0 {
		return "(no body)"
	}
	return string(b)
}
