// Package push implements the push notification Channel consumed by the
// notification dispatcher, grounded on internal/webhook/service.go's
// http.Client-with-timeout request shape but stripped down to a single
// provider endpoint instead of a per-tenant webhook subscription table:
// there is no device registry or FCM SDK here, only an HTTP POST against
// whatever push gateway is configured.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout matches webhook/service.go's ServiceConfig default.
const DefaultTimeout = 30 * time.Second

// Message is the rendered content the dispatcher hands to Send.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// outboundPush is the JSON body posted to the provider endpoint.
type outboundPush struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Config configures a Client.
type Config struct {
	// Endpoint is the push provider's ingest URL. An empty Endpoint makes
	// Send a no-op, mirroring email.SMTPService's "not configured" skip.
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Client posts reminder pushes to an injectable provider endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a push Client from cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name identifies this channel for outcome events and delivery records.
func (c *Client) Name() string { return "push" }

// Send posts msg to the configured provider endpoint on behalf of
// userID. A non-2xx response is wrapped with the status code so the
// caller can classify 4xx as permanent (no point retrying a malformed
// request) versus 5xx as transient.
func (c *Client) Send(ctx context.Context, userID string, msg Message) error {
	if c.endpoint == "" {
		c.logger.Warn("push: provider endpoint not configured, skipping", "user_id", userID)
		return nil
	}

	body, err := json.Marshal(outboundPush{UserID: userID, Title: msg.Title, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("push: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "taskfabric-backbone-push/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

// StatusError reports a non-2xx response from the push provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push provider returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether the status indicates a request the caller
// should not retry (any 4xx).
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
