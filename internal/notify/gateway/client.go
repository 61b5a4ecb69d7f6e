// Package gateway provides a client for the upstream SMS/push delivery
// gateway, protected by a circuit breaker so a degraded gateway fails fast
// instead of stalling dispatch.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aegis-safety/aegis/internal/notify"
)

// DefaultTimeout bounds a single delivery call so one slow recipient cannot
// stall the dispatch of others.
const DefaultTimeout = 10 * time.Second

// ClientConfig holds configuration for the gateway client.
type ClientConfig struct {
	// BaseURL is the gateway base URL.
	BaseURL string

	// APIKey authenticates against the gateway.
	APIKey string

	// Timeout for individual delivery calls (default: DefaultTimeout).
	Timeout time.Duration

	// HTTPClient overrides the underlying HTTP client (tests).
	HTTPClient *http.Client
}

// Client delivers messages through the HTTP gateway. Retry policy is owned by
// the dispatch pipeline; the client itself makes exactly one attempt per call,
// tripping the breaker on repeated gateway failures.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
}

// NewClient creates a new gateway client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "notify-gateway",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
	})

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		breaker:    breaker,
	}
}

type sendRequest struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Body    string `json:"body"`
}

type sendResponse struct {
	DeliveryID string `json:"deliveryId"`
}

// Send delivers a message to a single recipient through the gateway.
func (c *Client) Send(ctx context.Context, recipient notify.Recipient, message string) (string, error) {
	if recipient.Address == "" {
		return "", notify.ErrInvalidRecipient
	}

	deliveryID, err := c.breaker.Execute(func() (string, error) {
		return c.send(ctx, recipient, message)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", notify.ErrChannelUnavailable
		}
		return "", err
	}
	return deliveryID, nil
}

func (c *Client) send(ctx context.Context, recipient notify.Recipient, message string) (string, error) {
	payload, err := json.Marshal(sendRequest{
		Channel: string(recipient.Kind),
		To:      recipient.Address,
		Body:    message,
	})
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", notify.ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", notify.ErrInvalidRecipient
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: gateway returned %d", notify.ErrChannelUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted:
		return "", fmt.Errorf("gateway returned unexpected status %d", resp.StatusCode)
	}

	var body sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if body.DeliveryID == "" {
		return "", errors.New("gateway response missing delivery id")
	}

	return body.DeliveryID, nil
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

var _ notify.Notifier = (*Client)(nil)
