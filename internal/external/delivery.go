package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"lingopal/internal/types"
)

// DeliveryClientConfig holds the configuration for creating a DeliveryClient.
type DeliveryClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger

	// RatePerSecond and Burst bound outgoing sends so a large sweep does
	// not trip the messaging gateway's own limits.
	RatePerSecond float64
	Burst         int
}

// DeliveryClient talks to the message delivery gateway: the component that
// pushes message bodies to subscribers over the messaging channel. Sends
// are throttled through a local rate limiter before they reach the wire.
type DeliveryClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewDeliveryClient creates a new DeliveryClient using the standard
// resilience defaults.
func NewDeliveryClient(httpClient *http.Client, cfg DeliveryClientConfig) *DeliveryClient {
	base := NewBaseClient(
		httpClient,
		"delivery",
		DefaultRetryPolicy(),
		"lingopal/1.0",
	)
	return NewDeliveryClientWithBase(base, cfg)
}

// NewDeliveryClientWithBase creates a DeliveryClient with a pre-configured
// BaseClient.
func NewDeliveryClientWithBase(base *BaseClient, cfg DeliveryClientConfig) *DeliveryClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &DeliveryClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:  logger,
	}
}

// sendMessagePayload is the delivery gateway's send request body.
type sendMessagePayload struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
	Kind  string `json:"kind"`
}

// sendMessageResponse is the delivery gateway's send response. Failed
// counts undeliverable message parts; zero means fully delivered.
type sendMessageResponse struct {
	Failed int `json:"failed"`
}

// Send pushes a message body to the subscriber and returns the gateway's
// outcome. The call blocks on the local rate limiter first; a canceled
// context aborts the wait.
func (c *DeliveryClient) Send(ctx context.Context, phone, body string, kind types.MessageKind) (types.SendOutcome, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return types.SendOutcome{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"Send: rate limit wait interrupted",
			err,
		)
	}

	payload, err := json.Marshal(sendMessagePayload{
		Phone: phone,
		Body:  body,
		Kind:  string(kind),
	})
	if err != nil {
		return types.SendOutcome{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal send payload",
			err,
		)
	}

	reqURL := c.baseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return types.SendOutcome{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create send request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	resp, err := c.base.Do(req)
	if err != nil {
		return types.SendOutcome{}, wrapCollaboratorError(types.ErrCodeUpstreamDelivery, "Send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.SendOutcome{}, c.handleErrorResponse(resp, "Send")
	}

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.SendOutcome{}, types.NewAppError(
			types.ErrCodeUpstreamDelivery,
			"Send: failed to decode delivery response",
			err,
		)
	}

	return types.SendOutcome{Failed: out.Failed}, nil
}

// setAuthHeaders sets the delivery gateway authentication headers.
func (c *DeliveryClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// handleErrorResponse reads a delivery error response and maps it to a
// types.AppError.
func (c *DeliveryClient) handleErrorResponse(resp *http.Response, operation string) error {
	msg := readErrorMessage(resp)
	return types.NewAppError(
		types.ErrCodeUpstreamDelivery,
		fmt.Sprintf("%s: delivery gateway error (%d): %s", operation, resp.StatusCode, msg),
		nil,
	)
}
