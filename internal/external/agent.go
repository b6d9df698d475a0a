package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"lingopal/internal/types"
)

// AgentClientConfig holds the configuration for creating an AgentClient.
type AgentClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// AgentClient talks to the conversation agent service: the component that
// holds each subscriber's chat context and produces conversation openers.
// All requests go through BaseClient for circuit breaking, retries, and
// error mapping.
type AgentClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewAgentClient creates a new AgentClient using the standard resilience
// defaults. The httpClient timeout should come from AgentConfig.Timeout
// (30s default); initiation waits on LLM generation.
func NewAgentClient(httpClient *http.Client, cfg AgentClientConfig) *AgentClient {
	base := NewBaseClient(
		httpClient,
		"agent",
		DefaultRetryPolicy(),
		"lingopal/1.0",
	)
	return NewAgentClientWithBase(base, cfg)
}

// NewAgentClientWithBase creates an AgentClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewAgentClientWithBase(base *BaseClient, cfg AgentClientConfig) *AgentClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AgentClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// ClearConversation deletes the subscriber's active conversation context.
// The operation is idempotent: a 404 means there was nothing to clear and
// is treated as success, so the nightly pipeline can run against a
// subscriber who never chatted today.
func (a *AgentClient) ClearConversation(ctx context.Context, phone string) error {
	reqURL := a.baseURL + "/v1/conversations/" + url.PathEscape(phone)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create clear conversation request",
			err,
		)
	}
	a.setAuthHeaders(req)

	resp, err := a.base.Do(req)
	if err != nil {
		return wrapCollaboratorError(types.ErrCodeUpstreamAgent, "ClearConversation", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		a.logger.DebugContext(ctx, "no conversation to clear", "subscriber", phone)
		return nil
	default:
		return a.handleErrorResponse(resp, "ClearConversation")
	}
}

// initiateConversationPayload is the agent's conversation-start request body.
type initiateConversationPayload struct {
	Prompt string `json:"prompt"`
}

// initiateConversationResponse is the agent's conversation-start response.
type initiateConversationResponse struct {
	OpeningMessage string `json:"opening_message"`
}

// InitiateConversation starts a fresh conversation for the subscriber using
// the given system prompt and returns the agent's opening message text for
// delivery.
func (a *AgentClient) InitiateConversation(ctx context.Context, phone, prompt string) (string, error) {
	body, err := json.Marshal(initiateConversationPayload{Prompt: prompt})
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal initiate conversation payload",
			err,
		)
	}

	reqURL := a.baseURL + "/v1/conversations/" + url.PathEscape(phone) + "/initiate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create initiate conversation request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	a.setAuthHeaders(req)

	resp, err := a.base.Do(req)
	if err != nil {
		return "", wrapCollaboratorError(types.ErrCodeUpstreamAgent, "InitiateConversation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", a.handleErrorResponse(resp, "InitiateConversation")
	}

	var out initiateConversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamAgent,
			"InitiateConversation: failed to decode agent response",
			err,
		)
	}
	if out.OpeningMessage == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamAgent,
			"InitiateConversation: agent returned an empty opening message",
			nil,
		)
	}

	return out.OpeningMessage, nil
}

// bumpCounterResponse is the agent's conversation-counter response.
type bumpCounterResponse struct {
	Count int `json:"count"`
}

// BumpConversationCounter increments the subscriber's lifetime conversation
// count on the agent side and returns the new value. The nightly pipeline
// calls this first so the fresh conversation started later the same night
// carries the right sequence number.
func (a *AgentClient) BumpConversationCounter(ctx context.Context, phone string) (int, error) {
	reqURL := a.baseURL + "/v1/conversations/" + url.PathEscape(phone) + "/counter"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return 0, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create bump counter request",
			err,
		)
	}
	a.setAuthHeaders(req)

	resp, err := a.base.Do(req)
	if err != nil {
		return 0, wrapCollaboratorError(types.ErrCodeUpstreamAgent, "BumpConversationCounter", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, a.handleErrorResponse(resp, "BumpConversationCounter")
	}

	var out bumpCounterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, types.NewAppError(
			types.ErrCodeUpstreamAgent,
			"BumpConversationCounter: failed to decode agent response",
			err,
		)
	}

	return out.Count, nil
}

// setAuthHeaders sets the agent service authentication headers.
func (a *AgentClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
}

// handleErrorResponse reads an agent error response and maps it to a
// types.AppError.
func (a *AgentClient) handleErrorResponse(resp *http.Response, operation string) error {
	msg := readErrorMessage(resp)
	return types.NewAppError(
		types.ErrCodeUpstreamAgent,
		fmt.Sprintf("%s: agent error (%d): %s", operation, resp.StatusCode, msg),
		nil,
	)
}

// wrapCollaboratorError wraps a BaseClient transport error with operation
// context. AppErrors from BaseClient (circuit breaker, exhausted retries)
// pass through unchanged since they already carry the right code.
func wrapCollaboratorError(code types.ErrorCode, operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		code,
		fmt.Sprintf("%s: request failed: %v", operation, err),
		err,
	)
}
