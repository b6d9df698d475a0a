package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lingopal/internal/types"
)

// DigestClientConfig holds the configuration for creating a DigestClient.
type DigestClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// DigestClient talks to the digest service: the component that summarizes a
// subscriber's day of conversation into a stored digest and manages digest
// retention.
type DigestClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewDigestClient creates a new DigestClient using the standard resilience
// defaults.
func NewDigestClient(httpClient *http.Client, cfg DigestClientConfig) *DigestClient {
	base := NewBaseClient(
		httpClient,
		"digest",
		DefaultRetryPolicy(),
		"lingopal/1.0",
	)
	return NewDigestClientWithBase(base, cfg)
}

// NewDigestClientWithBase creates a DigestClient with a pre-configured
// BaseClient.
func NewDigestClientWithBase(base *BaseClient, cfg DigestClientConfig) *DigestClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DigestClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// CreateDigest asks the digest service to summarize the subscriber's
// current conversation. Returns true when a digest was created, false when
// the service reports there was not enough conversation history to digest
// (204), which is a normal nightly outcome and not an error.
func (d *DigestClient) CreateDigest(ctx context.Context, phone string) (bool, error) {
	reqURL := d.baseURL + "/v1/digests/" + url.PathEscape(phone)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return false, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create digest request",
			err,
		)
	}
	d.setAuthHeaders(req)

	resp, err := d.base.Do(req)
	if err != nil {
		return false, wrapCollaboratorError(types.ErrCodeUpstreamDigest, "CreateDigest", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return true, nil
	case http.StatusNoContent:
		d.logger.DebugContext(ctx, "not enough history to digest", "subscriber", phone)
		return false, nil
	default:
		return false, d.handleErrorResponse(resp, "CreateDigest")
	}
}

// removeDigestsResponse is the digest pruning response body.
type removeDigestsResponse struct {
	Removed int `json:"removed"`
}

// RemoveOldDigests prunes the subscriber's stored digests down to the keep
// most recent ones and returns how many were removed.
func (d *DigestClient) RemoveOldDigests(ctx context.Context, phone string, keep int) (int, error) {
	reqURL := d.baseURL + "/v1/digests/" + url.PathEscape(phone) + "?keep=" + strconv.Itoa(keep)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return 0, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create remove digests request",
			err,
		)
	}
	d.setAuthHeaders(req)

	resp, err := d.base.Do(req)
	if err != nil {
		return 0, wrapCollaboratorError(types.ErrCodeUpstreamDigest, "RemoveOldDigests", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, d.handleErrorResponse(resp, "RemoveOldDigests")
	}

	var out removeDigestsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, types.NewAppError(
			types.ErrCodeUpstreamDigest,
			"RemoveOldDigests: failed to decode digest response",
			err,
		)
	}

	return out.Removed, nil
}

// setAuthHeaders sets the digest service authentication headers.
func (d *DigestClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
}

// handleErrorResponse reads a digest error response and maps it to a
// types.AppError.
func (d *DigestClient) handleErrorResponse(resp *http.Response, operation string) error {
	msg := readErrorMessage(resp)
	return types.NewAppError(
		types.ErrCodeUpstreamDigest,
		fmt.Sprintf("%s: digest service error (%d): %s", operation, resp.StatusCode, msg),
		nil,
	)
}
