package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lingopal/internal/types"
)

func TestJSON_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)

	JSON(rec, req, http.StatusOK, APIResponse{Data: map[string]string{"service": "lingopal-scheduler"}})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data type = %T", resp.Data)
	}
	if data["service"] != "lingopal-scheduler" {
		t.Errorf("data = %v", data)
	}
}

func TestJSON_MarshalFailureFallsBack(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)

	// Channels cannot be marshalled to JSON.
	JSON(rec, req, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding fallback response: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

func TestError_AppErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found",
			err:        types.NewAppError(types.ErrCodeNotFoundSweep, "sweep not found", nil),
			wantStatus: http.StatusNotFound,
			wantCode:   string(types.ErrCodeNotFoundSweep),
		},
		{
			name:       "validation",
			err:        types.NewAppError(types.ErrCodeValidationInvalidSweepKind, "unknown sweep kind", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   string(types.ErrCodeValidationInvalidSweepKind),
		},
		{
			name:       "upstream",
			err:        types.NewAppError(types.ErrCodeUpstreamAgent, "agent unavailable", nil),
			wantStatus: http.StatusBadGateway,
			wantCode:   string(types.ErrCodeUpstreamAgent),
		},
		{
			name: "wrapped app error",
			err: fmt.Errorf("running sweep: %w",
				types.NewAppError(types.ErrCodeConflictSweepRunning, "sweep already running", nil)),
			wantStatus: http.StatusConflict,
			wantCode:   string(types.ErrCodeConflictSweepRunning),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)

			Error(rec, req, tc.err)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var resp APIErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tc.wantCode)
			}
		})
	}
}

func TestError_GenericErrorIsOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)

	Error(rec, req, errors.New("pq: connection refused on host db-internal"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "db-internal") {
		t.Errorf("internal error detail leaked to client: %s", body)
	}
	var resp APIErrorResponse
	if err := json.NewDecoder(strings.NewReader(body)).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("error code = %q", resp.Error.Code)
	}
	if resp.Error.Message != "an unexpected error occurred" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestError_IncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-abc"))

	Error(rec, req, types.NewAppError(types.ErrCodeNotFoundSubscriber, "subscriber not found", nil))

	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error.RequestID != "req-abc" {
		t.Errorf("request id = %q", resp.Error.RequestID)
	}
}
