package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// --- Mock Health Probe ---

type mockHealthProbe struct {
	name      string
	checkErr  error
	delay     time.Duration
	checkFunc func(ctx context.Context) error
	called    atomic.Bool
}

func (m *mockHealthProbe) Name() string {
	return m.name
}

func (m *mockHealthProbe) Check(ctx context.Context) error {
	m.called.Store(true)
	if m.checkFunc != nil {
		return m.checkFunc(ctx)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.checkErr
}

func readinessResponse(t *testing.T, rec *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding readiness response: %v", err)
	}
	return resp
}

// --- Tests ---

func TestHandleLiveness_AlwaysOK(t *testing.T) {
	srv, _, _ := newTestServer(t)
	// Liveness must not consult probes even when they would fail.
	srv.HealthProbes = []HealthProbe{
		&mockHealthProbe{name: "database", checkErr: errors.New("connection refused")},
	}

	rec := httptest.NewRecorder()
	srv.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := readinessResponse(t, rec)
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Service != "lingopal-scheduler" {
		t.Errorf("service = %q", resp.Service)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q", resp.Version)
	}
	if probe := srv.HealthProbes[0].(*mockHealthProbe); probe.called.Load() {
		t.Error("liveness ran a readiness probe")
	}
}

func TestHandleReadiness_AllHealthy(t *testing.T) {
	srv, _, _ := newTestServer(t)
	db := &mockHealthProbe{name: "database"}
	agent := &mockHealthProbe{name: "agent"}
	srv.HealthProbes = []HealthProbe{db, agent}

	rec := httptest.NewRecorder()
	srv.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := readinessResponse(t, rec)
	if resp.Status != "ready" {
		t.Errorf("status = %q", resp.Status)
	}
	for _, name := range []string{"database", "agent"} {
		if comp := resp.Components[name]; comp.Status != "healthy" {
			t.Errorf("component %s = %+v", name, comp)
		}
	}
	if !db.called.Load() || !agent.called.Load() {
		t.Error("expected both probes to run")
	}
}

func TestHandleReadiness_OneUnhealthy(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		&mockHealthProbe{name: "database"},
		&mockHealthProbe{name: "delivery", checkErr: errors.New("circuit breaker open")},
	}

	rec := httptest.NewRecorder()
	srv.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := readinessResponse(t, rec)
	if resp.Status != "not_ready" {
		t.Errorf("status = %q", resp.Status)
	}
	if comp := resp.Components["database"]; comp.Status != "healthy" {
		t.Errorf("database component = %+v", comp)
	}
	comp := resp.Components["delivery"]
	if comp.Status != "unhealthy" {
		t.Errorf("delivery component = %+v", comp)
	}
	if comp.Message != "circuit breaker open" {
		t.Errorf("delivery message = %q", comp.Message)
	}
}

func TestHandleReadiness_SlowProbeTimesOut(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		&mockHealthProbe{name: "database"},
		&mockHealthProbe{name: "agent", delay: 5 * time.Second},
	}

	start := time.Now()
	rec := httptest.NewRecorder()
	srv.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	elapsed := time.Since(start)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if elapsed > readinessTimeout+time.Second {
		t.Errorf("handler took %v, should be bounded by the readiness timeout", elapsed)
	}
	resp := readinessResponse(t, rec)
	if comp := resp.Components["database"]; comp.Status != "healthy" {
		t.Errorf("database component = %+v", comp)
	}
	if comp := resp.Components["agent"]; comp.Status != "unhealthy" {
		t.Errorf("agent component = %+v", comp)
	}
}

func TestHandleReadiness_ProbePanics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		&mockHealthProbe{name: "digest", checkFunc: func(ctx context.Context) error {
			panic("nil pointer dereference")
		}},
	}

	rec := httptest.NewRecorder()
	srv.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := readinessResponse(t, rec)
	comp := resp.Components["digest"]
	if comp.Status != "unhealthy" {
		t.Errorf("digest component = %+v", comp)
	}
	if comp.Message == "" {
		t.Error("expected a panic message in the component status")
	}
}

func TestHandleReadiness_NoProbes(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.HealthProbes = nil

	rec := httptest.NewRecorder()
	srv.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp := readinessResponse(t, rec); resp.Status != "ready" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestNewProbe_WrapsFunction(t *testing.T) {
	var pinged bool
	probe := NewProbe("database", func(ctx context.Context) error {
		pinged = true
		return nil
	})

	if probe.Name() != "database" {
		t.Errorf("name = %q", probe.Name())
	}
	if err := probe.Check(context.Background()); err != nil {
		t.Errorf("check: %v", err)
	}
	if !pinged {
		t.Error("expected the wrapped function to run")
	}
}
