// Package core provides the ops HTTP chassis for the lingopal scheduler.
// It mounts a chi router carrying the health endpoints, the sweep-history
// status view, and the manual sweep trigger, and enforces the cross-cutting
// concerns (panic recovery, request correlation, structured request logging,
// ops-token auth on mutating routes) before requests reach handlers.
//
// The surface is operator-facing, not subscriber-facing: load balancers hit
// the unauthenticated health endpoints, humans and runbooks hit /api/v1.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lingopal/internal/config"
	"lingopal/internal/types"
)

// SweepTrigger runs one sweep on demand. Satisfied by *scheduler.Runner.
type SweepTrigger interface {
	RunSweep(ctx context.Context, kind types.SweepKind) (*types.SweepRecord, error)
}

// SweepHistoryReader reads recent sweep records for the status endpoint.
// Satisfied by *db.SweepHistoryRepository.
type SweepHistoryReader interface {
	Recent(ctx context.Context, limit int) ([]types.SweepRecord, error)
}

// Server bundles the ops surface's dependencies so tests can inject fakes
// and main can wire the real things.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	History SweepHistoryReader
	Sweeps  SweepTrigger

	// HealthProbes feed the readiness fan-out. Optional; with none
	// registered, /readyz reports ready unconditionally.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer validates the required dependencies and prepares the router.
// The caller mounts routes afterwards (MountRoutes); the separation lets
// tests register a reduced surface.
func NewServer(
	cfg *config.Config,
	history SweepHistoryReader,
	sweeps SweepTrigger,
	logger *slog.Logger,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if history == nil {
		return nil, fmt.Errorf("sweep history reader must not be nil")
	}
	if sweeps == nil {
		return nil, fmt.Errorf("sweep trigger must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:  cfg,
		Logger:  logger,
		History: history,
		Sweeps:  sweeps,
		router:  chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
