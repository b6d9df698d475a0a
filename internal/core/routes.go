package core

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the global middleware chain and the ops routes.
//
// Middleware order matters:
//  1. Recoverer   - outermost, so panics anywhere below are caught.
//  2. RequestID   - correlation ID before anything logs.
//  3. RequestLogger - logs every request with the ID in place.
//
// The health endpoints stay unauthenticated for load balancers and
// orchestration; the sweep trigger mutates state and requires the ops
// token.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	s.router.Get("/healthz", s.HandleLiveness)
	s.router.Get("/readyz", s.HandleReadiness)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.HandleStatus)
		r.With(s.RequireOpsToken).Post("/sweeps/{kind}", s.HandleTriggerSweep)
	})
}
