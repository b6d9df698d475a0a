package core

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lingopal/internal/types"
)

// statusHistoryLimit is how many recent sweep records the status endpoint
// returns.
const statusHistoryLimit = 20

// statusResponse is the body of GET /api/v1/status: service identity plus
// the most recent sweep history, newest first.
type statusResponse struct {
	Service     string              `json:"service"`
	Environment string              `json:"environment"`
	Version     string              `json:"version,omitempty"`
	Sweeps      []types.SweepRecord `json:"sweeps"`
}

// HandleStatus returns the recent sweep history. This is the first stop
// when asking "did last night's maintenance run, and how did it go".
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	records, err := s.History.Recent(r.Context(), statusHistoryLimit)
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "failed to read sweep history", "error", err)
		Error(w, r, err)
		return
	}
	if records == nil {
		records = []types.SweepRecord{}
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: statusResponse{
		Service:     s.Config.Service,
		Environment: s.Config.Environment,
		Version:     s.Config.Build.Version,
		Sweeps:      records,
	}})
}

// HandleTriggerSweep runs one sweep immediately: POST /api/v1/sweeps/{kind}.
// The response is the finished sweep record; a sweep whose job failed still
// returns 200 with status "failed" and the error note, since the trigger
// itself worked. Only an unknown or unregistered kind is a client error.
func (s *Server) HandleTriggerSweep(w http.ResponseWriter, r *http.Request) {
	kind, err := types.ParseSweepKind(chi.URLParam(r, "kind"))
	if err != nil {
		Error(w, r, err)
		return
	}

	s.Logger.InfoContext(r.Context(), "manual sweep triggered",
		slog.String("kind", string(kind)),
	)

	rec, err := s.Sweeps.RunSweep(r.Context(), kind)
	if rec == nil {
		// No record means the run never started (kind not registered).
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: rec})
}
