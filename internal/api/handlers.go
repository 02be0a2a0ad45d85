package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/pkg/httputil"
	"github.com/ignite/punchlist-monitor/internal/repository/postgres"
	"github.com/ignite/punchlist-monitor/internal/scheduler"
)

// StatusProvider is the part of the scheduler the API reads and pokes.
type StatusProvider interface {
	Status() scheduler.Status
	Trigger(kind domain.CycleKind) bool
}

// RunLister reads the cycle history.
type RunLister interface {
	List(ctx context.Context, limit int) ([]domain.CycleResult, error)
	Get(ctx context.Context, id string) (*domain.CycleResult, error)
}

// Handlers contains the HTTP handlers for the status API.
type Handlers struct {
	sched StatusProvider
	runs  RunLister
}

// NewHandlers creates handlers. runs may be nil when no database is
// configured.
func NewHandlers(sched StatusProvider, runs RunLister) *Handlers {
	return &Handlers{sched: sched, runs: runs}
}

// GetStatus returns the loop state and the last cycle.
//
//	GET /api/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.sched.Status())
}

// ListRuns returns the most recent cycles.
//
//	GET /api/runs?limit=N
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httputil.ServiceUnavailable(w, "run history is not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.CycleResult{}
	}
	httputil.OK(w, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// GetRun returns one cycle.
//
//	GET /api/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httputil.ServiceUnavailable(w, "run history is not configured")
		return
	}
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, run)
}

// TriggerRun asks the loop for an immediate cycle.
//
//	POST /api/runs/trigger?kind=extract|report
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	kind := domain.CycleKind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = domain.CycleExtract
	case domain.CycleExtract, domain.CycleReport:
	default:
		httputil.BadRequest(w, "kind must be extract or report")
		return
	}
	if !h.sched.Trigger(kind) {
		httputil.Conflict(w, "a cycle request is already pending")
		return
	}
	httputil.Accepted(w, map[string]string{"status": "queued", "kind": string(kind)})
}
