package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/riskibarqy/fixture-harvester/internal/usecase"
)

// RunStatusReader exposes the latest finished harvest.
type RunStatusReader interface {
	LastRun() (usecase.RunStatus, bool)
}

// RunTrigger starts an out-of-schedule harvest. It returns usecase.ErrRunLocked
// while a run is in flight.
type RunTrigger interface {
	Trigger() error
}

type Handler struct {
	runs    RunStatusReader
	trigger RunTrigger
	logger  *logging.Logger
}

func NewHandler(runs RunStatusReader, trigger RunTrigger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{runs: runs, trigger: trigger, logger: logger}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz fails while the latest run failed; a skipped run or no run yet is ready.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Readyz")
	defer span.End()

	status, ok := h.runs.LastRun()
	if ok && status.Error != "" && !status.Skipped {
		writeError(ctx, w, fmt.Errorf("%w: last run %s failed: %s", usecase.ErrDependencyUnavailable, status.Summary.RunID, status.Error))
		return
	}
	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetLastRun")
	defer span.End()

	status, ok := h.runs.LastRun()
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: no finished run yet", usecase.ErrNotFound))
		return
	}
	writeSuccess(ctx, w, http.StatusOK, status)
}

func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.TriggerRun")
	defer span.End()

	if h.trigger == nil {
		writeError(ctx, w, fmt.Errorf("%w: scheduler is not running", usecase.ErrDependencyUnavailable))
		return
	}
	if err := h.trigger.Trigger(); err != nil {
		if !errors.Is(err, usecase.ErrRunLocked) {
			err = fmt.Errorf("%w: %v", usecase.ErrDependencyUnavailable, err)
		}
		writeError(ctx, w, err)
		return
	}
	h.logger.InfoContext(ctx, "harvest triggered over http")
	writeSuccess(ctx, w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
