package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"eventstudy/internal/eventstudy"
	"eventstudy/internal/middleware"
	"eventstudy/internal/store"
)

// RunReader reads stored runs
type RunReader interface {
	Runs(ctx context.Context) ([]store.RunInfo, error)
	LoadSummary(ctx context.Context, runID string) ([]eventstudy.SummaryRow, error)
	LoadParams(ctx context.Context, runID string) ([]eventstudy.FirmParams, error)
}

// RunsHandler serves stored runs
type RunsHandler struct {
	runs   RunReader
	logger *slog.Logger
}

type runResponse struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Events    int       `json:"events"`
	CARs      int       `json:"cars"`
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(runs RunReader, logger *slog.Logger) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		runs:   runs,
		logger: logger.With(slog.String("handler", "runs")),
	}
}

// Routes mounts the runs routes
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRuns)
	r.Get("/{runID}/summary", h.GetSummary)
	r.Get("/{runID}/params", h.GetParams)
	return r
}

// ListRuns handles GET /runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.Runs(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list runs", slog.String("error", err.Error()))
		middleware.WriteProblem(w, r, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]runResponse, len(runs))
	for i, run := range runs {
		out[i] = runResponse{RunID: run.RunID, CreatedAt: run.CreatedAt, Events: run.Events, CARs: run.CARs}
	}
	render.JSON(w, r, out)
}

// GetSummary handles GET /runs/{runID}/summary
func (h *RunsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	summary, err := h.runs.LoadSummary(r.Context(), runID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to load summary",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		middleware.WriteProblem(w, r, http.StatusInternalServerError, "failed to load summary")
		return
	}
	if len(summary) == 0 {
		middleware.WriteProblem(w, r, http.StatusNotFound, "no stored run "+runID)
		return
	}
	render.JSON(w, r, summary)
}

// GetParams handles GET /runs/{runID}/params
func (h *RunsHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	params, err := h.runs.LoadParams(r.Context(), runID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to load firm parameters",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		middleware.WriteProblem(w, r, http.StatusInternalServerError, "failed to load firm parameters")
		return
	}
	if len(params) == 0 {
		middleware.WriteProblem(w, r, http.StatusNotFound, "no stored run "+runID)
		return
	}
	render.JSON(w, r, params)
}
