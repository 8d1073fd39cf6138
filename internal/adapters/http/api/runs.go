package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/pkg/logger"
)

// RunDependencies defines the run progress operations.
type RunDependencies interface {
	CreateRun(ctx context.Context, userID string) (model.Run, error)
	GetLatestRun(ctx context.Context, userID string) (model.Run, error)
	GetRun(ctx context.Context, userID, runID string) (model.Run, error)
	ListRuns(ctx context.Context, userID string) ([]model.Run, error)
	AdvanceLevel(ctx context.Context, userID, runID string) (model.Run, error)
	ApplyProgress(ctx context.Context, userID string, req model.ProgressRequest) (model.Run, error)
}

// RunsHandler handles /run requests for the authenticated user.
type RunsHandler struct {
	deps   RunDependencies
	logger logger.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunDependencies, log logger.Logger) *RunsHandler {
	return &RunsHandler{deps: deps, logger: log}
}

type levelRequest struct {
	RunID string `json:"runId"`
}

type progressRequest struct {
	RunID     string   `json:"runId"`
	Increment *float64 `json:"increment"`
	RequestID string   `json:"requestId"`
}

// HandleCreate handles POST /run/create.
func (h *RunsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_run"
	run, err := h.deps.CreateRun(r.Context(), UserID(r.Context()))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// HandleAdvanceLevel handles PATCH /run/level.
func (h *RunsHandler) HandleAdvanceLevel(w http.ResponseWriter, r *http.Request) {
	const op = "api.advance_level"
	var req levelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	run, err := h.deps.AdvanceLevel(r.Context(), UserID(r.Context()), req.RunID)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleProgress handles PATCH /run/progress.
func (h *RunsHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.apply_progress"
	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	if req.Increment == nil {
		writeFailure(r.Context(), w, h.logger, op,
			fmt.Errorf("%w: %w: increment is required", ErrBadRequest, model.ErrInvalidInput))
		return
	}
	run, err := h.deps.ApplyProgress(r.Context(), UserID(r.Context()), model.ProgressRequest{
		RunID:     req.RunID,
		Increment: *req.Increment,
		RequestID: req.RequestID,
	})
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleLatest handles GET /run/latest.
func (h *RunsHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.latest_run"
	run, err := h.deps.GetLatestRun(r.Context(), UserID(r.Context()))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleList handles GET /run/user.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_runs"
	runs, err := h.deps.ListRuns(r.Context(), UserID(r.Context()))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleGet handles GET /run/{runId}.
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_run"
	run, err := h.deps.GetRun(r.Context(), UserID(r.Context()), r.PathValue("runId"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
