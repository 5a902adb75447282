package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/progress/sinks"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/JakeFAU/riftlens/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunHandler serves run history. Runs come from the run repository when one is
// configured and from the summaries in the artifact store otherwise.
type RunHandler struct {
	blobs  riftlens.BlobStore
	runs   store.RunRepository
	logger *zap.Logger
}

// NewRunHandler wires the artifact store, the optional run repository and logger.
func NewRunHandler(blobs riftlens.BlobStore, runs store.RunRepository, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{blobs: blobs, runs: runs, logger: logger}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It needs the run
// repository and answers 503 without one.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}
	var status *store.RunStatus
	switch s := store.RunStatus(r.URL.Query().Get("status")); s {
	case "":
	case store.RunRunning, store.RunSuccess, store.RunError:
		status = &s
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	runs, err := h.runs.ListRuns(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} on success,
// 400 for malformed ids, 404 for unknown runs and 503 when neither source is
// configured.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil && h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact store unavailable")
		return
	}
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	var run any
	if h.runs != nil {
		run, err = h.runs.GetRun(ctx, runID)
	} else {
		run, err = h.loadSummary(ctx, runID)
	}
	if err != nil {
		if errors.Is(err, riftlens.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("load run failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (h *RunHandler) loadSummary(ctx context.Context, runID uuid.UUID) (sinks.RunSummary, error) {
	data, err := h.blobs.GetObject(ctx, sinks.RunPath(runID.String()))
	if err != nil {
		return sinks.RunSummary{}, err
	}
	var summary sinks.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return sinks.RunSummary{}, err
	}
	return summary, nil
}
