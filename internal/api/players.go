package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/hash/sha256"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

const (
	defaultPlayerLimit = 50
	maxPlayerLimit     = 500
	storeTimeout       = 3 * time.Second
)

// PlayerHandler exposes read-only report endpoints.
type PlayerHandler struct {
	reports riftlens.ReportStore
	hasher  *sha256.Hasher
	timeout time.Duration
	logger  *zap.Logger
}

// NewPlayerHandler wires the report store and logger.
func NewPlayerHandler(reports riftlens.ReportStore, logger *zap.Logger) *PlayerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlayerHandler{
		reports: reports,
		hasher:  sha256.New(),
		timeout: storeTimeout,
		logger:  logger,
	}
}

// playerDTO is the list view of a report; the full document is served by GetPlayer.
type playerDTO struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Matches     int       `json:"matches"`
	WorstMatch  string    `json:"worst_match_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int64     `json:"version"`
}

func toPlayerDTO(r riftlens.EntityReport) playerDTO {
	dto := playerDTO{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Matches:     len(r.MatchHistory),
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
	}
	if r.WorstGameStats != nil {
		dto.WorstMatch = r.WorstGameStats.MatchID
	}
	return dto
}

// ListPlayers handles GET /v1/players?cursor=&limit=. It returns
// {"players": [...], "next": "..."}; an empty next means the scan is done.
// Order follows the store's scan order.
func (h *PlayerHandler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultPlayerLimit, maxPlayerLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, err := h.reports.Scan(ctx, strings.TrimSpace(r.URL.Query().Get("cursor")), limit)
	if err != nil {
		h.logger.Error("scan reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list players")
		return
	}
	players := make([]playerDTO, 0, len(page.Reports))
	for _, rep := range page.Reports {
		players = append(players, toPlayerDTO(rep))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"players": players,
		"next":    page.Next,
	})
}

// GetPlayer handles GET /v1/players/{player_id} and returns {"player": {...}}
// with the full report, or 404 when the player is unknown.
func (h *PlayerHandler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	h.writeTagged(w, r, map[string]any{"player": report})
}

// GetSummary handles GET /v1/players/{player_id}/summary and returns the
// annual statistics and worst game used for report generation. A report whose
// aggregates were never computed answers 409.
func (h *PlayerHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	if report.AnnualStats == nil {
		writeError(w, http.StatusConflict, "aggregates not computed yet")
		return
	}
	h.writeTagged(w, r, report.Summary())
}

// writeTagged writes payload with a content ETag and answers 304 when the
// client already holds that version.
func (h *PlayerHandler) writeTagged(w http.ResponseWriter, r *http.Request, payload any) {
	etag, err := h.hasher.ETag(payload)
	if err != nil {
		h.logger.Warn("etag failed", zap.Error(err))
		writeJSON(w, http.StatusOK, payload)
		return
	}
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *PlayerHandler) load(w http.ResponseWriter, r *http.Request) (riftlens.EntityReport, bool) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report store unavailable")
		return riftlens.EntityReport{}, false
	}
	id, err := parsePlayerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return riftlens.EntityReport{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, found, err := h.reports.Get(ctx, id)
	if err != nil {
		h.logger.Error("get report failed", zap.String("puuid", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load player")
		return riftlens.EntityReport{}, false
	}
	if !found {
		writeError(w, http.StatusNotFound, "player not found")
		return riftlens.EntityReport{}, false
	}
	return report, true
}

func parsePlayerID(r *http.Request) (riftlens.EntityID, error) {
	id := strings.TrimSpace(chi.URLParam(r, "player_id"))
	if id == "" {
		return "", errors.New("player_id is required")
	}
	return id, nil
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
