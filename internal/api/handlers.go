package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/scheduler"
	"github.com/wonny/tailgame/internal/session"
	"github.com/wonny/tailgame/pkg/logger"
)

// Engine is what the handlers need from the poll engine
type Engine interface {
	Latest() *contracts.Dashboard
	Subscribe() (<-chan *contracts.Dashboard, func())
	Refresh(ctx context.Context) (*contracts.Dashboard, error)
	SetFirst(ctx context.Context) (*contracts.Pick, error)
	Lock(ctx context.Context) (*contracts.Pick, error)
	ClearPicks(ctx context.Context) error
	SetWeights(ctx context.Context, w contracts.Weights) (*contracts.Dashboard, error)
	Simulate(ctx context.Context, hour, minute int) (*contracts.Dashboard, error)
	RealClock(ctx context.Context) (*contracts.Dashboard, error)
	History(ctx context.Context, days int) ([]contracts.Pick, error)
	Cycles(ctx context.Context, limit int) ([]contracts.CycleSummary, error)
	Logs() []contracts.LogEntry
}

// JobStats reports scheduler statistics; nil when the scheduler is not running
type JobStats interface {
	GetJobStats() map[string]scheduler.JobStats
}

// Handler serves the dashboard API
// ⭐ SSOT: every HTTP endpoint is a method of this struct
type Handler struct {
	engine Engine
	jobs   JobStats
	logger *logger.Logger
}

// NewHandler creates a new handler
func NewHandler(engine Engine, jobs JobStats, log *logger.Logger) *Handler {
	return &Handler{
		engine: engine,
		jobs:   jobs,
		logger: log,
	}
}

// GetState returns the full dashboard
// GET /api/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Latest())
}

// GetSectors returns the sector ranking
// GET /api/sectors
func (h *Handler) GetSectors(w http.ResponseWriter, r *http.Request) {
	dash := h.engine.Latest()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sectors":   dash.Sectors,
		"strongest": dash.Strongest,
		"pool":      dash.PoolSector,
	})
}

// GetCandidates returns the ranked candidates
// GET /api/candidates?limit=5
func (h *Handler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil || limit < 0 {
		respondError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	dash := h.engine.Latest()
	candidates := dash.Candidates
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": candidates,
		"profile":    dash.Profile,
		"weights":    dash.Weights,
		"filter":     dash.Filter,
	})
}

// GetPicks returns today's picks
// GET /api/picks
func (h *Handler) GetPicks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, picksView(h.engine.Latest()))
}

// GetPickHistory returns persisted picks of the last days
// GET /api/picks/history?days=30
func (h *Handler) GetPickHistory(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 30)
	if err != nil || days <= 0 || days > 366 {
		respondError(w, http.StatusBadRequest, "Invalid days")
		return
	}

	history, err := h.engine.History(r.Context(), days)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list pick history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve pick history")
		return
	}
	if history == nil {
		history = []contracts.Pick{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"count": len(history),
		"picks": history,
	})
}

// GetCycles returns today's cycle summaries
// GET /api/cycles?limit=50
func (h *Handler) GetCycles(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil || limit <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	cycles, err := h.engine.Cycles(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list cycles")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}
	if cycles == nil {
		cycles = []contracts.CycleSummary{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cycles": cycles})
}

// GetLogs returns the event log, newest first
// GET /api/logs
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"logs": h.engine.Logs()})
}

// GetJobs returns scheduler statistics
// GET /api/jobs
func (h *Handler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": []scheduler.JobStats{}})
		return
	}

	stats := h.jobs.GetJobStats()
	jobs := make([]scheduler.JobStats, 0, len(stats))
	for _, s := range stats {
		jobs = append(jobs, s)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JobName < jobs[j].JobName })
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// Refresh drops caches and runs a cycle
// POST /api/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	dash, err := h.engine.Refresh(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Manual refresh failed")
		respondError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

// SetFirst records the current candidate as the first pick
// POST /api/picks/first
func (h *Handler) SetFirst(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.SetFirst(r.Context())
	if err != nil {
		h.respondPickError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Lock records the current candidate as the final pick
// POST /api/picks/lock
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Lock(r.Context())
	if err != nil {
		h.respondPickError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ClearPicks drops today's picks and unlocks
// DELETE /api/picks
func (h *Handler) ClearPicks(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearPicks(r.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear picks")
		respondError(w, http.StatusInternalServerError, "Failed to clear picks")
		return
	}
	respondJSON(w, http.StatusOK, picksView(h.engine.Latest()))
}

// SetWeights replaces the factor weights
// PUT /api/weights {"change_pct":0.3,...}
func (h *Handler) SetWeights(w http.ResponseWriter, r *http.Request) {
	var weights contracts.Weights
	if err := json.NewDecoder(r.Body).Decode(&weights); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(weights) == 0 {
		respondError(w, http.StatusBadRequest, "No weights given")
		return
	}

	dash, err := h.engine.SetWeights(r.Context(), weights)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

// ClockRequest switches between wall-clock and simulated time
type ClockRequest struct {
	Mode   string `json:"mode"` // "simulated" or "real"
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

// SetClock switches the engine clock
// PUT /api/clock
func (h *Handler) SetClock(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		dash *contracts.Dashboard
		err  error
	)
	switch req.Mode {
	case "simulated":
		dash, err = h.engine.Simulate(r.Context(), req.Hour, req.Minute)
	case "real":
		dash, err = h.engine.RealClock(r.Context())
	default:
		respondError(w, http.StatusBadRequest, "mode must be simulated or real")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

func (h *Handler) respondPickError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoCandidate), errors.Is(err, session.ErrLocked):
		respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.WithError(err).Error("Pick operation failed")
		respondError(w, http.StatusInternalServerError, "Pick operation failed")
	}
}

func picksView(dash *contracts.Dashboard) map[string]interface{} {
	return map[string]interface{}{
		"trade_date": dash.TradeDate,
		"first":      dash.FirstPick,
		"final":      dash.FinalPick,
		"locked":     dash.Locked,
		"advice":     dash.Advice,
		"plan":       dash.Plan,
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
