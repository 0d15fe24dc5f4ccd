package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"market-stress-go/internal/models"
	"market-stress-go/internal/stress"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
	now func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db, now: time.Now}
}

// EvaluationsHandler returns the most recent journal rows, optionally for one
// session.
func (h *APIHandler) EvaluationsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	query := h.db.Order("tick_time desc").Limit(limit)
	if session := r.URL.Query().Get("session"); session != "" {
		query = query.Where("session_id = ?", session)
	}

	var evals []models.Evaluation
	if err := query.Find(&evals).Error; err != nil {
		h.log.Error("Failed to get evaluations from database", zap.Error(err))
		http.Error(w, "Failed to get evaluations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.log, evals)
}

// RunsHandler returns the recorded batch analysis runs, newest first.
func (h *APIHandler) RunsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	var runs []models.AnalysisRun
	if err := h.db.Order("created_at desc").Limit(limit).Find(&runs).Error; err != nil {
		h.log.Error("Failed to get analysis runs from database", zap.Error(err))
		http.Error(w, "Failed to get analysis runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.log, runs)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	Evaluations    int64   `json:"evaluations"`
	HighStress     int64   `json:"high_stress"`
	HighStressRate float64 `json:"high_stress_rate"`
	ModelReady     int64   `json:"model_ready"`
	Anomalies      int64   `json:"anomalies"`
	Agreement      float64 `json:"agreement"` // heuristic vs model, over ready rows
	agreed         int64
}

// statsQuery counts a period in one aggregate pass. Anomaly and agreement
// only count rows the model had scored.
const statsQuery = `COUNT(*) AS evaluations,
	COALESCE(SUM(CASE WHEN state = @high THEN 1 ELSE 0 END), 0) AS high_stress,
	COALESCE(SUM(CASE WHEN model_ready THEN 1 ELSE 0 END), 0) AS model_ready,
	COALESCE(SUM(CASE WHEN model_ready AND anomaly = -1 THEN 1 ELSE 0 END), 0) AS anomalies,
	COALESCE(SUM(CASE WHEN model_ready AND (state = @high) = (ml_stress = 1) THEN 1 ELSE 0 END), 0) AS agreed`

type statsRow struct {
	Evaluations int64
	HighStress  int64
	ModelReady  int64
	Anomalies   int64
	Agreed      int64
}

// stats aggregates the journal from sinceMillis on; zero means all rows.
func (h *APIHandler) stats(sinceMillis int64) (StatsDetail, error) {
	query := h.db.Model(&models.Evaluation{}).
		Select(statsQuery, sql.Named("high", string(stress.StateHighStress)))
	if sinceMillis > 0 {
		query = query.Where("tick_time > ?", sinceMillis)
	}

	var row statsRow
	if err := query.Scan(&row).Error; err != nil {
		return StatsDetail{}, err
	}
	s := StatsDetail{
		Evaluations: row.Evaluations,
		HighStress:  row.HighStress,
		ModelReady:  row.ModelReady,
		Anomalies:   row.Anomalies,
		agreed:      row.Agreed,
	}
	s.finish()
	return s, nil
}

func (s *StatsDetail) finish() {
	if s.Evaluations > 0 {
		s.HighStressRate = float64(s.HighStress) / float64(s.Evaluations)
	}
	if s.ModelReady > 0 {
		s.Agreement = float64(s.agreed) / float64(s.ModelReady)
	}
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
	Runs     int64       `json:"analysis_runs"`
}

// StatisticsHandler calculates and returns journal statistics.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	var response StatisticsResponse
	var err error
	if response.AllTime, err = h.stats(0); err != nil {
		h.log.Error("Failed to aggregate evaluations", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}
	since24h := h.now().Add(-24 * time.Hour).UnixMilli()
	if response.Since24h, err = h.stats(since24h); err != nil {
		h.log.Error("Failed to aggregate recent evaluations", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}
	if err := h.db.Model(&models.AnalysisRun{}).Count(&response.Runs).Error; err != nil {
		h.log.Error("Failed to count analysis runs", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.log, response)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return min(limit, maxLimit), true
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to write response", zap.Error(err))
	}
}
