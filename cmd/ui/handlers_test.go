package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"market-stress-go/internal/config"
	"market-stress-go/internal/database"
	"market-stress-go/internal/models"
)

var now = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func setupTest(t *testing.T) (*gorm.DB, http.Handler) {
	t.Helper()
	db, err := database.NewDatabase(&config.Database{DSN: filepath.Join(t.TempDir(), "ui.db")})
	require.NoError(t, err)

	h := NewAPIHandler(zap.NewNop(), db)
	h.now = func() time.Time { return now }
	return db, newRouter(h)
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	old := now.Add(-48 * time.Hour).UnixMilli()
	recent := now.Add(-time.Hour).UnixMilli()
	evals := []models.Evaluation{
		{SessionID: "a", TickTime: old, State: "High Stress"},
		{SessionID: "a", TickTime: old + 1000, State: "Stable", ModelReady: true, MLStress: 0, Anomaly: 1},
		{SessionID: "b", TickTime: recent, State: "High Stress", ModelReady: true, MLStress: 0, Anomaly: -1},
		{SessionID: "b", TickTime: recent + 1000, State: "High Stress", ModelReady: true, MLStress: 1, Anomaly: 1},
	}
	require.NoError(t, db.Create(&evals).Error)
	require.NoError(t, db.Create(&models.AnalysisRun{RunID: "r1", Symbol: "SPY"}).Error)
}

func TestEvaluationsHandler(t *testing.T) {
	db, handler := setupTest(t)
	seed(t, db)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/evaluations?session=b&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var evals []models.Evaluation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evals))
	require.Len(t, evals, 1)
	assert.Equal(t, "b", evals[0].SessionID)
	assert.Equal(t, 1, evals[0].MLStress)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/evaluations?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatisticsHandler(t *testing.T) {
	db, handler := setupTest(t)
	seed(t, db)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatisticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))

	assert.Equal(t, int64(4), stats.AllTime.Evaluations)
	assert.Equal(t, int64(3), stats.AllTime.HighStress)
	assert.InDelta(t, 0.75, stats.AllTime.HighStressRate, 1e-9)
	assert.Equal(t, int64(3), stats.AllTime.ModelReady)
	assert.Equal(t, int64(1), stats.AllTime.Anomalies)
	// Stable/0 and High/1 agree, High/0 does not.
	assert.InDelta(t, 2.0/3.0, stats.AllTime.Agreement, 1e-9)

	assert.Equal(t, int64(2), stats.Since24h.Evaluations)
	assert.InDelta(t, 0.5, stats.Since24h.Agreement, 1e-9)
	assert.Equal(t, int64(1), stats.Runs)
}

func TestStatisticsHandler_Empty(t *testing.T) {
	_, handler := setupTest(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatisticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, StatisticsResponse{}, stats)
}

func TestStatisticsHandler_SkipsDeleted(t *testing.T) {
	db, handler := setupTest(t)
	seed(t, db)
	require.NoError(t, db.Where("session_id = ?", "a").Delete(&models.Evaluation{}).Error)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatisticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, stats.Since24h, stats.AllTime)
	assert.Equal(t, int64(2), stats.AllTime.Evaluations)
	assert.Equal(t, int64(1), stats.AllTime.Anomalies)
}

func TestRunsHandler(t *testing.T) {
	db, handler := setupTest(t)
	seed(t, db)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []models.AnalysisRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunID)
	assert.Nil(t, runs[0].AUC)
}
