package main

import (
	"math"
	"time"

	"market-stress-go/internal/analysis"
	"market-stress-go/internal/models"
)

// runRecord summarizes a report for the journal. Undefined metrics are
// stored as NULL.
func runRecord(r *analysis.Report) models.AnalysisRun {
	run := models.AnalysisRun{
		RunID:               r.ID,
		Query:               r.Query,
		Symbol:              r.Symbol,
		StartDate:           r.Start.Format(time.DateOnly),
		EndDate:             r.End.Format(time.DateOnly),
		Headlines:           len(r.Headlines),
		AverageSentiment:    r.AverageSentiment,
		Rows:                len(r.Rows),
		VolatilityThreshold: r.VolatilityThreshold,
		Signals:             r.Signals,
		Anomalies:           r.Anomalies,
		LogisticFitted:      r.Logistic.Fitted,
		LogisticSkipped:     r.Logistic.Skipped,
		PredictedStress:     r.Logistic.Predicted,
	}
	if r.Logistic.Fitted {
		acc := r.Logistic.Report.Accuracy
		run.Accuracy = &acc
		if auc := r.Logistic.ROC.AUC; !math.IsNaN(auc) {
			run.AUC = &auc
		}
	}
	return run
}
