package models

import "gorm.io/gorm"

// AnalysisRun records the summary of one batch analysis.
type AnalysisRun struct {
	gorm.Model
	RunID               string   `gorm:"uniqueIndex" json:"run_id"`
	Query               string   `json:"query"`
	Symbol              string   `json:"symbol"`
	StartDate           string   `json:"start_date"`
	EndDate             string   `json:"end_date"`
	Headlines           int      `json:"headlines"`
	AverageSentiment    float64  `json:"average_sentiment"`
	Rows                int      `json:"rows"`
	VolatilityThreshold float64  `json:"volatility_threshold"`
	Signals             int      `json:"signals"`
	Anomalies           int      `json:"anomalies"`
	LogisticFitted      bool     `json:"logistic_fitted"`
	LogisticSkipped     string   `json:"logistic_skipped,omitempty"`
	Accuracy            *float64 `json:"accuracy"`
	AUC                 *float64 `json:"auc"` // nil when undefined
	PredictedStress     int      `json:"predicted_stress"`
}
