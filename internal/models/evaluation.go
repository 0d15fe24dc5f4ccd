package models

import "gorm.io/gorm"

// Evaluation is the journal row written once per dashboard cycle.
type Evaluation struct {
	gorm.Model
	SessionID  string  `gorm:"index" json:"session_id"`
	TickTime   int64   `gorm:"index" json:"tick_time"` // unix millis
	Price      float64 `json:"price"`
	Volume     int     `json:"volume"`
	Sentiment  float64 `json:"sentiment"`
	Volatility float64 `json:"volatility"`

	StressScore float64 `json:"stress_score"`
	State       string  `json:"state"` // "Stable" or "High Stress"
	Action      string  `json:"action"`

	ModelReady bool `json:"model_ready"`
	MLStress   int  `json:"ml_stress,omitempty"`
	Regime     int  `json:"regime,omitempty"`
	Anomaly    int  `json:"anomaly,omitempty"` // 1 inlier, -1 outlier
}
