package market

import "time"

// FeatureNames is the column order shared by the simulator output, the stress
// label and every estimator. Changing it breaks trained models.
var FeatureNames = []string{"price", "volume", "sentiment", "volatility"}

// Tick is a single point-in-time market observation.
type Tick struct {
	Time       time.Time `json:"time"`
	Price      float64   `json:"price"`
	Volume     int       `json:"volume"`
	Sentiment  float64   `json:"sentiment"`
	Volatility float64   `json:"volatility"`
}

// Features returns the tick as a feature row in FeatureNames order.
func (t Tick) Features() []float64 {
	return []float64{t.Price, float64(t.Volume), t.Sentiment, t.Volatility}
}
