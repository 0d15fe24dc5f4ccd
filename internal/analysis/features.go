package analysis

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"market-stress-go/internal/feeds"
)

// Row is one trading day of the batch table.
type Row struct {
	Date         time.Time `json:"date"`
	Close        float64   `json:"close"`
	Volume       uint64    `json:"volume"`
	Returns      float64   `json:"returns"`
	Volatility   float64   `json:"volatility"`
	VolumeChange float64   `json:"volume_change"`
	Sentiment    float64   `json:"sentiment"`
	StressScore  float64   `json:"stress_score"`
	Signal       bool      `json:"stress_signal"`
	Anomaly      int       `json:"anomaly"`
	// Prediction is nil when the logistic stage did not run.
	Prediction *int `json:"logistic_prediction,omitempty"`
}

// BuildFeatures derives returns, annualized rolling volatility and volume
// change from chronological bars and drops every row where one of them is
// undefined. The first window rows never have a full volatility window.
func BuildFeatures(bars []feeds.Bar, window, tradingDays int) []Row {
	if len(bars) < 2 || window < 2 {
		return nil
	}
	annualize := math.Sqrt(float64(tradingDays))

	returns := make([]float64, len(bars))
	volChange := make([]float64, len(bars))
	returns[0], volChange[0] = math.NaN(), math.NaN()
	for i := 1; i < len(bars); i++ {
		returns[i] = pctChange(bars[i-1].Close, bars[i].Close)
		volChange[i] = pctChange(float64(bars[i-1].Volume), float64(bars[i].Volume))
	}

	var rows []Row
	for i := window; i < len(bars); i++ {
		w := returns[i-window+1 : i+1]
		if !allFinite(w) || !finite(volChange[i]) {
			continue
		}
		rows = append(rows, Row{
			Date:         bars[i].Timestamp,
			Close:        bars[i].Close,
			Volume:       bars[i].Volume,
			Returns:      returns[i],
			Volatility:   stat.StdDev(w, nil) * annualize,
			VolumeChange: volChange[i],
			Anomaly:      1,
		})
	}
	return rows
}

// pctChange is (cur-prev)/prev; a zero base yields a non-finite value.
func pctChange(prev, cur float64) float64 {
	if prev == 0 {
		if cur == 0 {
			return math.NaN()
		}
		return math.Inf(int(math.Copysign(1, cur)))
	}
	return (cur - prev) / prev
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func allFinite(values []float64) bool {
	for _, v := range values {
		if !finite(v) {
			return false
		}
	}
	return true
}

// VolatilityThreshold is mean + k sample standard deviations of the column.
func VolatilityThreshold(rows []Row, k float64) float64 {
	vol := make([]float64, len(rows))
	for i, r := range rows {
		vol[i] = r.Volatility
	}
	mean, std := stat.MeanStdDev(vol, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean + k*std
}

// ApplySignals broadcasts the session sentiment to every row and computes
// the stress score and the threshold signal. It returns the signal count.
func ApplySignals(rows []Row, sentiment, volThreshold, sentimentThreshold float64) int {
	var signals int
	for i := range rows {
		r := &rows[i]
		r.Sentiment = sentiment
		r.StressScore = r.Volatility * (1 - sentiment)
		r.Signal = r.Volatility > volThreshold && sentiment < sentimentThreshold
		if r.Signal {
			signals++
		}
	}
	return signals
}
