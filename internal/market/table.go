package market

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

// DefaultMAWindow is the rolling window of the price moving average column.
const DefaultMAWindow = 10

// Table is an ordered snapshot of ticks. It never aliases simulator state.
type Table struct {
	Ticks []Tick
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Ticks) }

// Latest returns the most recent tick.
func (t Table) Latest() (Tick, bool) {
	if len(t.Ticks) == 0 {
		return Tick{}, false
	}
	return t.Ticks[len(t.Ticks)-1], true
}

// Features returns one feature row per tick in FeatureNames order.
func (t Table) Features() [][]float64 {
	rows := make([][]float64, len(t.Ticks))
	for i, tick := range t.Ticks {
		rows[i] = tick.Features()
	}
	return rows
}

// Row is a tick with the columns derived for display and export.
type Row struct {
	Tick
	StressScore float64 `json:"stress_score"`
	// PriceMA is NaN until the moving average window is full.
	PriceMA float64 `json:"-"`
	// Anomaly is 1 or -1 once a detector has scored the row, 0 otherwise.
	Anomaly int `json:"anomaly,omitempty"`
}

// MarshalJSON reports an undefined moving average as null.
func (r Row) MarshalJSON() ([]byte, error) {
	out := struct {
		Tick
		StressScore float64  `json:"stress_score"`
		PriceMA     *float64 `json:"price_ma10"`
		Anomaly     int      `json:"anomaly,omitempty"`
	}{Tick: r.Tick, StressScore: r.StressScore, Anomaly: r.Anomaly}
	if !math.IsNaN(r.PriceMA) {
		v := r.PriceMA
		out.PriceMA = &v
	}
	return json.Marshal(out)
}

// Annotate derives display rows from a table. score computes the stress score
// of a tick; anomalies, when non-nil, must hold one verdict per tick.
func Annotate(t Table, window int, score func(Tick) float64, anomalies []int) ([]Row, error) {
	if anomalies != nil && len(anomalies) != len(t.Ticks) {
		return nil, fmt.Errorf("anomaly column has %d rows, table has %d", len(anomalies), len(t.Ticks))
	}
	if window <= 0 {
		window = DefaultMAWindow
	}

	ma := movingaverage.New(window)
	rows := make([]Row, len(t.Ticks))
	for i, tick := range t.Ticks {
		ma.Add(tick.Price)
		row := Row{Tick: tick, StressScore: score(tick), PriceMA: math.NaN()}
		if ma.Count() >= window {
			row.PriceMA = ma.Avg()
		}
		if anomalies != nil {
			row.Anomaly = anomalies[i]
		}
		rows[i] = row
	}
	return rows, nil
}

// WriteCSV writes rows with a header line. The anomaly column is present only
// when withAnomaly is set; undefined moving averages are written as empty
// cells.
func WriteCSV(w io.Writer, rows []Row, withAnomaly bool) error {
	cw := csv.NewWriter(w)
	header := append([]string{"time"}, FeatureNames...)
	header = append(header, "stress_score", "price_ma10")
	if withAnomaly {
		header = append(header, "anomaly")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Time.Format(time.RFC3339Nano),
			formatFloat(r.Price),
			strconv.Itoa(r.Volume),
			formatFloat(r.Sentiment),
			formatFloat(r.Volatility),
			formatFloat(r.StressScore),
			formatFloat(r.PriceMA),
		}
		if withAnomaly {
			record = append(record, strconv.Itoa(r.Anomaly))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
