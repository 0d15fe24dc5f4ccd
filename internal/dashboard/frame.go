package dashboard

import (
	"io"

	"market-stress-go/internal/market"
	"market-stress-go/internal/stress"
)

// TrainingStatus is shown in place of model output until the first fit.
const TrainingStatus = "Training..."

// Frame is everything one cycle produced. Published frames are never
// modified.
type Frame struct {
	SessionID  string            `json:"session_id"`
	Cycle      int               `json:"cycle"`
	Tick       market.Tick       `json:"tick"`
	Rows       int               `json:"rows"`
	Assessment stress.Assessment `json:"assessment"`
	Prediction stress.Prediction `json:"prediction"`
	ModelState string            `json:"model_state"`
	Regime     string            `json:"regime,omitempty"`

	// Anomalies holds the model verdict for every row of the table, nil
	// until the model is trained.
	Anomalies []int `json:"-"`

	annotated []market.Row
}

// finalize fills the display fields derived from the detector output.
func (f *Frame) finalize(annotated []market.Row) {
	f.annotated = annotated
	f.ModelState = TrainingStatus
	f.Regime = ""
	if state, ok := f.Prediction.State(); ok {
		f.ModelState = string(state)
		f.Regime = stress.RegimeName(f.Prediction.Regime)
	}
}

// Annotated returns the table rows with their derived columns.
func (f *Frame) Annotated() []market.Row {
	return f.annotated
}

// WriteCSV exports the annotated table. The anomaly column is written once
// the model has scored the table.
func (f *Frame) WriteCSV(w io.Writer) error {
	return market.WriteCSV(w, f.annotated, f.Anomalies != nil)
}
