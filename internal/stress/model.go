package stress

import (
	"errors"
	"fmt"

	"market-stress-go/internal/market"
	"market-stress-go/internal/ml"
)

// ErrNotReady is returned by Train while the table is smaller than the
// configured minimum.
var ErrNotReady = errors.New("not enough rows to train the stress model")

// ModelConfig holds the fixed hyperparameters of the stress model.
type ModelConfig struct {
	MinRows       int
	Threshold     float64
	Trees         int
	Clusters      int
	Contamination float64
	Seed          int64
}

// DefaultModelConfig returns the stock hyperparameters.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		MinRows:       30,
		Threshold:     DefaultThreshold,
		Trees:         100,
		Clusters:      3,
		Contamination: 0.05,
		Seed:          42,
	}
}

// Prediction is the model output for one tick. When Ready is false the model
// has not been trained and the other fields carry no information.
type Prediction struct {
	Ready   bool `json:"ready"`
	Stress  int  `json:"stress"`  // 1 high stress, 0 stable
	Regime  int  `json:"regime"`  // cluster id, no stable meaning across retrains
	Anomaly int  `json:"anomaly"` // -1 outlier, 1 inlier
}

// State maps the binary prediction to a stress state. The second result is
// false when the model is not ready.
func (p Prediction) State() (State, bool) {
	if !p.Ready {
		return "", false
	}
	if p.Stress == 1 {
		return StateHighStress, true
	}
	return StateStable, true
}

var regimeNames = map[int]string{0: "Bullish", 1: "Bearish", 2: "Neutral"}

// RegimeName returns a display label for a cluster id. Cluster ids are
// reassigned on every retrain, so the label is cosmetic.
func RegimeName(regime int) string {
	if name, ok := regimeNames[regime]; ok {
		return name
	}
	return "Unknown"
}

// Model wraps three estimators retrained from scratch on the full table each
// cycle: a random forest stress classifier, k-means regimes and an isolation
// forest anomaly detector. It moves from untrained to trained once and never
// back.
type Model struct {
	cfg ModelConfig

	classifier *ml.RandomForest
	regimes    *ml.KMeans
	anomalies  *ml.IsolationForest
	trained    bool
	rows       int
}

// NewModel creates an untrained model. Zero fields of cfg take their defaults.
func NewModel(cfg ModelConfig) *Model {
	def := DefaultModelConfig()
	if cfg.MinRows <= 0 {
		cfg.MinRows = def.MinRows
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.Clusters <= 0 {
		cfg.Clusters = def.Clusters
	}
	if cfg.Contamination <= 0 {
		cfg.Contamination = def.Contamination
	}
	return &Model{cfg: cfg}
}

// Config returns the effective hyperparameters.
func (m *Model) Config() ModelConfig { return m.cfg }

// Trained reports whether the model has been fitted at least once.
func (m *Model) Trained() bool { return m.trained }

// TrainedRows is the table size of the last successful fit.
func (m *Model) TrainedRows() int { return m.rows }

// Train refits every estimator on the whole table. It returns ErrNotReady
// below the minimum row count and leaves earlier fits in place on failure.
func (m *Model) Train(t market.Table) error {
	if t.Len() < m.cfg.MinRows {
		return ErrNotReady
	}

	x := t.Features()
	y := make([]int, t.Len())
	for i, tick := range t.Ticks {
		y[i] = Label(tick, m.cfg.Threshold)
	}

	classifier := ml.NewRandomForest(m.cfg.Trees, m.cfg.Seed)
	if err := classifier.Fit(x, y); err != nil {
		return fmt.Errorf("fit stress classifier: %w", err)
	}
	regimes := ml.NewKMeans(m.cfg.Clusters, m.cfg.Seed)
	if err := regimes.Fit(x); err != nil {
		return fmt.Errorf("fit regime clusters: %w", err)
	}
	anomalies := ml.NewIsolationForest(m.cfg.Contamination, m.cfg.Seed)
	if err := anomalies.Fit(x); err != nil {
		return fmt.Errorf("fit anomaly detector: %w", err)
	}

	m.classifier, m.regimes, m.anomalies = classifier, regimes, anomalies
	m.trained = true
	m.rows = t.Len()
	return nil
}

// Predict scores one tick. An untrained model returns a Prediction with
// Ready unset.
func (m *Model) Predict(t market.Tick) Prediction {
	if !m.trained {
		return Prediction{}
	}
	row := t.Features()

	// Feature width is fixed by market.Tick, so the estimators cannot reject
	// the row once fitted.
	stress, err := m.classifier.Predict(row)
	if err != nil {
		return Prediction{}
	}
	regime, err := m.regimes.Predict(row)
	if err != nil {
		return Prediction{}
	}
	anomaly, err := m.anomalies.Predict(row)
	if err != nil {
		return Prediction{}
	}
	return Prediction{Ready: true, Stress: stress, Regime: regime, Anomaly: anomaly}
}

// Anomalies returns the anomaly verdict for every row of a table.
func (m *Model) Anomalies(t market.Table) ([]int, error) {
	if !m.trained {
		return nil, ErrNotReady
	}
	flags := make([]int, t.Len())
	for i, tick := range t.Ticks {
		flag, err := m.anomalies.Predict(tick.Features())
		if err != nil {
			return nil, fmt.Errorf("score row %d: %w", i, err)
		}
		flags[i] = flag
	}
	return flags, nil
}
