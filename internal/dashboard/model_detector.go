package dashboard

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"market-stress-go/internal/stress"
)

// ModelDetector retrains the stress model on the whole table every cycle and
// predicts the latest tick.
type ModelDetector struct {
	model *stress.Model
}

// NewModelDetector creates the ML detector.
func NewModelDetector(cfg stress.ModelConfig) *ModelDetector {
	return &ModelDetector{model: stress.NewModel(cfg)}
}

func (d *ModelDetector) Name() string {
	return "model"
}

func (d *ModelDetector) Initialize(ctx DetectorContext) error {
	cfg := d.model.Config()
	ctx.Logger.Info("Model detector initialized",
		zap.Int("min_rows", cfg.MinRows),
		zap.Int("trees", cfg.Trees),
		zap.Int("clusters", cfg.Clusters),
		zap.Float64("contamination", cfg.Contamination),
	)
	return nil
}

// Detect trains before predicting. A failed retrain keeps the previous fit
// for prediction and is reported after the frame is filled in.
func (d *ModelDetector) Detect(ctx DetectorContext, frame *Frame) error {
	wasTrained := d.model.Trained()

	start := time.Now()
	trainErr := d.model.Train(ctx.Table)
	switch {
	case errors.Is(trainErr, stress.ErrNotReady):
		if !wasTrained {
			frame.Prediction = stress.Prediction{}
			return nil
		}
		// A shrunken table never untrains the model.
		trainErr = nil
	case trainErr == nil:
		ctx.Metrics.RecordTrain(time.Since(start))
		if !wasTrained {
			ctx.Logger.Info("Stress model trained", zap.Int("rows", ctx.Table.Len()))
		}
	}

	if !d.model.Trained() {
		return fmt.Errorf("train stress model: %w", trainErr)
	}

	frame.Prediction = d.model.Predict(frame.Tick)
	if state, ok := frame.Prediction.State(); ok {
		ctx.Metrics.RecordState(d.Name(), string(state))
	}
	if frame.Prediction.Anomaly == -1 {
		ctx.Metrics.RecordAnomaly()
	}

	anomalies, err := d.model.Anomalies(ctx.Table)
	if err != nil {
		return fmt.Errorf("score anomalies: %w", err)
	}
	frame.Anomalies = anomalies

	if trainErr != nil {
		return fmt.Errorf("train stress model: %w", trainErr)
	}
	return nil
}
