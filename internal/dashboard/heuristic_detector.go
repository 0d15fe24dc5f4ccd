package dashboard

import (
	"math/rand"

	"go.uber.org/zap"
	"market-stress-go/internal/stress"
)

// HeuristicDetector applies the fixed stress score formula.
type HeuristicDetector struct {
	detector *stress.Detector
}

// NewHeuristicDetector creates the formula based detector.
func NewHeuristicDetector(threshold float64, rng *rand.Rand) *HeuristicDetector {
	return &HeuristicDetector{detector: stress.NewDetector(threshold, rng)}
}

func (d *HeuristicDetector) Name() string {
	return "heuristic"
}

func (d *HeuristicDetector) Initialize(ctx DetectorContext) error {
	ctx.Logger.Info("Heuristic detector initialized", zap.Float64("threshold", d.detector.Threshold()))
	return nil
}

func (d *HeuristicDetector) Detect(ctx DetectorContext, frame *Frame) error {
	frame.Assessment = d.detector.Assess(frame.Tick)
	ctx.Metrics.RecordState(d.Name(), string(frame.Assessment.State))
	if frame.Assessment.State == stress.StateHighStress {
		ctx.Logger.Debug("High stress tick",
			zap.Float64("score", frame.Assessment.Score),
			zap.String("action", string(frame.Assessment.Action)),
		)
	}
	return nil
}
