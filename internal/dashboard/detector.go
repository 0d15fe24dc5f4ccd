package dashboard

import (
	"go.uber.org/zap"
	"market-stress-go/internal/market"
	"market-stress-go/internal/metrics"
)

// DetectorContext provides a detector with the state of the running cycle.
type DetectorContext struct {
	Logger  *zap.Logger
	Table   market.Table
	Metrics *metrics.Recorder
}

// Detector defines the interface for one stage of the stress cycle.
type Detector interface {
	// Name returns the unique name of the detector.
	Name() string

	// Initialize gives the detector a chance to perform setup tasks.
	Initialize(ctx DetectorContext) error

	// Detect inspects the latest tick and the table it belongs to and
	// records its verdict on the frame.
	Detect(ctx DetectorContext, frame *Frame) error
}
