// Package dashboard runs the live stress loop: every refresh it generates a
// tick, runs the detectors over the table and publishes the result to the
// API, the stream subscribers, the metrics and the journal.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"market-stress-go/internal/config"
	"market-stress-go/internal/market"
	"market-stress-go/internal/metrics"
	"market-stress-go/internal/models"
	"market-stress-go/internal/stress"
)

// Engine owns one simulated session.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger    *zap.Logger
	cfg       *config.Config
	simulator *market.Simulator
	detectors []Detector
	db        *gorm.DB
	recorder  *metrics.Recorder

	cycle int

	mu     sync.RWMutex
	latest *Frame

	subMu       sync.Mutex
	subscribers map[chan *Frame]struct{}
}

// NewEngine creates a session engine. db may be nil, in which case no
// journal is written.
func NewEngine(logger *zap.Logger, cfg *config.Config, simulator *market.Simulator, detectors []Detector, db *gorm.DB, recorder *metrics.Recorder) *Engine {
	id := uuid.NewString()
	return &Engine{
		UUID:        id,
		Name:        cfg.Dashboard.Name,
		StartTime:   time.Now(),
		logger:      logger.Named("engine").With(zap.String("session_id", id)),
		cfg:         cfg,
		simulator:   simulator,
		detectors:   detectors,
		db:          db,
		recorder:    recorder,
		subscribers: make(map[chan *Frame]struct{}),
	}
}

// Initialize lets every detector set itself up.
func (e *Engine) Initialize() error {
	dctx := e.detectorContext(market.Table{})
	for _, d := range e.detectors {
		if err := d.Initialize(dctx); err != nil {
			return fmt.Errorf("initialize detector %s: %w", d.Name(), err)
		}
	}
	return nil
}

// Run steps once immediately and then on every refresh tick until ctx is
// cancelled. Cycle errors are logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Initialize(); err != nil {
		return err
	}

	interval := e.cfg.Dashboard.RefreshInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting stress loop",
		zap.String("name", e.Name),
		zap.Duration("interval", interval),
		zap.Int("detectors", len(e.detectors)),
	)

	for {
		if _, err := e.Step(); err != nil {
			e.logger.Error("Cycle failed", zap.Error(err))
			e.recorder.RecordError("cycle")
		}
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping stress loop", zap.Int("cycles", e.cycle))
			e.closeSubscribers()
			return nil
		case <-ticker.C:
		}
	}
}

// Step runs one simulate, detect, annotate and publish cycle. It must not
// be called concurrently.
func (e *Engine) Step() (*Frame, error) {
	start := time.Now()

	tick := e.simulator.Generate()
	table := e.simulator.Snapshot()
	e.cycle++

	frame := &Frame{
		SessionID: e.UUID,
		Cycle:     e.cycle,
		Tick:      tick,
		Rows:      table.Len(),
	}

	dctx := e.detectorContext(table)
	for _, d := range e.detectors {
		if err := d.Detect(dctx, frame); err != nil {
			e.logger.Error("Detector failed", zap.String("detector", d.Name()), zap.Error(err))
			e.recorder.RecordError("detector")
		}
	}

	annotated, err := market.Annotate(table, e.cfg.Dashboard.MAWindow, stress.TickScore, frame.Anomalies)
	if err != nil {
		return nil, fmt.Errorf("annotate table: %w", err)
	}
	frame.finalize(annotated)

	e.recorder.RecordTick(tick.Price, stress.TickScore(tick), table.Len())
	e.publish(frame)
	if e.db != nil && e.cfg.Dashboard.Persist {
		e.persist(frame)
	}
	e.recorder.RecordCycle(time.Since(start))

	e.logger.Debug("Cycle complete",
		zap.Int("cycle", frame.Cycle),
		zap.Float64("price", tick.Price),
		zap.String("state", string(frame.Assessment.State)),
		zap.String("model_state", frame.ModelState),
	)
	return frame, nil
}

// Latest returns the most recently published frame, or nil before the first
// cycle.
func (e *Engine) Latest() *Frame {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Detectors returns the names of the configured detectors.
func (e *Engine) Detectors() []string {
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	return names
}

// Subscribe registers a stream of published frames. A subscriber that falls
// behind misses frames rather than blocking the loop. The returned function
// unregisters it.
func (e *Engine) Subscribe() (<-chan *Frame, func()) {
	ch := make(chan *Frame, 1)
	e.subMu.Lock()
	e.subscribers[ch] = struct{}{}
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			if _, ok := e.subscribers[ch]; ok {
				delete(e.subscribers, ch)
				close(ch)
			}
			e.subMu.Unlock()
		})
	}
}

func (e *Engine) detectorContext(table market.Table) DetectorContext {
	return DetectorContext{Logger: e.logger, Table: table, Metrics: e.recorder}
}

func (e *Engine) publish(frame *Frame) {
	e.mu.Lock()
	e.latest = frame
	e.mu.Unlock()

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subscribers {
		delete(e.subscribers, ch)
		close(ch)
	}
}

func (e *Engine) persist(frame *Frame) {
	eval := models.Evaluation{
		SessionID:   e.UUID,
		TickTime:    frame.Tick.Time.UnixMilli(),
		Price:       frame.Tick.Price,
		Volume:      frame.Tick.Volume,
		Sentiment:   frame.Tick.Sentiment,
		Volatility:  frame.Tick.Volatility,
		StressScore: frame.Assessment.Score,
		State:       string(frame.Assessment.State),
		Action:      string(frame.Assessment.Action),
		ModelReady:  frame.Prediction.Ready,
		MLStress:    frame.Prediction.Stress,
		Regime:      frame.Prediction.Regime,
		Anomaly:     frame.Prediction.Anomaly,
	}
	if err := e.db.Create(&eval).Error; err != nil {
		e.logger.Error("Failed to save evaluation", zap.Error(err))
		e.recorder.RecordError("journal")
	}
}
