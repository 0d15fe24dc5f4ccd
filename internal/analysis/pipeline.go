// Package analysis runs the one-shot market stress study: news sentiment for a
// query, daily bars for a ticker, threshold stress signals, an isolation
// forest over volatility and volume change, and a logistic regression trained
// on the signals.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"market-stress-go/internal/config"
	"market-stress-go/internal/feeds"
	"market-stress-go/internal/ml"
	"market-stress-go/internal/sentiment"
)

var (
	// ErrNoHeadlines means the news search returned nothing to score. No
	// market data is fetched in that case.
	ErrNoHeadlines = errors.New("no headlines found")
	// ErrNoMarketData means no usable daily rows were left for the range.
	ErrNoMarketData = errors.New("no market data available")
)

// Request is one analysis invocation.
type Request struct {
	Query  string
	Symbol string
	Start  time.Time
	End    time.Time
}

// Pipeline wires the feeds, the sentiment analyzer and the estimators.
type Pipeline struct {
	news     feeds.HeadlineSource
	bars     feeds.BarSource
	analyzer *sentiment.Analyzer
	cfg      config.Analysis
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline creates a pipeline. Zero values in cfg fall back to the
// configuration defaults.
func NewPipeline(news feeds.HeadlineSource, bars feeds.BarSource, analyzer *sentiment.Analyzer, cfg config.Analysis, logger *zap.Logger) *Pipeline {
	def := config.Default().Analysis
	if cfg.Symbol == "" {
		cfg.Symbol = def.Symbol
	}
	if cfg.VolatilityWindow < 2 {
		cfg.VolatilityWindow = def.VolatilityWindow
	}
	if cfg.TradingDays <= 0 {
		cfg.TradingDays = def.TradingDays
	}
	if cfg.Contamination <= 0 {
		cfg.Contamination = def.Contamination
	}
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		cfg.TestSize = def.TestSize
	}
	if cfg.HeadlinesShown <= 0 {
		cfg.HeadlinesShown = def.HeadlinesShown
	}
	return &Pipeline{
		news:     news,
		bars:     bars,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.Named("analysis"),
		now:      time.Now,
	}
}

// Run executes every stage in order and returns the report. Upstream
// failures are returned wrapped and no partial report is produced.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Query == "" {
		req.Query = p.cfg.Query
	}
	if req.Symbol == "" {
		req.Symbol = p.cfg.Symbol
	}
	log := p.logger.With(zap.String("query", req.Query), zap.String("symbol", req.Symbol))

	report := &Report{
		ID:                 uuid.NewString(),
		Query:              req.Query,
		Symbol:             req.Symbol,
		Start:              req.Start,
		End:                req.End,
		CreatedAt:          p.now(),
		SentimentThreshold: p.cfg.SentimentThreshold,
	}

	headlines, err := p.news.Headlines(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("fetch headlines: %w", err)
	}
	if len(headlines) == 0 {
		log.Warn("No headlines found")
		return nil, ErrNoHeadlines
	}

	scores := make([]float64, len(headlines))
	for i, h := range headlines {
		scores[i] = p.analyzer.Compound(h)
		report.Headlines = append(report.Headlines, HeadlineScore{Headline: h, Score: scores[i]})
	}
	report.AverageSentiment = sentiment.Mean(scores)
	log.Info("Scored headlines", zap.Int("headlines", len(headlines)), zap.Float64("average_sentiment", report.AverageSentiment))

	bars, err := p.bars.DailyBars(ctx, req.Symbol, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("fetch market data: %w", err)
	}
	rows := BuildFeatures(bars, p.cfg.VolatilityWindow, p.cfg.TradingDays)
	if len(rows) == 0 {
		log.Error("No market data available", zap.Int("bars", len(bars)))
		return nil, ErrNoMarketData
	}

	report.VolatilityThreshold = VolatilityThreshold(rows, 1)
	report.Signals = ApplySignals(rows, report.AverageSentiment, report.VolatilityThreshold, p.cfg.SentimentThreshold)

	anomalies, err := p.detectAnomalies(rows)
	if err != nil {
		return nil, fmt.Errorf("isolation forest: %w", err)
	}
	report.Anomalies = anomalies

	report.Rows = rows
	report.Logistic, err = p.fitLogistic(rows)
	if err != nil {
		return nil, fmt.Errorf("logistic regression: %w", err)
	}
	if report.Logistic.Skipped != "" {
		log.Warn("Logistic regression skipped", zap.String("reason", report.Logistic.Skipped))
	}

	log.Info("Analysis complete",
		zap.String("run_id", report.ID),
		zap.Int("rows", len(rows)),
		zap.Int("signals", report.Signals),
		zap.Int("anomalies", report.Anomalies),
		zap.Float64("auc", report.Logistic.ROC.AUC),
	)
	return report, nil
}

func (p *Pipeline) detectAnomalies(rows []Row) (int, error) {
	x := make([][]float64, len(rows))
	for i, r := range rows {
		x[i] = []float64{r.Volatility, r.VolumeChange}
	}
	forest := ml.NewIsolationForest(p.cfg.Contamination, p.cfg.Seed)
	if err := forest.Fit(x); err != nil {
		return 0, err
	}
	var count int
	for i := range rows {
		verdict, err := forest.Predict(x[i])
		if err != nil {
			return 0, err
		}
		rows[i].Anomaly = verdict
		if verdict == -1 {
			count++
		}
	}
	return count, nil
}

func (p *Pipeline) fitLogistic(rows []Row) (LogisticResult, error) {
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, r := range rows {
		x[i] = []float64{r.Volatility, r.Sentiment, r.VolumeChange}
		if r.Signal {
			y[i] = 1
		}
	}

	res := LogisticResult{ROC: ml.ROC{AUC: math.NaN()}}
	train, test, err := ml.TrainTestSplit(len(rows), p.cfg.TestSize, p.cfg.Seed)
	if err != nil {
		res.Skipped = err.Error()
		return res, nil
	}
	xTrain, yTrain := ml.Subset(x, y, train)
	xTest, yTest := ml.Subset(x, y, test)
	res.TrainRows, res.TestRows = len(train), len(test)

	model := ml.NewLogisticRegression()
	if err := model.Fit(xTrain, yTrain); err != nil {
		if errors.Is(err, ml.ErrSingleClass) {
			res.Skipped = "training split holds a single stress class"
			return res, nil
		}
		return res, err
	}
	res.Coef = model.Coef
	res.Intercept = model.Intercept

	predictions := make([]int, len(xTest))
	probas := make([]float64, len(xTest))
	for i, row := range xTest {
		if probas[i], err = model.PredictProba(row); err != nil {
			return res, err
		}
		if probas[i] > 0.5 {
			predictions[i] = 1
		}
	}
	if res.Report, err = ml.Classify(yTest, predictions); err != nil {
		return res, err
	}
	if res.ROC, err = ml.ROCCurve(probas, yTest); err != nil && !errors.Is(err, ml.ErrSingleClass) {
		return res, err
	}

	for i := range rows {
		pred, err := model.Predict(x[i])
		if err != nil {
			return res, err
		}
		rows[i].Prediction = &pred
		if pred == 1 {
			res.Predicted++
		}
	}
	res.Fitted = true
	return res, nil
}
