package analysis

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"market-stress-go/internal/config"
	"market-stress-go/internal/feeds"
	"market-stress-go/internal/ml"
	"market-stress-go/internal/sentiment"
)

// MockHeadlineSource is a mock implementation of feeds.HeadlineSource.
type MockHeadlineSource struct {
	mock.Mock
}

func (m *MockHeadlineSource) Headlines(ctx context.Context, query string) ([]string, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockBarSource is a mock implementation of feeds.BarSource.
type MockBarSource struct {
	mock.Mock
}

func (m *MockBarSource) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]feeds.Bar, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]feeds.Bar), args.Error(1)
}

var (
	testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
)

// calmStormCalm alternates small daily moves with a volatile stretch in the
// middle, so the volatility column is bimodal.
func calmStormCalm(n int) []feeds.Bar {
	bars := make([]feeds.Bar, n)
	price := 100.0
	for i := range bars {
		amp := 0.002
		if i >= 20 && i < 45 {
			amp = 0.03
		}
		if i%2 == 0 {
			price *= 1 + amp
		} else {
			price *= 1 - amp
		}
		bars[i] = feeds.Bar{
			Timestamp: testStart.AddDate(0, 0, i),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    uint64(1000 + (i%3)*200),
		}
	}
	return bars
}

func newTestPipeline(t *testing.T, news feeds.HeadlineSource, bars feeds.BarSource) *Pipeline {
	t.Helper()
	return NewPipeline(news, bars, sentiment.NewAnalyzer(), config.Default().Analysis, zap.NewNop())
}

func TestRun(t *testing.T) {
	t.Run("EmptyHeadlinesSkipMarketData", func(t *testing.T) {
		news := new(MockHeadlineSource)
		bars := new(MockBarSource)
		news.On("Headlines", mock.Anything, "recession").Return([]string{}, nil).Once()

		p := newTestPipeline(t, news, bars)
		report, err := p.Run(context.Background(), Request{Query: "recession", Start: testStart, End: testEnd})

		assert.ErrorIs(t, err, ErrNoHeadlines)
		assert.Nil(t, report)
		news.AssertExpectations(t)
		bars.AssertNotCalled(t, "DailyBars", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("HeadlineError", func(t *testing.T) {
		news := new(MockHeadlineSource)
		bars := new(MockBarSource)
		news.On("Headlines", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

		p := newTestPipeline(t, news, bars)
		_, err := p.Run(context.Background(), Request{Start: testStart, End: testEnd})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "fetch headlines")
		bars.AssertNotCalled(t, "DailyBars", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NoMarketData", func(t *testing.T) {
		news := new(MockHeadlineSource)
		bars := new(MockBarSource)
		news.On("Headlines", mock.Anything, mock.Anything).Return([]string{"Recession fears grow"}, nil)
		// Fewer bars than the volatility window leaves nothing after dropping.
		bars.On("DailyBars", mock.Anything, "SPY", testStart, testEnd).Return(calmStormCalm(8), nil).Once()

		p := newTestPipeline(t, news, bars)
		_, err := p.Run(context.Background(), Request{Start: testStart, End: testEnd})

		assert.ErrorIs(t, err, ErrNoMarketData)
		bars.AssertExpectations(t)
	})

	t.Run("MarketDataError", func(t *testing.T) {
		news := new(MockHeadlineSource)
		bars := new(MockBarSource)
		news.On("Headlines", mock.Anything, mock.Anything).Return([]string{"Recession fears grow"}, nil)
		bars.On("DailyBars", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("403 forbidden"))

		p := newTestPipeline(t, news, bars)
		_, err := p.Run(context.Background(), Request{Start: testStart, End: testEnd})

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoMarketData)
		assert.Contains(t, err.Error(), "fetch market data")
	})

	t.Run("FullRun", func(t *testing.T) {
		news := new(MockHeadlineSource)
		bars := new(MockBarSource)
		headlines := []string{"Recession fears grow", "Stocks plunge as crash worries mount"}
		news.On("Headlines", mock.Anything, "stocks").Return(headlines, nil)
		bars.On("DailyBars", mock.Anything, "QQQ", testStart, testEnd).Return(calmStormCalm(70), nil)

		p := newTestPipeline(t, news, bars)
		report, err := p.Run(context.Background(), Request{Query: "stocks", Symbol: "QQQ", Start: testStart, End: testEnd})
		require.NoError(t, err)

		assert.NotEmpty(t, report.ID)
		assert.Equal(t, "QQQ", report.Symbol)
		require.Len(t, report.Headlines, 2)
		assert.Less(t, report.AverageSentiment, 0.0)
		assert.Len(t, report.Rows, 60)

		assert.Greater(t, report.Signals, 0)
		assert.Less(t, report.Signals, len(report.Rows))
		assert.Greater(t, report.Anomalies, 0)
		assert.LessOrEqual(t, report.Anomalies, len(report.Rows)/2)

		for _, r := range report.Rows {
			assert.Equal(t, report.AverageSentiment, r.Sentiment)
			assert.InDelta(t, r.Volatility*(1-r.Sentiment), r.StressScore, 1e-12)
			assert.Equal(t, r.Volatility > report.VolatilityThreshold, r.Signal)
			assert.Contains(t, []int{-1, 1}, r.Anomaly)
		}

		lr := report.Logistic
		require.True(t, lr.Fitted, lr.Skipped)
		assert.Equal(t, 42, lr.TrainRows)
		assert.Equal(t, 18, lr.TestRows)
		assert.Len(t, lr.Coef, 3)
		assert.GreaterOrEqual(t, lr.Report.Accuracy, 0.0)
		assert.LessOrEqual(t, lr.Report.Accuracy, 1.0)
		if !math.IsNaN(lr.ROC.AUC) {
			assert.GreaterOrEqual(t, lr.ROC.AUC, 0.0)
			assert.LessOrEqual(t, lr.ROC.AUC, 1.0)
		}
		for _, r := range report.Rows {
			require.NotNil(t, r.Prediction)
			assert.Contains(t, []int{0, 1}, *r.Prediction)
		}
	})

	t.Run("SingleRow", func(t *testing.T) {
		news := new(MockHeadlineSource)
		bars := new(MockBarSource)
		news.On("Headlines", mock.Anything, mock.Anything).Return([]string{"Recession fears grow"}, nil)
		bars.On("DailyBars", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(calmStormCalm(11), nil)

		p := newTestPipeline(t, news, bars)
		report, err := p.Run(context.Background(), Request{Start: testStart, End: testEnd})
		require.NoError(t, err)

		require.Len(t, report.Rows, 1)
		assert.Equal(t, 1, report.Rows[0].Anomaly)
		assert.Zero(t, report.Anomalies)
		assert.False(t, report.Logistic.Fitted)
		assert.NotEmpty(t, report.Logistic.Skipped)
	})

	t.Run("PositiveSentimentSkipsLogistic", func(t *testing.T) {
		news := new(MockHeadlineSource)
		bars := new(MockBarSource)
		news.On("Headlines", mock.Anything, mock.Anything).Return([]string{"Stocks rally to record gains on strong earnings"}, nil)
		bars.On("DailyBars", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(calmStormCalm(70), nil)

		p := newTestPipeline(t, news, bars)
		report, err := p.Run(context.Background(), Request{Start: testStart, End: testEnd})
		require.NoError(t, err)

		assert.Greater(t, report.AverageSentiment, 0.1)
		assert.Zero(t, report.Signals)
		assert.False(t, report.Logistic.Fitted)
		assert.NotEmpty(t, report.Logistic.Skipped)
		for _, r := range report.Rows {
			assert.Nil(t, r.Prediction)
		}

		var buf bytes.Buffer
		require.NoError(t, report.Render(&buf, 10))
		assert.Contains(t, buf.String(), "skipped")
	})
}

func TestBuildFeatures(t *testing.T) {
	bars := calmStormCalm(15)
	rows := BuildFeatures(bars, 10, 252)
	require.Len(t, rows, 5)
	assert.Equal(t, bars[10].Timestamp, rows[0].Date)

	want := (bars[10].Close - bars[9].Close) / bars[9].Close
	assert.InDelta(t, want, rows[0].Returns, 1e-12)
	wantVol := (float64(bars[10].Volume) - float64(bars[9].Volume)) / float64(bars[9].Volume)
	assert.InDelta(t, wantVol, rows[0].VolumeChange, 1e-12)
	for _, r := range rows {
		assert.Greater(t, r.Volatility, 0.0)
	}

	// A zero-volume day makes the next volume change undefined.
	bars[12].Volume = 0
	rows = BuildFeatures(bars, 10, 252)
	assert.Len(t, rows, 4)

	assert.Empty(t, BuildFeatures(bars[:10], 10, 252))
	assert.Empty(t, BuildFeatures(nil, 10, 252))
}

func TestApplySignals(t *testing.T) {
	rows := []Row{{Volatility: 0.1}, {Volatility: 0.5}, {Volatility: 0.9}}
	thr := VolatilityThreshold(rows, 1)
	assert.InDelta(t, 0.5+0.4, thr, 1e-12)

	assert.Equal(t, 0, ApplySignals(rows, -0.2, thr, 0.1))
	assert.Equal(t, 1, ApplySignals(rows, -0.2, 0.6, 0.1))
	assert.InDelta(t, 0.9*1.2, rows[2].StressScore, 1e-12)
	assert.Equal(t, 0, ApplySignals(rows, 0.1, 0.6, 0.1), "sentiment at the threshold never signals")
}

func TestReportCSV(t *testing.T) {
	one := 1
	report := &Report{Rows: []Row{
		{Date: testStart, Close: 101.5, Volume: 1200, Volatility: 0.2, Anomaly: -1, Prediction: &one, Signal: true},
		{Date: testStart.AddDate(0, 0, 1), Close: 100, Volume: 900, Anomaly: 1},
	}}

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "2024-01-01", records[1][0])
	assert.Equal(t, "true", records[1][8])
	assert.Equal(t, "-1", records[1][9])
	assert.Equal(t, "1", records[1][10])
	assert.Equal(t, "", records[2][10])
}

func TestReportYAML(t *testing.T) {
	report := &Report{
		ID:               "run-1",
		Symbol:           "SPY",
		Start:            testStart,
		End:              testEnd,
		Headlines:        []HeadlineScore{{Headline: "Recession fears grow", Score: -0.4}},
		AverageSentiment: -0.4,
		Rows:             make([]Row, 12),
		Signals:          3,
		Logistic: LogisticResult{
			Fitted: true,
			Coef:   []float64{1.5, -0.2, 0.1},
			Report: ml.ClassificationReport{Accuracy: 0.75},
			ROC:    ml.ROC{AUC: math.NaN()},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "auc: .nan")

	var got summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "2024-01-01", got.Start)
	assert.Equal(t, 12, got.Rows)
	assert.Equal(t, 3, got.Signals)
	assert.Equal(t, report.Headlines, got.Headlines)
	assert.Equal(t, []float64{1.5, -0.2, 0.1}, got.Logistic.Coef)
	assert.Equal(t, 0.75, got.Logistic.Accuracy)
	assert.True(t, math.IsNaN(got.Logistic.AUC))
}
