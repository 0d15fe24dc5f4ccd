package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"market-stress-go/internal/analysis"
	"market-stress-go/internal/ml"
)

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("2024-01-01", "2024-04-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = parseRange("2024-04-01", "2024-01-01")
	assert.Error(t, err)
	_, _, err = parseRange("01/01/2024", "2024-04-01")
	assert.Error(t, err)
}

func TestRunRecord(t *testing.T) {
	report := &analysis.Report{
		ID:        "run-1",
		Symbol:    "SPY",
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Headlines: make([]analysis.HeadlineScore, 3),
		Rows:      make([]analysis.Row, 50),
		Signals:   7,
		Logistic: analysis.LogisticResult{
			Fitted: true,
			Report: ml.ClassificationReport{Accuracy: 0.9},
			ROC:    ml.ROC{AUC: math.NaN()},
		},
	}

	run := runRecord(report)
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, "2024-04-01", run.EndDate)
	assert.Equal(t, 3, run.Headlines)
	assert.Equal(t, 50, run.Rows)
	require.NotNil(t, run.Accuracy)
	assert.Equal(t, 0.9, *run.Accuracy)
	assert.Nil(t, run.AUC)

	report.Logistic = analysis.LogisticResult{Skipped: "single class"}
	run = runRecord(report)
	assert.Nil(t, run.Accuracy)
	assert.Equal(t, "single class", run.LogisticSkipped)
}
