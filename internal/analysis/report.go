package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
	"market-stress-go/internal/ml"
)

// HeadlineScore is the compound sentiment of one headline.
type HeadlineScore struct {
	Headline string  `json:"headline" yaml:"headline"`
	Score    float64 `json:"score" yaml:"score"`
}

// LogisticResult holds the evaluation of the logistic stage. When Skipped is
// set the model was not fitted and the rows carry no predictions.
type LogisticResult struct {
	Fitted    bool                    `json:"fitted"`
	Skipped   string                  `json:"skipped,omitempty"`
	TrainRows int                     `json:"train_rows"`
	TestRows  int                     `json:"test_rows"`
	Coef      []float64               `json:"coef,omitempty"`
	Intercept float64                 `json:"intercept"`
	Report    ml.ClassificationReport `json:"report"`
	ROC       ml.ROC                  `json:"roc"`
	Predicted int                     `json:"predicted_stress"`
}

// Report is the full outcome of one pipeline run.
type Report struct {
	ID                  string          `json:"id"`
	Query               string          `json:"query"`
	Symbol              string          `json:"symbol"`
	Start               time.Time       `json:"start"`
	End                 time.Time       `json:"end"`
	CreatedAt           time.Time       `json:"created_at"`
	Headlines           []HeadlineScore `json:"headlines"`
	AverageSentiment    float64         `json:"average_sentiment"`
	VolatilityThreshold float64         `json:"volatility_threshold"`
	SentimentThreshold  float64         `json:"sentiment_threshold"`
	Signals             int             `json:"signals"`
	Anomalies           int             `json:"anomalies"`
	Rows                []Row           `json:"rows"`
	Logistic            LogisticResult  `json:"logistic"`
}

var csvHeader = []string{
	"date", "close", "volume", "returns", "volatility", "volume_change",
	"sentiment", "stress_score", "stress_signal", "anomaly", "logistic_prediction",
}

// WriteCSV writes the annotated daily table with a header row.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range r.Rows {
		pred := ""
		if row.Prediction != nil {
			pred = strconv.Itoa(*row.Prediction)
		}
		record := []string{
			row.Date.Format(time.DateOnly),
			ftoa(row.Close),
			strconv.FormatUint(row.Volume, 10),
			ftoa(row.Returns),
			ftoa(row.Volatility),
			ftoa(row.VolumeChange),
			ftoa(row.Sentiment),
			ftoa(row.StressScore),
			strconv.FormatBool(row.Signal),
			strconv.Itoa(row.Anomaly),
			pred,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Render prints a plain-text summary: the first shown headline scores, the
// thresholds and counts, and the logistic regression evaluation.
func (r *Report) Render(w io.Writer, shown int) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("Run %s  %s  %s..%s\n", r.ID, r.Symbol, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	printf("Query: %s\n\n", r.Query)

	printf("Sentiment scores (top %d headlines)\n", min(shown, len(r.Headlines)))
	for i, h := range r.Headlines {
		if i == shown {
			break
		}
		printf("  %+.4f  %s\n", h.Score, h.Headline)
	}
	printf("Average sentiment: %.4f\n\n", r.AverageSentiment)

	printf("Rows: %d\n", len(r.Rows))
	printf("Volatility threshold: %.4f  sentiment threshold: %.2f\n", r.VolatilityThreshold, r.SentimentThreshold)
	printf("Threshold stress signals: %d\n", r.Signals)
	printf("Isolation forest anomalies: %d\n\n", r.Anomalies)

	printf("Logistic regression report\n")
	if r.Logistic.Skipped != "" {
		printf("  skipped: %s\n", r.Logistic.Skipped)
		return err
	}
	printf("%s\n", r.Logistic.Report.String())
	printf("ROC AUC score: %s\n", formatAUC(r.Logistic.ROC.AUC))
	printf("Logistic model stress days: %d\n", r.Logistic.Predicted)
	return err
}

type summary struct {
	ID                  string          `yaml:"id"`
	Query               string          `yaml:"query"`
	Symbol              string          `yaml:"symbol"`
	Start               string          `yaml:"start"`
	End                 string          `yaml:"end"`
	CreatedAt           time.Time       `yaml:"created_at"`
	Headlines           []HeadlineScore `yaml:"headlines"`
	AverageSentiment    float64         `yaml:"average_sentiment"`
	VolatilityThreshold float64         `yaml:"volatility_threshold"`
	SentimentThreshold  float64         `yaml:"sentiment_threshold"`
	Rows                int             `yaml:"rows"`
	Signals             int             `yaml:"signals"`
	Anomalies           int             `yaml:"anomalies"`
	Logistic            logisticSummary `yaml:"logistic"`
}

type logisticSummary struct {
	Fitted    bool      `yaml:"fitted"`
	Skipped   string    `yaml:"skipped,omitempty"`
	TrainRows int       `yaml:"train_rows"`
	TestRows  int       `yaml:"test_rows"`
	Coef      []float64 `yaml:"coef,flow,omitempty"`
	Intercept float64   `yaml:"intercept"`
	Accuracy  float64   `yaml:"accuracy"`
	AUC       float64   `yaml:"auc"`
	Predicted int       `yaml:"predicted_stress"`
}

// WriteYAML writes the run summary without the daily table. An undefined AUC
// is kept as .nan.
func (r *Report) WriteYAML(w io.Writer) error {
	s := summary{
		ID:                  r.ID,
		Query:               r.Query,
		Symbol:              r.Symbol,
		Start:               r.Start.Format(time.DateOnly),
		End:                 r.End.Format(time.DateOnly),
		CreatedAt:           r.CreatedAt,
		Headlines:           r.Headlines,
		AverageSentiment:    r.AverageSentiment,
		VolatilityThreshold: r.VolatilityThreshold,
		SentimentThreshold:  r.SentimentThreshold,
		Rows:                len(r.Rows),
		Signals:             r.Signals,
		Anomalies:           r.Anomalies,
		Logistic: logisticSummary{
			Fitted:    r.Logistic.Fitted,
			Skipped:   r.Logistic.Skipped,
			TrainRows: r.Logistic.TrainRows,
			TestRows:  r.Logistic.TestRows,
			Coef:      r.Logistic.Coef,
			Intercept: r.Logistic.Intercept,
			Accuracy:  r.Logistic.Report.Accuracy,
			AUC:       r.Logistic.ROC.AUC,
			Predicted: r.Logistic.Predicted,
		},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&s); err != nil {
		return err
	}
	return enc.Close()
}

func formatAUC(v float64) string {
	if math.IsNaN(v) {
		return "undefined (single class in test split)"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
