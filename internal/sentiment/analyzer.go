// Package sentiment scores news headlines with VADER and averages the
// compound polarities of a batch.
package sentiment

import (
	"github.com/jonreiter/govader"
	"gonum.org/v1/gonum/stat"
)

// Scores are the polarity proportions of a text and its normalized compound
// score in [-1, 1].
type Scores struct {
	Positive float64 `json:"pos"`
	Negative float64 `json:"neg"`
	Neutral  float64 `json:"neu"`
	Compound float64 `json:"compound"`
}

// Analyzer wraps a VADER intensity analyzer. It only reads its lexicon after
// construction and is safe for concurrent use.
type Analyzer struct {
	sia *govader.SentimentIntensityAnalyzer
}

// NewAnalyzer loads the bundled VADER lexicon.
func NewAnalyzer() *Analyzer {
	return &Analyzer{sia: govader.NewSentimentIntensityAnalyzer()}
}

// PolarityScores scores a single text.
func (a *Analyzer) PolarityScores(text string) Scores {
	s := a.sia.PolarityScores(text)
	return Scores{
		Positive: s.Positive,
		Negative: s.Negative,
		Neutral:  s.Neutral,
		Compound: s.Compound,
	}
}

// Compound is shorthand for PolarityScores(text).Compound.
func (a *Analyzer) Compound(text string) float64 {
	return a.sia.PolarityScores(text).Compound
}

// Mean averages compound scores; an empty slice averages to 0.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	return stat.Mean(scores, nil)
}
