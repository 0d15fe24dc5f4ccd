// Package stress turns market ticks into stress assessments, either with the
// fixed heuristic score or with the retrained classical model.
package stress

import (
	"math/rand"

	"market-stress-go/internal/market"
)

// DefaultThreshold separates "Stable" from "High Stress" scores.
const DefaultThreshold = 2.5

// State is the categorical stress level.
type State string

const (
	StateStable     State = "Stable"
	StateHighStress State = "High Stress"
)

// Action is a suggested response to a stress state.
type Action string

const (
	ActionHaltTrades Action = "Halt Trades"
	ActionRebalance  Action = "Rebalance Portfolio"
	ActionHedge      Action = "Hedge with Options"
	ActionNormal     Action = "Normal Operation"
)

// HighStressActions are the candidate responses to a high stress state.
var HighStressActions = []Action{ActionHaltTrades, ActionRebalance, ActionHedge}

// Score is volatility plus inverted sentiment. With sentiment in [-1, 1] the
// sentiment part contributes between 0 and 2.
func Score(volatility, sentiment float64) float64 {
	return volatility + (1 - sentiment)
}

// TickScore scores a tick.
func TickScore(t market.Tick) float64 {
	return Score(t.Volatility, t.Sentiment)
}

// Classify maps a score to a state; only scores strictly above threshold are
// high stress.
func Classify(score, threshold float64) State {
	if score > threshold {
		return StateHighStress
	}
	return StateStable
}

// Label is the binary training target of the stress model: 1 for high stress.
func Label(t market.Tick, threshold float64) int {
	if Classify(TickScore(t), threshold) == StateHighStress {
		return 1
	}
	return 0
}

// Assessment is the heuristic verdict for one tick.
type Assessment struct {
	Score  float64 `json:"score"`
	State  State   `json:"state"`
	Action Action  `json:"action"`
}

// Detector applies the heuristic score. High stress actions are drawn
// uniformly at random with no memory of earlier picks; the policy is a
// placeholder, not a decision engine.
type Detector struct {
	threshold float64
	rng       *rand.Rand
}

// NewDetector creates a heuristic detector. A non-positive threshold selects
// DefaultThreshold.
func NewDetector(threshold float64, rng *rand.Rand) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold, rng: rng}
}

// Threshold returns the score cut-off in use.
func (d *Detector) Threshold() float64 { return d.threshold }

// Assess scores a tick and picks a response.
func (d *Detector) Assess(t market.Tick) Assessment {
	score := TickScore(t)
	state := Classify(score, d.threshold)

	action := ActionNormal
	if state == StateHighStress {
		action = HighStressActions[d.rng.Intn(len(HighStressActions))]
	}
	return Assessment{Score: score, State: state, Action: action}
}
