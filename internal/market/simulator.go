package market

import (
	"math"
	"math/rand"
	"time"
)

const (
	// DefaultStartPrice is the price the random walk starts from.
	DefaultStartPrice = 100.0

	minPrice    = 1.0
	shockProb   = 0.1
	shockStdDev = 3.0
	stepStdDev  = 1.0
	minVolume   = 100
	maxVolume   = 1000 // exclusive
)

// SimulatorOption customizes a Simulator.
type SimulatorOption func(*Simulator)

// WithStartPrice sets the initial price of the random walk.
func WithStartPrice(price float64) SimulatorOption {
	return func(s *Simulator) {
		if price >= minPrice {
			s.price = price
		}
	}
}

// WithRetention caps the history at n ticks, evicting the oldest first.
// Zero keeps every tick.
func WithRetention(n int) SimulatorOption {
	return func(s *Simulator) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithClock replaces time.Now as the tick timestamp source.
func WithClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// Simulator fabricates synthetic market ticks: a random walk on price with
// occasional heavy-tailed shocks, uniform volume and uniform sentiment.
//
// Sentiment is drawn independently of price and volume. That is a
// simplification of real markets and is kept on purpose so results stay
// comparable with earlier runs.
//
// A Simulator is owned by a single goroutine.
type Simulator struct {
	rng       *rand.Rand
	now       func() time.Time
	price     float64
	retention int
	history   []Tick
	generated int
}

// NewSimulator creates a simulator that draws every random value from rng.
func NewSimulator(rng *rand.Rand, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		rng:   rng,
		now:   time.Now,
		price: DefaultStartPrice,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate produces the next tick and appends it to the history.
func (s *Simulator) Generate() Tick {
	shock := 0.0
	if s.rng.Float64() < shockProb {
		shock = s.rng.NormFloat64() * shockStdDev
	}
	change := s.rng.NormFloat64()*stepStdDev + shock
	s.price = math.Max(minPrice, s.price+change)

	tick := Tick{
		Time:       s.now(),
		Price:      s.price,
		Volume:     minVolume + s.rng.Intn(maxVolume-minVolume),
		Sentiment:  -1 + 2*s.rng.Float64(),
		Volatility: math.Abs(change),
	}

	if s.retention > 0 && len(s.history) == s.retention {
		copy(s.history, s.history[1:])
		s.history[len(s.history)-1] = tick
	} else {
		s.history = append(s.history, tick)
	}
	s.generated++
	return tick
}

// Snapshot returns a copy of the history in generation order.
func (s *Simulator) Snapshot() Table {
	ticks := make([]Tick, len(s.history))
	copy(ticks, s.history)
	return Table{Ticks: ticks}
}

// Len is the number of ticks currently retained.
func (s *Simulator) Len() int { return len(s.history) }

// Generated is the number of ticks produced since creation, evicted ones
// included.
func (s *Simulator) Generated() int { return s.generated }

// Price is the current price of the walk.
func (s *Simulator) Price() float64 { return s.price }
