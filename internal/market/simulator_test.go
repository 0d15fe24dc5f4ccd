package market

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSimulator(opts ...SimulatorOption) *Simulator {
	return NewSimulator(rand.New(rand.NewSource(7)), opts...)
}

func TestSimulator_Generate_Ranges(t *testing.T) {
	sim := newTestSimulator()

	for i := 0; i < 5000; i++ {
		tick := sim.Generate()
		assert.GreaterOrEqual(t, tick.Price, 1.0)
		assert.GreaterOrEqual(t, tick.Volume, 100)
		assert.Less(t, tick.Volume, 1000)
		assert.GreaterOrEqual(t, tick.Sentiment, -1.0)
		assert.LessOrEqual(t, tick.Sentiment, 1.0)
		assert.GreaterOrEqual(t, tick.Volatility, 0.0)
	}
}

func TestSimulator_PriceFloor(t *testing.T) {
	// Starting at the floor, any downward move must be clamped.
	sim := newTestSimulator(WithStartPrice(1))
	for i := 0; i < 1000; i++ {
		tick := sim.Generate()
		assert.GreaterOrEqual(t, tick.Price, 1.0)
	}
}

func TestSimulator_VolatilityIsUnclampedChange(t *testing.T) {
	sim := newTestSimulator(WithStartPrice(500))
	prev := sim.Price()
	for i := 0; i < 200; i++ {
		tick := sim.Generate()
		// Far from the floor, the move is never clamped.
		assert.InDelta(t, math.Abs(tick.Price-prev), tick.Volatility, 1e-9)
		prev = tick.Price
	}
}

func TestSimulator_HistoryGrowsByOne(t *testing.T) {
	sim := newTestSimulator()
	for i := 1; i <= 50; i++ {
		sim.Generate()
		assert.Equal(t, i, sim.Len())
		assert.Equal(t, i, sim.Snapshot().Len())
	}
	assert.Equal(t, 50, sim.Generated())
}

func TestSimulator_SnapshotIsIdempotentCopy(t *testing.T) {
	sim := newTestSimulator()
	for i := 0; i < 10; i++ {
		sim.Generate()
	}

	first := sim.Snapshot()
	second := sim.Snapshot()
	assert.Equal(t, first, second)

	first.Ticks[0].Price = -42
	third := sim.Snapshot()
	assert.Equal(t, second, third, "mutating a snapshot must not reach the history")
}

func TestSimulator_Retention(t *testing.T) {
	sim := newTestSimulator(WithRetention(5))
	var produced []Tick
	for i := 0; i < 12; i++ {
		produced = append(produced, sim.Generate())
	}

	assert.Equal(t, 5, sim.Len())
	assert.Equal(t, 12, sim.Generated())
	assert.Equal(t, produced[7:], sim.Snapshot().Ticks)
}

func TestSimulator_Deterministic(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	a := NewSimulator(rand.New(rand.NewSource(1)), WithClock(clock))
	b := NewSimulator(rand.New(rand.NewSource(1)), WithClock(clock))
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestTable_Features(t *testing.T) {
	table := Table{Ticks: []Tick{{Price: 101, Volume: 300, Sentiment: -0.5, Volatility: 1.25}}}
	assert.Equal(t, [][]float64{{101, 300, -0.5, 1.25}}, table.Features())

	latest, ok := table.Latest()
	require.True(t, ok)
	assert.Equal(t, 101.0, latest.Price)

	_, ok = Table{}.Latest()
	assert.False(t, ok)
}

func TestAnnotate(t *testing.T) {
	var table Table
	for i := 1; i <= 12; i++ {
		table.Ticks = append(table.Ticks, Tick{Price: float64(i), Sentiment: 0.5, Volatility: 1})
	}
	score := func(t Tick) float64 { return t.Volatility + (1 - t.Sentiment) }

	rows, err := Annotate(table, 10, score, nil)
	require.NoError(t, err)
	require.Len(t, rows, 12)

	for i := 0; i < 9; i++ {
		assert.True(t, math.IsNaN(rows[i].PriceMA), "row %d", i)
	}
	assert.InDelta(t, 5.5, rows[9].PriceMA, 1e-9)
	assert.InDelta(t, 7.5, rows[11].PriceMA, 1e-9)
	assert.InDelta(t, 1.5, rows[0].StressScore, 1e-9)
	assert.Zero(t, rows[0].Anomaly)

	_, err = Annotate(table, 10, score, []int{1})
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rows := []Row{
		{Tick: Tick{Time: ts, Price: 100.5, Volume: 250, Sentiment: 0.1, Volatility: 0.5}, StressScore: 1.4, PriceMA: math.NaN(), Anomaly: -1},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows, true))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"time", "price", "volume", "sentiment", "volatility", "stress_score", "price_ma10", "anomaly"}, records[0])
	assert.Equal(t, []string{"2024-03-01T09:30:00Z", "100.5", "250", "0.1", "0.5", "1.4", "", "-1"}, records[1])

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, rows, false))
	records, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records[0], 7)
}

func TestRow_MarshalJSON(t *testing.T) {
	row := Row{Tick: Tick{Price: 10}, StressScore: 2, PriceMA: math.NaN()}
	data, err := json.Marshal(row)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["price_ma10"])
	assert.Equal(t, 10.0, decoded["price"])

	row.PriceMA = 9.5
	data, err = json.Marshal(row)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 9.5, decoded["price_ma10"])
}
