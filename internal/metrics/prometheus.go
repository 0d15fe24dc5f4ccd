// Package metrics exposes the dashboard loop as Prometheus series.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records dashboard cycles on its own registry.
type Recorder struct {
	registry      *prometheus.Registry
	cycles        prometheus.Counter
	lastPrice     prometheus.Gauge
	lastScore     prometheus.Gauge
	tableRows     prometheus.Gauge
	stressStates  *prometheus.CounterVec
	anomalies     prometheus.Counter
	errorsTotal   *prometheus.CounterVec
	trainDuration prometheus.Histogram
	cycleDuration prometheus.Histogram
}

// New creates a recorder. The registry also carries the Go runtime and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "market_stress_cycles_total",
			Help: "Total number of simulate-score-predict cycles",
		}),
		lastPrice: factory.NewGauge(prometheus.GaugeOpts{
			Name: "market_stress_last_price",
			Help: "Price of the latest simulated tick",
		}),
		lastScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "market_stress_last_score",
			Help: "Heuristic stress score of the latest tick",
		}),
		tableRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "market_stress_table_rows",
			Help: "Rows in the simulated history",
		}),
		stressStates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "market_stress_states_total",
			Help: "Ticks per stress state and detector",
		}, []string{"detector", "state"}),
		anomalies: factory.NewCounter(prometheus.CounterOpts{
			Name: "market_stress_anomalies_total",
			Help: "Ticks flagged as anomalies by the model",
		}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "market_stress_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		trainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "market_stress_train_duration_seconds",
			Help:    "Duration of a full model retrain",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "market_stress_cycle_duration_seconds",
			Help:    "Duration of one dashboard cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordTick records the latest tick, its score and the history size.
func (r *Recorder) RecordTick(price, score float64, rows int) {
	r.cycles.Inc()
	r.lastPrice.Set(price)
	r.lastScore.Set(score)
	r.tableRows.Set(float64(rows))
}

// RecordState counts a stress state reported by a detector.
func (r *Recorder) RecordState(detector, state string) {
	r.stressStates.WithLabelValues(detector, state).Inc()
}

// RecordAnomaly counts a tick the model flagged as an outlier.
func (r *Recorder) RecordAnomaly() {
	r.anomalies.Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordTrain records how long a retrain took.
func (r *Recorder) RecordTrain(d time.Duration) {
	r.trainDuration.Observe(d.Seconds())
}

// RecordCycle records how long a whole cycle took.
func (r *Recorder) RecordCycle(d time.Duration) {
	r.cycleDuration.Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
