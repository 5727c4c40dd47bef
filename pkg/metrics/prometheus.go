package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	bars         *prometheus.CounterVec
	patterns     *prometheus.CounterVec
	poolEvents   *prometheus.CounterVec
	poolRejected *prometheus.CounterVec
	zoneEvents   *prometheus.CounterVec
	activePools  *prometheus.GaugeVec
	activeZones  prometheus.Gauge
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		bars: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpool_bars_total",
				Help: "Base bars seen by the pipeline, by outcome",
			},
			[]string{"symbol", "outcome", "reason"},
		),
		patterns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpool_pattern_events_total",
				Help: "Pattern events emitted by detectors",
			},
			[]string{"resolution", "kind"},
		),
		poolEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpool_pool_events_total",
				Help: "Pool lifecycle events",
			},
			[]string{"resolution", "kind"},
		),
		poolRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpool_pool_rejected_total",
				Help: "Pool creations rejected by the registry or manager",
			},
			[]string{"resolution", "reason"},
		),
		zoneEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpool_zone_events_total",
				Help: "Zone lifecycle events",
			},
			[]string{"kind"},
		),
		activePools: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "liqpool_active_pools",
				Help: "Live pools per resolution",
			},
			[]string{"resolution"},
		),
		activeZones: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "liqpool_active_zones",
				Help: "Live zones",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpool_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "liqpool_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
	}
}

// RecordBar counts a base bar as accepted or dropped with a reason.
func (r *Recorder) RecordBar(symbol string, accepted bool, reason string) {
	outcome := "accepted"
	if !accepted {
		outcome = "dropped"
	}
	r.bars.WithLabelValues(symbol, outcome, reason).Inc()
}

func (r *Recorder) RecordPattern(resolution, kind string) {
	r.patterns.WithLabelValues(resolution, kind).Inc()
}

func (r *Recorder) RecordPoolEvent(resolution, kind string) {
	r.poolEvents.WithLabelValues(resolution, kind).Inc()
}

func (r *Recorder) RecordPoolRejected(resolution, reason string) {
	r.poolRejected.WithLabelValues(resolution, reason).Inc()
}

func (r *Recorder) RecordZoneEvent(kind string) {
	r.zoneEvents.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetActivePools(resolution string, n int) {
	r.activePools.WithLabelValues(resolution).Set(float64(n))
}

func (r *Recorder) SetActiveZones(n int) {
	r.activeZones.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything; used by tests and the backtest binary.
type Nop struct{}

func (Nop) RecordBar(string, bool, string)    {}
func (Nop) RecordPattern(string, string)      {}
func (Nop) RecordPoolEvent(string, string)    {}
func (Nop) RecordPoolRejected(string, string) {}
func (Nop) RecordZoneEvent(string)            {}
func (Nop) SetActivePools(string, int)        {}
func (Nop) SetActiveZones(int)                {}
func (Nop) RecordError(string)                {}
func (Nop) RecordLatency(string, float64)     {}
