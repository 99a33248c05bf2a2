package prometheus

import (
	"github.com/marmos91/mapperd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MapperMetrics is the Prometheus implementation of the mapper's domain
// metrics: registry occupancy, per-map flag state, copy-up throughput and
// blocker RPC latency.
type MapperMetrics struct {
	registrySize  prometheus.Gauge
	mapState      *prometheus.GaugeVec
	copyUpsTotal  *prometheus.CounterVec
	copyUpLatency prometheus.Histogram
	blockerRPCs   *prometheus.HistogramVec
}

// NewMapperMetrics creates the mapper's Prometheus metrics.
//
// Returns nil if metrics are not enabled (metrics.InitRegistry not called),
// matching the nil-receiver no-op pattern used throughout this package.
func NewMapperMetrics() *MapperMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &MapperMetrics{
		registrySize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mapperd_registry_maps",
			Help: "Number of maps currently loaded in the registry.",
		}),
		mapState: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapperd_map_state",
				Help: "1 if a loaded map currently carries the given flag, 0 otherwise.",
			},
			[]string{"volume", "flag"},
		),
		copyUpsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapperd_copyups_total",
				Help: "Total copy-up operations by outcome.",
			},
			[]string{"outcome"}, // "completed", "zero_block", "failed"
		),
		copyUpLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mapperd_copyup_duration_seconds",
			Help:    "Time to complete one node copy-up, source COPY through map WRITE.",
			Buckets: prometheus.DefBuckets,
		}),
		blockerRPCs: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mapperd_blocker_rpc_duration_seconds",
				Help:    "Blocker RPC round-trip latency by blocker and opcode.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"blocker", "op"}, // blocker: "data"/"map"
		),
	}
}

// SetRegistrySize records the current number of loaded maps.
func (m *MapperMetrics) SetRegistrySize(n int) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(n))
}

// SetMapFlag records whether volume currently carries flag.
func (m *MapperMetrics) SetMapFlag(volume, flag string, set bool) {
	if m == nil {
		return
	}
	v := 0.0
	if set {
		v = 1.0
	}
	m.mapState.WithLabelValues(volume, flag).Set(v)
}

// RecordCopyUp records the outcome and duration of one node copy-up.
func (m *MapperMetrics) RecordCopyUp(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.copyUpsTotal.WithLabelValues(outcome).Inc()
	m.copyUpLatency.Observe(seconds)
}

// RecordBlockerRPC records the latency of one blocker round trip.
func (m *MapperMetrics) RecordBlockerRPC(blocker, op string, seconds float64) {
	if m == nil {
		return
	}
	m.blockerRPCs.WithLabelValues(blocker, op).Observe(seconds)
}
