package prometheus

import (
	"github.com/marmos91/mapperd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BadgerMetrics is the Prometheus implementation for BadgerDB metrics.
type BadgerMetrics struct {
	cacheHitRatio *prometheus.GaugeVec
	cacheMisses   *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
}

// NewBadgerMetrics creates a new Prometheus-backed BadgerDB metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBadgerMetrics() *BadgerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &BadgerMetrics{
		cacheHitRatio: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapperd_badger_cache_hit_ratio",
				Help: "BadgerDB cache hit ratio (0.0 to 1.0) by cache type",
			},
			[]string{"cache_type"}, // "block", "index"
		),
		cacheMisses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapperd_badger_cache_misses_total",
				Help: "Total number of BadgerDB cache misses by cache type",
			},
			[]string{"cache_type"}, // "block", "index"
		),
		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapperd_badger_cache_hits_total",
				Help: "Total number of BadgerDB cache hits by cache type",
			},
			[]string{"cache_type"}, // "block", "index"
		),
	}
}

// RecordCacheHitRatio records the cache hit ratio for a specific cache type.
// ratio should be between 0.0 and 1.0
func (m *BadgerMetrics) RecordCacheHitRatio(cacheType string, ratio float64) {
	if m == nil {
		return
	}
	m.cacheHitRatio.WithLabelValues(cacheType).Set(ratio)
}

// RecordCacheMiss adds delta cache misses for a specific cache type. BadgerDB
// reports cumulative counts, so callers must track their own last-seen totals
// and pass only the increase.
func (m *BadgerMetrics) RecordCacheMiss(cacheType string, delta uint64) {
	if m == nil || delta == 0 {
		return
	}
	m.cacheMisses.WithLabelValues(cacheType).Add(float64(delta))
}

// RecordCacheHit adds delta cache hits for a specific cache type. BadgerDB
// reports cumulative counts, so callers must track their own last-seen totals
// and pass only the increase.
func (m *BadgerMetrics) RecordCacheHit(cacheType string, delta uint64) {
	if m == nil || delta == 0 {
		return
	}
	m.cacheHits.WithLabelValues(cacheType).Add(float64(delta))
}
