// Package metrics holds the process-wide Prometheus registry used by every
// metrics implementation under pkg/metrics/prometheus. It exists so those
// packages can be built (and skipped) independently of how the registry is
// wired up by cmd/mapperd.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and installs reg as the registry
// every NewXxxMetrics constructor registers against. Call once during
// startup, before constructing any metrics instance.
func InitRegistry(reg *prometheus.Registry) {
	mu.Lock()
	defer mu.Unlock()
	registry = reg
	enabled = reg != nil
}

// IsEnabled reports whether InitRegistry has been called with a non-nil
// registry. Metrics constructors use this to no-op (return nil) when
// metrics collection was never enabled.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the registry installed by InitRegistry, or a fresh
// empty one if metrics were never enabled (so promauto.With never panics on
// a nil registry).
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	if registry == nil {
		return prometheus.NewRegistry()
	}
	return registry
}
