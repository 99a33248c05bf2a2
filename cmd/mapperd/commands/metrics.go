package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/mapperd/pkg/config"
	"github.com/marmos91/mapperd/pkg/metrics"
	metricsprom "github.com/marmos91/mapperd/pkg/metrics/prometheus"
)

// startMetricsServer, when metrics are enabled, installs a fresh Prometheus
// registry as mapperd's active metrics sink (so every NewXxxMetrics
// constructor called afterward registers against it) and serves /metrics
// over HTTP, returning the constructed mapper metrics plus the server's
// shutdown func. When metrics are disabled it installs no registry
// (metrics.InitRegistry(nil)) and returns nil mapper metrics and a no-op
// shutdown func.
func startMetricsServer(cfg config.MetricsConfig) (*metricsprom.MapperMetrics, func(context.Context) error, error) {
	if !cfg.Enabled {
		metrics.InitRegistry(nil)
		return nil, func(context.Context) error { return nil }, nil
	}

	reg := prometheus.NewRegistry()
	metrics.InitRegistry(reg)
	mapperMetrics := metricsprom.NewMapperMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			PrintErr("metrics server error: %v", err)
		}
	}()

	return mapperMetrics, srv.Shutdown, nil
}
