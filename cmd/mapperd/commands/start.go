package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/mapperd/internal/logger"
	"github.com/marmos91/mapperd/internal/telemetry"
	"github.com/marmos91/mapperd/pkg/blocker"
	"github.com/marmos91/mapperd/pkg/blocker/devtransport"
	"github.com/marmos91/mapperd/pkg/config"
	"github.com/marmos91/mapperd/pkg/mapper"
)

var (
	dataBlockerPort int
	mapBlockerPort  int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mapperd daemon",
	Long: `Start the mapperd daemon with the specified configuration.

mapperd runs in the foreground, dispatching CLONE/MAPR/MAPW/SNAPSHOT/DELETE/
OPEN/CLOSE/INFO requests to the data and map blocker backends chosen in
config.

Examples:
  mapperd start
  mapperd start --config /etc/mapperd/config.yaml
  mapperd start --data-blocker-port 7101 --map-blocker-port 7201
  MAPPERD_LOGGING_LEVEL=DEBUG mapperd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVar(&dataBlockerPort, "data-blocker-port", 0, "data blocker RPC port (overrides config)")
	startCmd.Flags().IntVar(&mapBlockerPort, "map-blocker-port", 0, "map blocker RPC port (overrides config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if dataBlockerPort != 0 {
		cfg.Server.DataBlockerPort = dataBlockerPort
	}
	if mapBlockerPort != 0 {
		cfg.Server.MapBlockerPort = mapBlockerPort
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "mapperd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "mapperd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	mapperMetrics, metricsShutdown, err := startMetricsServer(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	defer func() {
		if err := metricsShutdown(ctx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}()
	if cfg.Metrics.Enabled {
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	}

	dataStore, err := newBlobStore(ctx, cfg.DataBlocker)
	if err != nil {
		return fmt.Errorf("failed to initialize data blocker backend: %w", err)
	}
	defer func() {
		if err := dataStore.Close(); err != nil {
			logger.Error("data blocker backend close error", "error", err)
		}
	}()

	mapStore, err := newBlobStore(ctx, cfg.MapBlocker)
	if err != nil {
		return fmt.Errorf("failed to initialize map blocker backend: %w", err)
	}
	defer func() {
		if err := mapStore.Close(); err != nil {
			logger.Error("map blocker backend close error", "error", err)
		}
	}()

	dataClient := blocker.NewDataBlockerClient(devtransport.New(dataStore), cfg.Server.DataBlockerPort, mapperMetrics)
	mapClient := blocker.NewMapBlockerClient(devtransport.New(mapStore), cfg.Server.MapBlockerPort, mapperMetrics)

	service := mapper.NewService(dataClient, mapClient, mapperMetrics, cfg.Server.CopyUpConcurrency)
	dispatcher := mapper.NewDispatcher(service)

	logger.Info("mapperd is running",
		"data_blocker", cfg.DataBlocker.Type, "data_blocker_port", cfg.Server.DataBlockerPort,
		"map_blocker", cfg.MapBlocker.Type, "map_blocker_port", cfg.Server.MapBlockerPort,
		"copy_up_concurrency", cfg.Server.CopyUpConcurrency)
	logger.Info("press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	signal.Stop(sigChan)

	logger.Info("shutdown signal received, draining in-flight requests")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	dispatcher.Shutdown(shutdownCtx)
	logger.Info("mapperd stopped")

	return nil
}
