package config

import (
	"strings"
	"time"

	"github.com/marmos91/mapperd/internal/bytesize"
)

// ApplyDefaults fills in any zero-valued fields left unset by the config
// file and environment.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
	applyBlockerBackendDefaults(&cfg.DataBlocker)
	applyBlockerBackendDefaults(&cfg.MapBlocker)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.DataBlockerPort == 0 {
		cfg.DataBlockerPort = 7100
	}
	if cfg.MapBlockerPort == 0 {
		cfg.MapBlockerPort = 7200
	}
	if cfg.CopyUpConcurrency == 0 {
		cfg.CopyUpConcurrency = 16
	}
}

func applyBlockerBackendDefaults(cfg *BlockerBackendConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Type == "badger" && cfg.Badger.Dir == "" {
		cfg.Badger.Dir = "/tmp/mapperd-blocker"
	}
	if cfg.Type == "s3" && cfg.S3.KeyPrefix == "" {
		cfg.S3.KeyPrefix = "blocks/"
	}
}

// GetDefaultConfig returns a Config with every default applied — the
// configuration `mapperd init` writes out and tests start from.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			DataBlockerPort:   7100,
			MapBlockerPort:    7200,
			CopyUpConcurrency: 16,
		},
		DataBlocker: BlockerBackendConfig{Type: "memory"},
		MapBlocker:  BlockerBackendConfig{Type: "memory"},
		Metrics: MetricsConfig{
			Enabled:   true,
			Port:      9090,
			CacheSize: bytesize.ByteSize(bytesize.MiB),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
