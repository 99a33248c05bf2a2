// Package config loads and validates mapperd's configuration: blocker
// transport endpoints, dev backend selection, copy-up concurrency, and the
// ambient logging/telemetry/metrics stack.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/mapperd/internal/bytesize"
)

// Config is mapperd's top-level configuration.
//
// Sources, in order of precedence:
//  1. CLI flags (bound by cmd/mapperd)
//  2. Environment variables (MAPPERD_*)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and Pyroscope
	// continuous profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the deadline of the context passed to
	// Dispatcher.Shutdown, which uses it for the exclusive-map releases.
	// Shutdown first waits for every in-flight request to finish; that wait
	// is not bounded by this timeout.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics configures the Prometheus metrics HTTP endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Server holds the blocker RPC transport ports and copy-up concurrency.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// DataBlocker selects and configures the dev backend standing in for
	// the data blocker (memory, badger or s3).
	DataBlocker BlockerBackendConfig `mapstructure:"data_blocker" yaml:"data_blocker"`

	// MapBlocker selects and configures the dev backend standing in for
	// the map blocker (memory, badger or s3).
	MapBlocker BlockerBackendConfig `mapstructure:"map_blocker" yaml:"map_blocker"`
}

// ServerConfig holds the mapperd daemon's own listening configuration.
type ServerConfig struct {
	// DataBlockerPort is the port the data blocker's dev transport listens
	// on, matching spec.md's `-bp`.
	DataBlockerPort int `mapstructure:"data_blocker_port" validate:"required,min=1,max=65535" yaml:"data_blocker_port"`

	// MapBlockerPort is the port the map blocker's dev transport listens
	// on, matching spec.md's `-mbp`.
	MapBlockerPort int `mapstructure:"map_blocker_port" validate:"required,min=1,max=65535" yaml:"map_blocker_port"`

	// CopyUpConcurrency caps the number of node copy-ups (and per-volume
	// snapshot/destroy fan-outs) running at once, across the whole daemon.
	CopyUpConcurrency int `mapstructure:"copy_up_concurrency" validate:"required,gt=0" yaml:"copy_up_concurrency"`
}

// BlockerBackendConfig selects which devstore.BlobStore implementation
// backs a dev blocker and carries that implementation's own settings.
type BlockerBackendConfig struct {
	// Type selects the backend: "memory", "badger" or "s3".
	Type string `mapstructure:"type" validate:"required,oneof=memory badger s3" yaml:"type"`

	// Badger configures the badgerblob backend. Only read when Type is
	// "badger".
	Badger BadgerBackendConfig `mapstructure:"badger" yaml:"badger,omitempty"`

	// S3 configures the s3blob backend. Only read when Type is "s3".
	S3 S3BackendConfig `mapstructure:"s3" yaml:"s3,omitempty"`
}

// BadgerBackendConfig configures a badgerblob-backed dev store.
type BadgerBackendConfig struct {
	// Dir is the directory the BadgerDB instance is opened at. Required
	// when the enclosing backend's Type is "badger" — checked by
	// validateBlockerBackend since required_if can't reach across structs.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// S3BackendConfig configures an s3blob-backed dev store.
type S3BackendConfig struct {
	// Bucket is the S3 bucket name. Must already exist. Required when the
	// enclosing backend's Type is "s3" — checked by
	// validateBlockerBackend since required_if can't reach across structs.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// KeyPrefix is prepended to every block key, e.g. "blocks/".
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// Region is the AWS region the bucket lives in.
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores (MinIO,
	// etc.). Empty uses the default AWS endpoint resolution.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file
	// path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing and Pyroscope profiling.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects,
	// inuse_space, goroutines, mutex_count, mutex_duration, block_count,
	// block_duration.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server are
	// active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// CacheSize bounds an optional response cache for the metrics handler.
	// Unused unless a caching middleware is wired in front of it; kept for
	// forward compatibility with a future scrape-buffer.
	CacheSize bytesize.ByteSize `mapstructure:"cache_size" yaml:"cache_size,omitempty"`
}

// Load loads configuration from file, environment and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error pointing at
// `mapperd init` when no config file exists at the resolved location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  mapperd init\n\n"+
				"Or specify a custom config file:\n"+
				"  mapperd start --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  mapperd init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper wires MAPPERD_ environment overrides and the config file
// search path.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("MAPPERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if present. A missing file is
// not an error — callers fall back to defaults.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines the ByteSize and time.Duration decode hooks.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir resolves $XDG_CONFIG_HOME/mapperd, falling back to
// ~/.config/mapperd, then "." if the home directory can't be determined.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mapperd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mapperd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir exposes the configuration directory path for `mapperd init`.
func GetConfigDir() string {
	return getConfigDir()
}
