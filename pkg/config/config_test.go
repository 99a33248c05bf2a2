package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
logging:
  level: "DEBUG"

server:
  data_blocker_port: 7101
  map_blocker_port: 7201
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected logging.level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default format text, got %q", cfg.Logging.Format)
	}
	if cfg.Server.DataBlockerPort != 7101 {
		t.Errorf("expected data_blocker_port 7101, got %d", cfg.Server.DataBlockerPort)
	}
	if cfg.Server.MapBlockerPort != 7201 {
		t.Errorf("expected map_blocker_port 7201, got %d", cfg.Server.MapBlockerPort)
	}
	if cfg.Server.CopyUpConcurrency != 16 {
		t.Errorf("expected default copy_up_concurrency 16, got %d", cfg.Server.CopyUpConcurrency)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.DataBlocker.Type != "memory" {
		t.Errorf("expected default data_blocker.type memory, got %q", cfg.DataBlocker.Type)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistent := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistent)
	if err != nil {
		t.Fatalf("expected no error loading defaults, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config to be returned")
	}
	if cfg.Server.DataBlockerPort != 7100 {
		t.Errorf("expected default data blocker port 7100, got %d", cfg.Server.DataBlockerPort)
	}
}

func TestLoad_BadgerBlockerBackend(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
data_blocker:
  type: badger
  badger:
    dir: "` + filepath.ToSlash(tmpDir) + `/data"
map_blocker:
  type: badger
  badger:
    dir: "` + filepath.ToSlash(tmpDir) + `/map"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.DataBlocker.Type != "badger" {
		t.Errorf("expected data_blocker.type badger, got %q", cfg.DataBlocker.Type)
	}
	if cfg.DataBlocker.Badger.Dir == "" {
		t.Error("expected data_blocker.badger.dir to be set")
	}
}

func TestSaveConfig_RoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "WARN"

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}
	if loaded.Logging.Level != "WARN" {
		t.Errorf("expected reloaded logging.level WARN, got %q", loaded.Logging.Level)
	}
}

func TestMustLoad_MissingDefaultConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := MustLoad("")
	if err == nil {
		t.Fatal("expected an error when no default config exists")
	}
}
