package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/mapperd/pkg/config"
)

func TestRunInit_WritesExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfgFile = path
	initForce = false
	defer func() { cfgFile = ""; initForce = false }()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}
}

func TestRunInit_RefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfgFile = path
	initForce = false
	defer func() { cfgFile = ""; initForce = false }()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("first runInit: %v", err)
	}
	if err := runInit(initCmd, nil); err == nil {
		t.Fatal("expected second runInit without --force to fail")
	}

	initForce = true
	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit with --force: %v", err)
	}
}

func TestRunInit_DefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfgFile = ""
	initForce = false
	defer func() { initForce = false }()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	if !config.DefaultConfigExists() {
		t.Error("expected default config to exist after init")
	}
}
