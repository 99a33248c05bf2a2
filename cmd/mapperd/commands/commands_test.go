package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestExecute_VersionCommand(t *testing.T) {
	Version, Commit, Date = "1.2.3", "abcdef", "2026-01-01"
	defer func() { Version, Commit, Date = "dev", "none", "unknown" }()

	root := GetRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute version: %v", err)
	}
}

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := GetRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "init", "version"} {
		if !names[want] {
			t.Errorf("expected subcommand %q to be registered", want)
		}
	}
}

func TestGetConfigFile_DefaultEmpty(t *testing.T) {
	cfgFile = ""
	if got := GetConfigFile(); got != "" {
		t.Errorf("expected empty default config file, got %q", got)
	}
}

func TestGetConfigSource_ExplicitPath(t *testing.T) {
	got := getConfigSource("/etc/mapperd/config.yaml")
	if got != "/etc/mapperd/config.yaml" {
		t.Errorf("expected explicit path to be echoed back, got %q", got)
	}
}

func TestGetConfigSource_FallsBackToDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	got := getConfigSource("")
	if got != "defaults" {
		t.Errorf("expected \"defaults\" when no config file exists, got %q", got)
	}
}

func TestPrintErr_WritesToStderr(t *testing.T) {
	buf := &bytes.Buffer{}
	root := GetRootCmd()
	root.SetErr(buf)

	PrintErr("boom: %s", "oops")

	if !strings.Contains(buf.String(), "boom: oops") {
		t.Errorf("expected stderr to contain message, got %q", buf.String())
	}
}
