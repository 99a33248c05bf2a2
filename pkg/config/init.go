package config

import (
	"fmt"
	"os"
)

const sampleHeader = "# mapperd Configuration File\n" +
	"# Generated by `mapperd init` — edit the sections below for your setup.\n\n"

// InitConfig writes a sample configuration file at the default location.
// Returns the written path. Fails if a config already exists there unless
// force is set.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a sample configuration file at path. Fails if a
// config already exists at path unless force is set.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		return "", err
	}

	if err := prependHeader(path); err != nil {
		return "", err
	}
	return path, nil
}

// prependHeader adds the descriptive comment banner SaveConfig's plain
// yaml.Marshal output doesn't carry.
func prependHeader(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(sampleHeader), data...), 0600)
}
