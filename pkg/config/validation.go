package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its struct tags, plus the cross-field rule
// that a blocker backend's type-specific section is filled in.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if err := validateBlockerBackend("data_blocker", cfg.DataBlocker); err != nil {
		return err
	}
	if err := validateBlockerBackend("map_blocker", cfg.MapBlocker); err != nil {
		return err
	}
	return nil
}

func validateBlockerBackend(field string, cfg BlockerBackendConfig) error {
	switch cfg.Type {
	case "badger":
		if cfg.Badger.Dir == "" {
			return fmt.Errorf("%s: badger.dir is required when type is \"badger\"", field)
		}
	case "s3":
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("%s: s3.bucket is required when type is \"s3\"", field)
		}
	}
	return nil
}
