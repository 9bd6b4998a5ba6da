package config

import (
	"errors"
	"fmt"

	"github.com/flemzord/taskd/internal/core"
)

// Validate checks the structural validity of a Config after ApplyDefaults.
// It verifies the version field, every section, and that each job names a
// registered kind. All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	sections := []struct {
		name string
		fn   func() error
	}{
		{"log", cfg.Log.Validate},
		{"database", cfg.Database.Validate},
		{"shutdown", cfg.Shutdown.Validate},
		{"gateway", cfg.Gateway.Validate},
		{"telemetry", cfg.Telemetry.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", s.name, err))
		}
	}

	if len(cfg.Jobs) == 0 {
		errs = append(errs, errors.New("config: at least one job must be configured"))
	}
	for _, name := range JobNames(cfg) {
		node := cfg.Jobs[name]
		kind := JobKind(&node)
		if kind == "" {
			errs = append(errs, fmt.Errorf("config: job %q: kind is required", name))
			continue
		}
		if _, ok := core.GetJobType(kind); !ok {
			errs = append(errs, fmt.Errorf("config: job %q: unknown kind %q", name, kind))
		}
	}

	return errors.Join(errs...)
}
