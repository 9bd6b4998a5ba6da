// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for taskd.
package config

import (
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/taskd/internal/cache"
	"github.com/flemzord/taskd/internal/database"
	"github.com/flemzord/taskd/internal/gateway"
	"github.com/flemzord/taskd/internal/logging"
	"github.com/flemzord/taskd/internal/scheduler"
	"github.com/flemzord/taskd/internal/shutdown"
	"github.com/flemzord/taskd/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the default sqlite and cache files.
	DataDir string `yaml:"data_dir"`

	Log       logging.Config   `yaml:"log"`
	Database  database.Config  `yaml:"database"`
	Cache     cache.Config     `yaml:"cache"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Shutdown  shutdown.Config  `yaml:"shutdown"`
	Gateway   gateway.Config   `yaml:"gateway"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Jobs maps job names to their raw YAML configuration. Each entry
	// carries a "kind" key naming a registered job type.
	Jobs map[string]yaml.Node `yaml:"jobs"`
}

// ApplyDefaults fills every section's zero values. An empty data_dir falls
// back to defaultDataDir, and an sqlite database without a DSN lives there.
func (c *Config) ApplyDefaults(defaultDataDir string) {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	c.Log.Defaults()
	c.Database.Defaults()
	if c.Database.Driver == database.DriverSQLite && c.Database.DSN == "" {
		c.Database.DSN = filepath.Join(c.DataDir, "taskd.db")
	}
	c.Cache.Defaults(c.DataDir)
	c.Scheduler.Defaults()
	c.Shutdown.Defaults()
	c.Gateway.Defaults()
	c.Telemetry.Defaults()
}
