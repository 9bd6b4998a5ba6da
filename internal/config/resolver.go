package config

import (
	"slices"

	"gopkg.in/yaml.v3"
)

// JobNames returns the configured job names, sorted. The deterministic order
// keeps registration and startup logs stable across runs.
func JobNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Jobs))
	for name := range cfg.Jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// JobKind returns the "kind" key of a job entry, or "" when absent.
func JobKind(node *yaml.Node) string {
	var hdr struct {
		Kind string `yaml:"kind"`
	}
	if err := node.Decode(&hdr); err != nil {
		return ""
	}
	return hdr.Kind
}
