package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default}, with an optional leading
// escape dollar.
var envPattern = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config struct. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} in raw YAML bytes. A
// doubled dollar ("$${VAR}") is kept as the literal "${VAR}". Variables with
// neither a value nor a default are reported once each, in order of use.
func expandEnv(raw []byte) ([]byte, error) {
	var missing []string

	out := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		if bytes.HasPrefix(match, []byte("$$")) {
			return match[1:]
		}
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if subs[2] != nil {
			return subs[2]
		}
		if !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return match
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("unresolved variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ResolvePath returns explicit when set, otherwise the first existing file
// among $XDG_CONFIG_HOME/taskd/taskd.yaml (or ~/.config/taskd/taskd.yaml)
// and ./taskd.yaml.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "taskd", "taskd.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "taskd", "taskd.yaml"))
	}
	candidates = append(candidates, "taskd.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("config: no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns $XDG_DATA_HOME/taskd, or ~/.local/share/taskd.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "taskd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taskd")
}
