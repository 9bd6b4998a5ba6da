package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the log section of the config file.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatText
	}
}

// Validate checks level and format.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("logging: unknown format %q (want %s or %s)", c.Format, FormatText, FormatJSON)
	}
}

// ParseLevel maps debug, info, warn, error (any case) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("logging: invalid level %q: %w", s, err)
	}
	return l, nil
}

// New returns a logger writing to w in the configured format, with every
// record passed through redactor. A nil redactor gets the default rules.
func New(w io.Writer, cfg Config, redactor *Redactor) (*slog.Logger, error) {
	cfg.Defaults()
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if redactor == nil {
		redactor = NewRedactor()
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	switch cfg.Format {
	case FormatText:
		inner = slog.NewTextHandler(w, opts)
	case FormatJSON:
		inner = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	return slog.New(NewRedactingHandler(inner, redactor)), nil
}
