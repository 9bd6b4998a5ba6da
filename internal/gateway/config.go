package gateway

import (
	"fmt"
	"net"
	"time"
)

// Config holds admin gateway configuration. An empty Bind disables it.
type Config struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Defaults fills zero timeouts.
func (c *Config) Defaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Enabled reports whether a bind address is configured.
func (c Config) Enabled() bool {
	return c.Bind != ""
}

// Validate checks the bind address.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", c.Bind, err)
	}
	return nil
}

// AuthConfig configures authentication for the /api endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
