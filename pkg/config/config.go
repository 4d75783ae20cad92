package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/observability"
)

const (
	// DefaultClientSocketPath is the well-known client and agent endpoint
	DefaultClientSocketPath = "/run/gatekeepr/gatekeepr.socket"
	// DefaultAdminSocketPath is the well-known admin endpoint
	DefaultAdminSocketPath = "/run/gatekeepr/gatekeepr-admin.socket"
	// DefaultDatabaseDir is where the policy database lives
	DefaultDatabaseDir = "/var/lib/gatekeepr"
	// DefaultCacheCapacity bounds the client-library decision cache
	DefaultCacheCapacity = 10000
	// DefaultMonitorBufferSize bounds the in-memory monitor buffer
	DefaultMonitorBufferSize = 100
)

// Config is the daemon configuration, loadable from a YAML file
type Config struct {
	ClientSocketPath  string                `yaml:"client_socket_path"`
	AdminSocketPath   string                `yaml:"admin_socket_path"`
	DatabaseDir       string                `yaml:"database_dir"`
	CacheCapacity     int                   `yaml:"cache_capacity"`
	MonitorBufferSize int                   `yaml:"monitor_buffer_size"`
	LogLevel          string                `yaml:"log_level"`
	Observability     *observability.Config `yaml:"observability,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		ClientSocketPath:  DefaultClientSocketPath,
		AdminSocketPath:   DefaultAdminSocketPath,
		DatabaseDir:       DefaultDatabaseDir,
		CacheCapacity:     DefaultCacheCapacity,
		MonitorBufferSize: DefaultMonitorBufferSize,
		LogLevel:          "info",
	}
}

// Load reads a YAML config file, filling unset fields with defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "cannot read config file", err).
			WithField("path", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "cannot parse config file", err).
			WithField("path", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for usable values
func (c *Config) Validate() error {
	if c.ClientSocketPath == "" {
		return errors.New(errors.ErrInvalidConfig, "client_socket_path must not be empty")
	}
	if c.AdminSocketPath == "" {
		return errors.New(errors.ErrInvalidConfig, "admin_socket_path must not be empty")
	}
	if c.ClientSocketPath == c.AdminSocketPath {
		return errors.New(errors.ErrInvalidConfig, "client and admin sockets must differ")
	}
	if c.DatabaseDir == "" {
		return errors.New(errors.ErrInvalidConfig, "database_dir must not be empty")
	}
	if c.CacheCapacity < 0 {
		return errors.New(errors.ErrInvalidConfig, "cache_capacity must not be negative")
	}
	if c.MonitorBufferSize < 0 {
		return errors.New(errors.ErrInvalidConfig, "monitor_buffer_size must not be negative")
	}
	return nil
}
