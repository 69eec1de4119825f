// Package config holds the environment-driven server configuration.
package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the complete server configuration, populated from environment
// variables. Priority: ENV vars > .env file (loaded in main) > defaults.
type Config struct {
	// SocketAddress is the host:port the HTTP server binds to.
	SocketAddress string `env:"SOCKET_ADDRESS" envDefault:"127.0.0.1:3000"`

	// APIToken is the shared secret checked against the api_key header
	// on every /api route. Required; startup fails without it.
	APIToken string `env:"API_TOKEN"`

	// ProjectsDir is the root directory for per-project files
	// (extracted archives, converter outputs, served log files).
	ProjectsDir string `env:"PROJECTS_DIR" envDefault:"projects"`

	// PublicDomainURLs lists the origins allowed to open WebSocket
	// connections. Empty means all origins are accepted.
	PublicDomainURLs []string `env:"PUBLIC_DOMAIN_URLS" envSeparator:","`

	// JobTimeout is the deadline for a single job, measured from the
	// moment its runner starts work. Applies to both job kinds.
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"600s"`

	// JobRetention is how long a finished job stays queryable before
	// it is evicted from the registry.
	JobRetention time.Duration `env:"JOB_RETENTION" envDefault:"900s"`

	// ConverterCommand is the external binary invoked by converter jobs,
	// called with the project directory as its only argument.
	ConverterCommand string `env:"CONVERTER_COMMAND" envDefault:"gs-log-to-locust-converter"`

	// WSWriteTimeout bounds a single WebSocket frame write.
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`

	// ShutdownTimeout is the max time to wait for running jobs to wind
	// down during graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that env parsing cannot express.
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return errors.New("API_TOKEN is required")
	}
	if c.JobTimeout < 0 {
		return errors.New("JOB_TIMEOUT must not be negative")
	}
	if c.JobRetention < 0 {
		return errors.New("JOB_RETENTION must not be negative")
	}
	return nil
}

// Default returns the built-in configuration with a placeholder token,
// used by tests that do not exercise auth.
func Default() *Config {
	return &Config{
		SocketAddress:    "127.0.0.1:3000",
		APIToken:         "test-token",
		ProjectsDir:      "projects",
		JobTimeout:       600 * time.Second,
		JobRetention:     900 * time.Second,
		ConverterCommand: "gs-log-to-locust-converter",
		WSWriteTimeout:   10 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}
