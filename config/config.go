// Package config provides configuration loading and hot reload for the
// rpcgate server. Process-wide engine flags (output validation,
// exception details, batch limits) live here rather than in globals;
// the router and executor read them through getters so a reload takes
// effect without rebuilding the routing table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Executor ExecutorConfig `yaml:"executor"`
	Batch    BatchConfig    `yaml:"batch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the bundled HTTP/WebSocket server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ExecutorConfig configures the per-call pipeline.
type ExecutorConfig struct {
	// ValidateOutput is the process-wide response validation default.
	// Defaults to true when unset.
	ValidateOutput *bool `yaml:"validate_output"`

	// IncludeExceptionDetails attaches trapped panic details to
	// internal errors. Defaults to false.
	IncludeExceptionDetails bool `yaml:"include_exception_details"`
}

// BatchConfig bounds batch dispatch.
type BatchConfig struct {
	MaxBatchSize   int           `yaml:"max_batch_size"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Executor.ValidateOutput == nil {
		v := true
		c.Executor.ValidateOutput = &v
	}
	if c.Batch.MaxBatchSize == 0 {
		c.Batch.MaxBatchSize = 50
	}
	if c.Batch.MaxConcurrency == 0 {
		c.Batch.MaxConcurrency = 10
	}
	if c.Batch.CallTimeout == 0 {
		c.Batch.CallTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Load reads configuration from a YAML file, applies defaults and
// environment overrides, and validates the result. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays RPCGATE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("RPCGATE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("RPCGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("RPCGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RPCGATE_VALIDATE_OUTPUT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Executor.ValidateOutput = &b
		}
	}
	if v := os.Getenv("RPCGATE_INCLUDE_EXCEPTION_DETAILS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Executor.IncludeExceptionDetails = b
		}
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Batch.MaxBatchSize < 1 {
		return fmt.Errorf("batch.max_batch_size must be positive")
	}
	if c.Batch.MaxConcurrency < 1 {
		return fmt.Errorf("batch.max_concurrency must be positive")
	}
	if c.Batch.CallTimeout <= 0 {
		return fmt.Errorf("batch.call_timeout must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q not one of json, console", c.Logging.Format)
	}
	return nil
}

// ValidateOutput returns the effective process-wide default.
func (c *Config) ValidateOutput() bool {
	if c.Executor.ValidateOutput == nil {
		return true
	}
	return *c.Executor.ValidateOutput
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"executor.validate_output",
		"executor.include_exception_details",
		"batch.max_batch_size",
		"batch.max_concurrency",
		"batch.call_timeout",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"metrics.enabled",
		"metrics.path",
		"logging.level",
		"logging.format",
	}
}
