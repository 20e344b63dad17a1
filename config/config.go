package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Registry RegistryConfig `mapstructure:"registry"`
	Agent    AgentConfig    `mapstructure:"agent"`
}

// ServerConfig holds transport configuration
type ServerConfig struct {
	Transport   string `mapstructure:"transport"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// ExecutorConfig holds execution engine configuration.
//
// DefaultTimeoutSec and DefaultMemoryMB apply when a request leaves the
// field unset. MaxTimeoutSec and MaxMemoryMB are hard ceilings: a request
// above a ceiling is rejected outright, never clamped.
type ExecutorConfig struct {
	Image             string `mapstructure:"image"`
	DefaultTimeoutSec int    `mapstructure:"default_timeout_sec"`
	MaxTimeoutSec     int    `mapstructure:"max_timeout_sec"`
	DefaultMemoryMB   int    `mapstructure:"default_memory_mb"`
	MaxMemoryMB       int    `mapstructure:"max_memory_mb"`
	MaxOutputKB       int    `mapstructure:"max_output_kb"`
	PidsLimit         int    `mapstructure:"pids_limit"`
	GraceSec          int    `mapstructure:"grace_sec"`
	MaxInFlight       int    `mapstructure:"max_in_flight"`
	EnableDirect      bool   `mapstructure:"enable_direct"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// RegistryConfig holds the server catalog configuration
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// AgentConfig holds the code-generation collaborator configuration
type AgentConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	OutputDir string `mapstructure:"output_dir"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.metrics_port", 0)

	viper.SetDefault("executor.image", "python:3.11-slim")
	viper.SetDefault("executor.default_timeout_sec", 5)
	viper.SetDefault("executor.max_timeout_sec", 300)
	viper.SetDefault("executor.default_memory_mb", 128)
	viper.SetDefault("executor.max_memory_mb", 2048)
	viper.SetDefault("executor.max_output_kb", 64)
	viper.SetDefault("executor.pids_limit", 64)
	viper.SetDefault("executor.grace_sec", 2)
	viper.SetDefault("executor.max_in_flight", 32)
	viper.SetDefault("executor.enable_direct", false)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("registry.path", "mcp_registry.json")

	viper.SetDefault("agent.base_url", "https://api.openai.com/v1")
	viper.SetDefault("agent.api_key", "")
	viper.SetDefault("agent.model", "gpt-4-turbo")
	viper.SetDefault("agent.output_dir", "")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Executor.Image == "" {
		return fmt.Errorf("executor.image must not be empty")
	}

	if c.Executor.DefaultTimeoutSec <= 0 {
		return fmt.Errorf("executor.default_timeout_sec must be positive, got: %d", c.Executor.DefaultTimeoutSec)
	}

	if c.Executor.MaxTimeoutSec < c.Executor.DefaultTimeoutSec {
		return fmt.Errorf("executor.max_timeout_sec %d is below executor.default_timeout_sec %d",
			c.Executor.MaxTimeoutSec, c.Executor.DefaultTimeoutSec)
	}

	if c.Executor.DefaultMemoryMB <= 0 {
		return fmt.Errorf("executor.default_memory_mb must be positive, got: %d", c.Executor.DefaultMemoryMB)
	}

	if c.Executor.MaxMemoryMB < c.Executor.DefaultMemoryMB {
		return fmt.Errorf("executor.max_memory_mb %d is below executor.default_memory_mb %d",
			c.Executor.MaxMemoryMB, c.Executor.DefaultMemoryMB)
	}

	if c.Executor.MaxOutputKB <= 0 {
		return fmt.Errorf("executor.max_output_kb must be positive, got: %d", c.Executor.MaxOutputKB)
	}

	if c.Executor.PidsLimit <= 0 {
		return fmt.Errorf("executor.pids_limit must be positive, got: %d", c.Executor.PidsLimit)
	}

	if c.Executor.GraceSec <= 0 {
		return fmt.Errorf("executor.grace_sec must be positive, got: %d", c.Executor.GraceSec)
	}

	if c.Executor.MaxInFlight <= 0 {
		return fmt.Errorf("executor.max_in_flight must be positive, got: %d", c.Executor.MaxInFlight)
	}

	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path must not be empty")
	}

	return nil
}

// GetDefaultTimeout returns the default execution timeout as a duration
func (c *Config) GetDefaultTimeout() time.Duration {
	return time.Duration(c.Executor.DefaultTimeoutSec) * time.Second
}

// GetGrace returns the teardown grace period as a duration
func (c *Config) GetGrace() time.Duration {
	return time.Duration(c.Executor.GraceSec) * time.Second
}
