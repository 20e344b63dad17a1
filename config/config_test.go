package config

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "http",
			HTTPPort:  8080,
		},
		Executor: ExecutorConfig{
			Image:             "python:3.11-slim",
			DefaultTimeoutSec: 5,
			MaxTimeoutSec:     300,
			DefaultMemoryMB:   128,
			MaxMemoryMB:       2048,
			MaxOutputKB:       64,
			PidsLimit:         64,
			GraceSec:          2,
			MaxInFlight:       32,
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Registry: RegistryConfig{
			Path: "mcp_registry.json",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().validate())
	})

	t.Run("InvalidServerTransport", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Transport = "grpc"
		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.transport")
	})

	t.Run("EmptyImage", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.Image = ""
		assert.Error(t, cfg.validate())
	})

	t.Run("NonPositiveTimeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.DefaultTimeoutSec = 0
		assert.Error(t, cfg.validate())
	})

	t.Run("CeilingBelowDefaultTimeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.MaxTimeoutSec = 1
		assert.Error(t, cfg.validate())
	})

	t.Run("NonPositiveMemory", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.DefaultMemoryMB = -1
		assert.Error(t, cfg.validate())
	})

	t.Run("CeilingBelowDefaultMemory", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.MaxMemoryMB = 64
		assert.Error(t, cfg.validate())
	})

	t.Run("NonPositiveOutputCap", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.MaxOutputKB = 0
		assert.Error(t, cfg.validate())
	})

	t.Run("NonPositivePidsLimit", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.PidsLimit = 0
		assert.Error(t, cfg.validate())
	})

	t.Run("NonPositiveGrace", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.GraceSec = 0
		assert.Error(t, cfg.validate())
	})

	t.Run("NonPositiveInFlight", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.MaxInFlight = 0
		assert.Error(t, cfg.validate())
	})

	t.Run("EmptyRegistryPath", func(t *testing.T) {
		cfg := validConfig()
		cfg.Registry.Path = ""
		assert.Error(t, cfg.validate())
	})
}

// TestConfigYAMLRoundTrip feeds a YAML document through viper exactly as a
// config file would be and checks the mapstructure mapping.
func TestConfigYAMLRoundTrip(t *testing.T) {
	doc := map[string]any{
		"server": map[string]any{
			"transport":    "http",
			"http_port":    9090,
			"metrics_port": 2112,
		},
		"executor": map[string]any{
			"image":               "python:3.12-slim",
			"default_timeout_sec": 10,
			"max_timeout_sec":     120,
			"default_memory_mb":   256,
			"max_memory_mb":       1024,
			"max_output_kb":       32,
			"pids_limit":          32,
			"grace_sec":           3,
			"max_in_flight":       8,
			"enable_direct":       true,
		},
		"logging": map[string]any{
			"mode":  "development",
			"level": "debug",
		},
		"registry": map[string]any{
			"path": "/var/lib/fusional/registry.json",
		},
	}

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "http", cfg.Server.Transport)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 2112, cfg.Server.MetricsPort)
	assert.Equal(t, "python:3.12-slim", cfg.Executor.Image)
	assert.Equal(t, 10, cfg.Executor.DefaultTimeoutSec)
	assert.Equal(t, 120, cfg.Executor.MaxTimeoutSec)
	assert.True(t, cfg.Executor.EnableDirect)
	assert.Equal(t, "development", cfg.Logging.Mode)
	assert.Equal(t, "/var/lib/fusional/registry.json", cfg.Registry.Path)

	require.NoError(t, cfg.validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "5s", cfg.GetDefaultTimeout().String())
	assert.Equal(t, "2s", cfg.GetGrace().String())
}
