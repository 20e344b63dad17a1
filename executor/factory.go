package executor

import (
	"go.uber.org/zap"

	"github.com/fusional/fusional/config"
	"github.com/fusional/fusional/metrics"
)

// NewRuntimes builds the isolation runtimes available to the engine. The
// sandboxed runtime is always present; the direct runtime only when the
// configuration enables it.
func NewRuntimes(logger *zap.Logger, cfg *config.Config) map[IsolationMode]Runtime {
	runtimes := map[IsolationMode]Runtime{
		IsolationSandboxed: NewDockerRuntime(logger, DockerConfig{
			Image: cfg.Executor.Image,
		}),
	}
	if cfg.Executor.EnableDirect {
		runtimes[IsolationDirect] = NewHostRuntime(logger)
	}
	return runtimes
}

// NewValidatorFromConfig builds the request validator from the configured
// bounds.
func NewValidatorFromConfig(cfg *config.Config) *Validator {
	return NewValidator(Bounds{
		DefaultTimeoutSec: cfg.Executor.DefaultTimeoutSec,
		MaxTimeoutSec:     cfg.Executor.MaxTimeoutSec,
		DefaultMemoryMB:   cfg.Executor.DefaultMemoryMB,
		MaxMemoryMB:       cfg.Executor.MaxMemoryMB,
		AllowDirect:       cfg.Executor.EnableDirect,
	})
}

// NewEngineFromConfig builds the execution engine from configuration.
func NewEngineFromConfig(logger *zap.Logger, cfg *config.Config, m *metrics.ExecutionMetrics) *Engine {
	return NewEngine(logger, EngineConfig{
		MaxOutputBytes: cfg.Executor.MaxOutputKB * 1024,
		Grace:          cfg.GetGrace(),
		MaxInFlight:    cfg.Executor.MaxInFlight,
		PidsLimit:      cfg.Executor.PidsLimit,
	}, NewRuntimes(logger, cfg), WithMetrics(m))
}
