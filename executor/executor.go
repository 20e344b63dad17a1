package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fusional/fusional/metrics"
)

// EngineConfig holds configuration for the execution engine
type EngineConfig struct {
	// MaxOutputBytes is the per-stream capture ceiling. It is identical in
	// every isolation mode so behavior stays predictable across modes.
	MaxOutputBytes int
	// Grace is how long past the request timeout a sandbox may live before
	// the engine force-destroys it.
	Grace time.Duration
	// MaxInFlight caps concurrent executions. Callers past the cap get an
	// immediate setup failure instead of being queued silently.
	MaxInFlight int
	// PidsLimit bounds the process count inside each sandbox.
	PidsLimit int
}

// Engine runs validated execution requests to completion inside isolated
// contexts. Execute never returns an error: every failure mode is data in
// the result's ExitStatus. Engines hold no per-execution state; concurrent
// executions share nothing but host capacity.
type Engine struct {
	logger   *zap.Logger
	config   EngineConfig
	runtimes map[IsolationMode]Runtime
	metrics  *metrics.ExecutionMetrics
	sem      chan struct{}
}

// EngineOption defines a functional option for Engine
type EngineOption func(*Engine)

// WithMetrics attaches execution metrics to the engine.
func WithMetrics(m *metrics.ExecutionMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an Engine over the given isolation runtimes. The map is
// keyed by isolation mode; a mode without a runtime yields a setup failure
// at execution time (the Validator normally rejects it first).
func NewEngine(logger *zap.Logger, config EngineConfig, runtimes map[IsolationMode]Runtime, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:   logger,
		config:   config,
		runtimes: runtimes,
		sem:      make(chan struct{}, config.MaxInFlight),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs one validated request through the full sandbox lifecycle:
// provision, run, bound, teardown. Teardown is unconditional on every path.
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) ExecutionResult {
	select {
	case e.sem <- struct{}{}:
	default:
		if e.metrics != nil {
			e.metrics.AdmissionRejects.Inc()
		}
		return e.finish(req, ExecutionResult{
			Status:    SetupFailed(fmt.Sprintf("engine at capacity (%d in flight)", e.config.MaxInFlight)),
			Isolation: req.Isolation,
		})
	}
	defer func() { <-e.sem }()

	if e.metrics != nil {
		e.metrics.InFlight.Inc()
		defer e.metrics.InFlight.Dec()
	}

	runtime, ok := e.runtimes[req.Isolation]
	if !ok {
		return e.finish(req, ExecutionResult{
			Status:    SetupFailed(fmt.Sprintf("no runtime for isolation mode %q", req.Isolation)),
			Isolation: req.Isolation,
		})
	}

	timeout := time.Duration(req.TimeoutSec) * time.Second
	start := time.Now()

	handle, err := runtime.Provision(ctx, Limits{
		MemoryMB:  req.MemoryMB,
		PidsLimit: e.config.PidsLimit,
	})
	if err != nil {
		// Provisioning failures indicate an environment problem; report,
		// never auto-retry.
		e.logger.Error("sandbox provisioning failed",
			zap.String("isolation", string(req.Isolation)),
			zap.Error(err))
		return e.finish(req, ExecutionResult{
			Status:        SetupFailed(err.Error()),
			ElapsedMillis: time.Since(start).Milliseconds(),
			Isolation:     req.Isolation,
		})
	}

	// The watchdog guarantees the sandbox never outlives timeout + grace,
	// even if the normal teardown path is stuck.
	watchdog := time.AfterFunc(timeout+e.config.Grace, func() {
		e.logger.Warn("sandbox exceeded grace period, force destroying",
			zap.Duration("timeout", timeout),
			zap.Duration("grace", e.config.Grace))
		if destroyErr := handle.Destroy(); destroyErr != nil {
			e.trackTeardownFailure(destroyErr)
		}
	})

	stdout := newBoundedBuffer(e.config.MaxOutputBytes)
	stderr := newBoundedBuffer(e.config.MaxOutputBytes)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	status, runErr := handle.Run(runCtx, req, stdout, stderr)
	cancel()

	result := ExecutionResult{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Isolation:       req.Isolation,
	}

	switch {
	case runErr != nil && ctx.Err() != nil:
		// The caller's context went away first: cancellation, not timeout.
		e.terminate(handle)
		result.Status = Cancelled()
	case runErr != nil && errors.Is(runErr, context.DeadlineExceeded):
		e.terminate(handle)
		result.Status = TimedOut()
	case runErr != nil:
		result.Status = SetupFailed(runErr.Error())
	case status.MemoryKilled:
		result.Status = ResourceExceeded(ResourceMemory)
	case status.ProcessDenied:
		result.Status = ResourceExceeded(ResourceProcessCount)
	default:
		result.Status = Completed(status.ExitCode)
	}

	// Elapsed time runs wall-clock from provisioning start to teardown
	// start; the caller's budget is wall-clock too.
	result.ElapsedMillis = time.Since(start).Milliseconds()

	watchdog.Stop()
	if destroyErr := handle.Destroy(); destroyErr != nil {
		e.trackTeardownFailure(destroyErr)
	}

	return e.finish(req, result)
}

// terminate forcibly stops a sandbox that blew its budget. Failures are not
// fatal here; Destroy is still coming.
func (e *Engine) terminate(handle Handle) {
	if err := handle.Terminate(); err != nil {
		e.logger.Warn("failed to terminate sandbox", zap.Error(err))
	}
}

// trackTeardownFailure logs and counts a teardown that could not release
// its resources. The result is still returned; the count is what surfaces
// creeping resource leakage.
func (e *Engine) trackTeardownFailure(err error) {
	e.logger.Error("sandbox teardown failed", zap.Error(err))
	if e.metrics != nil {
		e.metrics.TeardownFailures.Inc()
	}
}

// finish records metrics and logs the terminal state of one execution.
func (e *Engine) finish(req ExecutionRequest, result ExecutionResult) ExecutionResult {
	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues(string(result.Status.Outcome), string(req.Isolation)).Inc()
		e.metrics.ExecutionDuration.WithLabelValues(string(req.Isolation)).Observe(float64(result.ElapsedMillis) / 1000)
		if result.StdoutTruncated {
			e.metrics.OutputTruncations.WithLabelValues("stdout").Inc()
		}
		if result.StderrTruncated {
			e.metrics.OutputTruncations.WithLabelValues("stderr").Inc()
		}
	}

	e.logger.Info("execution finished",
		zap.String("language", string(req.Language)),
		zap.String("isolation", string(req.Isolation)),
		zap.String("outcome", string(result.Status.Outcome)),
		zap.Int("exit_code", result.Status.Code),
		zap.Int64("elapsed_ms", result.ElapsedMillis),
		zap.Int("stdout_bytes", len(result.Stdout)),
		zap.Int("stderr_bytes", len(result.Stderr)))

	return result
}
