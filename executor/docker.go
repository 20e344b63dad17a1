package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DockerConfig holds configuration for the Docker runtime
type DockerConfig struct {
	Image string
	// TmpfsSizeMB is the size of the writable /tmp scratch inside the
	// container. The scratch dies with the container.
	TmpfsSizeMB int
}

// DockerRuntime implements Runtime using the docker CLI. It provisions one
// hardened container per execution: no network, hard memory limit, pids
// limit, all capabilities dropped, no privilege escalation, read-only root
// filesystem with a tmpfs scratch, read-only code mount, non-root user.
// Containers are never reused.
type DockerRuntime struct {
	logger    *zap.Logger
	config    DockerConfig
	cmdRunner CommandRunner
	fs        FileSystem
}

// DockerRuntimeOption defines a functional option for DockerRuntime
type DockerRuntimeOption func(*DockerRuntime)

// WithDockerCommandRunner sets the CommandRunner for DockerRuntime
func WithDockerCommandRunner(cmdRunner CommandRunner) DockerRuntimeOption {
	return func(d *DockerRuntime) {
		d.cmdRunner = cmdRunner
	}
}

// WithDockerFileSystem sets the FileSystem for DockerRuntime
func WithDockerFileSystem(fs FileSystem) DockerRuntimeOption {
	return func(d *DockerRuntime) {
		d.fs = fs
	}
}

// NewDockerRuntime creates a DockerRuntime with default implementations and
// optional interfaces.
func NewDockerRuntime(logger *zap.Logger, config DockerConfig, opts ...DockerRuntimeOption) *DockerRuntime {
	if config.TmpfsSizeMB <= 0 {
		config.TmpfsSizeMB = 64
	}
	runtime := &DockerRuntime{
		logger:    logger,
		config:    config,
		cmdRunner: &RealCommandRunner{},
		fs:        &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(runtime)
	}

	return runtime
}

// Provision allocates the host-side resources for one container: a scratch
// directory for the code mount and a unique container name. The container
// itself is created by Run; a provisioning failure here leaves nothing to
// tear down beyond the directory, which Destroy removes.
func (d *DockerRuntime) Provision(_ context.Context, limits Limits) (Handle, error) {
	tempDir, err := d.fs.MkdirTemp("", "fusional-exec-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	h := &dockerHandle{
		runtime:   d,
		name:      "fusional-exec-" + uuid.NewString(),
		tempDir:   tempDir,
		limits:    limits,
		destroyed: make(chan struct{}),
	}

	d.logger.Debug("sandbox provisioned",
		zap.String("container", h.name),
		zap.String("dir", tempDir),
		zap.Int("memory_mb", limits.MemoryMB),
		zap.Int("pids_limit", limits.PidsLimit))

	return h, nil
}

// dockerHandle is one container-backed sandbox instance.
type dockerHandle struct {
	runtime *DockerRuntime
	name    string
	tempDir string
	limits  Limits

	once       sync.Once
	destroyed  chan struct{}
	destroyErr error
}

// Run writes the source into the scratch directory, starts the container,
// and waits for the interpreter to exit or ctx to be done.
func (h *dockerHandle) Run(ctx context.Context, req ExecutionRequest, stdout, stderr io.Writer) (RunStatus, error) {
	spec := req.Language.Spec()

	scriptPath := filepath.Join(h.tempDir, spec.FileName)
	if err := h.runtime.fs.WriteFile(scriptPath, []byte(req.Source), FilePermission); err != nil {
		return RunStatus{}, fmt.Errorf("failed to write source: %w", err)
	}

	args := []string{
		"docker", "run",
		"--name", h.name,
		"--network", "none", // no network reachability
		fmt.Sprintf("--memory=%dm", h.limits.MemoryMB), // hard kill on exceed
		"--pids-limit", fmt.Sprintf("%d", h.limits.PidsLimit),
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
		"--read-only",
		"--tmpfs", fmt.Sprintf("/tmp:rw,exec,nosuid,size=%dm", h.runtime.config.TmpfsSizeMB),
		"-v", fmt.Sprintf("%s:/workdir:ro", h.tempDir),
		"-w", "/workdir",
		"--user", "1000:1000", // non-privileged identity
		h.runtime.config.Image,
	}
	args = append(args, spec.Command...)

	// A small tail of stderr is kept for classifying pids-limit failures,
	// independent of the caller's capture ceiling.
	tail := newBoundedBuffer(4096)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // argv is built from validated config, never from source text
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		// Interrupted wait comes first: the engine reads the context to
		// decide between timeout and cancellation.
		if ctx.Err() != nil {
			return RunStatus{}, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return RunStatus{}, fmt.Errorf("failed to run container: %w", runErr)
		}
	}

	status := RunStatus{ExitCode: exitCode}
	if exitCode == 137 && h.oomKilled() {
		status.MemoryKilled = true
	}
	// The stderr signatures only mean a pids-limit violation when the run
	// actually failed; user code exiting 0 may print the same strings.
	if exitCode != 0 && forkDenied(tail.String()) {
		status.ProcessDenied = true
	}

	return status, nil
}

// oomKilled asks the daemon whether the container was killed by the kernel
// OOM handler. Run with an independent context: the run context is usually
// already done when this matters.
func (h *dockerHandle) oomKilled() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, _, exitCode, err := h.runtime.cmdRunner.RunCommand(ctx, []string{
		"docker", "inspect", "-f", "{{.State.OOMKilled}}", h.name,
	})
	if err != nil || exitCode != 0 {
		h.runtime.logger.Warn("failed to inspect container OOM state",
			zap.String("container", h.name), zap.Error(err))
		return false
	}
	return strings.TrimSpace(out) == "true"
}

// forkDenied reports whether stderr carries the signatures of a pids-limit
// violation.
func forkDenied(stderr string) bool {
	for _, sig := range []string{
		"Resource temporarily unavailable",
		"BlockingIOError",
		"can't fork",
		"retry: Resource temporarily unavailable",
	} {
		if strings.Contains(stderr, sig) {
			return true
		}
	}
	return false
}

// Terminate stops the container without waiting for cooperative exit.
func (h *dockerHandle) Terminate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, stderr, exitCode, err := h.runtime.cmdRunner.RunCommand(ctx, []string{
		"docker", "kill", h.name,
	})
	if err != nil {
		return fmt.Errorf("failed to kill container %s: %w", h.name, err)
	}
	if exitCode != 0 && !strings.Contains(stderr, "No such container") {
		return fmt.Errorf("docker kill %s exited %d: %s", h.name, exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// Destroy removes the container and the scratch directory. Idempotent; safe
// to call from the watchdog and the normal teardown path concurrently. The
// teardown runs once and every caller observes its error.
func (h *dockerHandle) Destroy() error {
	h.once.Do(func() {
		defer close(h.destroyed)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, stderr, exitCode, err := h.runtime.cmdRunner.RunCommand(ctx, []string{
			"docker", "rm", "-f", h.name,
		})
		if err != nil {
			h.destroyErr = fmt.Errorf("failed to remove container %s: %w", h.name, err)
		} else if exitCode != 0 && !strings.Contains(stderr, "No such container") {
			h.destroyErr = fmt.Errorf("docker rm %s exited %d: %s", h.name, exitCode, strings.TrimSpace(stderr))
		}

		if rmErr := h.runtime.fs.RemoveAll(h.tempDir); rmErr != nil {
			h.destroyErr = errors.Join(h.destroyErr, fmt.Errorf("failed to remove temp dir %s: %w", h.tempDir, rmErr))
		}
	})
	<-h.destroyed
	return h.destroyErr
}
