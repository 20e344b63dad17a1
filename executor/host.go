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
	"syscall"

	"go.uber.org/zap"
)

// HostRuntime implements Runtime by running the interpreter as a restricted
// host process. This is the direct isolation mode: no container, so no
// network denial and no read-only filesystem. It exists for trusted local
// development and must never receive untrusted input.
//
// Constraints applied:
//   - each execution gets its own scratch directory, removed at teardown
//   - the interpreter runs in its own process group (Setpgid)
//   - the entire group is killed on timeout or cancel
//   - no environment inheritance, only a minimal safe set
//   - memory capped through ulimit
type HostRuntime struct {
	logger *zap.Logger
	fs     FileSystem
}

// NewHostRuntime creates a HostRuntime.
func NewHostRuntime(logger *zap.Logger) *HostRuntime {
	return &HostRuntime{logger: logger, fs: &RealFileSystem{}}
}

// Provision allocates the scratch directory for one execution.
func (r *HostRuntime) Provision(_ context.Context, limits Limits) (Handle, error) {
	tempDir, err := r.fs.MkdirTemp("", "fusional-direct-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &hostHandle{
		runtime:   r,
		tempDir:   tempDir,
		limits:    limits,
		destroyed: make(chan struct{}),
	}, nil
}

type hostHandle struct {
	runtime *HostRuntime
	tempDir string
	limits  Limits

	mu   sync.Mutex
	pgid int

	once       sync.Once
	destroyed  chan struct{}
	destroyErr error
}

// Run writes the source into the scratch directory and runs the interpreter
// under a ulimit wrapper in its own process group.
func (h *hostHandle) Run(ctx context.Context, req ExecutionRequest, stdout, stderr io.Writer) (RunStatus, error) {
	spec := req.Language.Spec()

	scriptPath := filepath.Join(h.tempDir, spec.FileName)
	if err := h.runtime.fs.WriteFile(scriptPath, []byte(req.Source), FilePermission); err != nil {
		return RunStatus{}, fmt.Errorf("failed to write source: %w", err)
	}

	// The interpreter is handed to the shell through positional parameters,
	// never interpolated into the shell string.
	memKB := h.limits.MemoryMB * 1024
	shellScript := fmt.Sprintf("ulimit -v %d 2>/dev/null; exec \"$@\"", memKB)
	args := make([]string, 0, 3+len(spec.Command))
	args = append(args, "-c", shellScript, "_")
	args = append(args, spec.Command...)

	cmd := exec.CommandContext(ctx, "/bin/sh", args...)
	cmd.Dir = h.tempDir
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + h.tempDir,
		"TMPDIR=" + h.tempDir,
		"LANG=en_US.UTF-8",
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID kills the entire process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return RunStatus{}, fmt.Errorf("failed to start interpreter: %w", err)
	}

	h.mu.Lock()
	h.pgid = cmd.Process.Pid
	h.mu.Unlock()

	runErr := cmd.Wait()

	exitCode := 0
	memoryKilled := false
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
			// Best effort: a SIGKILL that was not ours is the kernel
			// enforcing the memory cap.
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				if ws.Signaled() && ws.Signal() == syscall.SIGKILL && ctx.Err() == nil {
					memoryKilled = true
				}
			}
		} else if ctx.Err() != nil {
			return RunStatus{}, ctx.Err()
		} else {
			return RunStatus{}, fmt.Errorf("failed to run interpreter: %w", runErr)
		}
	}

	if ctx.Err() != nil {
		return RunStatus{}, ctx.Err()
	}

	status := RunStatus{ExitCode: exitCode, MemoryKilled: memoryKilled}
	if exitCode != 0 && strings.Contains(lastStderr(stderr), "MemoryError") {
		status.MemoryKilled = true
	}
	return status, nil
}

// lastStderr inspects the capture buffer when the caller gave us one.
func lastStderr(w io.Writer) string {
	if b, ok := w.(*boundedBuffer); ok {
		return b.String()
	}
	return ""
}

// Terminate kills the whole process group.
func (h *hostHandle) Terminate() error {
	h.mu.Lock()
	pgid := h.pgid
	h.mu.Unlock()

	if pgid == 0 {
		return nil
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill process group %d: %w", pgid, err)
	}
	return nil
}

// Destroy kills any survivors and removes the scratch directory. Idempotent;
// the teardown runs once and every caller observes its error.
func (h *hostHandle) Destroy() error {
	h.once.Do(func() {
		defer close(h.destroyed)

		if err := h.Terminate(); err != nil {
			h.destroyErr = err
		}
		if rmErr := h.runtime.fs.RemoveAll(h.tempDir); rmErr != nil {
			h.destroyErr = errors.Join(h.destroyErr, fmt.Errorf("failed to remove temp dir %s: %w", h.tempDir, rmErr))
		}
	})
	<-h.destroyed
	return h.destroyErr
}
