package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Limits are the per-execution resource constraints handed to a Runtime.
type Limits struct {
	MemoryMB  int
	PidsLimit int
}

// RunStatus is the tagged result of waiting for a sandboxed interpreter.
// The wait itself never signals timeout or cancellation through the status;
// those are read from the context by the engine.
type RunStatus struct {
	ExitCode int
	// MemoryKilled is set when the isolation runtime killed the process for
	// exceeding its memory ceiling.
	MemoryKilled bool
	// ProcessDenied is set when the process-count ceiling was hit.
	ProcessDenied bool
}

// Handle is one provisioned sandbox instance. A handle serves exactly one
// execution and is destroyed unconditionally at the end of that execution's
// lifecycle; handles are never reused.
type Handle interface {
	// Run writes the source into the sandbox, starts the interpreter, and
	// blocks until it exits or ctx is done. Output is streamed into stdout
	// and stderr as it is produced.
	Run(ctx context.Context, req ExecutionRequest, stdout, stderr io.Writer) (RunStatus, error)

	// Terminate forcibly stops the running interpreter without waiting for
	// cooperative exit. Safe to call whether or not Run is in flight.
	Terminate() error

	// Destroy releases every resource behind the handle: container, process
	// group, scratch directory. Idempotent.
	Destroy() error
}

// Runtime provisions isolated execution contexts. Implementations must not
// share any state between handles.
type Runtime interface {
	Provision(ctx context.Context, limits Limits) (Handle, error)
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
			err = nil
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission constants
const (
	DirPermission  = 0755
	FilePermission = 0644
)
