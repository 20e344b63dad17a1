package executor

// Outcome tags the terminal state of one execution.
type Outcome string

const (
	// OutcomeCompleted means the interpreter exited on its own. The exit
	// code may be non-zero; that is the executed program's failure, not
	// the engine's.
	OutcomeCompleted Outcome = "completed"
	// OutcomeTimedOut means the sandbox exceeded its wall-clock budget and
	// was forcibly terminated.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeResourceExceeded means the isolation runtime enforced a hard
	// memory or process-count limit.
	OutcomeResourceExceeded Outcome = "resource_exceeded"
	// OutcomeCancelled means the caller cancelled an in-flight execution.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeSetupFailed means the sandbox could not be provisioned or the
	// engine was at capacity. Retry is at the caller's discretion.
	OutcomeSetupFailed Outcome = "setup_failed"
)

// ResourceKind distinguishes which hard limit was hit.
type ResourceKind string

const (
	ResourceMemory       ResourceKind = "memory"
	ResourceProcessCount ResourceKind = "process_count"
)

// ExitStatus is the tagged outcome of an execution. Exactly one constructor
// below produces each variant; Code is meaningful only for completed,
// Resource only for resource_exceeded, Reason only for setup_failed.
type ExitStatus struct {
	Outcome  Outcome
	Code     int
	Resource ResourceKind
	Reason   string
}

// Completed builds the status for a normal interpreter exit.
func Completed(code int) ExitStatus {
	return ExitStatus{Outcome: OutcomeCompleted, Code: code}
}

// TimedOut builds the status for a wall-clock budget violation.
func TimedOut() ExitStatus {
	return ExitStatus{Outcome: OutcomeTimedOut}
}

// ResourceExceeded builds the status for a hard resource-limit violation.
func ResourceExceeded(kind ResourceKind) ExitStatus {
	return ExitStatus{Outcome: OutcomeResourceExceeded, Resource: kind}
}

// Cancelled builds the status for a caller-cancelled execution.
func Cancelled() ExitStatus {
	return ExitStatus{Outcome: OutcomeCancelled}
}

// SetupFailed builds the status for a provisioning failure.
func SetupFailed(reason string) ExitStatus {
	return ExitStatus{Outcome: OutcomeSetupFailed, Reason: reason}
}

// ExecutionResult is the outcome record for one execution. It is created
// once per request and immutable after construction; no state behind it is
// shared with any other execution.
type ExecutionResult struct {
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	Status          ExitStatus
	ElapsedMillis   int64
	Isolation       IsolationMode
}
