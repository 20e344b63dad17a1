package executor

import (
	"fmt"
	"strings"
)

// Language identifies a supported runtime language. The set of languages is
// a closed allow-list: unknown values fail validation rather than falling
// back to a default interpreter.
type Language string

// Supported languages
const (
	LanguagePython Language = "python"
)

// LanguageSpec maps a language to its interpreter-invocation strategy.
type LanguageSpec struct {
	FileName string
	Command  []string // interpreter argv, run from the scratch directory
}

// languageTable is the closed dispatch table. Adding a language means adding
// an entry here and a constant above, not matching arbitrary strings.
var languageTable = map[Language]LanguageSpec{
	LanguagePython: {
		FileName: "script.py",
		Command:  []string{"python3", "script.py"},
	},
}

// ParseLanguage resolves a raw language string against the allow-list.
func ParseLanguage(raw string) (Language, bool) {
	lang := Language(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := languageTable[lang]
	return lang, ok
}

// Spec returns the interpreter-invocation strategy for the language.
func (l Language) Spec() LanguageSpec {
	return languageTable[l]
}

// IsolationMode is the policy level applied to one execution.
type IsolationMode string

const (
	// IsolationSandboxed runs the code in a fully isolated container.
	IsolationSandboxed IsolationMode = "sandboxed"
	// IsolationDirect runs the code as a restricted host process. Intended
	// for trusted local development only and must be enabled explicitly.
	IsolationDirect IsolationMode = "direct"
)

// RawRequest is the caller-supplied, unvalidated execution intent.
// A nil TimeoutSec/MemoryMB means the field was omitted and the configured
// default applies; a pointer to zero or a negative value is supplied and
// rejected. An empty Isolation means sandboxed.
type RawRequest struct {
	Language   string
	Source     string
	TimeoutSec *int
	MemoryMB   *int
	Isolation  string
}

// ExecutionRequest is a validated, normalized execution request. It is
// immutable once produced by the Validator.
type ExecutionRequest struct {
	Language   Language
	Source     string
	TimeoutSec int
	MemoryMB   int
	Isolation  IsolationMode
}

// ValidationReason classifies why a request was rejected.
type ValidationReason string

const (
	ReasonEmptySource         ValidationReason = "empty_source"
	ReasonUnsupportedLanguage ValidationReason = "unsupported_language"
	ReasonTimeoutOutOfBounds  ValidationReason = "timeout_out_of_bounds"
	ReasonMemoryOutOfBounds   ValidationReason = "memory_out_of_bounds"
	ReasonIsolationDisallowed ValidationReason = "isolation_disallowed"
)

// ValidationError reports a rejected execution request.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid execution request (%s): %s", e.Reason, e.Detail)
}

// Bounds are the static limits the Validator enforces.
type Bounds struct {
	DefaultTimeoutSec int
	MaxTimeoutSec     int
	DefaultMemoryMB   int
	MaxMemoryMB       int
	AllowDirect       bool
}

// Validator normalizes and validates execution requests. It is a pure
// function over its input plus the configured bounds: no side effects, and
// the same raw input always yields the same outcome.
type Validator struct {
	bounds Bounds
}

// NewValidator creates a Validator with the given bounds.
func NewValidator(bounds Bounds) *Validator {
	return &Validator{bounds: bounds}
}

// Validate checks a raw request and produces the immutable ExecutionRequest.
// Out-of-bounds timeout and memory values are rejected, never clamped:
// silently clamping would hand the caller a weaker guarantee than the one
// they asked for.
func (v *Validator) Validate(raw RawRequest) (ExecutionRequest, error) {
	if strings.TrimSpace(raw.Source) == "" {
		return ExecutionRequest{}, &ValidationError{
			Reason: ReasonEmptySource,
			Detail: "source must not be empty or whitespace-only",
		}
	}

	lang, ok := ParseLanguage(raw.Language)
	if !ok {
		return ExecutionRequest{}, &ValidationError{
			Reason: ReasonUnsupportedLanguage,
			Detail: fmt.Sprintf("unsupported language %q", raw.Language),
		}
	}

	// Only an omitted field takes the default. A supplied zero is rejected
	// like any other out-of-bounds value.
	timeout := v.bounds.DefaultTimeoutSec
	if raw.TimeoutSec != nil {
		timeout = *raw.TimeoutSec
	}
	if timeout <= 0 || timeout > v.bounds.MaxTimeoutSec {
		return ExecutionRequest{}, &ValidationError{
			Reason: ReasonTimeoutOutOfBounds,
			Detail: fmt.Sprintf("timeout %ds outside (0, %d]", timeout, v.bounds.MaxTimeoutSec),
		}
	}

	memory := v.bounds.DefaultMemoryMB
	if raw.MemoryMB != nil {
		memory = *raw.MemoryMB
	}
	if memory <= 0 || memory > v.bounds.MaxMemoryMB {
		return ExecutionRequest{}, &ValidationError{
			Reason: ReasonMemoryOutOfBounds,
			Detail: fmt.Sprintf("memory limit %dMB outside (0, %d]", memory, v.bounds.MaxMemoryMB),
		}
	}

	isolation := IsolationMode(strings.ToLower(strings.TrimSpace(raw.Isolation)))
	if isolation == "" {
		isolation = IsolationSandboxed
	}
	switch isolation {
	case IsolationSandboxed:
	case IsolationDirect:
		// A disabled direct mode is a hard failure, not a silent downgrade
		// to sandboxed: the caller must never guess which guarantee applied.
		if !v.bounds.AllowDirect {
			return ExecutionRequest{}, &ValidationError{
				Reason: ReasonIsolationDisallowed,
				Detail: "direct isolation is disabled by server configuration",
			}
		}
	default:
		return ExecutionRequest{}, &ValidationError{
			Reason: ReasonIsolationDisallowed,
			Detail: fmt.Sprintf("unknown isolation mode %q", raw.Isolation),
		}
	}

	return ExecutionRequest{
		Language:   lang,
		Source:     raw.Source,
		TimeoutSec: timeout,
		MemoryMB:   memory,
		Isolation:  isolation,
	}, nil
}
