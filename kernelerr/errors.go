// Package kernelerr defines the kernel's error kinds. The Coordinator never
// swallows a Dynamics failure silently; it converts whatever it catches into
// one of these kinds, wrapping the original cause with %w.
package kernelerr

import "fmt"

// Kind tags a KernelError with one of the five error kinds from spec.md §7.
type Kind int

const (
	// Config marks a malformed project, a missing required field, or a
	// duplicate name. Surfaced before simulation starts; fatal.
	Config Kind = iota
	// Load marks a plugin that could not be found, or a missing symbol.
	Load
	// Runtime marks a Dynamics callback failure or contract violation.
	Runtime
	// Value marks a value-tree type mismatch at lookup time.
	Value
	// Invariant marks an internal bug: negative sigma, a dangling
	// connection endpoint, or similar.
	Invariant
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case Load:
		return "LoadError"
	case Runtime:
		return "RuntimeError"
	case Value:
		return "ValueError"
	case Invariant:
		return "InvariantViolation"
	default:
		return "UnknownError"
	}
}

// KernelError is the single wrapped error type the kernel surfaces to
// callers, generalized from the teacher's CrawlError{URL, Stage, Err}.
type KernelError struct {
	Kind      Kind
	ModelPath string
	Phase     string
	Time      float64
	Err       error
}

func (e *KernelError) Error() string {
	if e.ModelPath == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: model=%s phase=%s t=%g: %v", e.Kind, e.ModelPath, e.Phase, e.Time, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, kernelerr.Config) style matching against a bare
// Kind sentinel wrapped in a zero-value KernelError.
func (e *KernelError) Is(target error) bool {
	te, ok := target.(*KernelError)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

func newErr(kind Kind, modelPath, phase string, t float64, err error) *KernelError {
	return &KernelError{Kind: kind, ModelPath: modelPath, Phase: phase, Time: t, Err: err}
}

// NewConfigError builds a fatal configuration-stage error.
func NewConfigError(modelPath string, err error) *KernelError {
	return newErr(Config, modelPath, "config", 0, err)
}

// NewLoadError builds a fatal plugin-load error carrying the attempted
// search paths in err's message.
func NewLoadError(modelPath string, err error) *KernelError {
	return newErr(Load, modelPath, "load", 0, err)
}

// NewRuntimeError builds a fatal error raised by a Dynamics callback.
func NewRuntimeError(modelPath, phase string, t float64, err error) *KernelError {
	return newErr(Runtime, modelPath, phase, t, err)
}

// NewValueError builds an error raised by a value-tree type mismatch.
func NewValueError(modelPath string, t float64, err error) *KernelError {
	return newErr(Value, modelPath, "value", t, err)
}

// NewInvariantViolation builds an internal-bug error naming the offending
// Simulator.
func NewInvariantViolation(modelPath, phase string, t float64, err error) *KernelError {
	return newErr(Invariant, modelPath, phase, t, err)
}

// ExitCode maps a terminal error to the CLI façade's exit code contract
// (spec.md §6): 0 on success is the caller's responsibility when err==nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ke *KernelError
	if As(err, &ke) {
		switch ke.Kind {
		case Config:
			return 2
		case Load:
			return 3
		case Runtime:
			return 4
		case Value:
			return 5
		case Invariant:
			return 6
		}
	}
	return 1
}

// As is a thin wrapper over errors.As to keep this file's import list
// self-contained for the simple case used by ExitCode.
func As(err error, target **KernelError) bool {
	for err != nil {
		if ke, ok := err.(*KernelError); ok {
			*target = ke
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
