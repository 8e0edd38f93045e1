package manager

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to clients so they can decide whether to retry.
const (
	KindCapacityExceeded   = "capacity_exceeded"
	KindBackendUnavailable = "backend_unavailable"
	KindGenerationFailed   = "generation_failed"
)

// CapacityMessage is shown to clients turned away by the admission gate.
const CapacityMessage = "Maximum concurrent users reached. Please try again later."

var (
	// ErrCapacityExceeded signals that every generation slot is busy (429).
	ErrCapacityExceeded = errors.New("maximum concurrent users reached")
	// ErrBackendUnavailable signals that the model is not loaded (503).
	ErrBackendUnavailable = errors.New("model not loaded, server is starting up")
	// ErrGenerationTimeout is recorded when a request deadline ends a stream.
	ErrGenerationTimeout = errors.New("generation timed out")
)

// GenerationError wraps a backend failure that happened after admission.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

// IsCapacityExceeded reports whether err indicates admission was denied.
func IsCapacityExceeded(err error) bool { return errors.Is(err, ErrCapacityExceeded) }

// IsBackendUnavailable reports whether err means no generation can run right now.
func IsBackendUnavailable(err error) bool {
	if errors.Is(err, ErrBackendUnavailable) {
		return true
	}
	var de dependencyUnavailableError
	return errors.As(err, &de)
}

// IsGenerationFailure reports whether err came from the backend mid-generation.
func IsGenerationFailure(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// Kind classifies err into one of the Kind* constants ("" if unknown).
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsCapacityExceeded(err):
		return KindCapacityExceeded
	case IsBackendUnavailable(err):
		return KindBackendUnavailable
	case IsGenerationFailure(err):
		return KindGenerationFailed
	default:
		return ""
	}
}

// dependencyUnavailableError signals a missing external dependency (e.g., llama.cpp)
// so the HTTP layer can return 503 Service Unavailable instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// backendPanicError is returned when a backend panics during generation.
func backendPanicError(r any) error { return fmt.Errorf("backend panic: %v", r) }
