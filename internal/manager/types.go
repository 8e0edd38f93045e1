package manager

import "time"

// State represents the lifecycle state of the served model.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
	StateClosed  State = "closed"
)

// Mode distinguishes the two generation paths that share admission.
type Mode string

const (
	ModeBatch  Mode = "batch"
	ModeStream Mode = "stream"
)

// Outcome is the terminal state of an admitted or rejected request.
type Outcome string

const (
	OutcomeRejected  Outcome = "rejected"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// GenerationDefaults are the server-side values applied when a request omits
// a parameter.
type GenerationDefaults struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State     State
	ModelID   string
	ModelPath string
	Err       string
	LoadedAt  time.Time
}
