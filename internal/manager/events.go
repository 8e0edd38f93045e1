package manager

// Event names published over the lifetime of a chat request. Every admitted
// request publishes exactly one EventReleased.
const (
	EventAdmitted  = "admitted"
	EventRejected  = "rejected"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
	EventReleased  = "released"

	EventModelLoaded     = "model_loaded"
	EventModelLoadFailed = "model_load_failed"
)

// Event represents a manager lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
