package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/journal"
	"chatd/pkg/types"
)

// Journal persists one entry per finished request.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Manager owns the loaded model and coordinates every chat request through
// the admission gate.
type Manager struct {
	mu       sync.RWMutex
	state    State
	err      string
	loadedAt time.Time
	model    types.Model
	backend  string
	adapter  InferenceAdapter
	sess     InferSession

	gate      *Gate
	pipeline  *Pipeline
	defaults  GenerationDefaults
	publisher EventPublisher
	journal   Journal
	log       zerolog.Logger
	startTime time.Time
}

// New builds a Manager for model with default tunables.
func New(model types.Model, adapter InferenceAdapter) *Manager {
	return NewWithConfig(ManagerConfig{Model: model, Adapter: adapter})
}

// Load starts the backend session for the configured model. A failure
// leaves the Manager in StateError; requests then fail with
// ErrBackendUnavailable while the process keeps serving health and status.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	prev := m.sess
	m.sess = nil
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	start := time.Now()
	m.log.Info().Str("model", m.model.ID).Str("path", m.model.Path).Str("backend", m.backend).Msg("loading model")
	var sess InferSession
	err := errors.New("no model configured")
	// a remote server owns the weights and may run without a local path
	if _, remote := m.adapter.(*llamaServerAdapter); remote || m.model.Path != "" {
		sess, err = m.adapter.Start(ctx, m.model.Path)
	}
	if err != nil {
		m.mu.Lock()
		m.state = StateError
		m.err = err.Error()
		m.mu.Unlock()
		m.log.Error().Err(err).Str("model", m.model.ID).Msg("model load failed")
		m.publisher.Publish(Event{Name: EventModelLoadFailed, ModelID: m.model.ID, Fields: map[string]any{"error": err.Error()}})
		return err
	}

	m.mu.Lock()
	m.sess = sess
	m.state = StateReady
	m.loadedAt = time.Now()
	m.mu.Unlock()
	m.log.Info().Str("model", m.model.ID).Dur("took", time.Since(start)).Msg("model loaded")
	m.publisher.Publish(Event{Name: EventModelLoaded, ModelID: m.model.ID, Fields: map[string]any{"load_ms": time.Since(start).Milliseconds()}})
	return nil
}

// Ready reports whether a model is loaded and requests can be served.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.sess != nil
}

// Snapshot returns the model lifecycle state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:     m.state,
		ModelID:   m.model.ID,
		ModelPath: m.model.Path,
		Err:       m.err,
		LoadedAt:  m.loadedAt,
	}
}

// Gate exposes the admission gate, mainly for status reporting.
func (m *Manager) Gate() *Gate { return m.gate }

// Defaults returns the server-side generation defaults.
func (m *Manager) Defaults() GenerationDefaults { return m.defaults }

// Close unloads the model and stops any managed backend process.
func (m *Manager) Close() error {
	m.mu.Lock()
	sess := m.sess
	m.sess = nil
	m.state = StateClosed
	m.mu.Unlock()
	var errs []error
	if sess != nil {
		errs = append(errs, sess.Close())
	}
	if s, ok := m.adapter.(interface{ StopAll() }); ok {
		s.StopAll()
	}
	return errors.Join(errs...)
}

// session returns the loaded session or ErrBackendUnavailable.
func (m *Manager) session() (InferSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady || m.sess == nil {
		return nil, ErrBackendUnavailable
	}
	return m.sess, nil
}
