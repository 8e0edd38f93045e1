package manager

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatd/internal/journal"
)

const journalTimeout = 2 * time.Second

// requestRecord follows one admitted request from admission to release.
type requestRecord struct {
	m       *Manager
	lease   *Lease
	mode    Mode
	log     zerolog.Logger
	start   time.Time
	outcome Outcome
	err     error

	promptLen   int
	responseLen int
	tokens      int
	genTime     float64
}

func (m *Manager) begin(lease *Lease, mode Mode, prompt string) *requestRecord {
	rec := &requestRecord{
		m:         m,
		lease:     lease,
		mode:      mode,
		start:     time.Now(),
		outcome:   OutcomeCancelled,
		promptLen: utf8.RuneCountInString(prompt),
		log:       m.log.With().Str("request_id", lease.ID).Str("mode", string(mode)).Logger(),
	}
	st := m.gate.Status()
	rec.log.Info().Int("active", st.Active).Int("capacity", st.Capacity).Int("prompt_length", rec.promptLen).Msg("request admitted")
	m.publisher.Publish(Event{Name: EventAdmitted, ModelID: m.model.ID, Fields: map[string]any{"request_id": lease.ID, "mode": string(mode)}})
	return rec
}

func (r *requestRecord) complete(responseLen, tokens int, genTime float64) {
	r.outcome = OutcomeCompleted
	r.responseLen = responseLen
	r.tokens = tokens
	r.genTime = genTime
}

func (r *requestRecord) fail(err error) {
	r.outcome = OutcomeFailed
	r.err = err
}

func (r *requestRecord) cancel(err error) {
	r.outcome = OutcomeCancelled
	r.err = err
}

// finish releases the slot and reports the outcome. It runs deferred, so it
// also executes while a panic unwinds.
func (r *requestRecord) finish() {
	released := r.lease.Release()
	m := r.m
	elapsed := time.Since(r.start)
	if r.genTime == 0 {
		r.genTime = roundSeconds(elapsed)
	}

	fields := map[string]any{"request_id": r.lease.ID, "mode": string(r.mode)}
	switch r.outcome {
	case OutcomeCompleted:
		m.publisher.Publish(Event{Name: EventCompleted, ModelID: m.model.ID, Fields: fields})
		r.log.Info().Int("response_length", r.responseLen).Int("tokens", r.tokens).Float64("generation_time", r.genTime).Msg("request completed")
	case OutcomeFailed:
		m.publisher.Publish(Event{Name: EventFailed, ModelID: m.model.ID, Fields: fields})
		r.log.Error().Err(r.err).Msg("request failed")
	default:
		m.publisher.Publish(Event{Name: EventCancelled, ModelID: m.model.ID, Fields: fields})
		r.log.Warn().Err(r.err).Msg("request cancelled")
	}
	if released {
		m.publisher.Publish(Event{Name: EventReleased, ModelID: m.model.ID, Fields: fields})
	}
	requestsTotal.WithLabelValues(string(r.mode), string(r.outcome)).Inc()
	generationSeconds.WithLabelValues(string(r.mode)).Observe(elapsed.Seconds())

	e := journal.Entry{
		ID:             r.lease.ID,
		Mode:           string(r.mode),
		Outcome:        string(r.outcome),
		PromptLength:   r.promptLen,
		ResponseLength: r.responseLen,
		TokenCount:     r.tokens,
		GenerationTime: r.genTime,
		CreatedAt:      r.lease.AdmittedAt,
	}
	if r.err != nil {
		e.Error = r.err.Error()
	}
	m.record(e)
}

// reject accounts for a request the gate turned away.
func (m *Manager) reject(mode Mode, prompt string) {
	st := m.gate.Status()
	m.log.Warn().Str("mode", string(mode)).Int("active", st.Active).Int("capacity", st.Capacity).Msg("request rejected: capacity exceeded")
	m.publisher.Publish(Event{Name: EventRejected, ModelID: m.model.ID, Fields: map[string]any{"mode": string(mode)}})
	requestsTotal.WithLabelValues(string(mode), string(OutcomeRejected)).Inc()
	m.record(journal.Entry{
		ID:           uuid.NewString(),
		Mode:         string(mode),
		Outcome:      string(OutcomeRejected),
		PromptLength: utf8.RuneCountInString(prompt),
		Error:        ErrCapacityExceeded.Error(),
		CreatedAt:    time.Now(),
	})
}

func (m *Manager) record(e journal.Entry) {
	if m.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := m.journal.Record(ctx, e); err != nil {
		m.log.Warn().Err(err).Str("request_id", e.ID).Msg("journal write failed")
	}
}
