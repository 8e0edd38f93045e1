package httpapi

import (
	"encoding/json"
	"unicode/utf8"

	"chatd/internal/sse"
	"chatd/pkg/types"
)

// Event names on the chat stream. Fragments use the default message type.
const (
	eventStart = "start"
	eventDone  = "done"
	eventError = "error"
)

// sseSink writes chat stream events to an SSE writer.
type sseSink struct {
	w      *sse.Writer
	log    requestLogger
	tokens int
}

func (s *sseSink) Start() error {
	return s.w.Event(eventStart, "Generation started")
}

func (s *sseSink) Token(text string) error {
	s.tokens++
	s.log.token(utf8.RuneCountInString(text))
	return s.w.Data(text)
}

func (s *sseSink) Done(stats types.DoneStats) error {
	return s.writeJSON(eventDone, stats)
}

func (s *sseSink) Error(e types.StreamError) error {
	return s.writeJSON(eventError, e)
}

func (s *sseSink) writeJSON(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.w.Event(name, string(b))
}
