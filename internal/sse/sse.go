// Package sse writes Server-Sent Events frames.
package sse

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoFlusher is returned when the response writer cannot flush, so events
// would sit in a buffer instead of reaching the client.
var ErrNoFlusher = errors.New("streaming not supported")

var escaper = strings.NewReplacer("\n", `\n`, "\r", `\r`)

// Escape makes s safe for a single data line: CR and LF become the two
// character sequences \r and \n. Clients reverse it to restore line breaks.
func Escape(s string) string { return escaper.Replace(s) }

// Unescape turns the sequences \r and \n back into line breaks. Backslashes
// are not escaped on the wire, so text that already held a literal \n comes
// back as a line feed: Unescape(Escape(s)) == s only when s has no such
// sequence.
func Unescape(s string) string {
	return strings.NewReplacer(`\n`, "\n", `\r`, "\r").Replace(s)
}

// Writer emits events and flushes after each one.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
	started bool
}

// NewWriter prepares w for streaming: it sets the event-stream headers but
// does not write the status line until the first event.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlusher
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: f}, nil
}

// Started reports whether anything has been written yet.
func (sw *Writer) Started() bool { return sw.started }

// Event writes a named event. data is escaped.
func (sw *Writer) Event(name, data string) error {
	return sw.write(fmt.Sprintf("event: %s\ndata: %s\n\n", name, Escape(data)))
}

// Data writes an unnamed event (the default "message" type). data is escaped.
func (sw *Writer) Data(data string) error {
	return sw.write("data: " + Escape(data) + "\n\n")
}

// Comment writes a comment line, useful as a keep-alive.
func (sw *Writer) Comment(text string) error {
	return sw.write(": " + Escape(text) + "\n\n")
}

func (sw *Writer) write(frame string) error {
	sw.started = true
	if _, err := io.WriteString(sw.w, frame); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
