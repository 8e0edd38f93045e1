package manager

import (
	"context"
	"math"
	"time"

	"chatd/pkg/types"
)

// Pipeline defaults.
const (
	defaultStreamPace   = 10 * time.Millisecond
	defaultStreamBuffer = 8
)

// TokenEventKind tags a TokenEvent.
type TokenEventKind string

const (
	TokenFragment TokenEventKind = "token"
	TokenDone     TokenEventKind = "done"
	TokenError    TokenEventKind = "error"
)

// TokenEvent is one item delivered by a Stream. Exactly one of Text, Stats
// and Err is meaningful depending on Kind.
type TokenEvent struct {
	Kind  TokenEventKind
	Text  string
	Stats types.DoneStats
	Err   error
}

// Terminal reports whether no event can follow this one.
func (e TokenEvent) Terminal() bool { return e.Kind == TokenDone || e.Kind == TokenError }

// Pipeline turns a blocking, callback-driven generation into a stream of
// events consumed from another goroutine.
type Pipeline struct {
	pace   time.Duration
	buffer int
}

// NewPipeline returns a pipeline that pauses pace between fragments and lets
// the producer run at most buffer events ahead of the consumer. A negative
// pace disables pacing; buffer below one uses the default.
func NewPipeline(pace time.Duration, buffer int) *Pipeline {
	if pace < 0 {
		pace = 0
	}
	if buffer < 1 {
		buffer = defaultStreamBuffer
	}
	return &Pipeline{pace: pace, buffer: buffer}
}

// Stream is a running generation. Events arrive in production order and the
// channel closes after the terminal event, or without one if the stream was
// canceled.
type Stream struct {
	events <-chan TokenEvent
	cancel context.CancelFunc
	done   chan struct{}
}

// Stream starts generating prompt on sess in a producer goroutine. Canceling
// ctx or calling Close stops the producer at its next fragment boundary.
func (p *Pipeline) Stream(ctx context.Context, sess InferSession, prompt string, params InferParams) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan TokenEvent, p.buffer)
	s := &Stream{events: ch, cancel: cancel, done: make(chan struct{})}
	go p.produce(ctx, sess, prompt, params, ch, s.done)
	return s
}

func (p *Pipeline) produce(ctx context.Context, sess InferSession, prompt string, params InferParams, ch chan<- TokenEvent, done chan<- struct{}) {
	defer close(done)
	defer close(ch)

	send := func(ev TokenEvent) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	start := time.Now()
	count := 0
	_, err := safeGenerate(ctx, sess, prompt, params, func(frag string) error {
		if frag == "" {
			return nil
		}
		if !send(TokenEvent{Kind: TokenFragment, Text: frag}) {
			return ctx.Err()
		}
		count++
		return p.wait(ctx)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		send(TokenEvent{Kind: TokenError, Err: err})
		return
	}
	send(TokenEvent{Kind: TokenDone, Stats: types.DoneStats{
		TokenCount:     count,
		GenerationTime: roundSeconds(time.Since(start)),
	}})
}

// wait paces fragment delivery while staying responsive to cancellation.
func (p *Pipeline) wait(ctx context.Context) error {
	if p.pace <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.pace)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the raw channel for range loops.
func (s *Stream) Events() <-chan TokenEvent { return s.events }

// Next blocks for the next event. ok is false once the stream is exhausted or
// ctx is done.
func (s *Stream) Next(ctx context.Context) (ev TokenEvent, ok bool) {
	select {
	case ev, ok = <-s.events:
		return ev, ok
	case <-ctx.Done():
		return TokenEvent{}, false
	}
}

// Close cancels the producer and waits for it to exit. It is safe to call
// more than once and after the stream finished on its own.
func (s *Stream) Close() {
	s.cancel()
	<-s.done
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
