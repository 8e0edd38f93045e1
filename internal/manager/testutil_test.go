package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatd/internal/journal"
	"chatd/pkg/types"
)

// fakeAdapter is a lightweight in-memory adapter used for tests.
type fakeAdapter struct {
	startErr   error
	sess       *fakeSession
	receivedMP string
}

func (f *fakeAdapter) Start(ctx context.Context, modelPath string) (InferSession, error) {
	f.receivedMP = modelPath
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.sess == nil {
		f.sess = &fakeSession{}
	}
	return f.sess, nil
}

// fakeSession replays tokens. block, when set, holds Generate until it is
// closed or ctx ends; started receives one value per Generate call.
type fakeSession struct {
	tokens   []string
	err      error
	panicMsg string
	delay    time.Duration
	block    chan struct{}
	started  chan struct{}

	emitted atomic.Int32
	closed  atomic.Bool

	mu         sync.Mutex
	calls      int
	lastParams InferParams
	lastStream bool
}

func (s *fakeSession) Generate(ctx context.Context, prompt string, params InferParams, onToken func(string) error) (FinalResult, error) {
	s.mu.Lock()
	s.calls++
	s.lastParams = params
	s.lastStream = onToken != nil
	s.mu.Unlock()
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return FinalResult{}, ctx.Err()
		}
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	var sb strings.Builder
	for _, tok := range s.tokens {
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return FinalResult{}, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return FinalResult{}, err
		}
		sb.WriteString(tok)
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return FinalResult{Content: sb.String()}, err
			}
		}
		s.emitted.Add(1)
	}
	if s.err != nil {
		return FinalResult{}, s.err
	}
	return FinalResult{Content: sb.String(), Usage: Usage{CompletionTokens: len(s.tokens)}}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSession) params() InferParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParams
}

var testModel = types.Model{ID: "tiny.gguf", Name: "tiny", Path: "/models/tiny.gguf"}

// newTestManager builds a loaded Manager around sess with the given capacity.
func newTestManager(t *testing.T, sess *fakeSession, capacity int) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	m := NewWithConfig(ManagerConfig{
		Model:         testModel,
		Backend:       "fake",
		Adapter:       &fakeAdapter{sess: sess},
		MaxConcurrent: capacity,
		Publisher:     pub,
	})
	if err := m.Load(testCtx(t)); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, pub
}

// testCtx returns a context canceled by test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// waitStarted blocks until sess reports a Generate call.
func waitStarted(t *testing.T, sess *fakeSession) {
	t.Helper()
	select {
	case <-sess.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("generation did not start")
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

// recordingSink captures stream events as compact strings.
type recordingSink struct {
	mu        sync.Mutex
	events    []string
	stats     types.DoneStats
	streamErr types.StreamError
	failAfter int
	tokens    int
}

func (s *recordingSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "start")
	return nil
}

func (s *recordingSink) Token(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && s.tokens >= s.failAfter {
		return fmt.Errorf("write: broken pipe")
	}
	s.tokens++
	s.events = append(s.events, "token:"+text)
	return nil
}

func (s *recordingSink) Done(stats types.DoneStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	s.events = append(s.events, "done")
	return nil
}

func (s *recordingSink) Error(e types.StreamError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamErr = e
	s.events = append(s.events, "error:"+e.Code)
	return nil
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

// memJournal collects journal entries.
type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memJournal) Record(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
	return nil
}

func (j *memJournal) all() []journal.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]journal.Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

func chatReq(prompt string) types.ChatRequest { return types.ChatRequest{Prompt: prompt} }
