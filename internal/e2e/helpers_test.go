package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatd/internal/httpapi"
	"chatd/internal/journal"
	"chatd/internal/manager"
	"chatd/internal/sse"
	"chatd/pkg/types"
)

// fakeLlama is an in-process llama.cpp server. Completions stream tokens;
// when hold is non-nil each completion waits on it first.
type fakeLlama struct {
	tokens []string
	hold   chan struct{}
	srv    *httptest.Server
}

func newFakeLlama(t *testing.T, tokens ...string) *fakeLlama {
	t.Helper()
	f := &fakeLlama{tokens: tokens}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"tiny"}]}`))
	})
	mux.HandleFunc("/v1/completions", f.complete)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLlama) complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stream bool `json:"stream"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-r.Context().Done():
			return
		}
	}
	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": strings.Join(f.tokens, ""), "finish_reason": "stop"}},
			"usage":   map[string]int{"completion_tokens": len(f.tokens)},
		})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	fl := w.(http.Flusher)
	for _, tok := range f.tokens {
		b, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"text": tok}}})
		fmt.Fprintf(w, "data: %s\n\n", b)
		fl.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	fl.Flush()
}

type stack struct {
	srv     *httptest.Server
	mgr     *manager.Manager
	journal *journal.Journal
}

// newStack wires manager, journal and HTTP API against backendURL and loads
// the model.
func newStack(t *testing.T, backendURL string, capacity int) *stack {
	t.Helper()
	jr, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	t.Cleanup(func() { _ = jr.Close() })
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Model:         types.Model{ID: "tiny.gguf", Name: "tiny", Path: "tiny.gguf"},
		Backend:       "server",
		Adapter:       manager.NewLlamaServerAdapter(backendURL, "", 0, time.Second),
		MaxConcurrent: capacity,
		Journal:       jr,
	})
	t.Cleanup(func() { _ = mgr.Close() })
	_ = mgr.Load(context.Background())
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return &stack{srv: srv, mgr: mgr, journal: jr}
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, b, err := doPost(url, body)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp, b
}

// doPost is safe to call from goroutines other than the test's.
func doPost(url, body string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b, nil
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

type sseEvent struct {
	name string
	data string
}

// parseSSE splits an event-stream body into events, unescaping data.
func parseSSE(t *testing.T, body []byte) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			out = append(out, cur)
			cur = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = sse.Unescape(strings.TrimPrefix(line, "data: "))
		default:
			t.Fatalf("unexpected line %q", line)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
