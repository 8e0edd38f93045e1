package manager

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// sseWriter helps write SSE-style lines.
type sseWriter struct{ w http.ResponseWriter }

func (sw sseWriter) writeLine(line string) {
	_, _ = sw.w.Write([]byte(line + "\n\n"))
	if f, ok := sw.w.(http.Flusher); ok {
		f.Flush()
	}
}

func newCompletionServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"m"}]}`))
	})
	mux.HandleFunc("/v1/completions", h)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func startServerSession(t *testing.T, url string, reqTimeout time.Duration) InferSession {
	t.Helper()
	sess, err := NewLlamaServerAdapter(url, "secret", reqTimeout, time.Second).Start(testCtx(t), "m")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestLlamaServerAdapter_Stream(t *testing.T) {
	var got completionRequest
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.Header().Set("Content-Type", "text/event-stream")
		sw := sseWriter{w: w}
		sw.writeLine(`data: {"choices":[{"text":"Hello"}]}`)
		sw.writeLine(`data: {"choices":[{"delta":{"content":" World"}}]}`)
		sw.writeLine(`: keep-alive`)
		sw.writeLine(`data: {"choices":[{"text":"","finish_reason":"stop"}]}`)
		sw.writeLine(`data: [DONE]`)
	})
	sess := startServerSession(t, ts.URL, 5*time.Second)

	var b strings.Builder
	res, err := sess.Generate(testCtx(t), "Say hi", InferParams{MaxTokens: 16, Temperature: 0, TopP: 0.9, Stop: []string{"User:"}}, func(tok string) error {
		b.WriteString(tok)
		return nil
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if b.String() != "Hello World" || res.Content != "Hello World" {
		t.Fatalf("unexpected output: %q / %q", b.String(), res.Content)
	}
	if res.FinishReason != "stop" || res.Usage.CompletionTokens != 2 {
		t.Fatalf("result=%+v", res)
	}
	if !got.Stream || got.MaxTokens != 16 || got.Model != "m" || len(got.Stop) != 1 {
		t.Fatalf("payload=%+v", got)
	}
}

func TestLlamaServerAdapter_Batch(t *testing.T) {
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			http.Error(w, "expected non-stream request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"text":" The answer is 4. ","finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":6,"total_tokens":11}}`))
	})
	sess := startServerSession(t, ts.URL, 5*time.Second)
	res, err := sess.Generate(testCtx(t), "2+2?", InferParams{MaxTokens: 8}, nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.Content != " The answer is 4. " || res.Usage.TotalTokens != 11 || res.FinishReason != "stop" {
		t.Fatalf("result=%+v", res)
	}
}

func TestLlamaServerAdapter_NativeStreamFields(t *testing.T) {
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		sw := sseWriter{w: w}
		sw.writeLine(`data: {"content":"na","stop":false}`)
		sw.writeLine(`data: {"content":"tive","stop":true}`)
		sw.writeLine(`data: {"content":"ignored"}`)
	})
	sess := startServerSession(t, ts.URL, 5*time.Second)
	res, err := sess.Generate(testCtx(t), "p", InferParams{}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.Content != "native" || res.FinishReason != "stop" {
		t.Fatalf("result=%+v", res)
	}
}

func TestLlamaServerAdapter_HTTPError(t *testing.T) {
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "boom"}})
	})
	sess := startServerSession(t, ts.URL, 3*time.Second)
	_, err := sess.Generate(testCtx(t), "hello", InferParams{}, func(string) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected error on HTTP 500, got %v", err)
	}
}

func TestLlamaServerAdapter_RequestTimeout(t *testing.T) {
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		sw := sseWriter{w: w}
		for i := 0; i < 5; i++ {
			sw.writeLine(`data: {"choices":[{"text":"x"}]}`)
			select {
			case <-r.Context().Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
		sw.writeLine("data: [DONE]")
	})
	sess := startServerSession(t, ts.URL, 250*time.Millisecond)
	_, err := sess.Generate(context.Background(), "hello", InferParams{}, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected deadline error due to short request timeout")
	}
}

func TestLlamaServerAdapter_CallbackErrorStops(t *testing.T) {
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		sw := sseWriter{w: w}
		for i := 0; i < 10; i++ {
			sw.writeLine(`data: {"choices":[{"text":"x"}]}`)
		}
		sw.writeLine("data: [DONE]")
	})
	sess := startServerSession(t, ts.URL, 5*time.Second)
	stop := errors.New("client gone")
	calls := 0
	_, err := sess.Generate(testCtx(t), "p", InferParams{}, func(string) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestLlamaServerAdapter_StartUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	_, err := NewLlamaServerAdapter(url, "", time.Second, 200*time.Millisecond).Start(testCtx(t), "m")
	if !IsBackendUnavailable(err) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestLlamaServerAdapter_StreamErrorChunk(t *testing.T) {
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		sw := sseWriter{w: w}
		sw.writeLine(`data: {"choices":[{"text":"Hi"}]}`)
		sw.writeLine(`data: {"error":{"code":500,"message":"context shift failed"}}`)
	})
	sess := startServerSession(t, ts.URL, 5*time.Second)
	res, err := sess.Generate(testCtx(t), "p", InferParams{}, func(string) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "context shift failed") {
		t.Fatalf("expected server error, got %v", err)
	}
	if res.Content != "Hi" {
		t.Fatalf("partial content=%q", res.Content)
	}

	evs := collect(t, NewPipeline(0, 0).Stream(testCtx(t), sess, "p", InferParams{}))
	if len(evs) != 2 || evs[0].Text != "Hi" || evs[1].Kind != TokenError {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestLlamaServerAdapter_StreamTruncated(t *testing.T) {
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		sseWriter{w: w}.writeLine(`data: {"choices":[{"text":"Hi"}]}`)
	})
	sess := startServerSession(t, ts.URL, 5*time.Second)
	_, err := sess.Generate(testCtx(t), "p", InferParams{}, func(string) error { return nil })
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}

	evs := collect(t, NewPipeline(0, 0).Stream(testCtx(t), sess, "p", InferParams{}))
	if terminals(evs) != 1 || evs[len(evs)-1].Kind != TokenError {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestLlamaServerAdapter_BatchErrorBody(t *testing.T) {
	ts := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"prompt too long"}}`))
	})
	sess := startServerSession(t, ts.URL, 5*time.Second)
	if _, err := sess.Generate(testCtx(t), "p", InferParams{}, nil); err == nil || !strings.Contains(err.Error(), "prompt too long") {
		t.Fatalf("expected server error, got %v", err)
	}
}
