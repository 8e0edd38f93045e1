package manager

import (
	"net"
	"strconv"
	"testing"
)

func TestPickFreePort(t *testing.T) {
	p, err := pickFreePort("127.0.0.1")
	if err != nil {
		t.Fatalf("pickFreePort: %v", err)
	}
	if p <= 0 || p > 65535 {
		t.Fatalf("port out of range: %d", p)
	}
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p)))
	if err != nil {
		t.Fatalf("port %d not reusable: %v", p, err)
	}
	_ = l.Close()
}

func TestSubprocessPreflight_MissingBinary(t *testing.T) {
	a := NewLlamaSubprocessAdapter(SpawnConfig{Bin: "/nonexistent/llama-server"}).(*llamaSubprocessAdapter)
	if _, err := a.Preflight(testCtx(t)); !IsBackendUnavailable(err) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if _, err := a.Start(testCtx(t), "m.gguf"); !IsBackendUnavailable(err) {
		t.Fatalf("expected dependency error from Start, got %v", err)
	}
	if _, err := a.Start(testCtx(t), ""); err == nil {
		t.Fatalf("expected error for empty model path")
	}
}
