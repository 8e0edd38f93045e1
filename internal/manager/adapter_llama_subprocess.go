package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"
)

const defaultSpawnReadyTimeout = 60 * time.Second

// SpawnConfig configures the llama-server subprocess started by the spawn backend.
type SpawnConfig struct {
	// Bin is the llama-server executable. Empty means discover it.
	Bin          string
	Host         string
	CtxSize      int
	GPULayers    int
	Threads      int
	ExtraArgs    []string
	ReadyTimeout time.Duration
	// RequestTimeout bounds each generation (0 = none).
	RequestTimeout time.Duration
}

// llamaSubprocessAdapter spawns and manages a llama.cpp server per model path.
type llamaSubprocessAdapter struct {
	cfg        SpawnConfig
	mu         sync.Mutex
	procs      map[string]*procInfo // key: modelPath
	httpClient *http.Client
	publisher  EventPublisher
}

type procInfo struct {
	cmd     *exec.Cmd
	baseURL string
	ready   bool
	pid     int
	exited  chan struct{}
}

// NewLlamaSubprocessAdapter constructs an adapter that runs llama-server as a
// child process and talks to it like the server backend.
func NewLlamaSubprocessAdapter(cfg SpawnConfig) InferenceAdapter {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultSpawnReadyTimeout
	}
	return &llamaSubprocessAdapter{
		cfg:        cfg,
		procs:      make(map[string]*procInfo),
		httpClient: newBackendClient(2 * time.Second),
		publisher:  noopPublisher{},
	}
}

// llamaSubprocessSession is a server session whose Close stops the process.
type llamaSubprocessSession struct {
	*llamaServerSession
	a         *llamaSubprocessAdapter
	modelPath string
}

func (s *llamaSubprocessSession) Close() error { return s.a.Stop(s.modelPath) }

func (a *llamaSubprocessAdapter) Start(ctx context.Context, modelPath string) (InferSession, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("modelPath is empty")
	}
	baseURL, err := a.ensureProcess(ctx, modelPath)
	if err != nil {
		return nil, err
	}
	return &llamaSubprocessSession{
		llamaServerSession: &llamaServerSession{
			client:     a.httpClient,
			baseURL:    baseURL,
			reqTimeout: a.cfg.RequestTimeout,
		},
		a:         a,
		modelPath: modelPath,
	}, nil
}

// Preflight resolves the llama-server binary.
func (a *llamaSubprocessAdapter) Preflight(context.Context) (string, error) {
	bin, err := a.resolveBin()
	return bin, err
}

func (a *llamaSubprocessAdapter) resolveBin() (string, error) {
	bin := a.cfg.Bin
	if bin == "" {
		bin = discoverLlamaBin()
	}
	if bin == "" {
		return "", ErrDependencyUnavailable("llama-server not found; set llama_bin")
	}
	fi, err := os.Stat(bin)
	if err != nil {
		return bin, ErrDependencyUnavailable(fmt.Sprintf("llama-server %s: %v", bin, err))
	}
	if fi.IsDir() {
		return bin, ErrDependencyUnavailable("llama_bin is a directory: " + bin)
	}
	return bin, nil
}

// isHealthy checks if the llama-server at baseURL responds OK to /v1/models.
func (a *llamaSubprocessAdapter) isHealthy(ctx context.Context, baseURL string, timeout time.Duration) bool {
	return probeModels(ctx, a.httpClient, baseURL, "", timeout) == nil
}

// ensureProcess starts (or returns an existing) llama-server for modelPath
// and waits until it answers /v1/models.
func (a *llamaSubprocessAdapter) ensureProcess(ctx context.Context, modelPath string) (string, error) {
	a.mu.Lock()
	p := a.procs[modelPath]
	a.mu.Unlock()
	if p != nil {
		if a.isHealthy(ctx, p.baseURL, time.Second) {
			a.mu.Lock()
			p.ready = true
			a.mu.Unlock()
			return p.baseURL, nil
		}
		_ = a.Stop(modelPath)
	}

	bin, err := a.resolveBin()
	if err != nil {
		return "", err
	}
	host := a.cfg.Host
	port, err := pickFreePort(host)
	if err != nil {
		return "", err
	}
	baseURL := fmt.Sprintf("http://%s:%d", host, port)

	args := []string{
		"-m", modelPath,
		"--host", host,
		"--port", strconv.Itoa(port),
	}
	if a.cfg.CtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(a.cfg.CtxSize))
	}
	if a.cfg.GPULayers != 0 {
		args = append(args, "-ngl", strconv.Itoa(a.cfg.GPULayers))
	}
	if a.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(a.cfg.Threads))
	}
	args = append(args, a.cfg.ExtraArgs...)

	cmd := exec.Command(bin, args...)
	// stderr is kept in memory; its tail is included on failure
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start llama-server: %w", err)
	}
	pid := cmd.Process.Pid
	logger := zlog.With().Str("adapter", "llama_subprocess").Str("model", modelPath).Int("pid", pid).Logger()
	logger.Info().Str("url", baseURL).Msg("llama-server started")
	a.publisher.Publish(Event{Name: "spawn_start", ModelID: modelPath, Fields: map[string]any{"pid": pid, "host": host, "port": port}})

	info := &procInfo{cmd: cmd, baseURL: baseURL, pid: pid, exited: make(chan struct{})}
	a.mu.Lock()
	a.procs[modelPath] = info
	a.mu.Unlock()

	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(info.exited)
	}()

	forget := func() {
		a.mu.Lock()
		if a.procs[modelPath] == info {
			delete(a.procs, modelPath)
		}
		a.mu.Unlock()
	}

	deadline := time.NewTimer(a.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if a.isHealthy(ctx, baseURL, time.Second) {
			break
		}
		select {
		case <-info.exited:
			forget()
			tail := stderr.String()
			if len(tail) > 4096 {
				tail = tail[len(tail)-4096:]
			}
			logger.Error().AnErr("exit", waitErr).Msg("llama-server exited before ready")
			a.publisher.Publish(Event{Name: "spawn_exit", ModelID: modelPath, Fields: map[string]any{"pid": pid, "before_ready": true}})
			return "", fmt.Errorf("llama-server exited before ready: %v; stderr tail: %s", waitErr, tail)
		case <-deadline.C:
			logger.Error().Msg("llama-server not ready in time")
			a.publisher.Publish(Event{Name: "spawn_timeout", ModelID: modelPath, Fields: map[string]any{"pid": pid}})
			_ = a.Stop(modelPath)
			return "", fmt.Errorf("llama-server not ready in time: %s", baseURL)
		case <-ctx.Done():
			_ = a.Stop(modelPath)
			return "", ctx.Err()
		case <-tick.C:
		}
	}
	a.mu.Lock()
	info.ready = true
	a.mu.Unlock()
	logger.Info().Str("url", baseURL).Msg("llama-server ready")
	a.publisher.Publish(Event{Name: "spawn_ready", ModelID: modelPath, Fields: map[string]any{"pid": pid, "url": baseURL}})
	return baseURL, nil
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected addr: %s", l.Addr())
	}
	return addr.Port, nil
}

// getProcInfo returns a snapshot of the process entry for modelPath.
func (a *llamaSubprocessAdapter) getProcInfo(modelPath string) (pid int, baseURL string, ready bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p := a.procs[modelPath]; p != nil {
		return p.pid, p.baseURL, p.ready, true
	}
	return 0, "", false, false
}

// Stop terminates the llama-server for modelPath, if present: SIGTERM first,
// then SIGKILL after two seconds.
func (a *llamaSubprocessAdapter) Stop(modelPath string) error {
	a.mu.Lock()
	p := a.procs[modelPath]
	delete(a.procs, modelPath)
	a.mu.Unlock()
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.exited:
	case <-time.After(2 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
	zlog.Info().Str("adapter", "llama_subprocess").Str("model", modelPath).Int("pid", p.pid).Msg("llama-server stopped")
	a.publisher.Publish(Event{Name: "spawn_stop", ModelID: modelPath, Fields: map[string]any{"pid": p.pid}})
	return nil
}

// StopAll terminates all managed subprocesses. Best effort.
func (a *llamaSubprocessAdapter) StopAll() {
	a.mu.Lock()
	paths := make([]string, 0, len(a.procs))
	for k := range a.procs {
		paths = append(paths, k)
	}
	a.mu.Unlock()
	for _, path := range paths {
		_ = a.Stop(path)
	}
}

// setPublisher installs an EventPublisher for emitting adapter events.
func (a *llamaSubprocessAdapter) setPublisher(p EventPublisher) {
	if p == nil {
		a.publisher = noopPublisher{}
		return
	}
	a.publisher = p
}
