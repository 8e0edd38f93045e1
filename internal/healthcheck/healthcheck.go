// Package healthcheck inspects a chatd deployment from the outside: the
// config file, the models directory, and the /health and /status endpoints
// of a running server.
package healthcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatd/internal/config"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

// Check is the outcome of one probe.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Options configures Run.
type Options struct {
	BaseURL    string // default http://localhost:8080
	ConfigPath string // empty checks defaults plus CHATD_* env
	ModelsDir  string // empty takes models_dir from the config
	Timeout    time.Duration
	Client     *http.Client
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = "http://localhost:8080"
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// Report collects every check of a Run.
type Report struct {
	Checks []Check
	Health *types.HealthResponse
	Status *types.StatusResponse
}

// OK reports whether all checks passed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Run performs the configuration, model, health and status checks in order.
func Run(ctx context.Context, opts Options) Report {
	opts = opts.withDefaults()
	var rep Report

	cfg, cfgCheck := CheckConfig(opts.ConfigPath)
	rep.Checks = append(rep.Checks, cfgCheck)

	dir := opts.ModelsDir
	if dir == "" {
		dir = cfg.ModelsDir
	}
	rep.Checks = append(rep.Checks, CheckModels(dir))

	h, err := FetchHealth(ctx, opts.Client, opts.BaseURL)
	if err != nil {
		rep.Checks = append(rep.Checks, Check{Name: "Server Health", Detail: err.Error()})
	} else {
		rep.Health = &h
		rep.Checks = append(rep.Checks, Check{Name: "Server Health", OK: true, Detail: "status: " + h.Status})
	}

	s, err := FetchStatus(ctx, opts.Client, opts.BaseURL)
	if err != nil {
		rep.Checks = append(rep.Checks, Check{Name: "Server Status", Detail: err.Error()})
	} else {
		rep.Status = &s
		rep.Checks = append(rep.Checks, Check{Name: "Server Status", OK: true,
			Detail: fmt.Sprintf("model loaded: %t, users: %d/%d", s.Model.Loaded, s.CurrentUsers, s.MaxUsers)})
	}
	return rep
}

// CheckConfig loads and validates the configuration the server would use.
func CheckConfig(path string) (config.Config, Check) {
	c := Check{Name: "Configuration"}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			c.Detail = err.Error()
			return cfg, c
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		c.Detail = err.Error()
		return cfg, c
	}
	if err := cfg.Validate(); err != nil {
		c.Detail = err.Error()
		return cfg, c
	}
	c.OK = true
	c.Detail = "configuration valid"
	if path == "" {
		c.Detail = "no config file, defaults valid"
	}
	return cfg, c
}

// CheckModels reports how many GGUF files dir holds.
func CheckModels(dir string) Check {
	c := Check{Name: "Model Files"}
	models, err := registry.LoadDir(dir)
	if err != nil {
		c.Detail = fmt.Sprintf("%s directory not found", dir)
		return c
	}
	if len(models) == 0 {
		c.Detail = "no GGUF model files found"
		return c
	}
	c.OK = true
	c.Detail = fmt.Sprintf("found %d model(s)", len(models))
	return c
}

// FetchHealth calls GET /health.
func FetchHealth(ctx context.Context, client *http.Client, baseURL string) (types.HealthResponse, error) {
	var out types.HealthResponse
	err := getJSON(ctx, client, baseURL+"/health", &out)
	return out, err
}

// FetchStatus calls GET /status.
func FetchStatus(ctx context.Context, client *http.Client, baseURL string) (types.StatusResponse, error) {
	var out types.StatusResponse
	err := getJSON(ctx, client, baseURL+"/status", &out)
	return out, err
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Write prints a human-readable report.
func (r Report) Write(w io.Writer) {
	fmt.Fprintln(w, "chatd health check")
	fmt.Fprintln(w)
	for _, c := range r.Checks {
		mark := "PASS"
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  %-4s  %-14s %s\n", mark, c.Name, c.Detail)
	}
	fmt.Fprintln(w)
	if r.OK() {
		fmt.Fprintln(w, "all checks passed")
		return
	}
	fmt.Fprintln(w, "some checks failed")
}

// Monitor polls health and status every interval and prints one line per
// poll until ctx is done.
func Monitor(ctx context.Context, opts Options, interval time.Duration, w io.Writer) error {
	opts = opts.withDefaults()
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fmt.Fprintln(w, monitorLine(ctx, opts, time.Now()))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func monitorLine(ctx context.Context, opts Options, now time.Time) string {
	ts := now.Format(time.TimeOnly)
	if _, err := FetchHealth(ctx, opts.Client, opts.BaseURL); err != nil {
		return fmt.Sprintf("[%s] unhealthy | %v", ts, err)
	}
	s, err := FetchStatus(ctx, opts.Client, opts.BaseURL)
	if err != nil {
		return fmt.Sprintf("[%s] unhealthy | %v", ts, err)
	}
	return fmt.Sprintf("[%s] healthy | users: %d/%d", ts, s.CurrentUsers, s.MaxUsers)
}
