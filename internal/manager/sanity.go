package manager

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"chatd/internal/common/fsutil"
)

// SanityReport describes startup checks for the model file and the backend.
type SanityReport struct {
	Backend     string   `json:"backend"`
	LlamaBuilt  bool     `json:"llama_built"`
	ModelFound  bool     `json:"model_found"`
	ModelPath   string   `json:"model_path,omitempty"`
	BackendOK   bool     `json:"backend_ok"`
	BackendInfo string   `json:"backend_info,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// OK reports whether every check passed.
func (r SanityReport) OK() bool { return len(r.Errors) == 0 }

// preflighter is implemented by adapters able to verify their dependency
// (binary on disk, reachable server, compiled-in runtime) before Start.
type preflighter interface {
	Preflight(ctx context.Context) (info string, err error)
}

// SanityCheck validates the model file and the adapter's external dependency.
// It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck(ctx context.Context) SanityReport {
	r := SanityReport{Backend: m.backend, LlamaBuilt: llamaBuilt, ModelPath: m.model.Path}
	if _, remote := m.adapter.(*llamaServerAdapter); remote {
		// the remote server owns the weights
		r.ModelFound = true
	} else if m.model.Path == "" {
		r.Errors = append(r.Errors, "no model configured")
	} else if !fsutil.PathExists(m.model.Path) {
		r.Errors = append(r.Errors, "model file not found: "+m.model.Path)
	} else {
		r.ModelFound = true
	}

	pf, ok := m.adapter.(preflighter)
	if !ok {
		r.BackendOK = true
		return r
	}
	info, err := pf.Preflight(ctx)
	r.BackendInfo = info
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
		return r
	}
	r.BackendOK = true
	return r
}

// discoverLlamaBin attempts to locate a llama.cpp server binary on PATH or in
// common install locations.
func discoverLlamaBin() string {
	if lp, err := exec.LookPath("llama-server"); err == nil {
		return lp
	}
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, "llama.cpp", "build", "bin", "llama-server"),
		"/usr/local/bin/llama-server",
		"/opt/homebrew/bin/llama-server",
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}
