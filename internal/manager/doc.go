// Package manager serves chat generations from a single loaded model. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, Load/Close and simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - gate.go: the admission Gate and its Lease (reject when full, never queue).
//   - stream.go: the Pipeline that turns a callback-driven generation into a
//     bounded, paced, cancellable event stream.
//   - chat.go: Chat and ChatStream, the request orchestration entry points.
//   - lifecycle.go: per-request bookkeeping (events, metrics, journal, logs).
//   - errors.go: error values and helpers (IsCapacityExceeded, IsBackendUnavailable).
//   - status_report.go, sanity.go: /status, /health and startup checks.
//
// Backends:
//
//   - In-process llama (`-tags=llama`): go-llama.cpp adapter in adapter_llama.go,
//     linker hints in llama_cgo.go. Without the tag adapter_llama_stub.go fails
//     Start with a dependency error.
//   - server: an already running llama.cpp server (adapter_llama_server.go).
//   - spawn: a llama-server child process managed here (adapter_llama_subprocess.go).
package manager
