package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend kinds understood by the service.
const (
	BackendLlama  = "llama"  // in-process llama.cpp (requires -tags=llama)
	BackendServer = "server" // external llama.cpp server over HTTP
	BackendSpawn  = "spawn"  // llama-server subprocess managed by chatd
)

// Config holds runtime parameters for the service.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ModelFile string `json:"model_file" yaml:"model_file" toml:"model_file"`
	ModelName string `json:"model_name" yaml:"model_name" toml:"model_name"`
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`

	// Admission: number of generation slots.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`

	// Server-side generation defaults, used when a request omits a value.
	MaxTokens   int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64  `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP        float64  `json:"top_p" yaml:"top_p" toml:"top_p"`
	Stop        []string `json:"stop" yaml:"stop" toml:"stop"`

	// Streaming pipeline tuning.
	StreamPaceMS int `json:"stream_pace_ms" yaml:"stream_pace_ms" toml:"stream_pace_ms"`
	StreamBuffer int `json:"stream_buffer" yaml:"stream_buffer" toml:"stream_buffer"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file" toml:"log_file"`

	// llama.cpp runtime
	UseGPU         string `json:"use_gpu" yaml:"use_gpu" toml:"use_gpu"`
	LlamaCtx       int    `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads   int    `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaServerURL string `json:"llama_server_url" yaml:"llama_server_url" toml:"llama_server_url"`
	LlamaAPIKey    string `json:"llama_api_key" yaml:"llama_api_key" toml:"llama_api_key"`
	LlamaBin       string `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaHost      string `json:"llama_host" yaml:"llama_host" toml:"llama_host"`

	// HTTP
	RequestTimeoutSec  int      `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ShutdownTimeoutSec int      `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`
	MaxBodyBytes       int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins        []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	RateLimitRPS       float64  `json:"rate_limit_rps" yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	RateLimitBurst     int      `json:"rate_limit_burst" yaml:"rate_limit_burst" toml:"rate_limit_burst"`
	Swagger            bool     `json:"swagger" yaml:"swagger" toml:"swagger"`

	// Request journal (SQLite). Empty disables it.
	JournalPath string `json:"journal_path" yaml:"journal_path" toml:"journal_path"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ModelsDir:          "./models",
		Backend:            BackendLlama,
		MaxConcurrent:      3,
		MaxTokens:          512,
		Temperature:        0.7,
		TopP:               0.9,
		Stop:               []string{"</s>", "User:", "\n\n\n"},
		StreamPaceMS:       10,
		StreamBuffer:       8,
		LogLevel:           "info",
		LogFile:            "./logs/server.log",
		UseGPU:             "auto",
		LlamaCtx:           2048,
		LlamaHost:          "127.0.0.1",
		ShutdownTimeoutSec: 5,
		MaxBodyBytes:       1 << 20,
		CORSEnabled:        true,
		CORSOrigins:        []string{"*"},
		RateLimitBurst:     5,
	}
}

// ApplyEnv overlays CHATD_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("CHATD_ADDR", &cfg.Addr)
	str("CHATD_MODELS_DIR", &cfg.ModelsDir)
	str("CHATD_MODEL_FILE", &cfg.ModelFile)
	str("CHATD_MODEL_NAME", &cfg.ModelName)
	str("CHATD_BACKEND", &cfg.Backend)
	integer("CHATD_MAX_CONCURRENT", &cfg.MaxConcurrent)
	integer("CHATD_MAX_TOKENS", &cfg.MaxTokens)
	float("CHATD_TEMPERATURE", &cfg.Temperature)
	float("CHATD_TOP_P", &cfg.TopP)
	if v, ok := lookup("CHATD_STOP"); ok && v != "" {
		cfg.Stop = SplitCSV(v)
	}
	integer("CHATD_STREAM_PACE_MS", &cfg.StreamPaceMS)
	integer("CHATD_STREAM_BUFFER", &cfg.StreamBuffer)
	str("CHATD_LOG_LEVEL", &cfg.LogLevel)
	str("CHATD_LOG_FILE", &cfg.LogFile)
	str("CHATD_USE_GPU", &cfg.UseGPU)
	integer("CHATD_LLAMA_CTX", &cfg.LlamaCtx)
	integer("CHATD_LLAMA_THREADS", &cfg.LlamaThreads)
	str("CHATD_LLAMA_SERVER_URL", &cfg.LlamaServerURL)
	str("CHATD_LLAMA_API_KEY", &cfg.LlamaAPIKey)
	str("CHATD_LLAMA_BIN", &cfg.LlamaBin)
	str("CHATD_LLAMA_HOST", &cfg.LlamaHost)
	integer("CHATD_REQUEST_TIMEOUT_SECONDS", &cfg.RequestTimeoutSec)
	boolean("CHATD_CORS_ENABLED", &cfg.CORSEnabled)
	if v, ok := lookup("CHATD_CORS_ORIGINS"); ok && v != "" {
		cfg.CORSOrigins = SplitCSV(v)
	}
	float("CHATD_RATE_LIMIT_RPS", &cfg.RateLimitRPS)
	integer("CHATD_RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	boolean("CHATD_SWAGGER", &cfg.Swagger)
	str("CHATD_JOURNAL_PATH", &cfg.JournalPath)
	return errors.Join(errs...)
}

// Validate reports configuration values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent must be >= 1, got %d", c.MaxConcurrent))
	}
	if c.MaxTokens < 1 || c.MaxTokens > 1024 {
		errs = append(errs, fmt.Errorf("max_tokens must be in [1,1024], got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be in [0,2], got %g", c.Temperature))
	}
	if c.TopP < 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p must be in [0,1], got %g", c.TopP))
	}
	if c.StreamPaceMS < 0 {
		errs = append(errs, fmt.Errorf("stream_pace_ms must be >= 0, got %d", c.StreamPaceMS))
	}
	switch c.Backend {
	case BackendLlama, BackendSpawn:
	case BackendServer:
		if strings.TrimSpace(c.LlamaServerURL) == "" {
			errs = append(errs, errors.New("llama_server_url is required for the server backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want llama|server|spawn)", c.Backend))
	}
	return errors.Join(errs...)
}

// StreamPace is the pause between streamed fragments.
func (c Config) StreamPace() time.Duration {
	return time.Duration(c.StreamPaceMS) * time.Millisecond
}

// RequestTimeout is the per-request generation deadline (0 = none).
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// GPULayers maps use_gpu to a llama.cpp layer count: -1 offloads every layer.
func (c Config) GPULayers() int {
	switch strings.ToLower(strings.TrimSpace(c.UseGPU)) {
	case "true", "auto", "yes", "1":
		return -1
	default:
		return 0
	}
}
