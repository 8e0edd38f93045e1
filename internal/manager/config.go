package manager

import (
	"time"

	"github.com/rs/zerolog"

	"chatd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxConcurrent = 3
	defaultMaxTokens     = 512
	defaultTemperature   = 0.7
	defaultTopP          = 0.9
)

// DefaultStop is the stop-sequence set used when none is configured.
var DefaultStop = []string{"</s>", "User:", "\n\n\n"}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Model is the single model this service answers with.
	Model types.Model
	// Backend labels the adapter kind in status output.
	Backend string
	// Adapter runs generations. Nil selects the in-process llama adapter.
	Adapter InferenceAdapter

	MaxConcurrent int
	// Defaults are applied as given; nil selects the package defaults.
	Defaults *GenerationDefaults

	// StreamPace is applied as given; zero disables pacing.
	StreamPace   time.Duration
	StreamBuffer int

	Publisher EventPublisher
	Journal   Journal
	Logger    *zerolog.Logger

	// In-process llama.cpp settings, used only when Adapter is nil.
	LlamaCtx     int
	LlamaThreads int
	GPULayers    int
}

// NewWithConfig constructs a Manager from ManagerConfig. The model is not
// loaded until Load is called.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	d := GenerationDefaults{
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		Stop:        DefaultStop,
	}
	if cfg.Defaults != nil {
		d = *cfg.Defaults
		if d.MaxTokens <= 0 {
			d.MaxTokens = defaultMaxTokens
		}
	}
	m := &Manager{
		state:     StateLoading,
		model:     cfg.Model,
		backend:   cfg.Backend,
		adapter:   cfg.Adapter,
		gate:      NewGate(cfg.MaxConcurrent),
		pipeline:  NewPipeline(cfg.StreamPace, cfg.StreamBuffer),
		defaults:  d,
		publisher: cfg.Publisher,
		journal:   cfg.Journal,
		startTime: time.Now(),
	}
	if m.adapter == nil {
		m.adapter = NewLlamaAdapter(cfg.LlamaCtx, cfg.LlamaThreads, cfg.GPULayers)
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if sp, ok := m.adapter.(*llamaSubprocessAdapter); ok {
		sp.setPublisher(m.publisher)
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	} else {
		m.log = zerolog.Nop()
	}
	return m
}
