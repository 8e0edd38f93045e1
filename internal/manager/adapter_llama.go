//go:build llama

package manager

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaAdapter holds global config used to initialize a model instance
type llamaAdapter struct {
	ctxSize   int
	threads   int
	gpuLayers int
}

func NewLlamaAdapter(ctxSize, threads, gpuLayers int) InferenceAdapter {
	return &llamaAdapter{ctxSize: ctxSize, threads: threads, gpuLayers: gpuLayers}
}

// llamaSession owns the loaded model. go-llama.cpp keeps one token callback
// per model, so generations are serialized.
type llamaSession struct {
	turn    turnLock
	model   *llama.LLama
	threads int
}

func (a *llamaAdapter) Start(ctx context.Context, modelPath string) (InferSession, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{llama.SetContext(a.ctxSize)}
	if a.gpuLayers != 0 {
		layers := a.gpuLayers
		if layers < 0 {
			// offload every layer
			layers = 999
		}
		mo = append(mo, llama.SetGPULayers(layers))
	}
	m, err := llama.New(modelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaSession{turn: newTurnLock(), model: m, threads: a.threads}, nil
}

// Preflight reports the compiled-in runtime.
func (a *llamaAdapter) Preflight(context.Context) (string, error) {
	return "in-process llama.cpp", nil
}

func (s *llamaSession) Generate(ctx context.Context, prompt string, params InferParams, onToken func(string) error) (FinalResult, error) {
	if err := s.turn.acquire(ctx); err != nil {
		return FinalResult{}, err
	}
	defer s.turn.release()
	if s.model == nil {
		return FinalResult{}, errors.New("llama model not initialized")
	}

	var cbErr error
	frags := 0
	s.model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		frags++
		if onToken == nil {
			return true
		}
		if err := onToken(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})

	text, err := s.model.Predict(prompt, mapInferParamsToPredictOptions(params, s.threads)...)
	if ctx.Err() != nil {
		return FinalResult{}, ctx.Err()
	}
	if cbErr != nil {
		return FinalResult{}, cbErr
	}
	if err != nil {
		return FinalResult{}, err
	}
	return FinalResult{
		Content:      text,
		Usage:        Usage{CompletionTokens: frags, TotalTokens: frags},
		FinishReason: "stop",
	}, nil
}

func (s *llamaSession) Close() error {
	_ = s.turn.acquire(context.Background())
	defer s.turn.release()
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

// mapInferParamsToPredictOptions converts our adapter params into go-llama.cpp options
func mapInferParamsToPredictOptions(params InferParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, params.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(params.TopP),
		llama.SetTemperature(params.Temperature),
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}
