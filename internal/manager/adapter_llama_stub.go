//go:build !llama

package manager

import "context"

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

// llamaAdapter is compiled when the 'llama' build tag is not set, keeping
// default builds CGO-free. Start always fails with a dependency error.
type llamaAdapter struct {
	ctxSize   int
	threads   int
	gpuLayers int
}

func NewLlamaAdapter(ctxSize, threads, gpuLayers int) InferenceAdapter {
	return &llamaAdapter{ctxSize: ctxSize, threads: threads, gpuLayers: gpuLayers}
}

const llamaMissing = "llama support not built (missing 'llama' build tag)"

func (a *llamaAdapter) Start(ctx context.Context, modelPath string) (InferSession, error) {
	return nil, ErrDependencyUnavailable(llamaMissing)
}

// Preflight reports that the runtime is missing from this build.
func (a *llamaAdapter) Preflight(context.Context) (string, error) {
	return "", ErrDependencyUnavailable(llamaMissing)
}
