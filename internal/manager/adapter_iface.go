package manager

import "context"

// InferenceAdapter abstracts the model runtime used by the Manager.
// Concrete implementations (in-process llama.cpp, llama-server over HTTP,
// a spawned llama-server) satisfy this interface.
type InferenceAdapter interface {
	// Start loads the model at modelPath and returns a session able to serve
	// many generations. It is called once per Manager.Load.
	Start(ctx context.Context, modelPath string) (InferSession, error)
}

// InferSession is a loaded model. Implementations must be safe for concurrent
// Generate calls, serializing internally if the runtime requires it.
type InferSession interface {
	// Generate produces text for prompt. When onToken is non-nil every fragment
	// is passed to it as soon as it is available and a non-nil return stops the
	// generation. When onToken is nil the session may produce the whole text in
	// one call. Implementations must return when ctx is canceled.
	Generate(ctx context.Context, prompt string, params InferParams, onToken func(string) error) (FinalResult, error)
	// Close releases any resources associated with the session.
	Close() error
}

// InferParams captures generation parameters passed to the adapter.
type InferParams struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
	Stop        []string
}

// FinalResult summarizes a generation.
type FinalResult struct {
	Content      string
	Usage        Usage
	FinishReason string
}

// Usage contains token accounting. Backends that cannot count leave it zero.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
