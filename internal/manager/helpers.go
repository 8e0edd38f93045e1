package manager

import "context"

// safeGenerate runs one generation and turns a backend panic into an error so
// that callers always get to release their slot.
func safeGenerate(ctx context.Context, sess InferSession, prompt string, params InferParams, onToken func(string) error) (res FinalResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = backendPanicError(r)
		}
	}()
	return sess.Generate(ctx, prompt, params, onToken)
}

// resolveParams layers request values over the server defaults.
func (m *Manager) resolveParams(maxTokens *int, temperature, topP *float64) InferParams {
	p := InferParams{
		MaxTokens:   m.defaults.MaxTokens,
		Temperature: float32(m.defaults.Temperature),
		TopP:        float32(m.defaults.TopP),
		Stop:        m.defaults.Stop,
	}
	if maxTokens != nil {
		p.MaxTokens = *maxTokens
	}
	if temperature != nil {
		p.Temperature = float32(*temperature)
	}
	if topP != nil {
		p.TopP = float32(*topP)
	}
	return p
}

// turnLock serializes access to a single-threaded backend. Unlike a mutex, a
// waiter gives up when its context ends.
type turnLock chan struct{}

func newTurnLock() turnLock { return make(turnLock, 1) }

func (l turnLock) acquire(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l turnLock) release() { <-l }
