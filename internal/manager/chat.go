package manager

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"chatd/pkg/types"
)

// EventSink receives the events of one streaming response in order. The HTTP
// layer implements it on top of Server-Sent Events. A write error means the
// client is gone.
type EventSink interface {
	Start() error
	Token(text string) error
	Done(stats types.DoneStats) error
	Error(e types.StreamError) error
}

// Chat generates a complete response for req. It fails fast with
// ErrBackendUnavailable when no model is loaded and with ErrCapacityExceeded
// when every slot is busy; otherwise the slot is held for the whole
// generation and released exactly once however Chat returns.
func (m *Manager) Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error) {
	sess, err := m.session()
	if err != nil {
		return types.ChatResponse{}, err
	}
	lease, ok := m.gate.Admit()
	if !ok {
		m.reject(ModeBatch, req.Prompt)
		return types.ChatResponse{}, ErrCapacityExceeded
	}
	rec := m.begin(lease, ModeBatch, req.Prompt)
	defer rec.finish()

	params := m.resolveParams(req.MaxTokens, req.Temperature, req.TopP)
	start := time.Now()
	res, err := safeGenerate(ctx, sess, req.Prompt, params, nil)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if ctx.Err() != nil {
			rec.cancel(ctx.Err())
			return types.ChatResponse{}, ctx.Err()
		}
		rec.fail(err)
		return types.ChatResponse{}, &GenerationError{Err: err}
	}
	text := strings.TrimSpace(res.Content)
	rec.complete(utf8.RuneCountInString(text), res.Usage.CompletionTokens, elapsed)
	return types.ChatResponse{
		Response:       text,
		PromptLength:   utf8.RuneCountInString(req.Prompt),
		ResponseLength: utf8.RuneCountInString(text),
		GenerationTime: elapsed,
	}, nil
}

// ChatStream generates a response for req and delivers it to sink as a start
// event, one event per fragment, then exactly one done or error event. A
// capacity rejection is written to sink as an error event and also returned.
// When ctx is canceled or sink fails, generation stops, nothing more is
// written and the slot is released.
func (m *Manager) ChatStream(ctx context.Context, req types.ChatRequest, sink EventSink) error {
	sess, err := m.session()
	if err != nil {
		return err
	}
	lease, ok := m.gate.Admit()
	if !ok {
		m.reject(ModeStream, req.Prompt)
		if werr := sink.Error(types.StreamError{Error: CapacityMessage, Code: KindCapacityExceeded}); werr != nil {
			return errors.Join(ErrCapacityExceeded, werr)
		}
		return ErrCapacityExceeded
	}
	rec := m.begin(lease, ModeStream, req.Prompt)
	defer rec.finish()

	if err := sink.Start(); err != nil {
		rec.cancel(err)
		return err
	}

	params := m.resolveParams(req.MaxTokens, req.Temperature, req.TopP)
	stream := m.pipeline.Stream(ctx, sess, req.Prompt, params)
	defer stream.Close()

	sent := 0
	for {
		ev, ok := stream.Next(ctx)
		if !ok {
			break
		}
		switch ev.Kind {
		case TokenFragment:
			if err := sink.Token(ev.Text); err != nil {
				rec.cancel(err)
				return err
			}
			sent += utf8.RuneCountInString(ev.Text)
			streamTokens.Inc()
		case TokenDone:
			rec.complete(sent, ev.Stats.TokenCount, ev.Stats.GenerationTime)
			return sink.Done(ev.Stats)
		case TokenError:
			rec.fail(ev.Err)
			return sink.Error(types.StreamError{Error: ev.Err.Error(), Code: KindGenerationFailed})
		}
	}

	// The stream ended without a terminal event, so ctx is done.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rec.fail(ErrGenerationTimeout)
		_ = sink.Error(types.StreamError{Error: ErrGenerationTimeout.Error(), Code: KindGenerationFailed})
		return ErrGenerationTimeout
	}
	rec.cancel(ctx.Err())
	return ctx.Err()
}
