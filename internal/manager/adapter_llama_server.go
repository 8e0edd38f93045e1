package manager

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// llamaServerAdapter implements InferenceAdapter by talking to a running
// llama.cpp server over its OpenAI-compatible /v1/completions endpoint.
type llamaServerAdapter struct {
	baseURL    string
	apiKey     string
	reqTimeout time.Duration
	httpClient *http.Client
}

// NewLlamaServerAdapter constructs a server-backed adapter. reqTimeout bounds
// each generation (0 = no bound); connectTimeout bounds dialing.
func NewLlamaServerAdapter(baseURL, apiKey string, reqTimeout, connectTimeout time.Duration) InferenceAdapter {
	return &llamaServerAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		reqTimeout: reqTimeout,
		httpClient: newBackendClient(connectTimeout),
	}
}

// newBackendClient returns a client without an overall Timeout: streamed
// generations can run long, so every call carries a context deadline instead.
func newBackendClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// llamaServerSession sends generations to one server base URL.
type llamaServerSession struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	reqTimeout time.Duration
}

// Start verifies the server answers and returns a session bound to it. In
// server mode the weights live on the server, so modelPath is sent only as
// the model name.
func (a *llamaServerAdapter) Start(ctx context.Context, modelPath string) (InferSession, error) {
	if _, err := a.Preflight(ctx); err != nil {
		return nil, err
	}
	return &llamaServerSession{
		client:     a.httpClient,
		baseURL:    a.baseURL,
		apiKey:     a.apiKey,
		modelID:    strings.TrimSpace(modelPath),
		reqTimeout: a.reqTimeout,
	}, nil
}

// Preflight checks that the server lists its models.
func (a *llamaServerAdapter) Preflight(ctx context.Context) (string, error) {
	if err := probeModels(ctx, a.httpClient, a.baseURL, a.apiKey, 2*time.Second); err != nil {
		return a.baseURL, ErrDependencyUnavailable(fmt.Sprintf("llama server %s unreachable: %v", a.baseURL, err))
	}
	return a.baseURL, nil
}

func probeModels(ctx context.Context, client *http.Client, baseURL, apiKey string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

// completionRequest represents the payload for /v1/completions.
type completionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type completionChoice struct {
	Text  string `json:"text"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// completionResponse covers both the full and the streamed chunk shapes, plus
// the native llama.cpp fields some builds emit.
type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Usage   *completionUsage   `json:"usage"`
	Content string             `json:"content"`
	Stop    bool               `json:"stop"`
	Error   *completionError   `json:"error"`
}

// completionError is the body llama.cpp sends when a generation fails,
// either as the whole response or as a single stream chunk.
type completionError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *completionError) err() error {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "unknown error"
	}
	if e.Code != 0 {
		return fmt.Errorf("llama server error %d: %s", e.Code, msg)
	}
	return fmt.Errorf("llama server error: %s", msg)
}

func (r completionResponse) fragment() (text, finish string) {
	if len(r.Choices) == 0 {
		if r.Stop {
			finish = "stop"
		}
		return r.Content, finish
	}
	c := r.Choices[0]
	text = c.Text
	if text == "" {
		text = c.Delta.Content
	}
	if c.FinishReason != nil {
		finish = *c.FinishReason
	}
	return text, finish
}

func (s *llamaServerSession) Generate(ctx context.Context, prompt string, params InferParams, onToken func(string) error) (FinalResult, error) {
	if s.client == nil {
		return FinalResult{}, errors.New("llama server adapter not initialized")
	}
	if s.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.reqTimeout)
		defer cancel()
	}
	payload := completionRequest{
		Model:       s.modelID,
		Prompt:      prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Stop:        params.Stop,
		Stream:      onToken != nil,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return FinalResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return FinalResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FinalResult{}, ctx.Err()
		}
		return FinalResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return FinalResult{}, fmt.Errorf("llama server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	if !payload.Stream {
		return decodeCompletion(resp.Body)
	}
	return readCompletionStream(ctx, resp.Body, onToken)
}

func decodeCompletion(r io.Reader) (FinalResult, error) {
	var msg completionResponse
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return FinalResult{}, fmt.Errorf("decode completion: %w", err)
	}
	if msg.Error != nil {
		return FinalResult{}, msg.Error.err()
	}
	text, finish := msg.fragment()
	final := FinalResult{Content: text, FinishReason: finish}
	if msg.Usage != nil {
		final.Usage = Usage(*msg.Usage)
	}
	return final, nil
}

// readCompletionStream parses "data:" lines until [DONE] or a finish reason,
// forwarding every non-empty fragment to onToken. An error chunk fails the
// generation, and so does EOF before either terminator.
func readCompletionStream(ctx context.Context, body io.Reader, onToken func(string) error) (FinalResult, error) {
	var (
		final    FinalResult
		sb       strings.Builder
		frags    int
		finished bool
	)
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(strings.ToLower(line), "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "[DONE]" {
			finished = true
			break
		}
		var msg completionResponse
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			zlog.Debug().Str("adapter", "llama_server").Str("line", line).Msg("unknown stream line")
			continue
		}
		if msg.Error != nil {
			final.Content = sb.String()
			return final, msg.Error.err()
		}
		text, finish := msg.fragment()
		if text != "" {
			sb.WriteString(text)
			frags++
			if err := onToken(text); err != nil {
				final.Content = sb.String()
				return final, err
			}
		}
		if msg.Usage != nil {
			final.Usage = Usage(*msg.Usage)
		}
		if finish != "" {
			final.FinishReason = finish
			finished = true
			break
		}
	}
	final.Content = sb.String()
	if final.Usage.CompletionTokens == 0 {
		final.Usage.CompletionTokens = frags
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return final, ctx.Err()
		}
		zlog.Warn().Str("adapter", "llama_server").Err(err).Msg("stream read error")
		return final, err
	}
	if err := ctx.Err(); err != nil {
		return final, err
	}
	if !finished {
		zlog.Warn().Str("adapter", "llama_server").Int("fragments", frags).Msg("stream ended without terminator")
		return final, fmt.Errorf("llama server stream: %w", io.ErrUnexpectedEOF)
	}
	return final, nil
}

func (s *llamaServerSession) Close() error { return nil }
