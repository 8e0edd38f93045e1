package types

// ChatRequest is the payload accepted by POST /api/chat and POST /api/chat/stream.
// Optional generation parameters fall back to server defaults when omitted.
type ChatRequest struct {
	// Required prompt text to generate a completion for.
	// example: Explain recursion in one paragraph.
	Prompt string `json:"prompt" example:"Explain recursion in one paragraph."`
	// Maximum number of new tokens to generate (1-1024).
	// example: 256
	MaxTokens *int `json:"max_tokens,omitempty" example:"256"`
	// Sampling temperature (0.0-2.0).
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability (0.0-1.0).
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
}

// ChatResponse is returned by POST /api/chat.
type ChatResponse struct {
	// Generated text.
	Response string `json:"response" example:"Recursion is when a function calls itself..."`
	// Length of the prompt in characters.
	// example: 36
	PromptLength int `json:"prompt_length" example:"36"`
	// Length of the response in characters.
	// example: 412
	ResponseLength int `json:"response_length" example:"412"`
	// Wall time spent generating, in seconds.
	// example: 3.21
	GenerationTime float64 `json:"generation_time" example:"3.21"`
}

// DoneStats is the payload of the terminal "done" stream event.
type DoneStats struct {
	// Number of content fragments emitted.
	// example: 42
	TokenCount int `json:"token_count" example:"42"`
	// Wall time of the stream in seconds, rounded to hundredths.
	// example: 1.75
	GenerationTime float64 `json:"generation_time" example:"1.75"`
}

// StreamError is the payload of the terminal "error" stream event.
type StreamError struct {
	// Human-readable message.
	// example: Maximum concurrent users reached. Please try again later.
	Error string `json:"error" example:"Maximum concurrent users reached. Please try again later."`
	// Machine-readable kind, one of capacity_exceeded, backend_unavailable, generation_failed.
	// example: capacity_exceeded
	Code string `json:"code" example:"capacity_exceeded"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Error kind so clients can decide whether to retry.
	// example: capacity_exceeded
	Kind string `json:"kind,omitempty" example:"capacity_exceeded"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// Whether the model is loaded and accepting generation requests.
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
}

// QueueStatus is the admission gate snapshot.
type QueueStatus struct {
	// Requests currently holding a generation slot.
	// example: 1
	ActiveRequests int `json:"active_requests" example:"1"`
	// Configured slot capacity.
	// example: 3
	MaxConcurrent int `json:"max_concurrent" example:"3"`
	// Requests admitted since start.
	// example: 120
	TotalProcessed uint64 `json:"total_processed" example:"120"`
	// Requests rejected because all slots were busy.
	// example: 4
	TotalRejected uint64 `json:"total_rejected" example:"4"`
	// True if at least one slot is free.
	// example: true
	QueueAvailable bool `json:"queue_available" example:"true"`
}

// ModelInfo describes the served model and its default generation parameters.
type ModelInfo struct {
	// example: tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf
	ModelName string `json:"model_name" example:"tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf"`
	// example: true
	Loaded bool `json:"loaded" example:"true"`
	// example: /srv/models/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf
	ModelPath string `json:"model_path" example:"/srv/models/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf"`
	// Backend kind (llama, server, spawn).
	// example: llama
	Backend string `json:"backend" example:"llama"`
	// example: 512
	MaxTokens int `json:"max_tokens" example:"512"`
	// example: 0.7
	Temperature float64 `json:"temperature" example:"0.7"`
	// example: 0.9
	TopP float64 `json:"top_p" example:"0.9"`
	// Last load error, if any.
	Error string `json:"error,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// example: running
	Status string      `json:"status" example:"running"`
	Model  ModelInfo   `json:"model"`
	Queue  QueueStatus `json:"queue"`
	// example: 1
	CurrentUsers int `json:"current_users" example:"1"`
	// example: 3
	MaxUsers int `json:"max_users" example:"3"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}
