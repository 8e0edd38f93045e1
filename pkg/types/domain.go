package types

// Model represents a model file discovered on disk.
type Model struct {
	// Stable identifier for the model (the file name).
	// example: tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf
	ID string `json:"id" example:"tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf"`
	// Human-friendly name.
	// example: tinyllama-1.1b-chat-v1.0
	Name string `json:"name" example:"tinyllama-1.1b-chat-v1.0"`
	// Absolute path to the model file on disk.
	// example: /srv/models/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf
	Path string `json:"path" example:"/srv/models/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf"`
	// Size of the file in bytes.
	// example: 668788096
	SizeBytes int64 `json:"size_bytes" example:"668788096"`
}
