package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"chatd/pkg/types"
)

// chatRequestSchema bounds the chat payload: prompt up to 4096 characters with
// at least one non-blank, max_tokens 1..1024, temperature 0..2, top_p 0..1.
const chatRequestSchema = `{
  "type": "object",
  "required": ["prompt"],
  "properties": {
    "prompt":      {"type": "string", "minLength": 1, "maxLength": 4096, "pattern": "\\S"},
    "max_tokens":  {"type": "integer", "minimum": 1, "maximum": 1024},
    "temperature": {"type": "number", "minimum": 0, "maximum": 2},
    "top_p":       {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var chatSchema = jsonschema.MustCompileString("chat_request.json", chatRequestSchema)

// requestError is a client error with its own status code.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string   { return e.msg }
func (e *requestError) StatusCode() int { return e.status }

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// decodeChatRequest reads and validates a chat payload.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (types.ChatRequest, *requestError) {
	var req types.ChatRequest
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return req, &requestError{status: http.StatusUnsupportedMediaType, msg: "Content-Type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return req, &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		}
		return req, badRequest("read body: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return req, badRequest("invalid JSON body")
	}
	if err := chatSchema.Validate(doc); err != nil {
		return req, badRequest("%s", validationMessage(err))
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, badRequest("invalid JSON body")
	}
	return req, nil
}

// validationMessage reduces a schema error to its first leaf cause.
func validationMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	if field == "" {
		return ve.Message
	}
	return field + ": " + ve.Message
}
