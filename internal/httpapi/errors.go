package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatd/internal/manager"
	"chatd/pkg/types"
)

// Error kinds produced by the HTTP layer itself.
const (
	kindInvalidRequest = "invalid_request"
	kindRateLimited    = "rate_limited"
	kindTimeout        = "timeout"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// classify maps a service error to a status code, client message and kind.
func classify(err error) (status int, msg, kind string) {
	switch {
	case manager.IsCapacityExceeded(err):
		return http.StatusTooManyRequests, manager.CapacityMessage, manager.KindCapacityExceeded
	case manager.IsBackendUnavailable(err):
		return http.StatusServiceUnavailable, "Model not loaded. Server is starting up.", manager.KindBackendUnavailable
	case manager.IsGenerationFailure(err):
		return http.StatusInternalServerError, err.Error(), manager.KindGenerationFailed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, manager.ErrGenerationTimeout):
		return http.StatusGatewayTimeout, manager.ErrGenerationTimeout.Error(), kindTimeout
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), he.Error(), ""
	}
	return http.StatusInternalServerError, err.Error(), ""
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
