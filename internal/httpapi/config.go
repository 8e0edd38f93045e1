package httpapi

import (
	"time"
)

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// requestTimeout bounds a chat request, including the whole stream.
// Zero means no additional timeout beyond server/connection timeouts.
var requestTimeout time.Duration

// SetRequestTimeout sets the chat timeout (0 disables).
func SetRequestTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	requestTimeout = d
}

// CORS configuration. If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
}

// Per-client rate limit for /api routes; rps <= 0 disables it.
var (
	rateLimitRPS   float64
	rateLimitBurst int
)

// SetRateLimit configures the per-IP limiter applied to the chat endpoints.
func SetRateLimit(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	rateLimitRPS = rps
	rateLimitBurst = burst
}

// swaggerEnabled mounts the API docs UI under /swagger/.
var swaggerEnabled bool

// SetSwaggerEnabled toggles the /swagger/ routes.
func SetSwaggerEnabled(on bool) { swaggerEnabled = on }
