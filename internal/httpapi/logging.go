package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "http").Logger() }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel applies when a request carries no override.
var defaultLogLevel = LevelInfo

// SetRequestLogLevel sets the default per-request log level by name.
func SetRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestLogger carries the level and identity of one request's log lines.
type requestLogger struct {
	lvl   LogLevel
	log   zerolog.Logger
	start time.Time
}

func newRequestLogger(r *http.Request, op string) requestLogger {
	l := zlog.With().Str("op", op).Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		l = l.Str("request_id", rid)
	}
	return requestLogger{lvl: requestLogLevel(r), log: l.Logger(), start: time.Now()}
}

// begin logs the accepted request. Prompts are never logged, only sizes.
func (rl requestLogger) begin(promptLen int) {
	if rl.lvl >= LevelInfo {
		rl.log.Info().Int("prompt_length", promptLen).Msg("chat start")
	}
}

func (rl requestLogger) end(status int, err error) {
	switch {
	case err != nil && status >= 500 && rl.lvl >= LevelError:
		rl.log.Error().Int("status", status).Dur("dur", time.Since(rl.start)).Err(err).Msg("chat end")
	case rl.lvl >= LevelInfo:
		e := rl.log.Info().Int("status", status).Dur("dur", time.Since(rl.start))
		if err != nil {
			e = e.Err(err)
		}
		e.Msg("chat end")
	}
}

func (rl requestLogger) token(n int) {
	if rl.lvl >= LevelDebug {
		rl.log.Debug().Int("fragment_length", n).Msg("chat token")
	}
}
