package httpapi

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatd/internal/manager"
	"chatd/internal/sse"
	"chatd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error)
	ChatStream(ctx context.Context, req types.ChatRequest, sink manager.EventSink) error
	Status() types.StatusResponse
	Health() types.HealthResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", "X-Log-Level"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}

	r.Route("/api", func(r chi.Router) {
		if rateLimitRPS > 0 {
			r.Use(rateLimit(serverBaseCtx, rateLimitRPS, rateLimitBurst))
		}
		r.Post("/chat", h.chat)
		r.Post("/chat/stream", h.chatStream)
	})

	// Compression for JSON endpoints only; it would buffer event streams.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Health())
		})
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Status())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if swaggerEnabled {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	}

	return r
}

type handlers struct {
	svc Service
}

// chat serves POST /api/chat.
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	rl := newRequestLogger(r, "chat")
	req, rerr := decodeChatRequest(w, r)
	if rerr != nil {
		writeJSONError(w, rerr.status, rerr.msg, kindInvalidRequest)
		rl.end(rerr.status, rerr)
		return
	}
	rl.begin(utf8.RuneCountInString(req.Prompt))

	ctx, cancel := requestContext(r)
	defer cancel()
	resp, err := h.svc.Chat(ctx, req)
	if err != nil {
		if clientGone(r) {
			rl.end(499, err)
			return
		}
		status, msg, kind := classify(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure(kind)
		}
		writeJSONError(w, status, msg, kind)
		rl.end(status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	rl.end(http.StatusOK, nil)
}

// chatStream serves POST /api/chat/stream as Server-Sent Events.
func (h *handlers) chatStream(w http.ResponseWriter, r *http.Request) {
	rl := newRequestLogger(r, "chat_stream")
	req, rerr := decodeChatRequest(w, r)
	if rerr != nil {
		writeJSONError(w, rerr.status, rerr.msg, kindInvalidRequest)
		rl.end(rerr.status, rerr)
		return
	}
	if !h.svc.Ready() {
		status, msg, kind := classify(manager.ErrBackendUnavailable)
		writeJSONError(w, status, msg, kind)
		rl.end(status, manager.ErrBackendUnavailable)
		return
	}
	sw, err := sse.NewWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error(), "")
		rl.end(http.StatusInternalServerError, err)
		return
	}
	rl.begin(utf8.RuneCountInString(req.Prompt))

	ctx, cancel := requestContext(r)
	defer cancel()
	sink := &sseSink{w: sw, log: rl}
	err = h.svc.ChatStream(ctx, req, sink)
	switch {
	case err == nil:
		rl.end(http.StatusOK, nil)
	case sw.Started():
		// Headers are out; the error already went to the client as an event.
		if manager.IsCapacityExceeded(err) {
			IncrementBackpressure(manager.KindCapacityExceeded)
		}
		rl.end(http.StatusOK, err)
	case clientGone(r):
		rl.end(499, err)
	default:
		status, msg, kind := classify(err)
		writeJSONError(w, status, msg, kind)
		rl.end(status, err)
	}
}
