package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/conversation"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/pipeline"
	"github.com/sqlchat/sqlchat/internal/schema"
)

const maxRequestBytes = 64 << 10

type ReadinessCheck func(ctx context.Context) error

// Assistant answers questions. *pipeline.Pipeline satisfies it.
type Assistant interface {
	Ask(ctx context.Context, log *conversation.Log, question string) (pipeline.Outcome, error)
	Translate(ctx context.Context, question string) (pipeline.Translation, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Assistant         Assistant
	Sessions          *conversation.Store
	Schema            *schema.Registry
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	chat := &chatHandlers{cfg: cfg, deps: deps}
	mux.HandleFunc("GET /v1/schema", chat.handleSchema)
	mux.HandleFunc("POST /v1/sessions", chat.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", chat.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", chat.handlePostMessage)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", chat.handleWebSocket)
	mux.HandleFunc("POST /v1/translate", chat.handleTranslate)
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	return observability.InstrumentHTTP(deps.Logger)(mux)
}

// PingCheck adapts anything with a Ping method, such as the SQL engine.
func PingCheck(pinger interface{ Ping(context.Context) error }) ReadinessCheck {
	return pinger.Ping
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Context   map[string]any `json:"context"`
	TraceID   string         `json:"trace_id"`
}

func newErrorBody(ctx context.Context, code, message string, retryable bool, extra map[string]any) errorBody {
	return errorBody{
		ErrorCode: code,
		Message:   message,
		Retryable: retryable,
		Context:   extra,
		TraceID:   observability.TraceIDFromContext(ctx),
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, newErrorBody(ctx, code, message, retryable, extra))
}
