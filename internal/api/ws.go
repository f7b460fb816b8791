package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sqlchat/sqlchat/internal/observability"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket answers each {"question": ...} frame with the same body the
// messages endpoint returns. Frames are handled strictly in order. Nothing is
// sent on connect; clients take the greeting from the session resource.
func (h *chatHandlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.requireAssistant(w, r) {
		return
	}
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)
	// The server read timeout still applies to the hijacked connection.
	_ = conn.SetReadDeadline(time.Time{})

	ctx := r.Context()
	for {
		var req questionRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.deps.Logger.DebugContext(ctx, "websocket_closed",
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
					slog.String("session_id", session.ID),
					slog.Any("error", err),
				)
			}
			return
		}

		var payload any
		if strings.TrimSpace(req.Question) == "" {
			payload = newErrorBody(ctx, "QUESTION_REQUIRED", "question is required", false, nil)
		} else {
			body, err := h.ask(ctx, session, req.Question)
			if err != nil {
				payload = newErrorBody(ctx, "QUESTION_REQUIRED", "question is required", false, nil)
			} else {
				payload = body
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				h.deps.Logger.WarnContext(ctx, "websocket_write_failed",
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
					slog.String("session_id", session.ID),
					slog.Any("error", err),
				)
			}
			return
		}
	}
}
