package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/conversation"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/pipeline"
	"github.com/sqlchat/sqlchat/internal/respond"
	"github.com/sqlchat/sqlchat/internal/schema"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

type questionRequest struct {
	Question string `json:"question"`
}

type sessionResponse struct {
	SessionID  string              `json:"session_id"`
	Transcript []conversation.Turn `json:"transcript"`
}

// replyResponse mirrors the chat form: the transcript plus an emptied input box.
type replyResponse struct {
	SessionID  string              `json:"session_id"`
	Transcript []conversation.Turn `json:"transcript"`
	Reply      respond.Message     `json:"reply"`
	Input      string              `json:"input"`
}

type translateResponse struct {
	SQL       string `json:"sql"`
	Kind      string `json:"kind"`
	Reasoning string `json:"reasoning,omitempty"`
	RawOutput string `json:"raw_output"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

type schemaResponse struct {
	Tables []schema.Table `json:"tables"`
	DDL    string         `json:"ddl"`
}

type chatHandlers struct {
	cfg  config.Config
	deps Dependencies
}

func (h *chatHandlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	if h.deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema is not configured", false, nil)
		return
	}
	doc := h.deps.Schema.Context()
	writeJSON(w, http.StatusOK, schemaResponse{Tables: doc.Tables(), DDL: doc.Text()})
}

func (h *chatHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireSessions(w, r) {
		return
	}
	session, err := h.deps.Sessions.Create(h.cfg.Conversation.Greeting)
	if err != nil {
		if errors.Is(err, conversation.ErrTooManySessions) {
			writeError(r.Context(), w, http.StatusTooManyRequests, "TOO_MANY_SESSIONS", "session limit reached and every session is busy", true,
				map[string]any{"max_sessions": h.cfg.Conversation.MaxSessions})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "failed to create session", true, nil)
		return
	}
	observability.SetSessionsActive(h.deps.Sessions.Len())
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: session.ID, Transcript: session.Transcript()})
}

func (h *chatHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: session.ID, Transcript: session.Transcript()})
}

func (h *chatHandlers) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	if !h.requireAssistant(w, r) {
		return
	}
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	body, err := h.ask(r.Context(), session, req.Question)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// ask runs one question inside the session lock and snapshots the transcript
// before releasing it.
func (h *chatHandlers) ask(ctx context.Context, session *conversation.Session, question string) (replyResponse, error) {
	ctx = observability.ContextWithSessionID(ctx, session.ID)
	var body replyResponse
	err := session.Do(func(log *conversation.Log) error {
		outcome, err := h.deps.Assistant.Ask(ctx, log, question)
		if err != nil {
			return err
		}
		body = replyResponse{SessionID: session.ID, Transcript: log.Turns(), Reply: outcome.Reply}
		return nil
	})
	return body, err
}

func (h *chatHandlers) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if !h.requireAssistant(w, r) {
		return
	}
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	translation, err := h.deps.Assistant.Translate(r.Context(), req.Question)
	if err != nil {
		writeTranslateError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{
		SQL:       translation.Query.SQL,
		Kind:      string(translation.Query.Kind),
		Reasoning: translation.Generation.Reasoning,
		RawOutput: translation.Generation.RawOutput,
		Provider:  translation.Generation.Provider,
		Model:     translation.Generation.Model,
	})
}

func writeTranslateError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		guardErr *sqlguard.Error
		genErr   *nl2sql.GenerationError
	)
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
	case errors.As(err, &guardErr):
		writeError(ctx, w, http.StatusUnprocessableEntity, "SQL_REJECTED", guardErr.Message, false,
			map[string]any{"reason": string(guardErr.Reason)})
	case errors.As(err, &genErr):
		writeError(ctx, w, http.StatusBadGateway, "TRANSLATE_FAILED", "query translation failed", genErr.Reason == nl2sql.ReasonUnreachable,
			map[string]any{"provider": genErr.Provider, "reason": string(genErr.Reason)})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "TRANSLATE_FAILED", "query translation failed", true, nil)
	}
}

func (h *chatHandlers) lookupSession(w http.ResponseWriter, r *http.Request) (*conversation.Session, bool) {
	if !h.requireSessions(w, r) {
		return nil, false
	}
	id := strings.TrimSpace(r.PathValue("id"))
	session, err := h.deps.Sessions.Get(id)
	if err != nil {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", fmt.Sprintf("session %q not found", id), false, nil)
		return nil, false
	}
	return session, true
}

func (h *chatHandlers) requireSessions(w http.ResponseWriter, r *http.Request) bool {
	if h.deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return false
	}
	return true
}

func (h *chatHandlers) requireAssistant(w http.ResponseWriter, r *http.Request) bool {
	if h.deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return false
	}
	return true
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (questionRequest, bool) {
	var req questionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return questionRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return questionRequest{}, false
	}
	return req, true
}
