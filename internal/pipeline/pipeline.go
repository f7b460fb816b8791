// Package pipeline answers one question end to end: generate, sanitize,
// execute, format, and record both turns in the conversation log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/conversation"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/respond"
	"github.com/sqlchat/sqlchat/internal/schema"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

var ErrEmptyQuestion = errors.New("question is required")

// Stage is the last step a question reached.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageSanitize Stage = "sanitize"
	StageExecute  Stage = "execute"
	StageDone     Stage = "done"
)

type Config struct {
	Translator nl2sql.Translator
	Guard      *sqlguard.Guard
	Engine     query.Engine
	Schema     *schema.Registry
	Formatter  *respond.Formatter
	// RowLimit caps SELECT results when > 0. Other statement kinds are never capped.
	RowLimit int
	Logger   *slog.Logger
}

type Pipeline struct {
	translator nl2sql.Translator
	guard      *sqlguard.Guard
	engine     query.Engine
	schema     *schema.Registry
	formatter  *respond.Formatter
	rowLimit   int
	logger     *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Translator == nil {
		return nil, errors.New("pipeline translator is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("pipeline engine is required")
	}
	if cfg.Schema == nil {
		return nil, errors.New("pipeline schema is required")
	}
	if cfg.Guard == nil {
		cfg.Guard = sqlguard.New()
	}
	if cfg.Formatter == nil {
		cfg.Formatter = respond.New(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		translator: cfg.Translator,
		guard:      cfg.Guard,
		engine:     cfg.Engine,
		schema:     cfg.Schema,
		formatter:  cfg.Formatter,
		rowLimit:   cfg.RowLimit,
		logger:     cfg.Logger,
	}, nil
}

// Outcome describes how one question was resolved. Err is the failure shown
// to the user, if any; it never escapes Ask as a returned error.
type Outcome struct {
	Stage      Stage
	Generation *nl2sql.Result
	Query      *sqlguard.Query
	Result     *query.Result
	Reply      respond.Message
	Err        error
}

// Ask appends the question and exactly one assistant reply to log. The only
// error returned is ErrEmptyQuestion, in which case log is untouched.
func (p *Pipeline) Ask(ctx context.Context, log *conversation.Log, question string) (Outcome, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Outcome{}, ErrEmptyQuestion
	}
	log.Append(conversation.Turn{Role: conversation.RoleUser, Content: question})

	start := time.Now()
	outcome := p.resolve(ctx, question)
	outcome.Reply = p.formatter.Format(respond.Input{
		Question: question,
		Query:    outcome.Query,
		Result:   outcome.Result,
		Err:      outcome.Err,
	})
	log.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: outcome.Reply.Content})

	observability.ObserveQuestion(string(outcome.Reply.Kind))
	p.logOutcome(ctx, outcome, time.Since(start))
	return outcome, nil
}

func (p *Pipeline) resolve(ctx context.Context, question string) Outcome {
	outcome := Outcome{Stage: StageGenerate}
	generation, q, err := p.generate(ctx, question)
	if generation != nil {
		outcome.Generation = generation
		outcome.Stage = StageSanitize
	}
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Query = &q

	outcome.Stage = StageExecute
	request := query.Request{SQL: q.Statement}
	if q.IsSelect() {
		request.RowLimit = p.rowLimit
	}
	result, err := p.engine.Execute(ctx, request)
	observability.ObserveExecution(result.Duration, len(result.Rows))
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Result = &result
	outcome.Stage = StageDone
	return outcome
}

// generate returns the generation result once the backend answered, even when
// sanitizing that answer fails.
func (p *Pipeline) generate(ctx context.Context, question string) (*nl2sql.Result, sqlguard.Query, error) {
	start := time.Now()
	generation, err := p.translator.Translate(ctx, nl2sql.Request{Question: question, Schema: p.schema.Context()})
	observability.ObserveGeneration(time.Since(start))
	if err != nil {
		return nil, sqlguard.Query{}, fmt.Errorf("generate query: %w", err)
	}

	q, err := p.guard.Sanitize(generation.RawOutput)
	if err != nil {
		var guardErr *sqlguard.Error
		if errors.As(err, &guardErr) {
			observability.IncrementSanitizeRejection(string(guardErr.Reason))
		}
		return &generation, sqlguard.Query{}, fmt.Errorf("sanitize generated output: %w", err)
	}
	return &generation, q, nil
}

// Translation is a sanitized query that has not been executed.
type Translation struct {
	Query      sqlguard.Query
	Generation nl2sql.Result
}

// Translate generates and sanitizes without touching the database.
func (p *Pipeline) Translate(ctx context.Context, question string) (Translation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Translation{}, ErrEmptyQuestion
	}
	generation, q, err := p.generate(ctx, question)
	if err != nil {
		return Translation{}, err
	}
	return Translation{Query: q, Generation: *generation}, nil
}

func (p *Pipeline) logOutcome(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	attrs := []any{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("session_id", observability.SessionIDFromContext(ctx)),
		slog.String("stage", string(outcome.Stage)),
		slog.String("outcome", string(outcome.Reply.Kind)),
		slog.String("duration", elapsed.String()),
	}
	if outcome.Generation != nil {
		attrs = append(attrs, slog.String("provider", outcome.Generation.Provider), slog.String("model", outcome.Generation.Model))
	}
	if outcome.Query != nil {
		attrs = append(attrs, slog.String("kind", string(outcome.Query.Kind)))
	}
	if outcome.Result != nil {
		attrs = append(attrs, slog.Int("rows", len(outcome.Result.Rows)))
	}
	if outcome.Err != nil {
		attrs = append(attrs, slog.String("error_code", outcome.Reply.ErrorCode), slog.Any("error", outcome.Err))
		p.logger.WarnContext(ctx, "question_failed", attrs...)
		return
	}
	p.logger.InfoContext(ctx, "question_answered", attrs...)
}
