package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/sqlchat/sqlchat/internal/conversation"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/query/sqldb"
	"github.com/sqlchat/sqlchat/internal/respond"
	"github.com/sqlchat/sqlchat/internal/schema"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

type stubTranslator struct {
	output string
	err    error
	calls  int
}

func (s *stubTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	s.calls++
	if s.err != nil {
		return nl2sql.Result{}, s.err
	}
	if req.Schema.Text() == "" {
		return nl2sql.Result{}, errors.New("schema missing from request")
	}
	return nl2sql.Result{RawOutput: s.output, Provider: "stub", Model: "stub-1"}, nil
}

type recordingEngine struct {
	result   query.Result
	err      error
	requests []query.Request
}

func (e *recordingEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	e.requests = append(e.requests, request)
	return e.result, e.err
}

func newPipeline(t *testing.T, translator nl2sql.Translator, engine query.Engine, opts ...func(*Config)) *Pipeline {
	t.Helper()
	cfg := Config{
		Translator: translator,
		Engine:     engine,
		Schema:     schema.NewRegistry(schema.Default()),
		RowLimit:   100,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestAskAnswersAndRecordsBothTurns(t *testing.T) {
	translator := &stubTranslator{output: "Reasoning: count staff.\nSQL: ```sql\nSELECT COUNT(*) FROM employee_data\n```"}
	engine := &recordingEngine{result: query.Result{Columns: []string{"COUNT(*)"}, Rows: [][]any{{int64(3000)}}}}
	p := newPipeline(t, translator, engine)

	log := conversation.NewLog(0)
	outcome, err := p.Ask(context.Background(), log, "  How many employees are there?  ")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if outcome.Stage != StageDone || outcome.Err != nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Reply.Kind != respond.KindAnswer || !strings.Contains(outcome.Reply.Content, "3000") {
		t.Fatalf("Reply = %+v", outcome.Reply)
	}
	if len(engine.requests) != 1 {
		t.Fatalf("engine calls = %d, want 1", len(engine.requests))
	}
	if got := engine.requests[0]; got.SQL != "SELECT COUNT(*) FROM employee_data" || got.RowLimit != 100 {
		t.Fatalf("engine request = %+v", got)
	}

	turns := log.Turns()
	if len(turns) != 2 {
		t.Fatalf("len(Turns()) = %d, want 2", len(turns))
	}
	if turns[0].Role != conversation.RoleUser || turns[0].Content != "How many employees are there?" {
		t.Fatalf("user turn = %+v", turns[0])
	}
	if turns[1].Role != conversation.RoleAssistant || turns[1].Content != outcome.Reply.Content {
		t.Fatalf("assistant turn = %+v", turns[1])
	}
}

func TestAskEmptyQuestionLeavesLogAlone(t *testing.T) {
	translator := &stubTranslator{output: "SELECT 1"}
	p := newPipeline(t, translator, &recordingEngine{})
	log := conversation.NewLog(0)

	if _, err := p.Ask(context.Background(), log, " \n\t "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("Ask() error = %v, want ErrEmptyQuestion", err)
	}
	if log.Len() != 0 || translator.calls != 0 {
		t.Fatalf("log len = %d, translator calls = %d", log.Len(), translator.calls)
	}
}

func TestAskSanitizerRejectionSkipsExecution(t *testing.T) {
	cases := map[string]string{
		"write":       "```sql\nDELETE FROM employee_data\n```",
		"multi":       "SELECT 1; DROP TABLE employee_data",
		"unparseable": "I am not sure how to answer that.",
	}
	for name, output := range cases {
		t.Run(name, func(t *testing.T) {
			engine := &recordingEngine{}
			p := newPipeline(t, &stubTranslator{output: output}, engine)
			log := conversation.NewLog(0)

			outcome, err := p.Ask(context.Background(), log, "remove everyone")
			if err != nil {
				t.Fatalf("Ask() error = %v", err)
			}
			if len(engine.requests) != 0 {
				t.Fatalf("engine was called for rejected output %q", output)
			}
			if outcome.Stage != StageSanitize || outcome.Generation == nil {
				t.Fatalf("outcome = %+v", outcome)
			}
			var guardErr *sqlguard.Error
			if !errors.As(outcome.Err, &guardErr) {
				t.Fatalf("outcome.Err = %v, want sanitizer error", outcome.Err)
			}
			if outcome.Reply.ErrorCode != respond.CodeSQLRejected || !strings.HasPrefix(outcome.Reply.Content, "**Error:** ") {
				t.Fatalf("Reply = %+v", outcome.Reply)
			}
			if log.Len() != 2 {
				t.Fatalf("log len = %d, want 2", log.Len())
			}
		})
	}
}

func TestAskGenerationFailureBecomesReply(t *testing.T) {
	translator := &stubTranslator{err: &nl2sql.GenerationError{Provider: "openai", Reason: nl2sql.ReasonUnreachable, Err: errors.New("connection refused")}}
	engine := &recordingEngine{}
	var buf bytes.Buffer
	p := newPipeline(t, translator, engine, func(cfg *Config) {
		cfg.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	})

	ctx := observability.ContextWithSessionID(observability.ContextWithTraceID(context.Background(), "trace-9"), "session-1")
	outcome, err := p.Ask(ctx, conversation.NewLog(0), "who is the newest hire?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if outcome.Stage != StageGenerate || outcome.Generation != nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Reply.ErrorCode != respond.CodeGenerationFailed {
		t.Fatalf("Reply = %+v", outcome.Reply)
	}
	if len(engine.requests) != 0 {
		t.Fatal("engine called after generation failure")
	}
	logged := buf.String()
	for _, want := range []string{`"msg":"question_failed"`, `"trace_id":"trace-9"`, `"session_id":"session-1"`, `"stage":"generate"`} {
		if !strings.Contains(logged, want) {
			t.Fatalf("log output missing %s: %s", want, logged)
		}
	}
}

func TestAskRowLimitOnlyForSelect(t *testing.T) {
	engine := &recordingEngine{result: query.Result{Columns: []string{}, Rows: [][]any{}}}
	p := newPipeline(t, &stubTranslator{output: "INSERT INTO employee_data (EmpID) VALUES (1)"}, engine, func(cfg *Config) {
		cfg.Guard = sqlguard.New(sqlguard.WithAllowed(sqlguard.KindSelect, sqlguard.KindInsert))
	})
	outcome, err := p.Ask(context.Background(), conversation.NewLog(0), "add an employee")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(engine.requests) != 1 || engine.requests[0].RowLimit != 0 {
		t.Fatalf("engine requests = %+v", engine.requests)
	}
	if outcome.Reply.Kind != respond.KindEmpty {
		t.Fatalf("Reply.Kind = %q, want empty", outcome.Reply.Kind)
	}
}

func TestTranslateDoesNotExecute(t *testing.T) {
	engine := &recordingEngine{}
	p := newPipeline(t, &stubTranslator{output: "SQL: select FirstName from employee_data"}, engine)

	translation, err := p.Translate(context.Background(), "first names")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if translation.Query.SQL != "SELECT FirstName\nFROM employee_data" || translation.Generation.Provider != "stub" {
		t.Fatalf("Translate() = %+v", translation)
	}
	if len(engine.requests) != 0 {
		t.Fatal("Translate() executed the query")
	}

	if _, err := p.Translate(context.Background(), ""); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("Translate(empty) error = %v", err)
	}
	p = newPipeline(t, &stubTranslator{output: "DROP TABLE employee_data"}, engine)
	if _, err := p.Translate(context.Background(), "drop it"); !errors.Is(err, sqlguard.ErrDisallowed) {
		t.Fatalf("Translate(drop) error = %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() expected error without translator")
	}
	if _, err := New(Config{Translator: &stubTranslator{}}); err == nil {
		t.Fatal("New() expected error without engine")
	}
	if _, err := New(Config{Translator: &stubTranslator{}, Engine: &recordingEngine{}}); err == nil {
		t.Fatal("New() expected error without schema")
	}
}

func TestAskAgainstSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	for _, stmt := range []string{
		"CREATE TABLE employee_data (EmpID INTEGER, FirstName TEXT, Division TEXT)",
		"INSERT INTO employee_data VALUES (1, 'Ada', 'Sales'), (2, 'Grace', 'Finance'), (3, 'Linus', 'Sales')",
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Exec(%q) error = %v", stmt, err)
		}
	}
	db.Close()

	engine, err := sqldb.New(sqldb.Config{Driver: "sqlite", DSN: path, ReadOnly: true})
	if err != nil {
		t.Fatalf("sqldb.New() error = %v", err)
	}

	p := newPipeline(t, &stubTranslator{output: "```sql\nSELECT FirstName FROM employee_data WHERE Division = 'Sales' ORDER BY EmpID\n```"}, engine)
	outcome, err := p.Ask(context.Background(), conversation.NewLog(0), "who works in sales?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if outcome.Result == nil || len(outcome.Result.Rows) != 2 {
		t.Fatalf("Result = %+v", outcome.Result)
	}
	for _, want := range []string{"**Generated SQL Query:**", "Ada", "Linus"} {
		if !strings.Contains(outcome.Reply.Content, want) {
			t.Fatalf("reply missing %q: %s", want, outcome.Reply.Content)
		}
	}

	p = newPipeline(t, &stubTranslator{output: "SELECT Salary FROM employee_data"}, engine)
	outcome, _ = p.Ask(context.Background(), conversation.NewLog(0), "salaries?")
	if outcome.Stage != StageExecute || outcome.Reply.ErrorCode != respond.CodeExecutionFailed {
		t.Fatalf("outcome = %+v", outcome)
	}
	if !strings.Contains(outcome.Reply.Content, "no such column") {
		t.Fatalf("Reply = %q", outcome.Reply.Content)
	}
}

func TestAskMissingSQLiteFileReportsExecutionError(t *testing.T) {
	engine, err := sqldb.New(sqldb.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "missing.db"), ReadOnly: true})
	if err != nil {
		t.Fatalf("sqldb.New() error = %v", err)
	}
	p := newPipeline(t, &stubTranslator{output: "SELECT COUNT(*) FROM employee_data"}, engine)
	log := conversation.NewLog(0)
	log.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: "Please ask me any question about the Employees database"})

	outcome, err := p.Ask(context.Background(), log, "How many employees are there?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	var execErr *query.ExecutionError
	if !errors.As(outcome.Err, &execErr) || execErr.Stage != query.StageOpen {
		t.Fatalf("outcome.Err = %v, want open ExecutionError", outcome.Err)
	}
	if outcome.Stage != StageExecute || outcome.Result != nil || outcome.Reply.ErrorCode != respond.CodeExecutionFailed {
		t.Fatalf("outcome = %+v", outcome)
	}

	turns := log.Turns()
	if len(turns) != 3 {
		t.Fatalf("log len = %d, want 3", len(turns))
	}
	if turns[1].Role != conversation.RoleUser || turns[2].Role != conversation.RoleAssistant {
		t.Fatalf("roles = %s, %s", turns[1].Role, turns[2].Role)
	}
	if turns[2].Content != outcome.Reply.Content || !strings.HasPrefix(turns[2].Content, "**Error:** ") {
		t.Fatalf("assistant turn = %q", turns[2].Content)
	}
}
