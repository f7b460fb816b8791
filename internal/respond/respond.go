// Package respond renders one pipeline outcome as the assistant's markdown reply.
package respond

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

type Kind string

const (
	KindAnswer Kind = "answer"
	KindEmpty  Kind = "empty"
	KindError  Kind = "error"
)

const (
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeSQLRejected      = "SQL_REJECTED"
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodeInternal         = "INTERNAL"
)

// DefaultMaxRows caps how many rows a reply shows.
const DefaultMaxRows = 200

type Message struct {
	Kind      Kind   `json:"kind"`
	Content   string `json:"content"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Input is everything known about one question when the reply is built.
// Query and Result are nil when the pipeline stopped before producing them.
type Input struct {
	Question string
	Query    *sqlguard.Query
	Result   *query.Result
	Err      error
}

type Formatter struct {
	maxRows int
}

// New returns a Formatter showing at most maxRows rows. maxRows <= 0 uses DefaultMaxRows.
func New(maxRows int) *Formatter {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Formatter{maxRows: maxRows}
}

func (f *Formatter) Format(in Input) Message {
	if in.Err != nil {
		code, text := Classify(in.Err)
		return Message{Kind: KindError, Content: "**Error:** " + text, ErrorCode: code}
	}
	if in.Query == nil || in.Result == nil {
		return Message{Kind: KindError, Content: "**Error:** internal error", ErrorCode: CodeInternal}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Generated SQL Query:**\n```\n%s\n```\n\n", in.Query.SQL)
	if len(in.Result.Rows) == 0 {
		b.WriteString("**No Results Found.**")
		return Message{Kind: KindEmpty, Content: b.String()}
	}
	b.WriteString("**Query Results:**\n")
	b.WriteString(f.table(in.Result))
	return Message{Kind: KindAnswer, Content: b.String()}
}

func (f *Formatter) table(res *query.Result) string {
	t := table.NewWriter()
	header := make(table.Row, len(res.Columns))
	for i, col := range res.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	shown := res.Rows
	if len(shown) > f.maxRows {
		shown = shown[:f.maxRows]
	}
	for _, values := range shown {
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = FormatValue(v)
		}
		t.AppendRow(row)
	}

	out := t.RenderMarkdown()
	if hidden := len(res.Rows) - len(shown); hidden > 0 {
		out += fmt.Sprintf("\n\n_%d more rows not shown._", hidden)
	}
	if res.Truncated {
		out += fmt.Sprintf("\n\n_Stopped reading after %d rows._", len(res.Rows))
	}
	return out
}

// FormatValue renders a scanned database value for display.
func FormatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case []byte:
		return string(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format(time.DateOnly)
		}
		return typed.Format(time.DateTime)
	default:
		return fmt.Sprint(typed)
	}
}

// Classify maps a pipeline error to an error code and the text shown to the
// user. Errors outside the known taxonomy are not echoed.
func Classify(err error) (code, text string) {
	var (
		genErr   *nl2sql.GenerationError
		guardErr *sqlguard.Error
		execErr  *query.ExecutionError
	)
	switch {
	case errors.As(err, &genErr):
		return CodeGenerationFailed, "could not generate a query: " + generationReason(genErr.Reason)
	case errors.As(err, &guardErr):
		return CodeSQLRejected, guardErr.Message
	case errors.As(err, &execErr):
		return CodeExecutionFailed, execErr.Error()
	default:
		return CodeInternal, "internal error"
	}
}

func generationReason(reason nl2sql.FailureReason) string {
	switch reason {
	case nl2sql.ReasonAuth:
		return "the language model rejected the configured credentials"
	case nl2sql.ReasonMalformed:
		return "the language model returned a malformed response"
	default:
		return "the language model is unreachable"
	}
}
