package respond

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

func sanitized(t *testing.T, sql string) *sqlguard.Query {
	t.Helper()
	q, err := sqlguard.New().Sanitize(sql)
	require.NoError(t, err)
	return &q
}

func TestFormatAnswer(t *testing.T) {
	q := sanitized(t, "SELECT FirstName, Division FROM employee_data")
	res := &query.Result{
		Columns: []string{"FirstName", "Division"},
		Rows:    [][]any{{"Ada", "Sales"}, {"Grace", nil}},
	}

	msg := New(0).Format(Input{Question: "who?", Query: q, Result: res})
	assert.Equal(t, KindAnswer, msg.Kind)
	assert.Empty(t, msg.ErrorCode)
	assert.True(t, strings.HasPrefix(msg.Content, "**Generated SQL Query:**\n```\nSELECT\n  FirstName,\n  Division\nFROM employee_data\n```\n\n**Query Results:**\n"), msg.Content)

	lines := strings.Split(msg.Content, "\n")
	var tableLines []string
	for _, line := range lines {
		if strings.HasPrefix(line, "|") {
			tableLines = append(tableLines, line)
		}
	}
	require.Len(t, tableLines, 4, msg.Content)
	assert.Contains(t, tableLines[0], "FirstName")
	assert.Contains(t, tableLines[2], "Ada")
	assert.Contains(t, tableLines[3], "NULL")
}

func TestFormatEmptyResult(t *testing.T) {
	q := sanitized(t, "SELECT * FROM employee_data WHERE 1 = 0")
	msg := New(0).Format(Input{Query: q, Result: &query.Result{Columns: []string{"EmpID"}, Rows: [][]any{}}})
	assert.Equal(t, KindEmpty, msg.Kind)
	assert.Equal(t, "**Generated SQL Query:**\n```\nSELECT *\nFROM employee_data\nWHERE 1 = 0\n```\n\n**No Results Found.**", msg.Content)
}

func TestFormatCapsRows(t *testing.T) {
	q := sanitized(t, "SELECT EmpID FROM employee_data")
	res := &query.Result{Columns: []string{"EmpID"}}
	for i := range 7 {
		res.Rows = append(res.Rows, []any{int64(i)})
	}
	msg := New(5).Format(Input{Query: q, Result: res})
	assert.Equal(t, KindAnswer, msg.Kind)
	assert.True(t, strings.HasSuffix(msg.Content, "\n\n_2 more rows not shown._"), msg.Content)
	assert.NotContains(t, msg.Content, "| 6 |")
	assert.Len(t, res.Rows, 7, "formatter must not truncate the result")
}

func TestFormatNotesRowLimit(t *testing.T) {
	q := sanitized(t, "SELECT EmpID FROM employee_data")
	res := &query.Result{Columns: []string{"EmpID"}, Rows: [][]any{{int64(1)}, {int64(2)}}, Truncated: true}
	msg := New(0).Format(Input{Query: q, Result: res})
	assert.Equal(t, KindAnswer, msg.Kind)
	assert.True(t, strings.HasSuffix(msg.Content, "\n\n_Stopped reading after 2 rows._"), msg.Content)
}

func TestFormatErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
		want string
	}{
		{
			name: "generation",
			err:  fmt.Errorf("generate: %w", &nl2sql.GenerationError{Provider: "openai", Reason: nl2sql.ReasonUnreachable, Err: errors.New("dial tcp: refused")}),
			code: CodeGenerationFailed,
			want: "**Error:** could not generate a query: the language model is unreachable",
		},
		{
			name: "auth",
			err:  &nl2sql.GenerationError{Provider: "anthropic", Reason: nl2sql.ReasonAuth, Err: errors.New("401")},
			code: CodeGenerationFailed,
			want: "**Error:** could not generate a query: the language model rejected the configured credentials",
		},
		{
			name: "sanitizer",
			err:  &sqlguard.Error{Reason: sqlguard.ReasonDisallowed, Message: "DELETE statements are not allowed; permitted: SELECT"},
			code: CodeSQLRejected,
			want: "**Error:** DELETE statements are not allowed; permitted: SELECT",
		},
		{
			name: "execution",
			err:  &query.ExecutionError{Stage: query.StageQuery, Err: errors.New("no such column: Salary")},
			code: CodeExecutionFailed,
			want: "**Error:** no such column: Salary",
		},
		{
			name: "unclassified",
			err:  errors.New("secret dsn postgres://user:pass@db"),
			code: CodeInternal,
			want: "**Error:** internal error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := New(0).Format(Input{Err: tc.err})
			assert.Equal(t, KindError, msg.Kind)
			assert.Equal(t, tc.code, msg.ErrorCode)
			assert.Equal(t, tc.want, msg.Content)
		})
	}
}

func TestFormatWithoutResultIsInternal(t *testing.T) {
	msg := New(0).Format(Input{Question: "q"})
	assert.Equal(t, KindError, msg.Kind)
	assert.Equal(t, CodeInternal, msg.ErrorCode)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", FormatValue(nil))
	assert.Equal(t, "42", FormatValue(int64(42)))
	assert.Equal(t, "3.5", FormatValue(3.5))
	assert.Equal(t, "abc", FormatValue([]byte("abc")))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "2021-03-04", FormatValue(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2021-03-04 05:06:07", FormatValue(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)))
}
