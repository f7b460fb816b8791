package nl2sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlchat/sqlchat/internal/exemplar"
)

const systemPrompt = `Transform a natural language query into a SQL query.
You will be given a question which will tell what you need to do and a sql_context which will give some additional context to generate the right SQL.
Only generate the SQL query nothing else. You should give one correct answer, starting and ending with ` + "```" + `.

Answer in exactly this format, on two lines and with no blank line:
Reasoning: <one sentence on how the query answers the question>
SQL: ` + "```<a single SQL statement>```"

var reasoningLine = regexp.MustCompile(`(?im)^[ \t]*reasoning[ \t]*:[ \t]*(.+?)[ \t]*$`)

// buildPrompt renders the question with the schema and worked examples.
// An example's own sql_context is shown only when it differs from the
// schema in use, which keeps the prompt short for the common case.
func buildPrompt(question, schemaText string, examples exemplar.Set, decoding Decoding) Prompt {
	var b strings.Builder
	schemaText = strings.TrimSpace(schemaText)
	for _, ex := range examples.Examples {
		fmt.Fprintf(&b, "Question: %s\n", oneLine(ex.Question))
		if ex.SchemaContext != "" && ex.SchemaContext != schemaText {
			fmt.Fprintf(&b, "Sql Context: %s\n", ex.SchemaContext)
		}
		if ex.Reasoning != "" {
			fmt.Fprintf(&b, "Reasoning: %s\n", oneLine(ex.Reasoning))
		}
		fmt.Fprintf(&b, "SQL: ```%s```\n\n---\n\n", ex.SQL)
	}
	fmt.Fprintf(&b, "Sql Context:\n%s\n\nQuestion: %s\n", schemaText, oneLine(question))

	return Prompt{System: systemPrompt, User: b.String(), Decoding: decoding}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractReasoning returns the first "Reasoning:" line of raw, if any.
func extractReasoning(raw string) string {
	m := reasoningLine.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}
