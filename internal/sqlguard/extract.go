package sqlguard

import (
	"regexp"
	"strings"
)

// Generated output is read with a small grammar:
//
//	output := prose* (fenced+ | bare+) prose*
//	fenced := "```" [lang-tag] NEWLINE body ("```" | EOF)
//	bare   := a line whose first word, after an optional "<label>:" prefix,
//	          is a statement keyword, running to the end of its paragraph
//
// When any fence is present only fenced bodies are candidates. A bare span
// keeps its longest leading run of lines that parses; the rest is prose.

const fence = "```"

var fenceTags = wordSet("SQL", "SQLITE", "POSTGRES", "POSTGRESQL", "PGSQL", "MYSQL", "DUCKDB", "TSQL", "PLSQL")

// labelPrefix matches "Answer:", "SQL Query:", "Here is the query:" and similar.
var labelPrefix = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 _-]{0,39}):(\s+|$)`)

// proseLabels introduce lines that are never SQL, even when the next word is a keyword.
var proseLabels = wordSet("REASONING", "RATIONALE", "THOUGHT", "THOUGHTS", "EXPLANATION", "QUESTION", "NOTE", "NOTES")

// fencedBlocks returns the bodies of all fenced blocks in raw, with any
// language tag removed. An unterminated fence runs to the end of the text.
func fencedBlocks(raw string) []string {
	var out []string
	rest := raw
	for {
		i := strings.Index(rest, fence)
		if i < 0 {
			return out
		}
		rest = rest[i+len(fence):]
		body := rest
		if j := strings.Index(rest, fence); j >= 0 {
			body = rest[:j]
			rest = rest[j+len(fence):]
		} else {
			rest = ""
		}
		body = stripFenceTag(body)
		if strings.TrimSpace(body) != "" {
			out = append(out, body)
		}
	}
}

func stripFenceTag(body string) string {
	firstLine, remainder, hasNewline := strings.Cut(body, "\n")
	tag := strings.TrimSpace(firstLine)
	if hasNewline && (tag == "" || isFenceTag(tag)) {
		return remainder
	}
	word, after, ok := strings.Cut(strings.TrimLeft(body, " \t"), " ")
	if ok && fenceTags[strings.ToUpper(word)] {
		return after
	}
	return body
}

func isFenceTag(s string) bool {
	if fenceTags[strings.ToUpper(s)] {
		return true
	}
	if _, isStatement := leadingKinds[strings.ToUpper(s)]; isStatement || strings.EqualFold(s, "WITH") {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '+' || r == '_') {
			return false
		}
	}
	return true
}

// bareCandidates returns the unfenced spans that start like a statement.
func bareCandidates(raw string) []string {
	var out []string
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		rest, ok := statementStart(lines[i])
		if !ok {
			continue
		}
		span := []string{rest}
		for i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" && !labelPrefix.MatchString(lines[i+1]) {
			i++
			span = append(span, lines[i])
		}
		out = append(out, strings.Join(span, "\n"))
	}
	return out
}

// statementStart strips an optional label and reports whether the line then
// begins with a statement keyword.
func statementStart(line string) (string, bool) {
	rest := line
	if m := labelPrefix.FindStringSubmatch(line); m != nil {
		if proseLabels[strings.ToUpper(strings.TrimSpace(m[1]))] {
			return "", false
		}
		rest = line[len(m[0]):]
	}
	rest = strings.TrimLeft(rest, " \t")
	word := rest
	for i, r := range rest {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			word = rest[:i]
			break
		}
	}
	upper := strings.ToUpper(word)
	if _, ok := leadingKinds[upper]; ok || upper == "WITH" {
		return rest, true
	}
	return "", false
}

// extract returns every statement found in raw. Fenced blocks must contain
// only SQL; bare candidates that do not look like SQL are skipped as prose.
func extract(raw string) ([]statement, error) {
	if blocks := fencedBlocks(raw); len(blocks) > 0 {
		var out []statement
		for _, block := range blocks {
			toks, err := Tokenize(block)
			if err != nil {
				return nil, unparseable(err)
			}
			for _, st := range splitTokens(block, toks) {
				kind, ok := classify(st.tokens)
				if !ok {
					first := st.tokens[0]
					return nil, &Error{
						Reason:  ReasonUnparseable,
						Message: "generated SQL does not start with a statement keyword: found " + first.describe(),
						Pos:     first.Pos,
					}
				}
				st.kind = kind
				out = append(out, st)
			}
		}
		return out, nil
	}

	var out []statement
	for _, candidate := range bareCandidates(raw) {
		out = append(out, bareStatements(candidate)...)
	}
	return out, nil
}

// bareStatements returns the statements in the longest leading run of
// candidate lines that parses. The lines after that run are prose. Runs in
// which every segment after a ';' is either SQL or plainly not SQL win over
// runs that need a malformed statement read as prose.
func bareStatements(candidate string) []statement {
	lines := strings.Split(candidate, "\n")
	for _, strict := range []bool{true, false} {
		for n := len(lines); n > 0; n-- {
			if n < len(lines) && continuesStatement(lines[n]) {
				continue
			}
			if stmts, ok := parseBare(strings.Join(lines[:n], "\n"), strict); ok {
				return stmts
			}
		}
	}
	return nil
}

// parseBare accepts text whose first segment is a well-formed statement.
// A later segment counts as a statement only when it is well-formed too and
// is otherwise prose. In strict mode a later segment that starts with a
// statement keyword but does not parse rejects the text.
func parseBare(text string, strict bool) ([]statement, bool) {
	toks, err := Tokenize(text)
	if err != nil {
		return nil, false
	}
	var out []statement
	for i, st := range splitTokens(text, toks) {
		kind, ok := classify(st.tokens)
		if !ok || !recognized(kind, st.tokens) {
			if i == 0 || ok && strict {
				return nil, false
			}
			continue
		}
		st.kind = kind
		out = append(out, st)
	}
	return out, len(out) > 0
}

// clauseWords open a line that belongs to the statement above it.
var clauseWords = wordSet(
	"FROM", "WHERE", "AND", "OR", "GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET", "JOIN",
	"INNER", "CROSS", "FULL", "ON", "UNION", "EXCEPT", "INTERSECT", "WINDOW", "QUALIFY", "FETCH",
)

// continuesStatement reports whether line reads as more SQL rather than
// prose, so that dropping it would change the statement above.
func continuesStatement(line string) bool {
	rest := strings.TrimLeft(line, " \t")
	if rest == "" {
		return false
	}
	if strings.ContainsRune(",()=<>+*/|.'\"", rune(rest[0])) || isDigit(rest[0]) {
		return true
	}
	if _, ok := statementStart(line); ok {
		return true
	}
	word := rest
	if i := strings.IndexFunc(rest, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_')
	}); i >= 0 {
		word = rest[:i]
	}
	return clauseWords[strings.ToUpper(word)]
}
