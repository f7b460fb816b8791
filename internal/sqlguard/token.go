package sqlguard

import (
	"fmt"
	"strings"
)

// TokenType classifies a lexed SQL token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWord
	TokenQuotedIdent
	TokenNumber
	TokenString
	TokenParam
	TokenOperator
	TokenComma
	TokenDot
	TokenLParen
	TokenRParen
	TokenSemicolon
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenWord:
		return "word"
	case TokenQuotedIdent:
		return "quoted identifier"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenParam:
		return "parameter"
	case TokenOperator:
		return "operator"
	case TokenComma:
		return "','"
	case TokenDot:
		return "'.'"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenSemicolon:
		return "';'"
	default:
		return fmt.Sprintf("token(%d)", int(t))
	}
}

// Position is a 1-based line/column location plus the byte offset into the input.
type Position struct {
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// Token is one lexeme. Literal is the exact source text, quotes included.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	End     int
}

// Upper returns the upper-cased literal of a word token and "" otherwise.
func (t Token) Upper() string {
	if t.Type != TokenWord {
		return ""
	}
	return strings.ToUpper(t.Literal)
}

// Is reports whether t is the unquoted word w, ignoring case.
func (t Token) Is(w string) bool {
	return t.Type == TokenWord && strings.EqualFold(t.Literal, w)
}

// IsOp reports whether t is the operator op.
func (t Token) IsOp(op string) bool {
	return t.Type == TokenOperator && t.Literal == op
}

// Name returns the identifier the token denotes, with quoting removed.
func (t Token) Name() string {
	if t.Type != TokenQuotedIdent || len(t.Literal) < 2 {
		return t.Literal
	}
	inner := t.Literal[1 : len(t.Literal)-1]
	switch t.Literal[0] {
	case '"':
		return strings.ReplaceAll(inner, `""`, `"`)
	case '`':
		return strings.ReplaceAll(inner, "``", "`")
	default:
		return inner
	}
}

func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenWord:
		return strings.ToUpper(t.Literal)
	default:
		return fmt.Sprintf("%q", t.Literal)
	}
}

// reserved words cannot be used as bare column names or implicit aliases.
var reserved = wordSet(
	"ALL", "AND", "AS", "ASC", "BETWEEN", "BY", "CASE", "CAST", "COLLATE", "CROSS",
	"DESC", "DISTINCT", "ELSE", "END", "ESCAPE", "EXCEPT", "EXISTS", "FETCH", "FROM",
	"FULL", "GLOB", "GROUP", "HAVING", "ILIKE", "IN", "INNER", "INTERSECT", "INTO",
	"IS", "ISNULL", "JOIN", "LEFT", "LIKE", "LIMIT", "NATURAL", "NOT", "NOTNULL", "NULL",
	"OFFSET", "ON", "OR", "ORDER", "OUTER", "QUALIFY", "REGEXP", "RETURNING", "RIGHT",
	"SELECT", "SET", "THEN", "UNION", "USING", "VALUES", "WHEN", "WHERE", "WINDOW", "WITH",
)

// keywords are upper-cased by the formatter.
var keywords = merge(reserved, wordSet(
	"ALTER", "ANALYZE", "ATTACH", "BEGIN", "COMMIT", "CREATE", "CURRENT_DATE",
	"CURRENT_TIME", "CURRENT_TIMESTAMP", "DELETE", "DETACH", "DROP", "EXPLAIN",
	"FALSE", "FILTER", "FOLLOWING", "INSERT", "INTERVAL", "MATERIALIZED", "NULLS",
	"OVER", "PARTITION", "PRAGMA", "PRECEDING", "RECURSIVE", "REPLACE", "ROLLBACK",
	"TABLE", "TRUE", "TRUNCATE", "UNBOUNDED", "UPDATE", "VACUUM",
))

func wordSet(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}

func merge(sets ...map[string]bool) map[string]bool {
	out := map[string]bool{}
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}
