package sqlguard

import (
	"fmt"
	"strings"
)

// Kind is the top-level command category of a statement.
type Kind string

const (
	KindSelect Kind = "SELECT"
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
	KindDrop   Kind = "DROP"
	KindCreate Kind = "CREATE"
	KindAlter  Kind = "ALTER"
	KindOther  Kind = "OTHER"
)

var allKinds = []Kind{KindSelect, KindInsert, KindUpdate, KindDelete, KindDrop, KindCreate, KindAlter, KindOther}

// ParseKind maps a statement kind name such as "select" to its Kind.
func ParseKind(name string) (Kind, error) {
	upper := Kind(strings.ToUpper(strings.TrimSpace(name)))
	for _, k := range allKinds {
		if k == upper {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown statement kind %q", name)
}

// leadingKinds maps a statement's first keyword to its kind.
var leadingKinds = map[string]Kind{
	"SELECT":   KindSelect,
	"VALUES":   KindSelect,
	"INSERT":   KindInsert,
	"REPLACE":  KindInsert,
	"UPDATE":   KindUpdate,
	"DELETE":   KindDelete,
	"DROP":     KindDrop,
	"CREATE":   KindCreate,
	"ALTER":    KindAlter,
	"TRUNCATE": KindOther,
	"PRAGMA":   KindOther,
	"ATTACH":   KindOther,
	"DETACH":   KindOther,
	"VACUUM":   KindOther,
	"ANALYZE":  KindOther,
	"EXPLAIN":  KindOther,
	"MERGE":    KindOther,
	"GRANT":    KindOther,
	"REVOKE":   KindOther,
	"BEGIN":    KindOther,
	"COMMIT":   KindOther,
	"ROLLBACK": KindOther,
}

// classify returns the statement kind. ok is false when the tokens do not
// start like any known statement. A WITH statement takes the kind of its
// main statement unless one of its CTE bodies is not a SELECT.
func classify(toks []Token) (kind Kind, ok bool) {
	i := 0
	for i < len(toks) && toks[i].Type == TokenLParen {
		i++
	}
	if i >= len(toks) {
		return KindOther, false
	}
	first := toks[i].Upper()
	if first != "WITH" {
		kind, ok = leadingKinds[first]
		if !ok {
			return KindOther, false
		}
		return kind, true
	}

	i++
	if tokenAt(toks, i).Is("RECURSIVE") {
		i++
	}
	for {
		if !isIdentifier(tokenAt(toks, i)) {
			return KindOther, false
		}
		i++
		if tokenAt(toks, i).Type == TokenLParen {
			if i = matchParen(toks, i); i < 0 {
				return KindOther, false
			}
			i++
		}
		if !tokenAt(toks, i).Is("AS") {
			return KindOther, false
		}
		i++
		if tokenAt(toks, i).Is("NOT") {
			i++
		}
		if tokenAt(toks, i).Is("MATERIALIZED") {
			i++
		}
		if tokenAt(toks, i).Type != TokenLParen {
			return KindOther, false
		}
		end := matchParen(toks, i)
		if end < 0 {
			return KindOther, false
		}
		if bodyKind, bodyOK := classify(toks[i+1 : end]); bodyOK && bodyKind != KindSelect {
			return bodyKind, true
		}
		i = end + 1
		if tokenAt(toks, i).Type != TokenComma {
			break
		}
		i++
	}
	if i >= len(toks) {
		return KindOther, false
	}
	return classify(toks[i:])
}

// recognized reports whether a statement of the given kind has the shape of
// real SQL rather than prose that happens to start with a keyword.
func recognized(kind Kind, toks []Token) bool {
	if kind == KindSelect {
		return parseSelect(toks) == nil
	}
	words := make([]string, 0, 4)
	for _, t := range toks {
		if t.Type == TokenEOF || len(words) == 4 {
			break
		}
		words = append(words, t.Upper())
	}
	at := func(i int) string {
		if i < len(words) {
			return words[i]
		}
		return ""
	}
	objects := wordSet("TABLE", "VIEW", "INDEX", "TRIGGER", "SCHEMA", "DATABASE", "SEQUENCE", "FUNCTION", "PROCEDURE", "TYPE")

	switch at(0) {
	case "WITH":
		return true
	case "INSERT", "REPLACE":
		return at(1) == "INTO" || at(1) == "OR" && at(3) == "INTO"
	case "UPDATE":
		return containsWord(toks, "SET")
	case "DELETE":
		return at(1) == "FROM"
	case "DROP", "ALTER":
		return objects[at(1)]
	case "CREATE":
		for i := 1; i < len(words); i++ {
			if objects[words[i]] {
				return true
			}
		}
		return false
	case "TRUNCATE":
		return at(1) == "TABLE" || len(toks) == 3
	case "PRAGMA":
		return isIdentifier(tokenAt(toks, 1))
	case "VACUUM", "ANALYZE", "DETACH", "COMMIT", "ROLLBACK", "BEGIN":
		return isQualifiedName(toks[1:])
	case "ATTACH":
		return containsWord(toks, "AS")
	case "EXPLAIN":
		next := at(1)
		if next == "QUERY" || next == "ANALYZE" {
			return true
		}
		_, ok := leadingKinds[next]
		return ok || next == "WITH"
	case "MERGE":
		return at(1) == "INTO"
	case "GRANT", "REVOKE":
		return containsWord(toks, "ON") || containsWord(toks, "TO")
	}
	return false
}

func containsWord(toks []Token, w string) bool {
	for _, t := range toks {
		if t.Is(w) {
			return true
		}
	}
	return false
}

// isQualifiedName reports whether toks is empty or a dotted name, ignoring a trailing EOF.
func isQualifiedName(toks []Token) bool {
	if n := len(toks); n > 0 && toks[n-1].Type == TokenEOF {
		toks = toks[:n-1]
	}
	for i, t := range toks {
		if i%2 == 1 {
			if t.Type != TokenDot {
				return false
			}
			continue
		}
		if !isIdentifier(t) {
			return false
		}
	}
	return len(toks)%2 == 1 || len(toks) == 0
}

// tokenAt returns toks[i], or an EOF token when i is out of range.
func tokenAt(toks []Token, i int) Token {
	if i < 0 || i >= len(toks) {
		return Token{Type: TokenEOF}
	}
	return toks[i]
}

func isIdentifier(t Token) bool {
	return t.Type == TokenQuotedIdent || t.Type == TokenWord && !reserved[t.Upper()]
}
