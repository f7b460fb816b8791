// Package sqlguard isolates, validates and formats the SQL statement inside
// free-text model output. It is the only gate between generated text and a
// database.
package sqlguard

import (
	"fmt"
	"strings"
)

// Query is a statement that passed Sanitize.
type Query struct {
	// SQL is the canonical formatting, for display.
	SQL string
	// Statement is the statement as extracted, without terminator. It is what gets executed.
	Statement string
	Kind      Kind
}

// IsSelect reports whether the query is a read-only SELECT.
func (q Query) IsSelect() bool {
	return q.Kind == KindSelect
}

// Verifier re-checks an accepted statement with a target database's own
// grammar and reports the kind that grammar sees.
type Verifier interface {
	Verify(statement string) (Kind, error)
}

// Guard applies the statement allow-list.
type Guard struct {
	allowed  map[Kind]bool
	verifier Verifier
}

type Option func(*Guard)

// WithAllowed replaces the allow-list. SELECT stays allowed only if listed.
func WithAllowed(kinds ...Kind) Option {
	return func(g *Guard) {
		g.allowed = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			g.allowed[k] = true
		}
	}
}

// WithVerifier adds a dialect check that runs after the built-in grammar.
func WithVerifier(v Verifier) Option {
	return func(g *Guard) {
		g.verifier = v
	}
}

// New returns a Guard that allows only SELECT unless configured otherwise.
func New(opts ...Option) *Guard {
	g := &Guard{allowed: map[Kind]bool{KindSelect: true}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allowed returns the allowed kinds in a stable order.
func (g *Guard) Allowed() []Kind {
	out := make([]Kind, 0, len(g.allowed))
	for _, k := range allKinds {
		if g.allowed[k] {
			out = append(out, k)
		}
	}
	return out
}

// Sanitize extracts exactly one statement from raw model output, checks it
// against the allow-list and, for SELECT, the query grammar.
func (g *Guard) Sanitize(raw string) (Query, error) {
	stmts, err := extract(raw)
	if err != nil {
		return Query{}, err
	}
	switch {
	case len(stmts) == 0:
		return Query{}, &Error{Reason: ReasonUnparseable, Message: "no SQL statement found in generated output"}
	case len(stmts) > 1:
		return Query{}, &Error{
			Reason:  ReasonMultiStatement,
			Message: fmt.Sprintf("generated output contains %d SQL statements; only one is allowed", len(stmts)),
			Pos:     stmts[1].tokens[0].Pos,
		}
	}

	st := stmts[0]
	if !g.allowed[st.kind] {
		return Query{}, &Error{
			Reason:  ReasonDisallowed,
			Message: fmt.Sprintf("%s statements are not allowed; permitted: %s", st.kind, joinKinds(g.Allowed())),
		}
	}
	if st.kind == KindSelect {
		if err := parseSelect(st.tokens); err != nil {
			return Query{}, unparseable(err)
		}
	} else if !recognized(st.kind, st.tokens) {
		return Query{}, &Error{Reason: ReasonUnparseable, Message: fmt.Sprintf("generated %s statement is malformed", st.kind)}
	}
	if g.verifier != nil {
		kind, err := g.verifier.Verify(st.text)
		if err != nil {
			return Query{}, &Error{Reason: ReasonUnparseable, Message: "generated SQL does not parse for the target database: " + err.Error()}
		}
		if kind != st.kind && !g.allowed[kind] {
			return Query{}, &Error{
				Reason:  ReasonDisallowed,
				Message: fmt.Sprintf("%s statements are not allowed; permitted: %s", kind, joinKinds(g.Allowed())),
			}
		}
	}

	return Query{SQL: formatTokens(st.tokens), Statement: st.text, Kind: st.kind}, nil
}

func joinKinds(kinds []Kind) string {
	if len(kinds) == 0 {
		return "none"
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
