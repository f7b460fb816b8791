// Package schema holds the table definitions that ground query generation.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

//go:embed employees.sql
var employeesDDL string

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Document is an immutable schema: the DDL text as given plus its parsed tables.
type Document struct {
	text   string
	tables []Table
}

// Text returns the DDL verbatim. It is what the generator sees.
func (d Document) Text() string {
	return d.text
}

// Tables returns a copy of the parsed tables in declaration order.
func (d Document) Tables() []Table {
	out := make([]Table, len(d.tables))
	for i, t := range d.tables {
		out[i] = Table{Name: t.Name, Columns: append([]Column(nil), t.Columns...)}
	}
	return out
}

// Table looks a table up by name, ignoring case.
func (d Document) Table(name string) (Table, bool) {
	for _, t := range d.tables {
		if strings.EqualFold(t.Name, name) {
			return Table{Name: t.Name, Columns: append([]Column(nil), t.Columns...)}, true
		}
	}
	return Table{}, false
}

// Default returns the built-in employees schema.
func Default() Document {
	return MustParse(employeesDDL)
}

// MustParse is Parse for compiled-in DDL.
func MustParse(ddl string) Document {
	doc, err := Parse(ddl)
	if err != nil {
		panic(err)
	}
	return doc
}

// Load reads and parses a DDL file.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read schema file: %w", err)
	}
	doc, err := Parse(string(raw))
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse accepts a script made only of CREATE TABLE statements.
func Parse(ddl string) (Document, error) {
	stmts, err := sqlguard.SplitStatements(ddl)
	if err != nil {
		return Document{}, fmt.Errorf("parse schema: %w", err)
	}
	if len(stmts) == 0 {
		return Document{}, errors.New("parse schema: no CREATE TABLE statements")
	}

	doc := Document{text: strings.TrimSpace(ddl)}
	seen := map[string]bool{}
	for i, stmt := range stmts {
		toks, err := sqlguard.Tokenize(stmt)
		if err != nil {
			return Document{}, fmt.Errorf("parse schema statement %d: %w", i+1, err)
		}
		table, err := parseCreateTable(toks)
		if err != nil {
			return Document{}, fmt.Errorf("parse schema statement %d: %w", i+1, err)
		}
		key := strings.ToLower(table.Name)
		if seen[key] {
			return Document{}, fmt.Errorf("parse schema: duplicate table %q", table.Name)
		}
		seen[key] = true
		doc.tables = append(doc.tables, table)
	}
	return doc, nil
}

var tableConstraints = map[string]bool{"PRIMARY": true, "FOREIGN": true, "UNIQUE": true, "CHECK": true, "CONSTRAINT": true}

var columnConstraints = map[string]bool{
	"PRIMARY": true, "NOT": true, "NULL": true, "DEFAULT": true, "UNIQUE": true, "REFERENCES": true,
	"CHECK": true, "CONSTRAINT": true, "COLLATE": true, "GENERATED": true, "AUTOINCREMENT": true,
}

func parseCreateTable(toks []sqlguard.Token) (Table, error) {
	i := 0
	next := func() sqlguard.Token {
		if i < len(toks) {
			return toks[i]
		}
		return sqlguard.Token{Type: sqlguard.TokenEOF}
	}
	expect := func(word string) error {
		if !next().Is(word) {
			return fmt.Errorf("expected %s at %s", word, next().Pos)
		}
		i++
		return nil
	}

	if err := expect("CREATE"); err != nil {
		return Table{}, errors.New("only CREATE TABLE statements are allowed")
	}
	if next().Is("TEMP") || next().Is("TEMPORARY") {
		i++
	}
	if err := expect("TABLE"); err != nil {
		return Table{}, errors.New("only CREATE TABLE statements are allowed")
	}
	if next().Is("IF") {
		i++
		if err := expect("NOT"); err != nil {
			return Table{}, err
		}
		if err := expect("EXISTS"); err != nil {
			return Table{}, err
		}
	}

	var table Table
	for {
		t := next()
		if t.Type != sqlguard.TokenWord && t.Type != sqlguard.TokenQuotedIdent {
			return Table{}, fmt.Errorf("expected table name at %s", t.Pos)
		}
		table.Name = t.Name()
		i++
		if next().Type != sqlguard.TokenDot {
			break
		}
		i++
	}
	if next().Type != sqlguard.TokenLParen {
		return Table{}, fmt.Errorf("table %s: expected column list", table.Name)
	}
	i++

	defs, closed := splitDefinitions(toks[i:])
	if !closed {
		return Table{}, fmt.Errorf("table %s: unterminated column list", table.Name)
	}
	for _, def := range defs {
		if len(def) == 0 {
			return Table{}, fmt.Errorf("table %s: empty column definition", table.Name)
		}
		if tableConstraints[def[0].Upper()] {
			continue
		}
		if def[0].Type != sqlguard.TokenWord && def[0].Type != sqlguard.TokenQuotedIdent {
			return Table{}, fmt.Errorf("table %s: expected column name at %s", table.Name, def[0].Pos)
		}
		table.Columns = append(table.Columns, Column{Name: def[0].Name(), Type: columnType(def[1:])})
	}
	if len(table.Columns) == 0 {
		return Table{}, fmt.Errorf("table %s has no columns", table.Name)
	}
	return table, nil
}

// splitDefinitions splits the body of a column list at top-level commas and
// stops at the closing parenthesis. closed is false when there is none.
func splitDefinitions(toks []sqlguard.Token) (defs [][]sqlguard.Token, closed bool) {
	var (
		out   [][]sqlguard.Token
		cur   []sqlguard.Token
		depth int
	)
	for _, t := range toks {
		switch t.Type {
		case sqlguard.TokenLParen:
			depth++
		case sqlguard.TokenRParen:
			if depth == 0 {
				return append(out, cur), true
			}
			depth--
		case sqlguard.TokenComma:
			if depth == 0 {
				out = append(out, cur)
				cur = nil
				continue
			}
		case sqlguard.TokenEOF:
			return out, false
		}
		cur = append(cur, t)
	}
	return out, false
}

func columnType(toks []sqlguard.Token) string {
	var b strings.Builder
	for i, t := range toks {
		if columnConstraints[t.Upper()] {
			break
		}
		if i > 0 && t.Type != sqlguard.TokenLParen && t.Type != sqlguard.TokenRParen && t.Type != sqlguard.TokenComma &&
			toks[i-1].Type != sqlguard.TokenLParen {
			b.WriteByte(' ')
		}
		b.WriteString(t.Literal)
	}
	return b.String()
}

// Registry hands out the schema to generation requests.
type Registry struct {
	doc Document
}

func NewRegistry(doc Document) *Registry {
	return &Registry{doc: doc}
}

// Context returns the schema used as generation context.
func (r *Registry) Context() Document {
	return r.doc
}
