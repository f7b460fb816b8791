package sqlguard

import "strings"

const indentSize = 2

// Format returns the canonical layout of every statement in sql, joined by
// ";\n\n". Keywords are upper-cased, clauses start their own line,
// multi-item select/group/order lists put one item per line, top-level
// AND/OR in WHERE and HAVING break the line, and subqueries are indented.
// Comments are dropped. Format(Format(x)) == Format(x).
func Format(sql string) (string, error) {
	toks, err := Tokenize(sql)
	if err != nil {
		return "", err
	}
	stmts := splitTokens(sql, toks)
	parts := make([]string, len(stmts))
	for i, st := range stmts {
		parts[i] = formatTokens(st.tokens)
	}
	return strings.Join(parts, ";\n\n"), nil
}

type printer struct {
	toks        []Token
	match       []int
	sub         []bool
	buf         []byte
	indent      int
	lineStart   int
	atLineStart bool
	prev        Token
	hasPrev     bool
	prevUnary   bool
}

func formatTokens(toks []Token) string {
	if n := len(toks); n > 0 && toks[n-1].Type == TokenEOF {
		toks = toks[:n-1]
	}
	p := &printer{
		toks:        toks,
		match:       make([]int, len(toks)),
		sub:         make([]bool, len(toks)),
		atLineStart: true,
	}
	var open []int
	for i, t := range toks {
		p.match[i] = -1
		switch t.Type {
		case TokenLParen:
			open = append(open, i)
		case TokenRParen:
			if n := len(open); n > 0 {
				p.match[open[n-1]] = i
				p.match[i] = open[n-1]
				open = open[:n-1]
			}
		}
	}
	for i, t := range toks {
		if t.Type == TokenLParen && p.match[i] > i && startsQuery(tokenAt(toks, i+1)) {
			p.sub[i] = true
		}
	}
	p.query(0, len(toks))
	return strings.TrimRight(string(p.buf), " \n")
}

var (
	listClauses  = wordSet("SELECT", "GROUP BY", "ORDER BY")
	breakClauses = wordSet("WHERE", "HAVING")
	joinWords    = wordSet("NATURAL", "INNER", "LEFT", "RIGHT", "FULL", "CROSS", "OUTER")
)

// query lays out toks[from:to] as a query at the current indentation.
func (p *printer) query(from, to int) {
	var (
		base    = p.indent
		clause  string
		list    bool
		between bool
		first   = true
	)
	for i := from; i < to; {
		if n, name := p.clauseAt(i, clause); n > 0 {
			if !first {
				p.newline(base)
			}
			first = false
			for k := range n {
				p.emit(p.toks[i+k])
			}
			i += n
			clause, list, between = name, false, false
			if name == "SELECT" {
				i = p.selectModifiers(i, to)
			}
			if listClauses[name] && p.countItems(i, to, clause) > 1 {
				list = true
				p.newline(base + 1)
			}
			continue
		}
		first = false

		t := p.toks[i]
		switch {
		case t.Type == TokenLParen && p.match[i] > i && p.match[i] < to:
			p.group(i)
			i = p.match[i] + 1
			continue
		case t.Type == TokenComma:
			p.emit(t)
			if list {
				p.newline(base + 1)
			} else if clause == "WITH" {
				p.newline(base)
			}
		case t.Is("BETWEEN"):
			between = true
			p.emit(t)
		case t.Is("AND") && between:
			between = false
			p.emit(t)
		case (t.Is("AND") || t.Is("OR")) && breakClauses[clause]:
			p.newline(base + 1)
			p.emit(t)
		default:
			p.emit(t)
		}
		i++
	}
}

// clauseAt reports how many tokens at i form a clause keyword and the clause name.
func (p *printer) clauseAt(i int, current string) (int, string) {
	t := p.toks[i]
	if t.Type != TokenWord {
		return 0, ""
	}
	next := func(k int) Token { return tokenAt(p.toks, i+k) }
	switch u := t.Upper(); u {
	case "SELECT", "WHERE", "HAVING", "LIMIT", "OFFSET", "WINDOW", "QUALIFY", "RETURNING", "FETCH", "INSERT", "UPDATE", "VALUES":
		return 1, u
	case "FROM":
		if i > 0 && p.toks[i-1].Is("DISTINCT") {
			return 0, ""
		}
		return 1, u
	case "DELETE":
		if next(1).Is("FROM") {
			return 2, "DELETE FROM"
		}
		return 1, u
	case "SET":
		if current == "UPDATE" {
			return 1, u
		}
	case "WITH":
		if next(1).Is("TIME") {
			return 0, ""
		}
		if next(1).Is("RECURSIVE") {
			return 2, u
		}
		return 1, u
	case "GROUP", "ORDER":
		if next(1).Is("BY") {
			return 2, u + " BY"
		}
	case "UNION", "INTERSECT", "EXCEPT":
		if next(1).Is("ALL") || next(1).Is("DISTINCT") {
			return 2, u
		}
		return 1, u
	case "JOIN":
		return 1, "JOIN"
	default:
		if !joinWords[u] || next(1).Type == TokenLParen {
			return 0, ""
		}
		n := 1
		for joinWords[next(n).Upper()] {
			n++
		}
		if next(n).Is("JOIN") {
			return n + 1, "JOIN"
		}
	}
	return 0, ""
}

func (p *printer) selectModifiers(i, to int) int {
	if i >= to {
		return i
	}
	switch t := p.toks[i]; {
	case t.Is("DISTINCT"):
		p.emit(t)
		i++
		if i+1 < to && p.toks[i].Is("ON") && p.toks[i+1].Type == TokenLParen && p.match[i+1] > 0 {
			p.emit(p.toks[i])
			p.group(i + 1)
			i = p.match[i+1] + 1
		}
	case t.Is("ALL"):
		p.emit(t)
		i++
	}
	if i+1 < to && p.toks[i].Is("TOP") && p.toks[i+1].Type == TokenNumber {
		p.emit(p.toks[i])
		p.emit(p.toks[i+1])
		i += 2
	}
	return i
}

// countItems counts the top-level comma-separated items of the clause starting at i.
func (p *printer) countItems(i, to int, clause string) int {
	items := 1
	for j := i; j < to; j++ {
		t := p.toks[j]
		if t.Type == TokenLParen && p.match[j] > j {
			j = p.match[j]
			continue
		}
		if n, _ := p.clauseAt(j, clause); n > 0 {
			break
		}
		if t.Type == TokenComma {
			items++
		}
	}
	return items
}

func (p *printer) group(open int) {
	closing := p.match[open]
	p.emit(p.toks[open])
	if p.sub[open] {
		outer := p.indent
		p.newline(outer + 1)
		p.query(open+1, closing)
		p.newline(outer)
	} else {
		for i := open + 1; i < closing; {
			if p.toks[i].Type == TokenLParen && p.match[i] > i && p.match[i] < closing {
				p.group(i)
				i = p.match[i] + 1
				continue
			}
			p.emit(p.toks[i])
			i++
		}
	}
	p.emit(p.toks[closing])
}

func (p *printer) newline(indent int) {
	if p.atLineStart {
		p.buf = p.buf[:p.lineStart]
	} else {
		p.buf = append(p.buf, '\n')
		p.lineStart = len(p.buf)
	}
	for range indent * indentSize {
		p.buf = append(p.buf, ' ')
	}
	p.indent = indent
	p.atLineStart = true
}

func (p *printer) emit(t Token) {
	lit := t.Literal
	if t.Type == TokenWord && keywords[strings.ToUpper(lit)] {
		lit = strings.ToUpper(lit)
	}
	if !p.atLineStart && p.hasPrev && p.spaceBetween(p.prev, t) {
		p.buf = append(p.buf, ' ')
	}
	p.buf = append(p.buf, lit...)
	isSign := t.IsOp("-") || t.IsOp("+") || t.IsOp("~")
	p.prevUnary = isSign && unaryAfter(p.prev, p.hasPrev)
	p.prev, p.hasPrev = t, true
	p.atLineStart = false
}

// unaryAfter reports whether a sign following prev is a unary operator.
func unaryAfter(prev Token, hasPrev bool) bool {
	if !hasPrev {
		return true
	}
	switch prev.Type {
	case TokenOperator, TokenLParen, TokenComma:
		return true
	case TokenWord:
		u := prev.Upper()
		return reserved[u] && u != "END" && u != "NULL"
	}
	return false
}

func (p *printer) spaceBetween(prev, next Token) bool {
	space := true
	switch {
	case next.Type == TokenComma, next.Type == TokenRParen, next.Type == TokenDot, next.IsOp("::"):
		space = false
	case prev.Type == TokenLParen, prev.Type == TokenDot, prev.IsOp("::"):
		space = false
	case p.prevUnary:
		space = false
	case next.Type == TokenLParen:
		space = !callsFunction(prev)
	}
	if !space && merges(prev.Literal, next.Literal) {
		space = true
	}
	return space
}

// callsFunction reports whether a '(' right after t is a call's argument list.
func callsFunction(t Token) bool {
	switch t.Type {
	case TokenQuotedIdent:
		return true
	case TokenWord:
		u := t.Upper()
		if u == "OVER" || u == "FILTER" {
			return false
		}
		if reserved[u] {
			return callable[u] || u == "CAST"
		}
		return true
	}
	return false
}

// merges reports whether writing a and b without a space would lex differently.
func merges(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	last, first := a[len(a)-1], b[0]
	return last == '-' && first == '-' || last == '/' && first == '*'
}
