package sqlguard

import "fmt"

// parser is a recursive-descent recogniser for SELECT statements. It does not
// build a tree; the formatter works from the token stream. The first error
// sticks and turns every later lookahead into EOF, so loops unwind on their own.
type parser struct {
	toks []Token
	pos  int
	err  *SyntaxError
}

// parseSelect checks that toks (ending with TokenEOF) form one query.
func parseSelect(toks []Token) error {
	p := &parser{toks: toks}
	p.queryBody()
	if p.err == nil && p.cur().Type != TokenEOF {
		p.fail("end of statement")
	}
	if p.err != nil {
		return p.err
	}
	return nil
}

func (p *parser) cur() Token {
	return p.peek(0)
}

func (p *parser) peek(n int) Token {
	if p.err != nil {
		return Token{Type: TokenEOF}
	}
	i := p.pos + n
	if i >= len(p.toks) {
		if len(p.toks) == 0 {
			return Token{Type: TokenEOF}
		}
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *parser) advance() {
	if p.err == nil && p.pos < len(p.toks) {
		p.pos++
	}
}

func (p *parser) accept(words ...string) bool {
	for _, w := range words {
		if p.cur().Is(w) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *parser) acceptType(tt TokenType) bool {
	if p.cur().Type == tt {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectWord(w string) {
	if !p.accept(w) {
		p.fail(w)
	}
}

func (p *parser) expect(tt TokenType) {
	if !p.acceptType(tt) {
		p.fail(tt.String())
	}
}

func (p *parser) fail(expected string) {
	if p.err != nil {
		return
	}
	t := p.cur()
	p.err = &SyntaxError{Pos: t.Pos, Message: fmt.Sprintf("unexpected %s, expected %s", t.describe(), expected)}
}

func startsQuery(t Token) bool {
	return t.Is("SELECT") || t.Is("WITH") || t.Is("VALUES")
}

func (p *parser) queryBody() {
	if p.accept("WITH") {
		p.accept("RECURSIVE")
		for {
			p.cte()
			if !p.acceptType(TokenComma) {
				break
			}
		}
	}
	p.setExpr()
	if p.cur().Is("ORDER") {
		p.orderBy()
	}
	p.limit()
}

func (p *parser) cte() {
	p.name()
	if p.cur().Type == TokenLParen {
		p.identList()
	}
	p.expectWord("AS")
	p.accept("NOT")
	p.accept("MATERIALIZED")
	p.expect(TokenLParen)
	p.queryBody()
	p.expect(TokenRParen)
}

func (p *parser) setExpr() {
	p.queryTerm()
	for p.accept("UNION", "INTERSECT", "EXCEPT") {
		p.accept("ALL", "DISTINCT")
		p.queryTerm()
	}
}

func (p *parser) queryTerm() {
	switch t := p.cur(); {
	case t.Type == TokenLParen:
		p.advance()
		p.queryBody()
		p.expect(TokenRParen)
	case t.Is("VALUES"):
		p.advance()
		for {
			p.expect(TokenLParen)
			p.exprList()
			p.expect(TokenRParen)
			if !p.acceptType(TokenComma) {
				break
			}
		}
	case t.Is("SELECT"):
		p.selectCore()
	default:
		p.fail("SELECT")
	}
}

func (p *parser) selectCore() {
	p.expectWord("SELECT")
	if p.accept("DISTINCT") {
		if p.accept("ON") {
			p.expect(TokenLParen)
			p.exprList()
			p.expect(TokenRParen)
		}
	} else {
		p.accept("ALL")
	}
	if p.cur().Is("TOP") && (p.peek(1).Type == TokenNumber || p.peek(1).Type == TokenLParen) {
		p.advance()
		p.primary()
	}
	for {
		p.selectItem()
		if !p.acceptType(TokenComma) {
			break
		}
	}
	if p.accept("FROM") {
		p.fromClause()
	}
	if p.accept("WHERE") {
		p.expr()
	}
	if p.accept("GROUP") {
		p.expectWord("BY")
		p.exprList()
	}
	if p.accept("HAVING") {
		p.expr()
	}
	if p.accept("WINDOW") {
		for {
			p.name()
			p.expectWord("AS")
			p.expect(TokenLParen)
			p.windowSpec()
			p.expect(TokenRParen)
			if !p.acceptType(TokenComma) {
				break
			}
		}
	}
	if p.accept("QUALIFY") {
		p.expr()
	}
}

func (p *parser) selectItem() {
	if p.cur().IsOp("*") {
		p.advance()
		return
	}
	if isIdentifier(p.cur()) && p.peek(1).Type == TokenDot && p.peek(2).IsOp("*") {
		p.advance()
		p.advance()
		p.advance()
		return
	}
	p.expr()
	p.alias()
}

func (p *parser) alias() {
	if p.accept("AS") {
		if t := p.cur(); isIdentifier(t) || t.Type == TokenString {
			p.advance()
			return
		}
		p.fail("alias")
		return
	}
	if isIdentifier(p.cur()) {
		p.advance()
	}
}

func (p *parser) fromClause() {
	p.tableRef()
	for {
		switch t := p.cur(); {
		case t.Type == TokenComma:
			p.advance()
			p.tableRef()
		case t.Is("JOIN"), t.Is("NATURAL"), t.Is("INNER"), t.Is("LEFT"), t.Is("RIGHT"), t.Is("FULL"), t.Is("CROSS"):
			p.join()
		default:
			return
		}
	}
}

func (p *parser) join() {
	p.accept("NATURAL")
	switch {
	case p.accept("LEFT", "RIGHT", "FULL"):
		p.accept("OUTER")
	default:
		p.accept("INNER", "CROSS")
	}
	p.expectWord("JOIN")
	p.tableRef()
	switch {
	case p.accept("ON"):
		p.expr()
	case p.accept("USING"):
		p.identList()
	}
}

func (p *parser) tableRef() {
	if p.cur().Type == TokenLParen {
		p.advance()
		if startsQuery(p.cur()) {
			p.queryBody()
		} else {
			p.fromClause()
		}
		p.expect(TokenRParen)
	} else {
		p.qualifiedName()
		if p.cur().Type == TokenLParen {
			p.advance()
			if p.cur().Type != TokenRParen {
				p.exprList()
			}
			p.expect(TokenRParen)
		}
	}
	if p.accept("AS") {
		p.name()
	} else if isIdentifier(p.cur()) {
		p.advance()
	} else {
		return
	}
	if p.cur().Type == TokenLParen {
		p.identList()
	}
}

func (p *parser) name() {
	if !isIdentifier(p.cur()) {
		p.fail("identifier")
		return
	}
	p.advance()
}

func (p *parser) qualifiedName() {
	p.name()
	for p.acceptType(TokenDot) {
		p.name()
	}
}

func (p *parser) identList() {
	p.expect(TokenLParen)
	for {
		p.name()
		if !p.acceptType(TokenComma) {
			break
		}
	}
	p.expect(TokenRParen)
}

func (p *parser) exprList() {
	for {
		p.expr()
		if !p.acceptType(TokenComma) {
			return
		}
	}
}

func (p *parser) orderBy() {
	p.expectWord("ORDER")
	p.expectWord("BY")
	for {
		p.expr()
		p.accept("ASC", "DESC")
		if p.accept("NULLS") && !p.accept("FIRST", "LAST") {
			p.fail("FIRST or LAST")
		}
		if !p.acceptType(TokenComma) {
			return
		}
	}
}

func (p *parser) limit() {
	if p.accept("LIMIT") {
		p.expr()
		if p.accept("OFFSET") || p.acceptType(TokenComma) {
			p.expr()
		}
	}
	if p.accept("OFFSET") {
		p.expr()
		p.accept("ROW", "ROWS")
	}
	if p.accept("FETCH") {
		p.accept("FIRST", "NEXT")
		if !p.cur().Is("ROW") && !p.cur().Is("ROWS") {
			p.expr()
		}
		p.accept("ROW", "ROWS")
		p.expectWord("ONLY")
	}
}

func (p *parser) expr() {
	p.and()
	for p.accept("OR") {
		p.and()
	}
}

func (p *parser) and() {
	p.not()
	for p.accept("AND") {
		p.not()
	}
}

func (p *parser) not() {
	if p.accept("NOT") {
		p.not()
		return
	}
	p.comparison()
}

var comparisonOps = map[string]bool{"=": true, "==": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true}

var negatable = wordSet("IN", "BETWEEN", "LIKE", "ILIKE", "GLOB", "REGEXP", "MATCH")

func (p *parser) comparison() {
	p.additive()
	for {
		t := p.cur()
		if t.Type == TokenOperator && comparisonOps[t.Literal] {
			p.advance()
			if (p.cur().Is("ANY") || p.cur().Is("ALL") || p.cur().Is("SOME")) && p.peek(1).Type == TokenLParen {
				p.advance()
				p.parenthesized()
				continue
			}
			p.additive()
			continue
		}
		if t.Is("NOT") && negatable[p.peek(1).Upper()] {
			p.advance()
			t = p.cur()
		}
		switch t.Upper() {
		case "IS":
			p.advance()
			p.accept("NOT")
			switch {
			case p.accept("NULL", "TRUE", "FALSE", "UNKNOWN"):
			case p.accept("DISTINCT"):
				p.expectWord("FROM")
				p.additive()
			default:
				p.additive()
			}
		case "ISNULL", "NOTNULL":
			p.advance()
		case "IN":
			p.advance()
			if p.cur().Type != TokenLParen {
				p.fail("'('")
				return
			}
			p.parenthesized()
		case "BETWEEN":
			p.advance()
			p.accept("SYMMETRIC")
			p.additive()
			p.expectWord("AND")
			p.additive()
		case "LIKE", "ILIKE", "GLOB", "REGEXP", "MATCH":
			p.advance()
			p.additive()
			if p.accept("ESCAPE") {
				p.additive()
			}
		default:
			return
		}
	}
}

// parenthesized parses "(" subquery ")" or "(" expr, ... ")", allowing "()".
func (p *parser) parenthesized() {
	p.expect(TokenLParen)
	switch {
	case startsQuery(p.cur()):
		p.queryBody()
	case p.cur().Type != TokenRParen:
		p.exprList()
	}
	p.expect(TokenRParen)
}

var additiveOps = map[string]bool{"+": true, "-": true, "||": true, "&": true, "|": true, "<<": true, ">>": true, "^": true}

func (p *parser) additive() {
	p.multiplicative()
	for t := p.cur(); t.Type == TokenOperator && additiveOps[t.Literal]; t = p.cur() {
		p.advance()
		p.multiplicative()
	}
}

func (p *parser) multiplicative() {
	p.unary()
	for t := p.cur(); t.IsOp("*") || t.IsOp("/") || t.IsOp("%"); t = p.cur() {
		p.advance()
		p.unary()
	}
}

func (p *parser) unary() {
	if t := p.cur(); t.IsOp("-") || t.IsOp("+") || t.IsOp("~") {
		p.advance()
		p.unary()
		return
	}
	p.primary()
	for {
		switch {
		case p.cur().IsOp("::"):
			p.advance()
			p.typeName()
		case p.accept("COLLATE"):
			p.name()
		default:
			return
		}
	}
}

// callable lists reserved words that are also function names.
var callable = wordSet("LEFT", "RIGHT", "REPLACE", "IF")

var typedLiterals = wordSet("DATE", "TIME", "TIMESTAMP", "INTERVAL")

func (p *parser) primary() {
	t := p.cur()
	switch t.Type {
	case TokenNumber, TokenString, TokenParam:
		p.advance()
		return
	case TokenLParen:
		p.advance()
		if startsQuery(p.cur()) {
			p.queryBody()
		} else {
			p.exprList()
		}
		p.expect(TokenRParen)
		return
	case TokenQuotedIdent:
		p.columnOrCall()
		return
	case TokenWord:
	default:
		p.fail("expression")
		return
	}

	switch u := t.Upper(); {
	case u == "NULL" || u == "TRUE" || u == "FALSE" || u == "CURRENT_DATE" || u == "CURRENT_TIME" || u == "CURRENT_TIMESTAMP":
		p.advance()
	case u == "EXISTS":
		p.advance()
		p.expect(TokenLParen)
		p.queryBody()
		p.expect(TokenRParen)
	case u == "CASE":
		p.caseExpr()
	case (u == "CAST" || u == "TRY_CAST") && p.peek(1).Type == TokenLParen:
		p.advance()
		p.advance()
		p.expr()
		p.expectWord("AS")
		p.typeName()
		p.expect(TokenRParen)
	case u == "EXTRACT" && p.peek(1).Type == TokenLParen:
		p.advance()
		p.advance()
		if p.cur().Type != TokenWord {
			p.fail("date part")
			return
		}
		p.advance()
		p.expectWord("FROM")
		p.expr()
		p.expect(TokenRParen)
	case typedLiterals[u] && p.peek(1).Type == TokenString:
		p.advance()
		p.advance()
		if u == "INTERVAL" && isIdentifier(p.cur()) && intervalUnits[p.cur().Upper()] {
			p.advance()
		}
	case callable[u] && p.peek(1).Type == TokenLParen:
		p.call()
	case isIdentifier(t):
		p.columnOrCall()
	default:
		p.fail("expression")
	}
}

var intervalUnits = wordSet("YEAR", "YEARS", "MONTH", "MONTHS", "DAY", "DAYS", "HOUR", "HOURS", "MINUTE", "MINUTES", "SECOND", "SECONDS")

func (p *parser) columnOrCall() {
	if p.peek(1).Type == TokenLParen {
		p.call()
		return
	}
	p.advance()
	for p.acceptType(TokenDot) {
		if p.cur().IsOp("*") {
			p.advance()
			return
		}
		p.name()
	}
}

func (p *parser) call() {
	p.advance()
	p.expect(TokenLParen)
	if p.cur().Type != TokenRParen {
		p.accept("DISTINCT", "ALL")
		if p.cur().IsOp("*") {
			p.advance()
		} else {
			p.exprList()
		}
		if p.cur().Is("ORDER") {
			p.orderBy()
		}
	}
	p.expect(TokenRParen)
	if p.cur().Is("FILTER") && p.peek(1).Type == TokenLParen {
		p.advance()
		p.advance()
		p.expectWord("WHERE")
		p.expr()
		p.expect(TokenRParen)
	}
	if p.accept("OVER") {
		if p.acceptType(TokenLParen) {
			p.windowSpec()
			p.expect(TokenRParen)
		} else {
			p.name()
		}
	}
}

func (p *parser) windowSpec() {
	if t := p.cur(); isIdentifier(t) && !t.Is("PARTITION") && !frameUnits[t.Upper()] {
		p.advance()
	}
	if p.accept("PARTITION") {
		p.expectWord("BY")
		p.exprList()
	}
	if p.cur().Is("ORDER") {
		p.orderBy()
	}
	if frameUnits[p.cur().Upper()] {
		p.advance()
		if p.accept("BETWEEN") {
			p.frameBound()
			p.expectWord("AND")
			p.frameBound()
		} else {
			p.frameBound()
		}
	}
}

var frameUnits = wordSet("ROWS", "RANGE", "GROUPS")

func (p *parser) frameBound() {
	switch {
	case p.accept("UNBOUNDED"):
	case p.accept("CURRENT"):
		p.expectWord("ROW")
		return
	default:
		p.additive()
	}
	if !p.accept("PRECEDING", "FOLLOWING") {
		p.fail("PRECEDING or FOLLOWING")
	}
}

func (p *parser) caseExpr() {
	p.expectWord("CASE")
	if !p.cur().Is("WHEN") {
		p.expr()
	}
	if !p.cur().Is("WHEN") {
		p.fail("WHEN")
		return
	}
	for p.accept("WHEN") {
		p.expr()
		p.expectWord("THEN")
		p.expr()
	}
	if p.accept("ELSE") {
		p.expr()
	}
	p.expectWord("END")
}

func (p *parser) typeName() {
	if t := p.cur(); t.Type != TokenWord && t.Type != TokenQuotedIdent {
		p.fail("type name")
		return
	}
	p.advance()
	p.accept("PRECISION", "VARYING")
	if (p.cur().Is("WITH") || p.cur().Is("WITHOUT")) && p.peek(1).Is("TIME") {
		p.advance()
		p.advance()
		p.expectWord("ZONE")
	}
	if p.acceptType(TokenLParen) {
		for {
			p.expect(TokenNumber)
			if !p.acceptType(TokenComma) {
				break
			}
		}
		p.expect(TokenRParen)
	}
}
