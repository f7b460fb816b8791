package sqlguard

import "strings"

// lexer tokenizes SQL text. Comments and whitespace are skipped.
type lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
	line    int
	col     int
}

func newLexer(input string) *lexer {
	l := &lexer{input: input, line: 1}
	l.readChar()
	return l
}

// Tokenize splits input into tokens. The result always ends with a TokenEOF token.
func Tokenize(input string) ([]Token, error) {
	l := newLexer(input)
	var out []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Type == TokenEOF {
			return out, nil
		}
	}
}

func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	if l.pos < len(l.input) && l.readPos > 0 && l.input[l.pos] == '\n' {
		l.line++
		l.col = 0
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *lexer) position() Position {
	return Position{Line: l.line, Column: l.col, Offset: l.pos}
}

func (l *lexer) next() (Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return Token{}, err
	}
	start := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: start, End: l.pos}, nil
	}

	emit := func(tt TokenType) Token {
		return Token{Type: tt, Literal: l.input[start.Offset:l.pos], Pos: start, End: l.pos}
	}
	single := func(tt TokenType) Token {
		l.readChar()
		return emit(tt)
	}

	switch ch := l.ch; {
	case ch == ',':
		return single(TokenComma), nil
	case ch == '(':
		return single(TokenLParen), nil
	case ch == ')':
		return single(TokenRParen), nil
	case ch == ';':
		return single(TokenSemicolon), nil
	case ch == '.' && isDigit(l.peekChar()):
		l.readNumber()
		return emit(TokenNumber), nil
	case ch == '.':
		return single(TokenDot), nil
	case ch == '\'':
		if err := l.readQuoted('\'', '\''); err != nil {
			return Token{}, err
		}
		return emit(TokenString), nil
	case ch == '"':
		if err := l.readQuoted('"', '"'); err != nil {
			return Token{}, err
		}
		return emit(TokenQuotedIdent), nil
	case ch == '`':
		if err := l.readQuoted('`', '`'); err != nil {
			return Token{}, err
		}
		return emit(TokenQuotedIdent), nil
	case ch == '[':
		if err := l.readQuoted('[', ']'); err != nil {
			return Token{}, err
		}
		return emit(TokenQuotedIdent), nil
	case isDigit(ch):
		l.readNumber()
		if isLetter(l.ch) {
			return Token{}, &SyntaxError{Pos: l.position(), Message: "invalid number literal"}
		}
		return emit(TokenNumber), nil
	case isLetter(ch):
		for isLetter(l.ch) || isDigit(l.ch) || l.ch == '$' {
			l.readChar()
		}
		return emit(TokenWord), nil
	case ch == '?':
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return emit(TokenParam), nil
	case (ch == '$' || ch == '@') && (isDigit(l.peekChar()) || isLetter(l.peekChar())):
		l.readChar()
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		return emit(TokenParam), nil
	case ch == ':' && isLetter(l.peekChar()):
		l.readChar()
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		return emit(TokenParam), nil
	}

	for _, op := range operators {
		if strings.HasPrefix(l.input[l.pos:], op) {
			for range len(op) {
				l.readChar()
			}
			return emit(TokenOperator), nil
		}
	}
	return Token{}, &SyntaxError{Pos: start, Message: "unexpected character " + quoteChar(l.ch)}
}

// operators are matched longest first.
var operators = []string{
	"::", "<=", ">=", "<>", "!=", "==", "||", "<<", ">>",
	"+", "-", "*", "/", "%", "=", "<", ">", "&", "|", "^", "~",
}

func (l *lexer) skipWhitespaceAndComments() error {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' {
			l.readChar()
		}
		switch {
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			start := l.position()
			l.readChar()
			l.readChar()
			for {
				if l.atEOF() {
					return &SyntaxError{Pos: start, Message: "unterminated block comment"}
				}
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				l.readChar()
			}
		default:
			return nil
		}
	}
}

// readQuoted consumes a quoted span. A doubled closing quote is an escaped quote.
func (l *lexer) readQuoted(open, closing byte) error {
	start := l.position()
	l.readChar()
	for {
		if l.atEOF() {
			what := "string literal"
			if open != '\'' {
				what = "quoted identifier"
			}
			return &SyntaxError{Pos: start, Message: "unterminated " + what}
		}
		if l.ch == closing {
			if closing != ']' && l.peekChar() == closing {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return nil
		}
		l.readChar()
	}
}

func (l *lexer) readNumber() {
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_' || ch >= 0x80
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func quoteChar(ch byte) string {
	return "'" + string(rune(ch)) + "'"
}
