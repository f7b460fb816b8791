package sqlguard

// statement is one terminator-free statement. tokens always ends with TokenEOF.
type statement struct {
	tokens []Token
	text   string
	kind   Kind
}

// SplitStatements splits a script at its ';' terminators and returns the
// statement texts without terminators. Empty statements are dropped.
func SplitStatements(script string) ([]string, error) {
	toks, err := Tokenize(script)
	if err != nil {
		return nil, err
	}
	stmts := splitTokens(script, toks)
	out := make([]string, 0, len(stmts))
	for _, st := range stmts {
		out = append(out, st.text)
	}
	return out, nil
}

func splitTokens(input string, toks []Token) []statement {
	var (
		out []statement
		cur []Token
	)
	flush := func(at Token) {
		if len(cur) == 0 {
			return
		}
		text := input[cur[0].Pos.Offset:cur[len(cur)-1].End]
		eof := Token{Type: TokenEOF, Pos: at.Pos, End: at.Pos.Offset}
		out = append(out, statement{tokens: append(cur, eof), text: text})
		cur = nil
	}
	for _, t := range toks {
		switch t.Type {
		case TokenSemicolon, TokenEOF:
			flush(t)
		default:
			cur = append(cur, t)
		}
	}
	return out
}

// matchParen returns the index of the ')' closing the '(' at toks[open], or -1.
func matchParen(toks []Token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
