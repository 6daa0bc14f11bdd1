package parser

import (
	"strings"
	"unicode"
)

// Lexer tokenizes a query string.
type Lexer struct {
	input []rune
	pos   int
}

// NewLexer creates a lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

// Tokenize lexes the whole input. The last token is always TokEOF.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks, nil
		}
	}
}

// Next consumes and returns the next token.
func (l *Lexer) Next() (Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return Token{}, err
	}
	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos}, nil
	}

	ch := l.input[l.pos]
	pos := l.pos

	single := func(kind TokenKind) (Token, error) {
		l.pos++
		return Token{Kind: kind, Lit: string(ch), Pos: pos}, nil
	}

	switch ch {
	case '(':
		return single(TokLParen)
	case ')':
		return single(TokRParen)
	case ',':
		return single(TokComma)
	case ';':
		return single(TokSemicolon)
	case '*':
		return single(TokStar)
	case '+':
		return single(TokPlus)
	case '-':
		return single(TokMinus)
	case '/':
		return single(TokSlash)
	case '%':
		return single(TokPercent)
	case '=':
		return single(TokEq)
	case '.':
		if l.peekIsDigit(1) {
			return l.readNumber(pos)
		}
		return single(TokDot)
	case '|':
		if l.at(1) == '|' {
			l.pos += 2
			return Token{Kind: TokConcat, Lit: "||", Pos: pos}, nil
		}
		return Token{}, l.errorf(pos, "unexpected '|', did you mean '||'?")
	case '!':
		if l.at(1) == '=' {
			l.pos += 2
			return Token{Kind: TokNeq, Lit: "!=", Pos: pos}, nil
		}
		return Token{}, l.errorf(pos, "unexpected '!', did you mean '!='?")
	case '<':
		switch l.at(1) {
		case '=':
			l.pos += 2
			return Token{Kind: TokLte, Lit: "<=", Pos: pos}, nil
		case '>':
			l.pos += 2
			return Token{Kind: TokNeq, Lit: "<>", Pos: pos}, nil
		}
		return single(TokLt)
	case '>':
		if l.at(1) == '=' {
			l.pos += 2
			return Token{Kind: TokGte, Lit: ">=", Pos: pos}, nil
		}
		return single(TokGt)
	case '\'':
		return l.readQuoted(pos, '\'', TokString)
	case '"':
		return l.readQuoted(pos, '"', TokQuotedIdent)
	default:
		if unicode.IsDigit(ch) {
			return l.readNumber(pos)
		}
		if isIdentStart(ch) {
			return l.readIdent(pos), nil
		}
		return Token{}, l.errorf(pos, "unexpected character %q", ch)
	}
}

func (l *Lexer) at(offset int) rune {
	if l.pos+offset < len(l.input) {
		return l.input[l.pos+offset]
	}
	return 0
}

func (l *Lexer) peekIsDigit(offset int) bool {
	return unicode.IsDigit(l.at(offset))
}

// readQuoted reads a literal delimited by quote; a doubled quote escapes it.
func (l *Lexer) readQuoted(pos int, quote rune, kind TokenKind) (Token, error) {
	l.pos++ // skip opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			if l.at(1) == quote {
				sb.WriteRune(quote)
				l.pos += 2
				continue
			}
			l.pos++ // skip closing quote
			return Token{Kind: kind, Lit: sb.String(), Pos: pos}, nil
		}
		sb.WriteRune(ch)
		l.pos++
	}
	if kind == TokString {
		return Token{}, l.errorf(pos, "unterminated string literal")
	}
	return Token{}, l.errorf(pos, "unterminated quoted identifier")
}

func (l *Lexer) readNumber(pos int) (Token, error) {
	start := l.pos
	for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if !l.peekIsDigit(0) {
			l.pos = save
		}
		for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && isIdentStart(l.input[l.pos]) {
		return Token{}, l.errorf(l.pos, "unexpected %q after number", l.input[l.pos])
	}
	return Token{Kind: TokNumber, Lit: string(l.input[start:l.pos]), Pos: pos}, nil
}

func (l *Lexer) readIdent(pos int) Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	lit := string(l.input[start:l.pos])
	if upper := strings.ToUpper(lit); keywords[upper] {
		return Token{Kind: TokKeyword, Lit: upper, Pos: pos}
	}
	return Token{Kind: TokIdent, Lit: lit, Pos: pos}
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case unicode.IsSpace(ch):
			l.pos++
		case ch == '-' && l.at(1) == '-':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		case ch == '/' && l.at(1) == '*':
			start := l.pos
			l.pos += 2
			for {
				if l.pos >= len(l.input) {
					return l.errorf(start, "unterminated comment")
				}
				if l.input[l.pos] == '*' && l.at(1) == '/' {
					l.pos += 2
					break
				}
				l.pos++
			}
		default:
			return nil
		}
	}
	return nil
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return ch == '_' || ch == '$' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}

func (l *Lexer) errorf(pos int, format string, args ...any) error {
	return newError(pos, "lexer", format, args...)
}
