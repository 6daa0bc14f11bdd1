package parser

import (
	"errors"
	"testing"
)

func collectTokens(t *testing.T, input string) []Token {
	t.Helper()
	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", input, err)
	}
	return toks
}

func TestLexerBasicTokens(t *testing.T) {
	tests := []struct {
		input string
		kinds []TokenKind
	}{
		{"( ) , . ;", []TokenKind{TokLParen, TokRParen, TokComma, TokDot, TokSemicolon, TokEOF}},
		{"* + - / %", []TokenKind{TokStar, TokPlus, TokMinus, TokSlash, TokPercent, TokEOF}},
		{"= <> != < <= > >= ||", []TokenKind{TokEq, TokNeq, TokNeq, TokLt, TokLte, TokGt, TokGte, TokConcat, TokEOF}},
		{"select Name from Samples", []TokenKind{TokKeyword, TokIdent, TokKeyword, TokIdent, TokEOF}},
		{`"select" 'it''s' 42 3.14 .5 1e10`, []TokenKind{TokQuotedIdent, TokString, TokNumber, TokNumber, TokNumber, TokNumber, TokEOF}},
	}
	for _, tt := range tests {
		toks := collectTokens(t, tt.input)
		if len(toks) != len(tt.kinds) {
			t.Fatalf("%q: expected %d tokens, got %d: %v", tt.input, len(tt.kinds), len(toks), toks)
		}
		for i, k := range tt.kinds {
			if toks[i].Kind != k {
				t.Errorf("%q token %d: expected %s, got %s", tt.input, i, k, toks[i].Kind)
			}
		}
	}
}

func TestLexerLiterals(t *testing.T) {
	toks := collectTokens(t, `'it''s' "Odd ""Name""" Sample$Name`)
	if toks[0].Lit != "it's" {
		t.Errorf("expected string %q, got %q", "it's", toks[0].Lit)
	}
	if toks[1].Lit != `Odd "Name"` {
		t.Errorf("expected quoted identifier %q, got %q", `Odd "Name"`, toks[1].Lit)
	}
	if toks[2].Kind != TokIdent || toks[2].Lit != "Sample$Name" {
		t.Errorf("expected identifier Sample$Name, got %s", toks[2])
	}
}

func TestLexerKeywordsAreUpperCased(t *testing.T) {
	toks := collectTokens(t, "SeLeCt distinct")
	if !toks[0].Is("SELECT") || !toks[1].Is("DISTINCT") {
		t.Fatalf("expected SELECT DISTINCT keywords, got %v", toks)
	}
}

func TestLexerComments(t *testing.T) {
	toks := collectTokens(t, "a -- trailing\n/* block\ncomment */ b")
	if len(toks) != 3 || toks[0].Lit != "a" || toks[1].Lit != "b" {
		t.Fatalf("expected [a b EOF], got %v", toks)
	}
}

func TestLexerPositions(t *testing.T) {
	toks := collectTokens(t, "SELECT  x")
	if toks[1].Pos != 8 {
		t.Errorf("expected position 8, got %d", toks[1].Pos)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []string{
		"'open",
		`"open`,
		"a | b",
		"a ! b",
		"#",
		"/* never closed",
		"12abc",
	}
	for _, input := range tests {
		_, err := Tokenize(input)
		if err == nil {
			t.Errorf("%q: expected error", input)
			continue
		}
		var perr *Error
		if !errors.As(err, &perr) || perr.Stage != "lexer" {
			t.Errorf("%q: expected lexer *Error, got %v", input, err)
		}
	}
}
