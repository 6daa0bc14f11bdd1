package parser

import (
	"fmt"
	"strings"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF         TokenKind = iota
	TokIdent                 // bare identifier
	TokQuotedIdent           // "identifier"
	TokKeyword               // reserved word, Lit is upper-cased
	TokString                // 'string literal'
	TokNumber                // 42, 3.14
	TokLParen                // (
	TokRParen                // )
	TokComma                 // ,
	TokDot                   // .
	TokSemicolon             // ;
	TokStar                  // *
	TokPlus                  // +
	TokMinus                 // -
	TokSlash                 // /
	TokPercent               // %
	TokConcat                // ||
	TokEq                    // =
	TokNeq                   // <> or !=
	TokLt                    // <
	TokLte                   // <=
	TokGt                    // >
	TokGte                   // >=
)

// Token is a single lexical token produced by the lexer.
type Token struct {
	Kind TokenKind
	Lit  string // raw text; unquoted for strings and quoted identifiers
	Pos  int    // rune offset in input
}

func (t Token) String() string {
	if t.Lit != "" {
		return fmt.Sprintf("%s(%q)", t.Kind, t.Lit)
	}
	return t.Kind.String()
}

// Is reports whether t is the keyword kw.
func (t Token) Is(kw string) bool {
	return t.Kind == TokKeyword && t.Lit == kw
}

var kindNames = map[TokenKind]string{
	TokEOF:         "EOF",
	TokIdent:       "identifier",
	TokQuotedIdent: "quoted identifier",
	TokKeyword:     "keyword",
	TokString:      "string",
	TokNumber:      "number",
	TokLParen:      "(",
	TokRParen:      ")",
	TokComma:       ",",
	TokDot:         ".",
	TokSemicolon:   ";",
	TokStar:        "*",
	TokPlus:        "+",
	TokMinus:       "-",
	TokSlash:       "/",
	TokPercent:     "%",
	TokConcat:      "||",
	TokEq:          "=",
	TokNeq:         "<>",
	TokLt:          "<",
	TokLte:         "<=",
	TokGt:          ">",
	TokGte:         ">=",
}

func (k TokenKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

var keywords = map[string]bool{
	"ALL": true, "AND": true, "AS": true, "ASC": true, "BETWEEN": true, "BY": true,
	"CASE": true, "CAST": true, "CROSS": true, "DEFAULT": true, "DESC": true,
	"DISTINCT": true, "ELSE": true, "END": true, "EXCEPT": true, "EXISTS": true,
	"FALSE": true, "FROM": true, "FULL": true, "GROUP": true, "HAVING": true,
	"IN": true, "INNER": true, "INTERSECT": true, "IS": true, "JOIN": true,
	"LEFT": true, "LIKE": true, "LIMIT": true, "NOT": true, "NULL": true,
	"ON": true, "OR": true, "ORDER": true, "OUTER": true, "PARAMETERS": true,
	"RIGHT": true, "SELECT": true, "THEN": true, "TRUE": true, "UNION": true,
	"WHEN": true, "WHERE": true,
}

// IsKeyword reports whether word is reserved in the query language.
func IsKeyword(word string) bool {
	return keywords[strings.ToUpper(word)]
}
