package lineage

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

//nolint:revive // TOKEN_* names are intentionally ALL_CAPS for SQL token conventions
const (
	// TOKEN_EOF represents end of input.
	TOKEN_EOF TokenType = iota
	// TOKEN_ILLEGAL represents an unrecognized or unterminated token.
	TOKEN_ILLEGAL

	TOKEN_IDENT        // users, my-project
	TOKEN_QUOTED_IDENT // `users`, "users"
	TOKEN_NUMBER       // 123, 45.67
	TOKEN_STRING       // 'hello'

	TOKEN_DOT       // .
	TOKEN_COMMA     // ,
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_SEMICOLON // ;
	TOKEN_OPERATOR  // any other punctuation

	// Keywords the reference scanner cares about.
	TOKEN_AS
	TOKEN_DISTINCT
	TOKEN_FROM
	TOKEN_IS
	TOKEN_JOIN
	TOKEN_NOT
	TOKEN_RECURSIVE
	TOKEN_WITH
)

// Token represents a lexical token with position information.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// Position represents a location in the source text.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based byte offset
}

// IsWord reports whether the token can serve as an identifier segment.
// Keywords qualify because they are legal after a dot (dataset.from).
func (t Token) IsWord() bool {
	return t.Type == TOKEN_IDENT || t.Type >= TOKEN_AS
}

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

var tokenNames = map[TokenType]string{
	TOKEN_EOF:          "EOF",
	TOKEN_ILLEGAL:      "ILLEGAL",
	TOKEN_IDENT:        "IDENT",
	TOKEN_QUOTED_IDENT: "QUOTED_IDENT",
	TOKEN_NUMBER:       "NUMBER",
	TOKEN_STRING:       "STRING",
	TOKEN_DOT:          ".",
	TOKEN_COMMA:        ",",
	TOKEN_LPAREN:       "(",
	TOKEN_RPAREN:       ")",
	TOKEN_SEMICOLON:    ";",
	TOKEN_OPERATOR:     "OPERATOR",
	TOKEN_AS:           "AS",
	TOKEN_DISTINCT:     "DISTINCT",
	TOKEN_FROM:         "FROM",
	TOKEN_IS:           "IS",
	TOKEN_JOIN:         "JOIN",
	TOKEN_NOT:          "NOT",
	TOKEN_RECURSIVE:    "RECURSIVE",
	TOKEN_WITH:         "WITH",
}

var keywords = map[string]TokenType{
	"as":        TOKEN_AS,
	"distinct":  TOKEN_DISTINCT,
	"from":      TOKEN_FROM,
	"is":        TOKEN_IS,
	"join":      TOKEN_JOIN,
	"not":       TOKEN_NOT,
	"recursive": TOKEN_RECURSIVE,
	"with":      TOKEN_WITH,
}

// LookupIdent returns the keyword token type for a lowercased word, or TOKEN_IDENT.
func LookupIdent(lower string) TokenType {
	if tok, ok := keywords[lower]; ok {
		return tok
	}
	return TOKEN_IDENT
}
