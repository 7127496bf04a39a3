// Package template renders jinja-style SQL templates.
//
// Only variable substitution is supported: {{ expr }} is replaced by the
// value of expr, {% ... %} statements are passed through untouched and
// {# ... #} comments are removed.
package template

import (
	"strings"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText    TokenType = iota // Literal text (SQL)
	TokenExpr                     // Expression content (between {{ and }})
	TokenStmt                     // Statement content (between {% and %})
	TokenComment                  // Comment content (between {# and #})
	TokenEOF                      // End of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenExpr:
		return "EXPR"
	case TokenStmt:
		return "STMT"
	case TokenComment:
		return "COMMENT"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Position is a location in a template.
type Position struct {
	File   string
	Line   int
	Column int
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string // trimmed content for EXPR/STMT/COMMENT, verbatim for TEXT
	Raw   string // the exact source span, delimiters included
	Pos   Position
}

type delimiter struct {
	open, close string
	kind        TokenType
	name        string
}

var delimiters = []delimiter{
	{"{{", "}}", TokenExpr, "expression"},
	{"{%", "%}", TokenStmt, "statement"},
	{"{#", "#}", TokenComment, "comment"},
}

// Lexer tokenizes a template string.
type Lexer struct {
	input    string
	file     string
	pos      int // current position in input
	line     int // current line number (1-based)
	col      int // current column number (1-based)
	lastLine int // line at start of current token
	lastCol  int // column at start of current token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input: input,
		file:  file,
		line:  1,
		col:   1,
	}
}

// Tokenize converts the input into a slice of tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) nextToken() (Token, error) {
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.position()}, nil
	}
	for _, d := range delimiters {
		if l.matchString(d.open) {
			return l.scanDelimited(d)
		}
	}
	return l.scanText(), nil
}

func (l *Lexer) scanText() Token {
	l.markStart()
	start := l.pos

	for l.pos < len(l.input) && !l.atDelimiter() {
		l.advance()
	}

	text := l.input[start:l.pos]
	return Token{Type: TokenText, Value: text, Raw: text, Pos: l.startPosition()}
}

func (l *Lexer) atDelimiter() bool {
	for _, d := range delimiters {
		if l.matchString(d.open) {
			return true
		}
	}
	return false
}

// scanDelimited scans one {{ }}, {% %} or {# #} span. Braces nested
// inside an expression (dict literals) do not close it.
func (l *Lexer) scanDelimited(d delimiter) (Token, error) {
	l.markStart()
	start := l.pos

	l.advanceN(len(d.open))
	bodyStart := l.pos
	depth := 0

	for l.pos < len(l.input) {
		if depth == 0 && l.matchString(d.close) {
			body := strings.TrimSpace(l.input[bodyStart:l.pos])
			l.advanceN(len(d.close))
			return Token{
				Type:  d.kind,
				Value: body,
				Raw:   l.input[start:l.pos],
				Pos:   l.startPosition(),
			}, nil
		}

		if d.kind == TokenExpr {
			switch l.peek() {
			case '{':
				depth++
			case '}':
				if depth > 0 {
					depth--
				}
			}
		}
		l.advance()
	}

	return Token{}, NewLexError(l.startPosition(), "unclosed "+d.name+": missing '"+d.close+"'")
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size

	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

func (l *Lexer) advanceN(n int) {
	for i := 0; i < n; i++ {
		l.advance()
	}
}

func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *Lexer) markStart() {
	l.lastLine = l.line
	l.lastCol = l.col
}

func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.lastLine, Column: l.lastCol}
}
