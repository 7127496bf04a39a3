package lineage

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer splits SQL text into tokens, dropping whitespace and comments.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col, Offset: l.pos}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()
	if l.atEOF() {
		return Token{Type: TOKEN_EOF, Pos: pos}
	}

	switch l.ch {
	case '.':
		return l.single(TOKEN_DOT, pos)
	case ',':
		return l.single(TOKEN_COMMA, pos)
	case '(':
		return l.single(TOKEN_LPAREN, pos)
	case ')':
		return l.single(TOKEN_RPAREN, pos)
	case ';':
		return l.single(TOKEN_SEMICOLON, pos)
	case '\'':
		lit, ok := l.readQuoted('\'')
		if !ok {
			return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
		}
		return Token{Type: TOKEN_STRING, Literal: lit, Pos: pos}
	case '`', '"':
		lit, ok := l.readQuoted(l.ch)
		if !ok {
			return Token{Type: TOKEN_ILLEGAL, Literal: lit, Pos: pos}
		}
		return Token{Type: TOKEN_QUOTED_IDENT, Literal: lit, Pos: pos}
	}

	if isLetter(l.ch) || l.ch == '_' || l.identRuneWidth(l.pos) > 0 {
		lit := l.readIdentifier()
		return Token{Type: LookupIdent(strings.ToLower(lit)), Literal: lit, Pos: pos}
	}
	if isDigit(l.ch) {
		return Token{Type: TOKEN_NUMBER, Literal: l.readNumber(), Pos: pos}
	}
	return l.single(TOKEN_OPERATOR, pos)
}

func (l *Lexer) single(tokenType TokenType, pos Position) Token {
	tok := Token{Type: tokenType, Literal: string(l.ch), Pos: pos}
	l.readChar()
	return tok
}

// atEOF distinguishes end of input from a literal NUL byte.
func (l *Lexer) atEOF() bool {
	return l.ch == 0 && l.pos >= len(l.input)
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' {
			l.skipBlockComment()
			continue
		}

		break
	}
}

func (l *Lexer) skipBlockComment() {
	l.readChar() // skip '/'
	l.readChar() // skip '*'

	for !l.atEOF() {
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			return
		}
		l.readChar()
	}
}

// readQuoted reads a literal delimited by quote. A doubled quote is an
// escaped quote. ok is false when the input ends before the closing quote.
func (l *Lexer) readQuoted(quote byte) (lit string, ok bool) {
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.atEOF() {
			return result.String(), false
		}
		if l.ch == quote {
			if l.peekChar() == quote {
				result.WriteByte(quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return result.String(), true
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
}

// readIdentifier reads an unquoted identifier. A hyphen is part of the
// identifier when a letter or digit follows it, which covers project ids
// such as my-project-123. Non-ASCII letters and digits are consumed whole.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for {
		switch {
		case isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$':
			l.readChar()
		case l.ch >= utf8.RuneSelf:
			w := l.identRuneWidth(l.pos)
			if w == 0 {
				return l.input[start:l.pos]
			}
			for i := 0; i < w; i++ {
				l.readChar()
			}
		case l.ch == '-' && l.identStartsAt(l.readPos):
			l.readChar()
		default:
			return l.input[start:l.pos]
		}
	}
}

// identRuneWidth returns the byte width of the non-ASCII letter or digit
// starting at offset, or 0.
func (l *Lexer) identRuneWidth(offset int) int {
	if offset >= len(l.input) || l.input[offset] < utf8.RuneSelf {
		return 0
	}
	r, w := utf8.DecodeRuneInString(l.input[offset:])
	if r == utf8.RuneError || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return 0
	}
	return w
}

func (l *Lexer) identStartsAt(offset int) bool {
	if offset >= len(l.input) {
		return false
	}
	ch := l.input[offset]
	return isLetter(ch) || isDigit(ch) || l.identRuneWidth(offset) > 0
}

func (l *Lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens from the input, ending with TOKEN_EOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOF {
			return tokens
		}
	}
}
