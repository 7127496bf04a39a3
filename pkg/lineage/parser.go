// Package lineage locates physical table references in rendered SQL.
//
// The scanner is token based rather than grammar based: it looks for
// identifiers that follow FROM and JOIN, drops names declared as common
// table expressions, and records the line each identifier appears on.
// Anything it cannot read with confidence is skipped.
package lineage

import "strings"

// maxSegments is the deepest qualification understood (project.dataset.table).
const maxSegments = 3

// Reference is one textual appearance of a table in SQL text.
type Reference struct {
	Table    string // dotted name, quotes removed
	Line     int    // 1-based line of the identifier
	LineText string // the full source line, as written
}

// fromFunctions take FROM inside their argument list.
var fromFunctions = map[string]bool{
	"extract":   true,
	"overlay":   true,
	"position":  true,
	"substring": true,
	"trim":      true,
}

// Parse returns the table references in sql in source order. Names
// declared as CTE aliases are excluded; repeated references are kept.
func Parse(sql string) []Reference {
	tokens := Tokenize(sql)
	lines := splitLines(sql)
	aliases := cteAliases(tokens)

	var refs []Reference
	var parens []bool // true when the paren belongs to a FROM-taking function

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Type {
		case TOKEN_LPAREN:
			parens = append(parens, i > 0 && fromFunctions[strings.ToLower(tokens[i-1].Literal)])
			continue
		case TOKEN_RPAREN:
			if len(parens) > 0 {
				parens = parens[:len(parens)-1]
			}
			continue
		case TOKEN_FROM, TOKEN_JOIN:
		default:
			continue
		}

		if tok.Type == TOKEN_FROM {
			if len(parens) > 0 && parens[len(parens)-1] {
				continue
			}
			if isDistinctFrom(tokens, i) {
				continue
			}
		}

		start := i + 1
		if start < len(tokens) && strings.EqualFold(tokens[start].Literal, "lateral") {
			start++
		}

		name, first, next, ok := readTableName(tokens, start)
		if !ok {
			continue
		}
		if next < len(tokens) && tokens[next].Type == TOKEN_LPAREN {
			// table function such as UNNEST(...)
			continue
		}
		if !strings.Contains(name, ".") && aliases[strings.ToLower(name)] {
			continue
		}

		refs = append(refs, Reference{
			Table:    name,
			Line:     first.Pos.Line,
			LineText: lineAt(lines, first.Pos.Line),
		})
		i = next - 1
	}

	return refs
}

// readTableName reads a dotted identifier starting at tokens[start]. It
// returns the normalized name, the first token of the name, and the index
// of the token following it.
func readTableName(tokens []Token, start int) (name string, first Token, next int, ok bool) {
	if start >= len(tokens) {
		return "", Token{}, start, false
	}
	first = tokens[start]

	var segments []string
	i := start
	for {
		tok := tokens[i]
		switch {
		case tok.Type == TOKEN_QUOTED_IDENT:
			if tok.Literal == "" {
				return "", first, i, false
			}
			segments = append(segments, strings.Split(tok.Literal, ".")...)
		case tok.IsWord():
			segments = append(segments, tok.Literal)
		default:
			return "", first, i, false
		}
		i++

		if i < len(tokens) && tokens[i].Type == TOKEN_DOT {
			i++
			if i >= len(tokens) {
				return "", first, i, false
			}
			continue
		}
		break
	}

	if len(segments) > maxSegments {
		return "", first, i, false
	}
	for _, s := range segments {
		if s == "" {
			return "", first, i, false
		}
	}
	return strings.Join(segments, "."), first, i, true
}

// cteAliases collects names declared by WITH name AS ( and , name AS (.
// An optional column list between the name and AS is allowed.
func cteAliases(tokens []Token) map[string]bool {
	aliases := make(map[string]bool)
	for i, tok := range tokens {
		if tok.Type != TOKEN_WITH && tok.Type != TOKEN_COMMA {
			continue
		}
		j := i + 1
		if tok.Type == TOKEN_WITH && j < len(tokens) && tokens[j].Type == TOKEN_RECURSIVE {
			j++
		}
		if j >= len(tokens) || !(tokens[j].IsWord() || tokens[j].Type == TOKEN_QUOTED_IDENT) {
			continue
		}
		name := tokens[j].Literal
		j++
		if j < len(tokens) && tokens[j].Type == TOKEN_LPAREN {
			j = skipParens(tokens, j)
		}
		if j+1 < len(tokens) && tokens[j].Type == TOKEN_AS && tokens[j+1].Type == TOKEN_LPAREN {
			aliases[strings.ToLower(name)] = true
		}
	}
	return aliases
}

// skipParens returns the index after the paren group opening at tokens[open].
func skipParens(tokens []Token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch tokens[i].Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(tokens)
}

// isDistinctFrom reports whether tokens[i] is the FROM of IS [NOT] DISTINCT FROM.
func isDistinctFrom(tokens []Token, i int) bool {
	if i < 2 || tokens[i-1].Type != TOKEN_DISTINCT {
		return false
	}
	prev := tokens[i-2].Type
	return prev == TOKEN_IS || prev == TOKEN_NOT
}

func splitLines(sql string) []string {
	lines := strings.Split(sql, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func lineAt(lines []string, n int) string {
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}
