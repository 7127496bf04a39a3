package template

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
)

// IgnoredValue replaces placeholders whose parameter is ignored.
const IgnoredValue = "ignored"

// Options configures Render.
type Options struct {
	File   string       // name used in errors and log lines
	Ignore []string     // expressions rendered as IgnoredValue
	Logger *slog.Logger // nil discards
}

// Render substitutes every {{ expr }} in raw. A dotted path is looked up
// in values directly; anything else is evaluated as a Starlark expression
// with the top-level keys of values as globals. A placeholder that cannot
// be resolved is left verbatim.
func Render(raw string, values map[string]any, opts Options) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tokens, err := NewLexer(raw, opts.File).Tokenize()
	if err != nil {
		return "", err
	}

	ignored := make(map[string]bool, len(opts.Ignore))
	for _, p := range opts.Ignore {
		ignored[p] = true
	}

	var globals starlark.StringDict
	var out strings.Builder
	out.Grow(len(raw))

	for _, tok := range tokens {
		switch tok.Type {
		case TokenText, TokenStmt:
			out.WriteString(tok.Raw)
		case TokenExpr:
			if ignored[tok.Value] {
				out.WriteString(IgnoredValue)
				continue
			}
			if v, ok := lookupPath(values, tok.Value); ok {
				out.WriteString(formatValue(v))
				continue
			}
			if globals == nil {
				globals, err = toGlobals(values)
				if err != nil {
					return "", fmt.Errorf("template %s: %w", opts.File, err)
				}
			}
			v, err := eval(tok, globals)
			if err != nil {
				logger.Debug("placeholder left unresolved",
					"file", opts.File,
					"line", tok.Pos.Line,
					"expr", tok.Value,
					"error", err)
				out.WriteString(tok.Raw)
				continue
			}
			out.WriteString(v)
		}
	}

	return out.String(), nil
}

func eval(tok Token, globals starlark.StringDict) (string, error) {
	thread := &starlark.Thread{Name: tok.Pos.File}
	result, err := starlark.Eval(thread, tok.Pos.File, tok.Value, globals) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
	if err != nil {
		return "", err
	}
	if result == starlark.None {
		return "", fmt.Errorf("%s is None", tok.Value)
	}
	if s, ok := starlark.AsString(result); ok {
		return s, nil
	}
	return result.String(), nil
}

// lookupPath resolves a plain dotted path such as params.PROJECT.
func lookupPath(values map[string]any, path string) (any, bool) {
	if !isDottedPath(path) {
		return nil, false
	}
	var node any = values
	for _, key := range strings.Split(path, ".") {
		m, ok := asMap(node)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	if _, isBranch := asMap(node); isBranch {
		return nil, false
	}
	return node, true
}

func isDottedPath(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r != '_' && r != '-' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
				return false
			}
		}
	}
	return true
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

var placeholderPattern = regexp.MustCompile(`\{\{([^}]*)\}\}`)

// ExtractPlaceholderTokens returns the whitespace-delimited tokens found
// inside every {{ ... }} span, verbatim, first occurrence first.
func ExtractPlaceholderTokens(raw string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(raw, -1) {
		for _, tok := range strings.Fields(m[1]) {
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
	}
	return tokens
}
