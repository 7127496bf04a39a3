package output

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/dag"
)

// Tree prints a traversal. In text mode it draws box connectors; in
// Markdown mode it nests bullets. With verbose set each table is followed
// by the templates and lines that produced its edge.
func (r *Renderer) Tree(tree *dag.Tree, verbose bool) {
	if tree == nil || tree.Root == nil {
		return
	}
	if r.EffectiveMode() == ModeMarkdown {
		r.markdownTree(tree, verbose)
		return
	}
	r.textTree(tree, verbose)
}

func (r *Renderer) textTree(tree *dag.Tree, verbose bool) {
	r.Println(r.styles.Table.Render(tree.Root.Table))
	r.Println(r.styles.Tree.Render("└── ") + r.styles.Header2.Render(tree.Direction.String()))

	var walk func(nodes []*dag.Node, prefix string)
	walk = func(nodes []*dag.Node, prefix string) {
		for i, n := range nodes {
			last := i == len(nodes)-1
			connector, next := "├── ", "│   "
			if last {
				connector, next = "└── ", "    "
			}
			r.Println(r.styles.Tree.Render(prefix+connector) + r.nodeText(n, verbose))
			walk(n.Children, prefix+next)
		}
	}
	walk(tree.Root.Children, "    ")
}

func (r *Renderer) nodeText(n *dag.Node, verbose bool) string {
	s := n.Table
	if n.Revisited {
		s += r.styles.Muted.Render(" (seen)")
	}
	if verbose && n.Edge != nil {
		s += " " + r.styles.Label.Render(edgeSummary(n.Edge))
	}
	return s
}

func (r *Renderer) markdownTree(tree *dag.Tree, verbose bool) {
	r.Println(FormatHeader(2, fmt.Sprintf("%s of %s", tree.Direction.String(), tree.Root.Table)))
	r.Println("")
	if len(tree.Root.Children) == 0 {
		r.Println("(none)")
		return
	}

	var walk func(nodes []*dag.Node, depth int)
	walk = func(nodes []*dag.Node, depth int) {
		indent := strings.Repeat("  ", depth)
		for _, n := range nodes {
			line := indent + "- `" + n.Table + "`"
			if n.Revisited {
				line += " (seen)"
			}
			if verbose && n.Edge != nil {
				line += " " + edgeSummary(n.Edge)
			}
			r.Println(line)
			walk(n.Children, depth+1)
		}
	}
	walk(tree.Root.Children, 0)
}

// edgeSummary renders the templates and line numbers of an edge as
// "[uri:2,7 other.sql:3]".
func edgeSummary(e *dag.Edge) string {
	lines := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, fmt.Sprint(l.LineNumber))
	}
	refs := make([]string, 0, len(e.Templates))
	for _, ref := range e.Templates {
		name := ref.URI
		if name == "" {
			name = ref.Key
		}
		if len(lines) > 0 {
			name += ":" + strings.Join(lines, ",")
		}
		refs = append(refs, name)
	}
	return "[" + strings.Join(refs, " ") + "]"
}
