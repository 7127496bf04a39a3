package dag

import "log/slog"

// Direction selects which neighbors a traversal follows.
type Direction int

const (
	// Upstream follows the tables a table reads from.
	Upstream Direction = iota
	// Downstream follows the tables that read from a table.
	Downstream
)

func (d Direction) String() string {
	if d == Downstream {
		return "Downstream"
	}
	return "Upstream"
}

// TraverseOptions controls Traverse.
type TraverseOptions struct {
	Direction Direction
	Recursive bool
	Logger    *slog.Logger
}

// Node is one table reached by a traversal.
type Node struct {
	Table    string
	Edge     *Edge // nil for the start table
	Children []*Node
	// Revisited is set when the table was already reached earlier in the
	// same traversal. Such nodes are never expanded.
	Revisited bool
}

// Tree is the result of a traversal.
type Tree struct {
	Direction Direction
	Root      *Node
}

// Traverse walks g from table. A single visited list is shared by the
// whole call: a table reached a second time, through a cycle or a second
// path, becomes a leaf. The edge leading to it is still recorded.
func Traverse(g *Graph, table string, opts TraverseOptions) *Tree {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	neighbors := g.Upstream
	if opts.Direction == Downstream {
		neighbors = g.Downstream
	}

	visited := []string{table}
	var expand func(n *Node)
	expand = func(n *Node) {
		for _, link := range neighbors(n.Table) {
			child := &Node{Table: link.Table, Edge: link.Edge}
			n.Children = append(n.Children, child)

			visited = append(visited, link.Table)
			if count(visited, link.Table) > 1 {
				child.Revisited = true
				logger.Debug("table already visited",
					"table", n.Table,
					"next", link.Table,
					"direction", opts.Direction.String())
				continue
			}
			if opts.Recursive {
				expand(child)
			}
		}
	}

	root := &Node{Table: table}
	expand(root)
	return &Tree{Direction: opts.Direction, Root: root}
}

func count(list []string, s string) int {
	n := 0
	for _, x := range list {
		if x == s {
			n++
		}
	}
	return n
}

// Attribute describes one template that produced an edge. Lines and
// Labels belong to the edge: occurrences are not tracked per template, so
// every template of a shared edge reports all of them.
type Attribute struct {
	TemplateRef
	Lines  []Line            `json:"lines"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Attributes returns one entry per template that declared e, each
// carrying the edge-wide lines and labels.
func (e *Edge) Attributes() []Attribute {
	attrs := make([]Attribute, 0, len(e.Templates))
	for _, ref := range e.Templates {
		attrs = append(attrs, Attribute{TemplateRef: ref, Lines: e.Lines, Labels: e.Labels})
	}
	return attrs
}

// Verbose returns the nested form of the tree:
//
//	{start: {"Upstream": {next: {"Attributes": [...], "Upstream": {...}}}}}
func (t *Tree) Verbose() map[string]any {
	label := t.Direction.String()
	var children func(n *Node) map[string]any
	children = func(n *Node) map[string]any {
		out := make(map[string]any, len(n.Children))
		for _, c := range n.Children {
			entry := map[string]any{"Attributes": c.Edge.Attributes()}
			if len(c.Children) > 0 {
				entry[label] = children(c)
			}
			out[c.Table] = entry
		}
		return out
	}
	return map[string]any{
		t.Root.Table: map[string]any{label: children(t.Root)},
	}
}

// Tables returns the distinct tables reached, excluding the start table,
// sorted.
func (t *Tree) Tables() []string {
	seen := make(map[string]bool)
	t.walk(func(n *Node) {
		seen[n.Table] = true
	})
	delete(seen, t.Root.Table)
	return sortedKeys(seen)
}

// URIs returns the distinct template URIs along every edge used, sorted.
func (t *Tree) URIs() []string {
	seen := make(map[string]bool)
	t.walk(func(n *Node) {
		for _, ref := range n.Edge.Templates {
			if ref.URI != "" {
				seen[ref.URI] = true
			}
		}
	})
	return sortedKeys(seen)
}

// walk visits every node below the root.
func (t *Tree) walk(fn func(n *Node)) {
	var visit func(n *Node)
	visit = func(n *Node) {
		for _, c := range n.Children {
			fn(c)
			visit(c)
		}
	}
	visit(t.Root)
}

// Edges returns every (downstream, upstream) pair used by the tree,
// in traversal order.
func (t *Tree) Edges() [][2]string {
	var pairs [][2]string
	var visit func(n *Node)
	visit = func(n *Node) {
		for _, c := range n.Children {
			if t.Direction == Downstream {
				pairs = append(pairs, [2]string{c.Table, n.Table})
			} else {
				pairs = append(pairs, [2]string{n.Table, c.Table})
			}
			visit(c)
		}
	}
	visit(t.Root)
	return pairs
}
