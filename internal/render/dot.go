// Package render draws dependency maps as Graphviz diagrams. Arrows
// point from the table read to the table written, in the direction data
// flows.
package render

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/leapstack-labs/leaplineage/internal/dag"
)

// Options configures diagram generation.
type Options struct {
	// Labels adds each edge's labels to the arrow.
	Labels bool
	// Highlight marks one table, usually the start of a traversal.
	Highlight string
}

// GraphDOT converts a whole map to DOT.
func GraphDOT(g *dag.Graph, opts Options) string {
	var pairs [][2]string
	for _, down := range g.Downstreams() {
		for _, link := range g.Upstream(down) {
			pairs = append(pairs, [2]string{down, link.Table})
		}
	}
	return toDOT(g, g.Tables(), pairs, opts)
}

// TreeDOT converts the edges a traversal used to DOT.
func TreeDOT(g *dag.Graph, tree *dag.Tree, opts Options) string {
	if opts.Highlight == "" {
		opts.Highlight = tree.Root.Table
	}
	tables := append([]string{tree.Root.Table}, tree.Tables()...)
	return toDOT(g, tables, tree.Edges(), opts)
}

func toDOT(g *dag.Graph, tables []string, pairs [][2]string, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph lineage {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\"];\n")
	buf.WriteString("\n")

	for _, table := range tables {
		attrs := []string{fmt.Sprintf("label=%q", table)}
		if table == opts.Highlight {
			attrs = append(attrs, "fillcolor=\"#ffd866\"")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", table, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	seen := make(map[[2]string]bool)
	for _, p := range pairs {
		if seen[p] {
			continue
		}
		seen[p] = true
		down, up := p[0], p[1]
		var attrs []string
		if opts.Labels {
			if e, ok := g.Edge(down, up); ok && len(e.Labels) > 0 {
				attrs = append(attrs, fmt.Sprintf("label=%q", fmtLabels(e.Labels)))
			}
		}
		if len(attrs) == 0 {
			fmt.Fprintf(&buf, "  %q -> %q;\n", up, down)
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", up, down, strings.Join(attrs, ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + labels[k]
	}
	return strings.Join(parts, "\n")
}

// SVG renders a DOT graph to SVG using Graphviz.
func SVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
