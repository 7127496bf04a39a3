// Package dag holds the table dependency graph built from parsed SQL
// templates. Keys are downstream tables, each mapping to the upstream
// tables it reads from. Insertion order of both levels is kept so that
// serialized output is stable.
package dag

import (
	"sort"
	"sync"
)

// TemplateRef identifies the template that declared an edge.
type TemplateRef struct {
	Key            string `json:"key"`
	SourceKind     string `json:"source_kind"`
	SourceType     string `json:"source_type,omitempty"`
	URI            string `json:"uri,omitempty"`
	Bucket         string `json:"bucket,omitempty"`
	Project        string `json:"project,omitempty"`
	DataSourceName string `json:"data_source_name,omitempty"`
}

// Line is one textual occurrence of an upstream reference.
type Line struct {
	LineNumber int    `json:"line_number"`
	LineString string `json:"line_string"`
}

// Edge is the dependency of one downstream table on one upstream table.
type Edge struct {
	Templates []TemplateRef
	Lines     []Line
	Labels    map[string]string
}

// Template returns the first template that declared the edge.
func (e *Edge) Template() TemplateRef {
	if len(e.Templates) == 0 {
		return TemplateRef{}
	}
	return e.Templates[0]
}

func (e *Edge) addTemplate(ref TemplateRef) {
	for _, t := range e.Templates {
		if t == ref {
			return
		}
	}
	e.Templates = append(e.Templates, ref)
}

func (e *Edge) addLabels(labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	if e.Labels == nil {
		e.Labels = make(map[string]string, len(labels))
	}
	for k, v := range labels {
		e.Labels[k] = v
	}
}

func (e *Edge) clone() *Edge {
	out := &Edge{
		Templates: append([]TemplateRef(nil), e.Templates...),
		Lines:     append([]Line(nil), e.Lines...),
	}
	out.addLabels(e.Labels)
	return out
}

// Link pairs a neighboring table with the edge that connects it.
type Link struct {
	Table string
	Edge  *Edge
}

type node struct {
	upstreams []string
	edges     map[string]*Edge
}

// Graph is a dependency graph keyed by downstream table.
// Mutating methods are not safe for concurrent use; read methods are.
type Graph struct {
	order []string
	nodes map[string]*node

	mu      sync.Mutex
	reverse map[string][]string // upstream -> downstreams, built lazily
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// EnsureTable adds a downstream key without any upstream edges.
func (g *Graph) EnsureTable(table string) {
	g.ensure(table)
}

func (g *Graph) ensure(table string) *node {
	n, ok := g.nodes[table]
	if !ok {
		n = &node{edges: make(map[string]*Edge)}
		g.nodes[table] = n
		g.order = append(g.order, table)
	}
	return n
}

// AddReference records that downstream reads from upstream at line.
// A repeated pair appends the occurrence to the existing edge.
func (g *Graph) AddReference(downstream, upstream string, ref TemplateRef, line Line, labels map[string]string) {
	n := g.ensure(downstream)
	e, ok := n.edges[upstream]
	if !ok {
		e = &Edge{}
		n.edges[upstream] = e
		n.upstreams = append(n.upstreams, upstream)
	}
	e.addTemplate(ref)
	e.Lines = append(e.Lines, line)
	e.addLabels(labels)
	g.invalidate()
}

func (g *Graph) setEdge(downstream, upstream string, e *Edge) {
	n := g.ensure(downstream)
	if _, ok := n.edges[upstream]; !ok {
		n.upstreams = append(n.upstreams, upstream)
	}
	n.edges[upstream] = e
	g.invalidate()
}

func (g *Graph) invalidate() {
	g.mu.Lock()
	g.reverse = nil
	g.mu.Unlock()
}

// Merge unions other into g. For a shared pair, templates and
// occurrences are unioned.
func (g *Graph) Merge(other *Graph) {
	if other == nil {
		return
	}
	for _, down := range other.order {
		src := other.nodes[down]
		dst := g.ensure(down)
		for _, up := range src.upstreams {
			se := src.edges[up]
			de, ok := dst.edges[up]
			if !ok {
				dst.edges[up] = se.clone()
				dst.upstreams = append(dst.upstreams, up)
				continue
			}
			for _, ref := range se.Templates {
				de.addTemplate(ref)
			}
			for _, l := range se.Lines {
				if !containsLine(de.Lines, l) {
					de.Lines = append(de.Lines, l)
				}
			}
			de.addLabels(se.Labels)
		}
	}
	g.invalidate()
}

// Merge combines graphs into a new graph, in argument order.
func Merge(graphs ...*Graph) *Graph {
	out := NewGraph()
	for _, other := range graphs {
		out.Merge(other)
	}
	return out
}

func containsLine(lines []Line, l Line) bool {
	for _, x := range lines {
		if x == l {
			return true
		}
	}
	return false
}

// SortOccurrences orders every edge's occurrences by line number.
func (g *Graph) SortOccurrences() {
	for _, n := range g.nodes {
		for _, e := range n.edges {
			sort.SliceStable(e.Lines, func(i, j int) bool {
				return e.Lines[i].LineNumber < e.Lines[j].LineNumber
			})
		}
	}
}

// Len returns the number of downstream keys.
func (g *Graph) Len() int {
	return len(g.order)
}

// Downstreams returns the downstream keys in insertion order.
func (g *Graph) Downstreams() []string {
	return append([]string(nil), g.order...)
}

// Edge returns the edge for a pair.
func (g *Graph) Edge(downstream, upstream string) (*Edge, bool) {
	n, ok := g.nodes[downstream]
	if !ok {
		return nil, false
	}
	e, ok := n.edges[upstream]
	return e, ok
}

// Upstream returns the tables that table reads from.
func (g *Graph) Upstream(table string) []Link {
	n, ok := g.nodes[table]
	if !ok {
		return nil
	}
	links := make([]Link, 0, len(n.upstreams))
	for _, up := range n.upstreams {
		links = append(links, Link{Table: up, Edge: n.edges[up]})
	}
	return links
}

// Downstream returns the tables that read from table.
func (g *Graph) Downstream(table string) []Link {
	downs := g.reverseIndex()[table]
	links := make([]Link, 0, len(downs))
	for _, down := range downs {
		links = append(links, Link{Table: down, Edge: g.nodes[down].edges[table]})
	}
	return links
}

func (g *Graph) reverseIndex() map[string][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reverse != nil {
		return g.reverse
	}
	rev := make(map[string][]string)
	for _, down := range g.order {
		for _, up := range g.nodes[down].upstreams {
			rev[up] = append(rev[up], down)
		}
	}
	g.reverse = rev
	return rev
}

// Tables returns every table name in the graph, sorted.
func (g *Graph) Tables() []string {
	seen := make(map[string]bool)
	for _, down := range g.order {
		seen[down] = true
		for _, up := range g.nodes[down].upstreams {
			seen[up] = true
		}
	}
	return sortedKeys(seen)
}

// URIs returns every template URI in the graph, sorted.
func (g *Graph) URIs() []string {
	seen := make(map[string]bool)
	for _, n := range g.nodes {
		for _, e := range n.edges {
			for _, ref := range e.Templates {
				if ref.URI != "" {
					seen[ref.URI] = true
				}
			}
		}
	}
	return sortedKeys(seen)
}

// FindCycle returns one dependency cycle as a path that starts and ends
// at the same table, or nil when the graph is acyclic.
func (g *Graph) FindCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	parent := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		if n, ok := g.nodes[id]; ok {
			for _, up := range n.upstreams {
				if !visited[up] {
					parent[up] = id
					if dfs(up) {
						return true
					}
				} else if onStack[up] {
					cycle = []string{up}
					for cur := id; cur != up; cur = parent[cur] {
						cycle = append([]string{cur}, cycle...)
					}
					cycle = append([]string{up}, cycle...)
					return true
				}
			}
		}
		onStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
