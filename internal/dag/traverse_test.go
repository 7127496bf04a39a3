package dag

import (
	"testing"

	"github.com/leapstack-labs/leaplineage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGraph adds one edge per pair, downstream first.
func buildGraph(pairs ...[2]string) *Graph {
	g := NewGraph()
	for _, p := range pairs {
		ref := TemplateRef{Key: p[0] + ".sql", SourceKind: "FILE", URI: "/sql/" + p[0] + ".sql"}
		g.AddReference(p[0], p[1], ref, Line{LineNumber: 1, LineString: "FROM " + p[1]}, nil)
	}
	return g
}

func TestTraverse_Upstream(t *testing.T) {
	// D reads C and L; C reads A; L reads B.
	g := buildGraph(
		[2]string{"D", "C"},
		[2]string{"D", "L"},
		[2]string{"C", "A"},
		[2]string{"L", "B"},
	)

	oneHop := Traverse(g, "D", TraverseOptions{Direction: Upstream})
	assert.Equal(t, []string{"C", "L"}, oneHop.Tables())

	all := Traverse(g, "D", TraverseOptions{Direction: Upstream, Recursive: true})
	assert.Equal(t, []string{"A", "B", "C", "L"}, all.Tables())
	assert.Equal(t, []string{"/sql/C.sql", "/sql/D.sql", "/sql/L.sql"}, all.URIs())
}

func TestTraverse_Downstream(t *testing.T) {
	g := buildGraph(
		[2]string{"D", "C"},
		[2]string{"C", "A"},
		[2]string{"E", "A"},
	)

	tree := Traverse(g, "A", TraverseOptions{Direction: Downstream, Recursive: true})
	assert.Equal(t, []string{"C", "D", "E"}, tree.Tables())
	assert.Equal(t, [][2]string{{"C", "A"}, {"D", "C"}, {"E", "A"}}, tree.Edges())
}

func TestTraverse_CycleTerminates(t *testing.T) {
	g := buildGraph(
		[2]string{"A", "B"},
		[2]string{"B", "C"},
		[2]string{"C", "A"},
	)

	tree := Traverse(g, "A", TraverseOptions{
		Direction: Upstream,
		Recursive: true,
		Logger:    testutil.NewTestLogger(t),
	})

	require.Len(t, tree.Root.Children, 1)
	b := tree.Root.Children[0]
	require.Len(t, b.Children, 1)
	c := b.Children[0]
	require.Len(t, c.Children, 1)
	back := c.Children[0]

	assert.Equal(t, "A", back.Table)
	assert.True(t, back.Revisited)
	assert.Empty(t, back.Children)
	assert.Equal(t, []string{"B", "C"}, tree.Tables())
}

func TestTraverse_DiamondExpandsOnce(t *testing.T) {
	// D reads B and C, both of which read A; A reads Z.
	g := buildGraph(
		[2]string{"D", "B"},
		[2]string{"D", "C"},
		[2]string{"B", "A"},
		[2]string{"C", "A"},
		[2]string{"A", "Z"},
	)

	tree := Traverse(g, "D", TraverseOptions{Direction: Upstream, Recursive: true})

	b, c := tree.Root.Children[0], tree.Root.Children[1]
	require.Len(t, b.Children, 1)
	require.Len(t, c.Children, 1)
	assert.False(t, b.Children[0].Revisited)
	assert.Len(t, b.Children[0].Children, 1)
	assert.True(t, c.Children[0].Revisited)
	assert.Empty(t, c.Children[0].Children)
	assert.Equal(t, []string{"A", "B", "C", "Z"}, tree.Tables())
}

func TestTraverse_UnknownTable(t *testing.T) {
	g := buildGraph([2]string{"D", "C"})

	tree := Traverse(g, "nope", TraverseOptions{Recursive: true})
	assert.Empty(t, tree.Tables())
	assert.Empty(t, tree.URIs())
	assert.Equal(t, map[string]any{"nope": map[string]any{"Upstream": map[string]any{}}}, tree.Verbose())
}

func TestTree_Verbose(t *testing.T) {
	g := buildGraph(
		[2]string{"D", "C"},
		[2]string{"C", "A"},
	)

	got := Traverse(g, "D", TraverseOptions{Direction: Upstream, Recursive: true}).Verbose()

	dEntry := got["D"].(map[string]any)
	ups := dEntry["Upstream"].(map[string]any)
	cEntry := ups["C"].(map[string]any)

	attrs := cEntry["Attributes"].([]Attribute)
	require.Len(t, attrs, 1)
	assert.Equal(t, "D.sql", attrs[0].Key)
	assert.Equal(t, []Line{{LineNumber: 1, LineString: "FROM C"}}, attrs[0].Lines)

	aEntry := cEntry["Upstream"].(map[string]any)["A"].(map[string]any)
	assert.Contains(t, aEntry, "Attributes")
	assert.NotContains(t, aEntry, "Upstream")
}

func TestTraverse_VisitedIsPerCall(t *testing.T) {
	g := buildGraph([2]string{"D", "C"}, [2]string{"C", "A"})
	opts := TraverseOptions{Direction: Upstream, Recursive: true}

	first := Traverse(g, "D", opts)
	second := Traverse(g, "D", opts)
	assert.Equal(t, first.Tables(), second.Tables())
}

func TestEdge_AttributesShareEdgeLines(t *testing.T) {
	g := NewGraph()
	first := TemplateRef{Key: "a.sql", SourceKind: "FILE", URI: "/sql/a.sql"}
	second := TemplateRef{Key: "b.sql", SourceKind: "FILE", URI: "/sql/b.sql"}
	g.AddReference("d", "u", first, Line{LineNumber: 2, LineString: "FROM u"}, map[string]string{"team": "x"})
	g.AddReference("d", "u", second, Line{LineNumber: 5, LineString: "JOIN u"}, nil)

	e, ok := g.Edge("d", "u")
	require.True(t, ok)

	attrs := e.Attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, first, attrs[0].TemplateRef)
	assert.Equal(t, second, attrs[1].TemplateRef)
	for _, a := range attrs {
		assert.Equal(t, e.Lines, a.Lines)
		assert.Equal(t, map[string]string{"team": "x"}, a.Labels)
	}
	assert.Len(t, e.Lines, 2)
}
