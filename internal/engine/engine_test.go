package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/params"
	"github.com/leapstack-labs/leaplineage/internal/source"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFileEngine builds an engine over a File include with four templates:
//
//	proj.ds.d <- proj.ds.c, proj.ds.l
//	proj.ds.c <- proj.ds.a
//	proj.ds.l <- proj.raw.l   (params.DAY undefined)
//	orphan.sql                (not mapped)
func newFileEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"sql/d.sql":      "SELECT *\nFROM {{ params.DATASET }}.c\nJOIN proj.ds.l ON c.id = l.id",
		"sql/c.sql":      "SELECT * FROM a",
		"sql/l.sql":      "SELECT * FROM raw.l WHERE dt = '{{ params.DAY }}'",
		"sql/orphan.sql": "SELECT 1",
		"sql/notes.md":   "not a template",
	})

	project := &config.ProjectConfig{
		Include: []config.Include{{
			TemplateSourceType: config.SourceFile,
			FileSystemPath:     filepath.Join(dir, "sql"),
			DefaultTablePrefix: "proj.ds",
		}},
		Settings: config.Settings{ReportUnmappedWithoutParams: true},
	}
	mapping := &config.MappingConfig{
		Global: config.Global{Parameters: params.Set{"params": map[string]any{"DATASET": "ds"}}},
		Mapping: []config.MappingEntry{
			{TemplateSourceType: "File", FileSuffix: "/d.sql", Tables: []config.MappedTable{
				{TableName: "proj.ds.d", Labels: map[string]string{"team": "sales"}},
			}},
			{TemplateSourceType: "File", FileSuffix: "/c.sql", Tables: []config.MappedTable{
				{TableName: "proj.ds.c", Labels: map[string]string{"team": "sales", "tier": "gold"}},
			}},
			{TemplateSourceType: "File", FileSuffix: "/l.sql", Tables: []config.MappedTable{
				{TableName: "proj.ds.l"},
			}},
		},
		ExtraLabels: []config.ExtraLabel{
			{TableName: "proj.ds.a", Labels: map[string]string{"owner": "ingest"}},
		},
	}

	e := New(Config{
		Project: project,
		Mapping: mapping,
		Logger:  testutil.NewTestLogger(t),
	})
	t.Cleanup(func() { _ = e.Close() })
	return e, dir
}

func TestBuild(t *testing.T) {
	e, dir := newFileEngine(t)

	result, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.False(t, result.HasErrors())
	assert.Equal(t, 4, result.Templates)
	assert.Nil(t, result.Cycle)
	assert.Contains(t, result.Summary(), "Templates: 4")

	g := result.Graph
	assert.Same(t, g, e.Graph())
	assert.Equal(t, []string{"proj.ds.c", "proj.ds.d", "proj.ds.l"}, sortedStrings(g.Downstreams()))

	edge, ok := g.Edge("proj.ds.d", "proj.ds.c")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "sql", "d.sql"), edge.Template().Key)
	assert.Equal(t, "FILE", edge.Template().SourceKind)
	assert.Equal(t, []dag.Line{{LineNumber: 2, LineString: "FROM ds.c"}}, edge.Lines)
	assert.Equal(t, map[string]string{"team": "sales"}, edge.Labels)

	edge, ok = g.Edge("proj.ds.c", "proj.ds.a")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"team": "sales", "tier": "gold", "owner": "ingest"}, edge.Labels)

	_, ok = g.Edge("proj.ds.l", "proj.raw.l")
	assert.True(t, ok)
}

func TestBuild_Unmapped(t *testing.T) {
	e, dir := newFileEngine(t)

	result, err := e.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Unmapped, 2)

	byKey := make(map[string]UnmappedEntry)
	for _, u := range e.Unmapped() {
		byKey[u.Template.Key()] = u
	}

	l := byKey[filepath.Join(dir, "sql", "l.sql")]
	assert.Equal(t, []string{"params.DAY"}, l.Params)

	orphan, ok := byKey[filepath.Join(dir, "sql", "orphan.sql")]
	require.True(t, ok)
	assert.Empty(t, orphan.Params)

	scaffold := orphan.Scaffold()
	assert.Equal(t, "File", scaffold.SourceType)
	assert.Equal(t, "orphan", scaffold.TableName)
}

func TestBuild_UnmappedWithoutParamsDisabled(t *testing.T) {
	e, dir := newFileEngine(t)
	e.project.Settings.ReportUnmappedWithoutParams = false
	testutil.WriteFiles(t, dir, map[string]string{
		"sql/staging.sql": "SELECT * FROM {{ params.TBL }}",
	})

	result, err := e.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Unmapped, 2)

	byKey := make(map[string]UnmappedEntry)
	for _, u := range result.Unmapped {
		byKey[u.Template.Key()] = u
	}

	l, ok := byKey[filepath.Join(dir, "sql", "l.sql")]
	require.True(t, ok)
	assert.Equal(t, []string{"params.DAY"}, l.Params)

	// Unmapped with placeholders is still reported; orphan.sql has none.
	_, ok = byKey[filepath.Join(dir, "sql", "staging.sql")]
	assert.True(t, ok)
	_, ok = byKey[filepath.Join(dir, "sql", "orphan.sql")]
	assert.False(t, ok)
}

func TestBuild_IgnoreParameters(t *testing.T) {
	e, _ := newFileEngine(t)
	e.mapping.Mapping[2].Tables[0].IgnoreParameters = []string{"params.DAY"}
	e.project.Settings.ReportUnmappedWithoutParams = false

	result, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Unmapped)
}

func TestBuild_InvalidMapping(t *testing.T) {
	e, _ := newFileEngine(t)
	e.mapping.Mapping = append(e.mapping.Mapping, config.MappingEntry{
		TemplateSourceType: "File",
		Tables:             []config.MappedTable{{TableName: "x"}},
	})

	_, err := e.Build(context.Background())
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "FileSuffix is required")
}

func TestBuild_UnknownSource(t *testing.T) {
	e := New(Config{Project: &config.ProjectConfig{
		Include: []config.Include{{TemplateSourceType: "ftp"}},
	}})

	_, err := e.Build(context.Background())
	var unknown *source.UnknownSourceError
	assert.ErrorAs(t, err, &unknown)
}

func TestBuild_ReplacesPreviousMap(t *testing.T) {
	e, _ := newFileEngine(t)
	require.NoError(t, e.LoadBytes([]byte(`{"old":{"older":{"template":{"key":"k","source_kind":"FILE"},"lines":[]}}}`)))

	_, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, e.ListTables(), "old")
}

func TestBuild_Canceled(t *testing.T) {
	e, _ := newFileEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Build(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
