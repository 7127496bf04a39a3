package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingTemplate(t *testing.T) {
	m := MappingTemplate([]UnmappedTemplate{
		{SourceType: "File", Key: "sql/a.sql", TableName: "a", Params: []string{"params.PROJECT", "params.nested.TABLE"}},
		{SourceType: "GCS", Key: "sql/b.sql", URI: "gs://bucket/sql/b.sql", TableName: "b"},
		{SourceType: "Redash", Key: "7", DataSourceName: "metadata", TableName: "Query 7"},
		{SourceType: "dbt", Key: "models/c.sql", ProjectName: "shop", TableName: "c"},
	})

	require.Len(t, m.Mapping, 4)
	assert.Equal(t, "sql/a.sql", m.Mapping[0].FileSuffix)
	assert.Equal(t, []string{"params.PROJECT", "params.nested.TABLE"}, flattenTable(m.Mapping[0].Tables[0]))
	assert.Equal(t, "gs://bucket/sql/b.sql", m.Mapping[1].Uri)
	assert.Nil(t, m.Mapping[1].Tables[0].Parameters)
	assert.Equal(t, 7, m.Mapping[2].QueryId)
	assert.Equal(t, "metadata", m.Mapping[2].DataSourceName)
	assert.Equal(t, "shop", m.Mapping[3].ProjectName)
	assert.NoError(t, m.Validate())
}

func TestWriteMappingTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	path, err := WriteMappingTemplate(dir, "mapping", []UnmappedTemplate{
		{SourceType: "File", Key: "sql/a.sql", TableName: "a", Params: []string{"params.PROJECT"}},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mapping_checked_20240506070809.yaml"), path)

	m, err := LoadMappingFile(path)
	require.NoError(t, err)
	require.Len(t, m.Mapping, 1)
	assert.Equal(t, "File", m.Mapping[0].TemplateSourceType)
	assert.Equal(t, "sql/a.sql", m.Mapping[0].FileSuffix)
	assert.Equal(t, "a", m.Mapping[0].Tables[0].TableName)

	// the default mapping file name is unaffected
	loaded, err := LoadMapping(dir, Settings{MappingPrefix: "mapping"})
	require.NoError(t, err)
	assert.Empty(t, loaded.Mapping)
}

func TestWriteProjectTemplate(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteProjectTemplate(dir)
	require.NoError(t, err)

	cfg, err := LoadProjectFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Include, 6)
	assert.Equal(t, DefaultMappingPrefix, cfg.Settings.MappingPrefix)

	_, err = WriteProjectTemplate(dir)
	assert.ErrorContains(t, err, "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TemplateSourceType: File")
}

func flattenTable(table MappedTable) []string {
	return flattenGlobal(&MappingConfig{Global: Global{Parameters: table.Parameters}})
}
