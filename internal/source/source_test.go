package source

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/params"
	"github.com/leapstack-labs/leaplineage/internal/storage"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Open_Unknown(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Open(config.Include{TemplateSourceType: "ftp"}, Deps{})

	var unknown *UnknownSourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ftp", unknown.Type)
	assert.Equal(t, []string{"AzureBlob", "File", "GCS", "Redash", "S3", "dbt"}, unknown.Available)
	assert.Contains(t, err.Error(), "Hint:")
}

func TestRegistry_Lookup_CaseInsensitive(t *testing.T) {
	r := DefaultRegistry()
	typ, ok := r.Lookup("gcs")
	require.True(t, ok)
	assert.Equal(t, TypeGCS, typ)
}

func TestRegistry_Open_ValidatesInclude(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		name string
		inc  config.Include
		msg  string
	}{
		{"file", config.Include{TemplateSourceType: "File"}, "FileSystemPath"},
		{"gcs", config.Include{TemplateSourceType: "GCS"}, "BucketName"},
		{"redash", config.Include{TemplateSourceType: "Redash"}, "DataSourceName"},
		{"dbt", config.Include{TemplateSourceType: "dbt"}, "ProjectDir"},
		{"bad regex", config.Include{TemplateSourceType: "File", FileSystemPath: ".", Regex: "("}, "invalid Regex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Open(tt.inc, Deps{})
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestFileSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"queries/a.sql":        "SELECT * FROM {{ params.PROJECT }}.d.src",
		"queries/skip/b.sql":   "SELECT 1",
		"queries/readme.md":    "# docs",
		"queries/nested/c.sql": "SELECT 2",
	})

	src, err := DefaultRegistry().Open(config.Include{
		TemplateSourceType: "file",
		FileSystemPath:     filepath.Join(dir, "queries"),
		DefaultTablePrefix: "P.D",
	}, Deps{
		Exclude: []config.ExcludeRule{{TemplateSourceType: "File", Regex: "/skip/"}},
		Logger:  testutil.NewTestLogger(t),
	})
	require.NoError(t, err)

	templates, err := src.Templates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)

	a := templates[0]
	assert.Equal(t, filepath.Join(dir, "queries", "a.sql"), a.Key())
	assert.Equal(t, KindFile, a.Kind())
	assert.Equal(t, TypeFile, a.Type())
	assert.True(t, filepath.IsAbs(a.URI()))
	assert.Equal(t, "P.D", a.DefaultTablePrefix())
	assert.Equal(t, "a", DefaultTableName(a))

	rendered, err := a.Render(ctx, params.Set{"params": params.Set{"PROJECT": "PROJ"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM PROJ.d.src", rendered)

	assert.Equal(t, filepath.Join(dir, "queries", "nested", "c.sql"), templates[1].Key())
}

func TestFileSource_MissingDirectory(t *testing.T) {
	src, err := NewFileSource(config.Include{
		TemplateSourceType: "File",
		FileSystemPath:     filepath.Join(t.TempDir(), "nope"),
	}, Deps{}.withDefaults())
	require.NoError(t, err)

	_, err = src.Templates(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// memBucket is an in-memory object store.
type memBucket struct {
	mu      sync.Mutex
	objects map[string]string
}

func (b *memBucket) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return []byte(v), nil
}

func (b *memBucket) Write(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = string(data)
	return nil
}

func (b *memBucket) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func TestObjectSource(t *testing.T) {
	ctx := context.Background()
	bucket := &memBucket{objects: map[string]string{
		"sql/one.sql":       "SELECT * FROM {{ params.DATASET }}.t",
		"sql/two.sql":       "SELECT 2",
		"sql/notes.txt":     "ignore me",
		"archive/three.sql": "SELECT 3",
	}}

	for _, tc := range []struct {
		typ    string
		scheme string
	}{
		{"GCS", storage.SchemeGCS},
		{"S3", storage.SchemeS3},
		{"AzureBlob", storage.SchemeAzure},
	} {
		t.Run(tc.typ, func(t *testing.T) {
			store := storage.New(storage.Options{})
			store.Register(tc.scheme, func(_ context.Context, name string) (storage.Bucket, error) {
				assert.Equal(t, "lineage", name)
				return bucket, nil
			})

			src, err := DefaultRegistry().Open(config.Include{
				TemplateSourceType: tc.typ,
				BucketName:         "lineage",
				Prefix:             "sql/",
				ProjectId:          "proj",
				Regex:              `sql/.*\.sql`,
			}, Deps{Store: store, Exclude: []config.ExcludeRule{{TemplateSourceType: tc.typ, Regex: "two"}}})
			require.NoError(t, err)

			templates, err := src.Templates(ctx)
			require.NoError(t, err)
			require.Len(t, templates, 1)

			tmpl := templates[0]
			assert.Equal(t, "sql/one.sql", tmpl.Key())
			assert.Equal(t, tc.scheme+"://lineage/sql/one.sql", tmpl.URI())
			assert.Equal(t, KindObjectStore, tmpl.Kind())
			assert.Equal(t, "lineage", tmpl.Bucket())

			raw, err := tmpl.RawText(ctx)
			require.NoError(t, err)
			assert.Contains(t, raw, "{{ params.DATASET }}")

			rendered, err := tmpl.Render(ctx, params.Set{"params": map[string]any{"DATASET": "ds"}}, nil)
			require.NoError(t, err)
			assert.Equal(t, "SELECT * FROM ds.t", rendered)
		})
	}
}

func TestRef(t *testing.T) {
	tmpl := &RedashTemplate{meta: meta{
		key:            "5",
		kind:           KindBIQuery,
		typ:            TypeRedash,
		uri:            "Daily orders",
		dataSourceName: "metadata",
	}}

	ref := Ref(tmpl)
	assert.Equal(t, "5", ref.Key)
	assert.Equal(t, "BI_QUERY", ref.SourceKind)
	assert.Equal(t, "Redash", ref.SourceType)
	assert.Equal(t, "metadata", ref.DataSourceName)
	assert.Equal(t, "Daily orders", DefaultTableName(tmpl))

	target := MatchTarget(tmpl)
	assert.Equal(t, config.Target{SourceType: "Redash", Key: "5", URI: "Daily orders", DataSourceName: "metadata"}, target)
}
