package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/leapstack-labs/leaplineage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		input   string
		want    Locator
		wantErr bool
	}{
		{input: "out/map.json", want: Locator{Scheme: SchemeFile, Key: "out/map.json"}},
		{input: "file:///tmp/map.json", want: Locator{Scheme: SchemeFile, Key: "/tmp/map.json"}},
		{input: "gs://bucket/dir/map.json", want: Locator{Scheme: SchemeGCS, Bucket: "bucket", Key: "dir/map.json"}},
		{input: "s3://bucket/map.json", want: Locator{Scheme: SchemeS3, Bucket: "bucket", Key: "map.json"}},
		{input: "az://container/sql/", want: Locator{Scheme: SchemeAzure, Bucket: "container", Key: "sql/"}},
		{input: "sqlite:///var/lineage.db", want: Locator{Scheme: SchemeSQLite, Bucket: "/var/lineage.db", Key: DefaultSnapshotName}},
		{input: "sqlite://lineage.db?name=prod", want: Locator{Scheme: SchemeSQLite, Bucket: "lineage.db", Key: "prod"}},
		{input: "", wantErr: true},
		{input: "gs:///nobucket", wantErr: true},
		{input: "ftp://host/file", wantErr: true},
		{input: "sqlite://?name=x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLocator(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocator_String(t *testing.T) {
	for _, s := range []string{"out/map.json", "gs://bucket/dir/map.json", "sqlite://lineage.db?name=prod"} {
		loc, err := ParseLocator(s)
		require.NoError(t, err)
		assert.Equal(t, s, loc.String())
	}
}

func TestStore_Local(t *testing.T) {
	ctx := context.Background()
	store := New(Options{Logger: testutil.NewTestLogger(t)})
	defer store.Close()

	path := filepath.Join(t.TempDir(), "nested", "map.json")

	_, err := store.Read(ctx, path)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, path, []byte(`{"a":{}}`)))
	data, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{}}`, string(data))

	require.NoError(t, store.Write(ctx, "file://"+path, []byte(`{}`)))
	data, err = store.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_LocalList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"b.sql":     "SELECT 1",
		"sub/a.sql": "SELECT 2",
	})

	locs, err := New(Options{}).List(ctx, dir)
	require.NoError(t, err)

	var keys []string
	for _, l := range locs {
		keys = append(keys, l.Key)
	}
	assert.Equal(t, []string{filepath.Join(dir, "b.sql"), filepath.Join(dir, "sub", "a.sql")}, keys)

	_, err = New(Options{}).List(ctx, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SQLiteSnapshots(t *testing.T) {
	ctx := context.Background()
	store := New(Options{})
	defer store.Close()

	db := filepath.Join(t.TempDir(), "lineage.db")
	locator := "sqlite://" + db + "?name=prod"

	_, err := store.Read(ctx, locator)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, locator, []byte(`{"v":1}`)))
	require.NoError(t, store.Write(ctx, locator, []byte(`{"v":2}`)))
	require.NoError(t, store.Write(ctx, "sqlite://"+db, []byte(`{"v":3}`)))

	data, err := store.Read(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	locs, err := store.List(ctx, "sqlite://"+db+"?name=pr")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "prod", locs[0].Key)
}

// memBucket is an in-memory object store for tests.
type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBucket(objects map[string]string) *memBucket {
	b := &memBucket{objects: make(map[string][]byte)}
	for k, v := range objects {
		b.objects[k] = []byte(v)
	}
	return b
}

func (b *memBucket) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (b *memBucket) Write(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
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

func TestStore_RegisteredOpener(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket(map[string]string{
		"sql/a.sql":  "SELECT 1",
		"sql/b.sql":  "SELECT 2",
		"other.json": "{}",
	})

	opened := 0
	store := New(Options{})
	store.Register(SchemeGCS, func(_ context.Context, name string) (Bucket, error) {
		opened++
		assert.Equal(t, "bucket", name)
		return bucket, nil
	})

	locs, err := store.List(ctx, "gs://bucket/sql/")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "gs://bucket/sql/a.sql", locs[0].String())

	data, err := store.Read(ctx, "gs://bucket/sql/b.sql")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", string(data))

	_, err = store.Read(ctx, "gs://bucket/missing.sql")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, opened)

	// derived stores keep registered openers
	derived := store.With(Options{GCSCredentialsFile: "/creds.json"})
	_, err = derived.Read(ctx, "gs://bucket/sql/a.sql")
	require.NoError(t, err)
	assert.Equal(t, 2, opened)
}

func TestOptions_Merge(t *testing.T) {
	base := Options{S3Region: "eu-west-1", AzureAccountName: "acct"}
	got := base.merge(Options{S3Region: "us-east-2", S3UsePathStyle: true})

	assert.Equal(t, "us-east-2", got.S3Region)
	assert.Equal(t, "acct", got.AzureAccountName)
	assert.True(t, got.S3UsePathStyle)
}
