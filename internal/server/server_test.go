package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/engine"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMap = `{
  "p.d.d": {
    "p.d.c": {"template": {"key": "d.sql", "source_kind": "FILE", "uri": "/sql/d.sql"}, "lines": [{"line_number": 1, "line_string": "FROM p.d.c"}]}
  },
  "p.d.c": {
    "p.d.a": {"template": {"key": "c.sql", "source_kind": "FILE", "uri": "/sql/c.sql"}, "lines": [{"line_number": 1, "line_string": "FROM p.d.a"}]}
  }
}`

func newLoadedServer(t *testing.T) *httptest.Server {
	t.Helper()
	e := engine.New(engine.Config{
		Mapping: &config.MappingConfig{Mapping: []config.MappingEntry{{
			TemplateSourceType: "File",
			FileSuffix:         "d.sql",
			Tables:             []config.MappedTable{{TableName: "p.d.d", Labels: map[string]string{"team": "sales"}}},
		}}},
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, e.LoadBytes([]byte(testMap)))

	ts := httptest.NewServer(New(Config{Engine: e, Logger: testutil.NewTestLogger(t)}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHandleTraverse(t *testing.T) {
	ts := newLoadedServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		tables []string
		uris   []string
	}{
		{"upstream one hop", "/api/upstream/p.d.d", http.StatusOK, []string{"p.d.c"}, nil},
		{"upstream recursive", "/api/upstream/p.d.d?recursive=true", http.StatusOK, []string{"p.d.a", "p.d.c"}, nil},
		{"downstream recursive", "/api/downstream/p.d.a?recursive=1", http.StatusOK, []string{"p.d.c", "p.d.d"}, nil},
		{"uris", "/api/upstream/p.d.d?recursive=true&response=uri", http.StatusOK, nil, []string{"/sql/c.sql", "/sql/d.sql"}},
		{"bad flag", "/api/upstream/p.d.d?recursive=maybe", http.StatusBadRequest, nil, nil},
		{"bad response", "/api/upstream/p.d.d?response=graph", http.StatusBadRequest, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res engine.QueryResult
			status := getJSON(t, ts.URL+tt.path, &res)
			assert.Equal(t, tt.status, status)
			if status == http.StatusOK {
				assert.Equal(t, tt.tables, res.Tables)
				assert.Equal(t, tt.uris, res.URIs)
			}
		})
	}
}

func TestHandleTraverse_Verbose(t *testing.T) {
	ts := newLoadedServer(t)

	var res struct {
		Verbose map[string]map[string]map[string]json.RawMessage `json:"verbose"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/upstream/p.d.d?verbose=true&recursive=true", &res))
	assert.Contains(t, res.Verbose["p.d.d"]["Upstream"], "p.d.c")
}

func TestHandleListsAndLabels(t *testing.T) {
	ts := newLoadedServer(t)

	var tables []string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/tables", &tables))
	assert.Equal(t, []string{"p.d.a", "p.d.c", "p.d.d"}, tables)

	var uris []string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/uris", &uris))
	assert.Equal(t, []string{"/sql/c.sql", "/sql/d.sql"}, uris)

	var labeled []string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/labels?label=team:sales", &labeled))
	assert.Equal(t, []string{"p.d.d"}, labeled)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/labels?label=team:ops", &labeled))
	assert.Empty(t, labeled)

	var errResp errorResponse
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/labels?label=team", &errResp))
	assert.Contains(t, errResp.Error, "key:value")
}

func TestHandleMap(t *testing.T) {
	ts := newLoadedServer(t)

	resp, err := http.Get(ts.URL + "/api/map") //nolint:noctx // test
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, testMap, string(body))
}

func TestHandleGraph_DOT(t *testing.T) {
	ts := newLoadedServer(t)

	resp, err := http.Get(ts.URL + "/api/graph.svg?format=dot&table=p.d.a&direction=down") //nolint:noctx // test
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"p.d.a" -> "p.d.c";`)
	assert.Contains(t, string(body), `"p.d.c" -> "p.d.d";`)

	var errResp errorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/graph.svg?table=p.d.a&direction=sideways", &errResp))
}

func newFileServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"sql/out.sql":    "SELECT * FROM p.d.src",
		"sql/orphan.sql": "SELECT * FROM p.d.other",
	})
	e := engine.New(engine.Config{
		Project: &config.ProjectConfig{
			Include:  []config.Include{{TemplateSourceType: "File", FileSystemPath: filepath.Join(dir, "sql")}},
			Settings: config.Settings{ReportUnmappedWithoutParams: true},
		},
		Mapping: &config.MappingConfig{Mapping: []config.MappingEntry{{
			TemplateSourceType: "File",
			FileSuffix:         "out.sql",
			Tables:             []config.MappedTable{{TableName: "p.d.out"}},
		}}},
		Logger: testutil.NewTestLogger(t),
	})
	t.Cleanup(func() { _ = e.Close() })
	return New(Config{Engine: e, WatchDirs: []string{dir}, Debounce: 10 * time.Millisecond, Logger: testutil.NewTestLogger(t)}), dir
}

func TestHandleBuild(t *testing.T) {
	s, dir := newFileServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/build", "application/json", nil) //nolint:noctx // test
	require.NoError(t, err)
	defer resp.Body.Close()

	var build buildResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&build))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, build.Templates)
	assert.Equal(t, 2, build.Tables)
	assert.Equal(t, 1, build.Unmapped)
	assert.Empty(t, build.Errors)

	var unmapped []unmappedResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/unmapped", &unmapped))
	require.Len(t, unmapped, 1)
	assert.Equal(t, filepath.Join(dir, "sql", "orphan.sql"), unmapped[0].Key)
	assert.Equal(t, []string{}, unmapped[0].Params)
}

func TestHandleEvents(t *testing.T) {
	s, _ := newFileServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// the subscription exists once the headers have been flushed
	_, err = s.Rebuild(ctx)
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	line := string(buf[:n])
	assert.True(t, strings.HasPrefix(line, "event: build\n"), line)
	assert.Contains(t, line, `"tables":2`)
}

func TestWatchRebuildsOnChange(t *testing.T) {
	s, dir := newFileServer(t)
	ch := s.notifier.subscribe()
	defer s.notifier.unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.watchFiles(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case ev := <-ch:
			assert.Empty(t, ev.Failed)
			assert.Equal(t, 3, ev.Templates)
			return
		case <-tick.C:
			// keep touching the file until the watcher has registered
			require.NoError(t, os.WriteFile(filepath.Join(dir, "sql", "new.sql"), []byte("SELECT 1"), 0o600))
		case <-deadline:
			t.Fatal("no rebuild after file change")
		}
	}
}
