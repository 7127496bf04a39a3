// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
)

// Project files written by SetupTestProject. The resulting map is:
//
//	proj.ds.orders    <- proj.ds.customers (line 2), raw.shop.orders (line 3)
//	proj.ds.customers <- raw.shop.customers (line 1)
//	proj.ds.daily     <- raw.shop.events (line 1)
//
// daily.sql uses params.DAY, which no mapping defines, so it is also
// reported as unmapped. report.sql matches no mapping entry.
var projectFiles = map[string]string{
	"leaplineage.yaml": `Include:
  - TemplateSourceType: File
    FileSystemPath: sql
    Regex: ".*\\.sql$"
    DefaultTablePrefix: proj.ds
`,
	"mapping.yaml": `Global:
  Parameters:
    params:
      DATASET: ds
Mapping:
  - TemplateSourceType: File
    FileSuffix: /orders.sql
    Tables:
      - TableName: proj.ds.orders
        Labels:
          team: sales
  - TemplateSourceType: File
    FileSuffix: /customers.sql
    Tables:
      - TableName: proj.ds.customers
        Labels:
          team: sales
          tier: gold
  - TemplateSourceType: File
    FileSuffix: /daily.sql
    Tables:
      - TableName: proj.ds.daily
ExtraLabels:
  - TableName: raw.shop.customers
    Labels:
      owner: ingest
`,
	"sql/orders.sql":    "SELECT *\nFROM {{ params.DATASET }}.customers c\nJOIN raw.shop.orders o ON o.customer_id = c.id",
	"sql/customers.sql": "SELECT * FROM raw.shop.customers",
	"sql/daily.sql":     "SELECT * FROM raw.shop.events WHERE dt = '{{ params.DAY }}'",
	"sql/report.sql":    "SELECT 1",
}

// SetupTestProject creates a temporary project with a File source, a
// mapping file and a handful of templates. It returns the project dir.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range projectFiles {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	return dir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}

	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
