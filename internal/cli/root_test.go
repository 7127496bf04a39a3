package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/internal/cli/testutil"
)

func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"version", "init", "map", "check", "up", "down", "list", "graph", "serve", "completion"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	for _, flag := range []string{"config", "config-dir", "load", "save", "output", "verbose", "concurrency"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRootCmd_Up(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := executeRoot(t, "--config-dir", dir, "-o", "json", "up", "proj.ds.orders")
	require.NoError(t, err)

	var got map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.ElementsMatch(t, []string{"proj.ds.customers", "raw.shop.orders"}, got["proj.ds.orders"])
}

func TestRootCmd_EnvOutput(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	t.Setenv("LEAPLINEAGE_OUTPUT", "json")

	out, _, err := executeRoot(t, "--config-dir", dir, "list")
	require.NoError(t, err)

	var got map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got["tables"], "proj.ds.orders")
}

func TestRootCmd_InvalidOutput(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	_, _, err := executeRoot(t, "--config-dir", dir, "-o", "yaml", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output")
}

func TestRootCmd_Verbose(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	_, errOut, err := executeRoot(t, "--config-dir", dir, "-v", "-o", "json", "list")
	require.NoError(t, err)
	assert.Contains(t, errOut, "using config directory")
}

func TestCompletionCommand(t *testing.T) {
	out, _, err := executeRoot(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "leaplineage")

	_, _, err = executeRoot(t, "completion", "tcsh")
	require.Error(t, err)
}
