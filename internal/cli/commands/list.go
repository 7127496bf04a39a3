package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/engine"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var response string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every table or template in the map",
		Long: `List all tables of the dependency map with their direct upstream and
downstream counts, or every template URI with --response uri.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List all tables (auto-detect output format)
  leaplineage list

  # List template URIs as JSON
  leaplineage list --response uri -o json

  # List tables of saved maps
  leaplineage list --load maps/a.json --load maps/b.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, response)
		},
	}

	cmd.Flags().StringVar(&response, "response", string(engine.ResponseTable), "List table names or template URIs (table|uri)")

	return cmd
}

func runList(cmd *cobra.Command, response string) error {
	kind, err := engine.ParseResponseKind(response)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	if _, err := cmdCtx.LoadOrBuild(cmd.Context()); err != nil {
		return err
	}

	if kind == engine.ResponseURI {
		uris := eng.ListURIs()
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(map[string][]string{"uris": nonNil(uris)})
		}
		r.Header(1, fmt.Sprintf("Templates (%d total)", len(uris)))
		r.List(uris)
		return nil
	}

	tables := eng.ListTables()
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string][]string{"tables": nonNil(tables)})
	}

	graph := eng.Graph()
	rows := make([][]string, 0, len(tables))
	for _, t := range tables {
		rows = append(rows, []string{
			t,
			strconv.Itoa(len(graph.Upstream(t))),
			strconv.Itoa(len(graph.Downstream(t))),
		})
	}
	r.Header(1, fmt.Sprintf("Tables (%d total)", len(tables)))
	r.Table([]string{"table", "upstream", "downstream"}, rows)
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
