package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/engine"
)

// LineageOptions holds options for the up and down commands.
type LineageOptions struct {
	Tables      []string
	Labels      []string
	Recursive   bool
	VerboseTree bool
	Response    string
}

// NewUpCommand creates the up command.
func NewUpCommand() *cobra.Command {
	return newLineageCommand(dag.Upstream)
}

// NewDownCommand creates the down command.
func NewDownCommand() *cobra.Command {
	return newLineageCommand(dag.Downstream)
}

func newLineageCommand(dir dag.Direction) *cobra.Command {
	opts := &LineageOptions{}

	use, short, long, example := "up [table...]", "Show the tables a table reads from",
		`Display the upstream tables of one or more tables.

Tables are given as arguments, with --table, or selected with --label
key:value (every label must match). The map is built from the project
unless --load points at saved maps.`,
		`  # Direct upstream tables
  leaplineage up proj.ds.orders

  # Every table upstream, as a tree with templates and line numbers
  leaplineage up -t proj.ds.orders --recursive --verbose-tree

  # Template URIs instead of table names, from a saved map
  leaplineage up proj.ds.orders --response uri --load gs://maps/nightly.json

  # Tables selected by label
  leaplineage up -l team:sales -o json`
	if dir == dag.Downstream {
		use, short, long, example = "down [table...]", "Show the tables that read from a table",
			`Display the downstream tables of one or more tables.

Tables are given as arguments, with --table, or selected with --label
key:value (every label must match). The map is built from the project
unless --load points at saved maps.`,
			`  # Direct downstream tables
  leaplineage down raw.shop.customers

  # Full impact of a change
  leaplineage down raw.shop.customers --recursive

  # Nested JSON with the templates that create each edge
  leaplineage down raw.shop.customers -r --verbose-tree -o json`
	}

	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		Example: example,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Tables = append(append([]string(nil), args...), opts.Tables...)
			return runLineage(cmd, dir, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Tables, "table", "t", nil, "Table to start from (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Labels, "label", "l", nil, "Select tables by key:value label (repeatable)")
	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "Follow dependencies transitively")
	cmd.Flags().BoolVar(&opts.VerboseTree, "verbose-tree", false, "Show the nested tree with templates and lines")
	cmd.Flags().StringVar(&opts.Response, "response", string(engine.ResponseTable), "List table names or template URIs (table|uri)")

	_ = cmd.RegisterFlagCompletionFunc("response", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "uri"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runLineage(cmd *cobra.Command, dir dag.Direction, opts *LineageOptions) error {
	response, err := engine.ParseResponseKind(opts.Response)
	if err != nil {
		return err
	}
	if len(opts.Tables) == 0 && len(opts.Labels) == 0 {
		return errors.New("no table given\nHint: pass a table name, --table, or --label key:value")
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	if _, err := cmdCtx.LoadOrBuild(cmd.Context()); err != nil {
		return err
	}

	tables, err := selectTables(eng, opts)
	if err != nil {
		return err
	}

	query := eng.Upstream
	if dir == dag.Downstream {
		query = eng.Downstream
	}
	qopts := engine.QueryOptions{
		Recursive: opts.Recursive,
		Verbose:   opts.VerboseTree,
		Response:  response,
	}
	results := make([]*engine.QueryResult, 0, len(tables))
	for _, table := range tables {
		results = append(results, query(table, qopts))
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return lineageJSON(r, results, qopts)
	default:
		lineageText(r, results, qopts)
		return nil
	}
}

// selectTables returns the requested tables followed by the label
// matches, without duplicates.
func selectTables(eng *engine.Engine, opts *LineageOptions) ([]string, error) {
	tables := append([]string(nil), opts.Tables...)
	if len(opts.Labels) > 0 {
		labeled, err := eng.TablesByLabels(opts.Labels)
		if err != nil {
			return nil, err
		}
		tables = append(tables, labeled...)
	}

	seen := make(map[string]bool, len(tables))
	out := tables[:0]
	for _, t := range tables {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// lineageJSON writes {"table": [...]} for flat results, or the merged
// nested trees keyed by start table.
func lineageJSON(r *output.Renderer, results []*engine.QueryResult, opts engine.QueryOptions) error {
	if opts.Verbose {
		merged := make(map[string]any, len(results))
		for _, res := range results {
			for k, v := range res.Verbose {
				merged[k] = v
			}
		}
		return r.JSON(merged)
	}

	flat := make(map[string][]string, len(results))
	for _, res := range results {
		items := res.Tables
		if opts.Response == engine.ResponseURI {
			items = res.URIs
		}
		if items == nil {
			items = []string{}
		}
		flat[res.Table] = items
	}
	return r.JSON(flat)
}

func lineageText(r *output.Renderer, results []*engine.QueryResult, opts engine.QueryOptions) {
	for _, res := range results {
		if opts.Verbose {
			r.Tree(res.Tree, true)
			r.Println("")
			continue
		}
		items, kind := res.Tables, "tables"
		if opts.Response == engine.ResponseURI {
			items, kind = res.URIs, "templates"
		}
		r.Header(2, fmt.Sprintf("%s of %s (%d %s)", res.Direction, res.Table, len(items), kind))
		r.List(items)
		r.Println("")
	}
}
