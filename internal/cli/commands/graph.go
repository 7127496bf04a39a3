package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/render"
)

// GraphOptions holds options for the graph command.
type GraphOptions struct {
	Table     string
	Direction string
	Format    string
	Out       string
	Labels    bool
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	opts := &GraphOptions{}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the map as a Graphviz diagram",
		Long: `Export the dependency map as DOT or SVG.

Without --table the whole map is drawn. With --table only the edges of a
recursive traversal from that table are drawn, and the table itself is
highlighted.`,
		Example: `  # Whole map as DOT
  leaplineage graph > map.dot

  # Everything downstream of a table, as SVG
  leaplineage graph -t raw.shop.customers --direction down --format svg --out impact.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "Draw only what a traversal from this table reaches")
	cmd.Flags().StringVar(&opts.Direction, "direction", "up", "Traversal direction with --table (up|down)")
	cmd.Flags().StringVar(&opts.Format, "format", "dot", "Diagram format (dot|svg)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Write the diagram to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.Labels, "labels", false, "Show edge labels on arrows")

	_ = cmd.RegisterFlagCompletionFunc("direction", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"up", "down"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dot", "svg"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func parseDirection(s string) (dag.Direction, error) {
	switch strings.ToLower(s) {
	case "up", "upstream":
		return dag.Upstream, nil
	case "down", "downstream":
		return dag.Downstream, nil
	default:
		return 0, fmt.Errorf("invalid direction %q\nHint: use up or down", s)
	}
}

func runGraph(cmd *cobra.Command, opts *GraphOptions) error {
	format := strings.ToLower(opts.Format)
	if format != "dot" && format != "svg" {
		return fmt.Errorf("invalid format %q\nHint: use dot or svg", opts.Format)
	}
	dir, err := parseDirection(opts.Direction)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if _, err := cmdCtx.LoadOrBuild(ctx); err != nil {
		return err
	}

	g := cmdCtx.Engine.Graph()
	ropts := render.Options{Labels: opts.Labels}

	var dot string
	if opts.Table != "" {
		tree := dag.Traverse(g, opts.Table, dag.TraverseOptions{
			Direction: dir,
			Recursive: true,
			Logger:    cmdCtx.Logger,
		})
		dot = render.TreeDOT(g, tree, ropts)
	} else {
		dot = render.GraphDOT(g, ropts)
	}

	data := []byte(dot)
	if format == "svg" {
		data, err = render.SVG(ctx, dot)
		if err != nil {
			return fmt.Errorf("failed to render SVG: %w", err)
		}
	}

	if opts.Out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.Out, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.Out, err)
	}
	cmdCtx.Renderer.Success(fmt.Sprintf("Diagram written to %s", opts.Out))
	return nil
}
