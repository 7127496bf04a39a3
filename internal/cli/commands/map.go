package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
)

// NewMapCommand creates the map command.
func NewMapCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Build the dependency map",
		Long: `Build the dependency map from every template source of the project and
print it as JSON, or write it to --save.

Templates that cannot be read or rendered are reported and skipped. Use
--strict to fail when any template was skipped.

Locators accepted by --save and --load:
  path/to/map.json            local file
  gs://bucket/key.json        Google Cloud Storage
  s3://bucket/key.json        Amazon S3
  az://container/key.json     Azure Blob Storage
  sqlite://path/maps.db?name=nightly
                              named snapshot in a SQLite database`,
		Example: `  # Print the map
  leaplineage map

  # Save it to a bucket
  leaplineage map --save gs://lineage/maps/nightly.json

  # Merge saved maps into one file
  leaplineage map --load a.json --load b.json --save merged.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMap(cmd, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when a template could not be read or rendered")

	return cmd
}

func runMap(cmd *cobra.Command, strict bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	result, err := cmdCtx.LoadOrBuild(cmd.Context())
	if err != nil {
		return err
	}
	if result != nil {
		r.Muted(result.Summary())
		if strict && result.HasErrors() {
			return errors.New("some templates could not be processed")
		}
	}

	if cmdCtx.Cfg.Save != "" {
		return nil
	}

	data, err := cmdCtx.Engine.SaveBytes()
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println("```json")
		r.Println(string(data))
		r.Println("```")
		return nil
	}
	r.Println(string(data))
	return nil
}

// formatCount pluralizes a noun.
func formatCount(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
