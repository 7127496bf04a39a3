package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	intconfig "github.com/leapstack-labs/leaplineage/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a project file",
		Long: `Create a leaplineage.yaml listing one include of each template source
type with placeholder values. Remove the sources you do not use and fill
in the rest. An existing project file is never overwritten.`,
		Example: `  # Initialize the current directory
  leaplineage init

  # Initialize another directory
  leaplineage init ./lineage`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir)
		},
	}
	return cmd
}

func runInit(cmd *cobra.Command, dir string) error {
	cmdCtx, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	path, err := intconfig.WriteProjectTemplate(abs)
	if err != nil {
		return err
	}

	cmdCtx.Logger.Debug("project file written", "path", path)
	cmdCtx.Renderer.Success(fmt.Sprintf("Created %s", path))
	cmdCtx.Renderer.Muted("Next: edit the includes, then run 'leaplineage check'")
	return nil
}
