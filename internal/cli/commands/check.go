package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	intconfig "github.com/leapstack-labs/leaplineage/internal/config"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	DryRun bool
	Strict bool
}

// unmappedJSON is the JSON form of one unmapped template.
type unmappedJSON struct {
	URI    string   `json:"uri"`
	Source string   `json:"source"`
	Params []string `json:"params"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report templates without a mapping",
		Long: `Build the map and report every template that no mapping entry selects,
and every mapped template whose placeholders stay undefined.

A mapping template listing the reported templates is written to the
config directory as <MappingPrefix>_checked_<timestamp>.yaml. Fill in
the table names and parameters, then merge it into the mapping file.`,
		Example: `  # Report and write a mapping template
  leaplineage check

  # Only report
  leaplineage check --dry-run

  # Fail in CI when anything is unmapped
  leaplineage check --dry-run --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report without writing a mapping template")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Exit with an error when a template is unmapped")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cmdCtx.Project == nil {
		return errors.New("check needs a project\nHint: run in a directory with leaplineage.yaml or pass --config-dir")
	}

	result, err := cmdCtx.Engine.Build(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to build map: %w", err)
	}
	for _, e := range result.Errors {
		cmdCtx.Renderer.Warning(e.Error())
	}

	r := cmdCtx.Renderer
	unmapped := result.Unmapped

	scaffolds := make([]intconfig.UnmappedTemplate, 0, len(unmapped))
	for _, u := range unmapped {
		scaffolds = append(scaffolds, u.Scaffold())
	}

	var path string
	if len(scaffolds) > 0 && !opts.DryRun {
		path, err = intconfig.WriteMappingTemplate(cmdCtx.Cfg.ConfigDir, cmdCtx.Project.Settings.MappingPrefix, scaffolds, time.Now())
		if err != nil {
			return fmt.Errorf("failed to write mapping template: %w", err)
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		items := make([]unmappedJSON, 0, len(scaffolds))
		for _, s := range scaffolds {
			params := s.Params
			if params == nil {
				params = []string{}
			}
			items = append(items, unmappedJSON{URI: s.URI, Source: s.SourceType, Params: params})
		}
		if err := r.JSON(map[string]any{"unmapped": items, "template": path}); err != nil {
			return err
		}
	} else {
		if len(scaffolds) == 0 {
			r.Success("Every template is mapped")
			return nil
		}
		rows := make([][]string, 0, len(scaffolds))
		for _, s := range scaffolds {
			params := strings.Join(s.Params, ", ")
			if params == "" {
				params = "(no mapping)"
			}
			rows = append(rows, []string{s.URI, s.SourceType, params})
		}
		r.Header(1, fmt.Sprintf("Unmapped (%s)", formatCount(len(scaffolds), "template")))
		r.Table([]string{"template", "source", "undefined params"}, rows)
		if path != "" {
			r.Success(fmt.Sprintf("Mapping template written to %s", path))
		}
	}

	if opts.Strict && len(scaffolds) > 0 {
		return fmt.Errorf("%s unmapped", formatCount(len(scaffolds), "template"))
	}
	return nil
}
