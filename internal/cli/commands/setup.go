// Package commands implements the leaplineage subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/config"
	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	intconfig "github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/engine"
	"github.com/leapstack-labs/leaplineage/internal/storage"
)

// CommandContext holds common dependencies for command execution.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Project  *intconfig.ProjectConfig // nil when only saved maps are queried
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	c, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return nil, nil, err
	}

	// A project is optional when the map comes from --load; labels then
	// resolve against an empty mapping.
	requireProject := len(c.Cfg.Load) == 0
	if requireProject {
		if err := c.Cfg.ValidateConfigDir(); err != nil {
			return nil, nil, err
		}
	}
	project, mapping, err := loadProject(c.Cfg.ConfigDir, requireProject)
	if err != nil {
		return nil, nil, err
	}

	storeOpts := c.Cfg.Storage.Options()
	storeOpts.Logger = c.Logger

	c.Project = project
	c.Engine = engine.New(engine.Config{
		Project:     project,
		Mapping:     mapping,
		Store:       storage.New(storeOpts),
		Concurrency: c.Cfg.Concurrency,
		Logger:      c.Logger,
	})

	cleanup := func() {
		_ = c.Engine.Close()
	}
	return c, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't read templates or maps.
func NewCommandContextWithoutEngine(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}, nil
}

// getConfig returns the configuration loaded by the root command, or
// loads it from defaults and the environment when the command runs alone.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	if cfg := config.GetConfig(cmd.Context()); cfg != nil {
		return cfg, nil
	}
	return config.Load("", nil)
}

func loadProject(dir string, required bool) (*intconfig.ProjectConfig, *intconfig.MappingConfig, error) {
	project, err := intconfig.LoadProject(dir)
	if err != nil {
		if !required && errors.Is(err, intconfig.ErrProjectNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	mapping, err := intconfig.LoadMapping(dir, project.Settings)
	if err != nil {
		return nil, nil, err
	}
	return project, mapping, nil
}

// LoadOrBuild fills the engine's map from the --load locators, or builds
// it from the project when none are given. The map is then written to
// --save when set. The build result is nil when the map was loaded.
func (c *CommandContext) LoadOrBuild(ctx context.Context) (*engine.BuildResult, error) {
	var result *engine.BuildResult
	if len(c.Cfg.Load) > 0 {
		if err := c.Engine.Load(ctx, c.Cfg.Load...); err != nil {
			return nil, fmt.Errorf("failed to load map: %w", err)
		}
	} else {
		var err error
		result, err = c.Engine.Build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build map: %w", err)
		}
		c.reportBuild(result)
	}

	if c.Cfg.Save != "" {
		if err := c.Engine.Save(ctx, c.Cfg.Save); err != nil {
			return nil, fmt.Errorf("failed to save map: %w", err)
		}
		c.Renderer.Success(fmt.Sprintf("Map saved to %s", c.Cfg.Save))
	}
	return result, nil
}

func (c *CommandContext) reportBuild(result *engine.BuildResult) {
	for _, e := range result.Errors {
		c.Renderer.Warning(e.Error())
	}
	if len(result.Cycle) > 0 {
		c.Renderer.Warning(fmt.Sprintf("dependency cycle: %v", result.Cycle))
	}
	if n := len(result.Unmapped); n > 0 {
		c.Renderer.Muted(fmt.Sprintf("%d template(s) unmapped; run 'leaplineage check' for a mapping template", n))
	}
}
