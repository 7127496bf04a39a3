package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	intconfig "github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/server"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr  string
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lineage queries over HTTP",
		Long: `Build or load the map once and answer lineage queries over HTTP.

Endpoints:
  GET  /api/health
  GET  /api/tables, /api/uris
  GET  /api/upstream/{table}, /api/downstream/{table}   ?recursive&verbose&response
  GET  /api/labels?label=key:value
  GET  /api/unmapped
  GET  /api/map
  GET  /api/graph.svg                                   ?table&direction&labels
  POST /api/build
  GET  /api/events                                      build notifications (SSE)

With --watch the map is rebuilt whenever a file in the config directory
or a File include changes.`,
		Example: `  # Serve on the default address
  leaplineage serve

  # Rebuild on change
  leaplineage serve --addr :8080 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default from serve.addr)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Rebuild the map when template files change")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := cmdCtx.Cfg.Serve.Addr
	if cmd.Flags().Changed("addr") {
		addr = opts.Addr
	}
	watch := cmdCtx.Cfg.Serve.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}
	if watch && cmdCtx.Project == nil {
		return fmt.Errorf("--watch needs a project\nHint: run in a directory with %s or pass --config-dir", intconfig.ProjectFileName)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := cmdCtx.LoadOrBuild(ctx); err != nil {
		return err
	}

	srv := server.New(server.Config{
		Engine:    cmdCtx.Engine,
		Addr:      addr,
		Watch:     watch,
		WatchDirs: watchDirs(cmdCtx.Cfg.ConfigDir, cmdCtx.Project),
		Logger:    cmdCtx.Logger,
	})

	cmdCtx.Renderer.Success(fmt.Sprintf("Serving on http://%s", addr))
	return srv.Serve(ctx)
}

// watchDirs returns the config directory followed by the path of every
// File include.
func watchDirs(configDir string, project *intconfig.ProjectConfig) []string {
	dirs := []string{configDir}
	if project == nil {
		return dirs
	}
	for _, inc := range project.Include {
		if inc.TemplateSourceType == intconfig.SourceFile && inc.FileSystemPath != "" {
			dirs = append(dirs, inc.FileSystemPath)
		}
	}
	return dirs
}
