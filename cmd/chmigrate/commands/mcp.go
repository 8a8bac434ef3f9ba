package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/mcp"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp [path]",
		Short: "Start MCP server for AI agent integration",
		Long: `Scan path, then serve the analysis over a Model Context Protocol server on
stdio transport. The server exposes these tools:
  - migration_stats: aggregate counts, progress and success rate
  - migration_get_file: the analysis of one file
  - migration_list_files: files filtered by status
  - migration_rescan: rescan the project and return fresh statistics

Logs go to stderr as JSON; stdout carries the protocol.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			cfg.Logging.JSON = true

			providers, err := g.observe(cmd, cfg, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer shutdown(providers)

			tr, err := newTracker(cfg, providers)
			if err != nil {
				return err
			}

			if _, err := tr.RunScan(cmd.Context(), resolvePath(args), cfg.Rules()); err != nil {
				return err
			}

			toolMetrics, err := observability.NewToolMetrics(providers.Meter)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(tr, mcp.ServerDeps{
				Logger:  providers.Logger,
				Metrics: toolMetrics,
				Tracer:  providers.Tracer,
			})

			return srv.Run(cmd.Context())
		},
	}

	return cmd
}
