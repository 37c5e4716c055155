package main

import (
	"fmt"

	"github.com/nvandessel/cellnet/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the simulation tools over MCP on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools:
  cellnet_simulate  run an experiment and return spike times and a raster
  cellnet_sweep     stimulus threshold sweep on a single cell
  cellnet_topology  describe a network in DOT or JSON
  cellnet_runs      list saved runs

Tool calls are audited to <root>/.cellnet/audit.jsonl. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			// stdout carries the protocol; sess.logger writes to stderr.
			server, err := mcp.NewServer(&mcp.Config{
				Name:     "cellnet",
				Version:  version,
				DataDir:  sess.dataDir,
				Settings: sess.settings,
				Logger:   sess.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return server.Run(ctx)
		},
	}
}
