package main

import (
	"fmt"

	"github.com/nvandessel/cellnet/internal/experiment"
	"github.com/nvandessel/cellnet/internal/network"
	"github.com/nvandessel/cellnet/internal/visualization"
	"github.com/spf13/cobra"
)

func newTopologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology [experiment]",
		Short: "Describe a network's cells and connections",
		Long: `Output the cells and connections of a network in DOT (Graphviz) or JSON.

Without an argument the network from the config file is described.

Examples:
  cellnet topology
  cellnet topology ring --cells 3 | neato -Tsvg > ring.svg
  cellnet topology --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatFlag, _ := cmd.Flags().GetString("format")
			jsonOut, _ := cmd.Flags().GetBool("json")

			format, err := visualization.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			if jsonOut {
				format = visualization.FormatJSON
			}

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			var net *network.Network
			if len(args) == 0 || args[0] == experiment.NameNetwork {
				net, err = sess.settings.BuildNetwork()
			} else {
				p := experiment.DefaultParams()
				if cmd.Flags().Changed("cells") {
					p.Cells, _ = cmd.Flags().GetInt("cells")
				}
				net, err = sess.runner().Build(args[0], p)
			}
			if err != nil {
				return err
			}

			switch format {
			case visualization.FormatDOT:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(net))
			case visualization.FormatJSON:
				if err := writeJSON(cmd.OutOrStdout(), visualization.RenderJSON(net)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("format", string(visualization.FormatDOT), "Output format: dot or json")
	cmd.Flags().Int("cells", 0, "Number of cells when describing a ring (default 2)")

	return cmd
}
