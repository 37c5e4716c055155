package main

import (
	"fmt"

	"github.com/nvandessel/cellnet/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect cellnet configuration",
		Long: `View and check cellnet configuration.

Configuration is read from ~/.cellnet/config.yaml, or from the file given
with --config. CELLNET_DT, CELLNET_TSTOP, CELLNET_THRESHOLD, CELLNET_STORE
and CELLNET_LOG_LEVEL override the file.

Examples:
  cellnet config show                    # Effective settings as YAML
  cellnet config show --json             # Effective settings as JSON
  cellnet config validate --config net.yaml`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigValidateCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfgPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.LoadPath(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and build its network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfgPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.LoadPath(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			net, err := cfg.BuildNetwork()
			if err != nil {
				return fmt.Errorf("invalid network: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"valid":       true,
					"cells":       net.Len(),
					"connections": len(net.Connections()),
					"stimuli":     len(cfg.Stimuli),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config OK: %d cells, %d connections, %d stimuli\n",
				net.Len(), len(net.Connections()), len(cfg.Stimuli))
			return nil
		},
	}
}
