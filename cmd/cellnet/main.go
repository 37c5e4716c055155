package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nvandessel/cellnet/internal/config"
	"github.com/nvandessel/cellnet/internal/experiment"
	"github.com/nvandessel/cellnet/internal/logging"
	"github.com/nvandessel/cellnet/internal/store"
	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cellnet",
		Short: "Discrete-event simulator for small networks of neurons",
		Long: `cellnet simulates small networks of two-compartment neurons connected by
delayed excitatory synapses.

It runs the standard experiments (a stimulus threshold sweep, two
disconnected cells and a delayed ring), prints spike rasters, and keeps
saved runs in a local store for later inspection and export.`,
		SilenceUsage: true,
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newSweepCmd(),
		newTopologyCmd(),
		newRunsCmd(),
		newShowCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	cmd.PersistentFlags().String("root", ".", "Project root directory; runs are kept in <root>/.cellnet")
	cmd.PersistentFlags().String("config", "", "Config file (default ~/.cellnet/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")
}

// session is the configuration shared by commands that simulate or read the
// run store.
type session struct {
	settings *config.CellnetConfig
	dataDir  string
	logger   *slog.Logger
	runLog   *logging.RunLogger
}

// openSession loads and validates the configuration named by the global
// flags.
func openSession(cmd *cobra.Command) (*session, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	root, _ := cmd.Flags().GetString("root")
	level, _ := cmd.Flags().GetString("log-level")

	settings, err := config.LoadPath(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level != "" {
		settings.Logging.Level = level
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := settings.Store.Dir
	if dir == "" {
		dir = store.LocalCellnetPath(root)
	}
	return &session{
		settings: settings,
		dataDir:  dir,
		logger:   logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr()),
	}, nil
}

// openStore opens the configured run store.
func (s *session) openStore() (store.RunStore, error) {
	rs, err := store.NewRunStore(s.settings.Store.Backend, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return rs, nil
}

// runner returns an experiment runner for the configured template. At debug
// level and below the run trace is written to the data directory.
func (s *session) runner() *experiment.Runner {
	r := experiment.NewRunner(s.settings.CellTemplate())
	r.Logger = s.logger
	if s.runLog == nil {
		s.runLog = logging.NewRunLogger(s.dataDir, s.settings.Logging.Level)
	}
	r.RunLog = s.runLog
	return r
}

func (s *session) Close() {
	s.runLog.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
