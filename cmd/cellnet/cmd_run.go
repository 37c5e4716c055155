package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nvandessel/cellnet/internal/experiment"
	"github.com/nvandessel/cellnet/internal/recording"
	"github.com/nvandessel/cellnet/internal/visualization"
	"github.com/spf13/cobra"
)

// runOutput is the --json form of a finished run.
type runOutput struct {
	RunID       string               `json:"run_id,omitempty"`
	Experiment  string               `json:"experiment"`
	TStop       float64              `json:"tstop"`
	DT          float64              `json:"dt"`
	Ticks       int                  `json:"ticks"`
	Cells       int                  `json:"cells"`
	Connections int                  `json:"connections"`
	Spikes      map[string][]float64 `json:"spikes"`
	Deliveries  int                  `json:"deliveries"`
	Pending     int                  `json:"pending"`
	Raster      string               `json:"raster"`
	Export      string               `json:"export,omitempty"`
	ExportBytes int64                `json:"export_bytes,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <experiment>",
		Short: "Run an experiment and print its spike raster",
		Long: `Run one of the standard experiments and print spike times and a raster.

Experiments:
  ring          cells connected in a ring, the first one stimulated (150 ms)
  disconnected  two unconnected cells, the first one stimulated (25 ms)
  threshold     single-cell stimulus threshold sweep (same as 'cellnet sweep')
  network       the network described by the config file

Examples:
  cellnet run ring --cells 3
  cellnet run disconnected --save
  cellnet run ring --tstop 60 --export ring.arrow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			jsonOut, _ := cmd.Flags().GetBool("json")
			save, _ := cmd.Flags().GetBool("save")
			exportPath, _ := cmd.Flags().GetString("export")
			width, _ := cmd.Flags().GetInt("width")

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if name == experiment.NameThreshold {
				if exportPath != "" {
					return fmt.Errorf("--export is not supported for the threshold sweep")
				}
				p := experiment.DefaultSweepParams()
				p.DT = sess.settings.Simulation.DT
				if cmd.Flags().Changed("tstop") {
					p.TStop, _ = cmd.Flags().GetFloat64("tstop")
				}
				return runSweep(ctx, cmd, sess, p, save)
			}

			runner := sess.runner()
			if save {
				rs, err := sess.openStore()
				if err != nil {
					return err
				}
				defer rs.Close()
				runner.Store = rs
			}

			out, err := runExperiment(ctx, cmd, sess, runner, name)
			if err != nil {
				return err
			}

			result := runOutput{
				RunID:       out.RunID,
				Experiment:  out.Experiment,
				TStop:       out.Result.TStop,
				DT:          out.Result.DT,
				Ticks:       out.Result.Ticks,
				Cells:       out.Network().Len(),
				Connections: len(out.Network().Connections()),
				Spikes:      out.SpikeTimes(),
				Deliveries:  len(out.Result.Deliveries),
				Pending:     out.Result.Pending,
				Raster:      out.Raster(width),
			}
			if exportPath != "" {
				size, err := exportArrow(exportPath, out.Result.Traces, out.Result.Spikes)
				if err != nil {
					return err
				}
				result.Export = exportPath
				result.ExportBytes = size
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printRun(cmd.OutOrStdout(), out, result)
			return nil
		},
	}

	cmd.Flags().Int("cells", 0, "Number of cells in the ring (default 2)")
	cmd.Flags().Float64("tstop", 0, "Simulated duration in ms (default per experiment)")
	cmd.Flags().Float64("amp", 0, "Stimulus amplitude in nA (default 0.6)")
	cmd.Flags().Float64("delay", 0, "Connection delay in ms (default 10)")
	cmd.Flags().Float64("weight", 0, "Connection weight in uS (default 1)")
	cmd.Flags().Bool("save", false, "Save the run to the run store")
	cmd.Flags().String("export", "", "Write traces and spikes to an Arrow IPC file")
	cmd.Flags().Int("width", visualization.DefaultRasterWidth, "Raster width in columns")

	return cmd
}

// runExperiment applies the changed flags to the experiment defaults and runs
// the named experiment.
func runExperiment(ctx context.Context, cmd *cobra.Command, sess *session, runner *experiment.Runner, name string) (*experiment.Outcome, error) {
	flags := cmd.Flags()

	if name == experiment.NameNetwork {
		for _, f := range []string{"cells", "amp", "delay", "weight"} {
			if flags.Changed(f) {
				return nil, fmt.Errorf("--%s does not apply to the configured network", f)
			}
		}
		settings := *sess.settings
		if flags.Changed("tstop") {
			settings.Simulation.TStop, _ = flags.GetFloat64("tstop")
		}
		return runner.Configured(ctx, &settings)
	}

	p := experiment.DefaultParams()
	p.DT = sess.settings.Simulation.DT
	if flags.Changed("cells") {
		p.Cells, _ = flags.GetInt("cells")
	}
	if flags.Changed("tstop") {
		p.TStop, _ = flags.GetFloat64("tstop")
	}
	if flags.Changed("amp") {
		p.Amplitude, _ = flags.GetFloat64("amp")
	}
	if flags.Changed("delay") {
		p.Delay, _ = flags.GetFloat64("delay")
	}
	if flags.Changed("weight") {
		p.Weight, _ = flags.GetFloat64("weight")
	}
	return runner.Run(ctx, name, p)
}

func printRun(w io.Writer, out *experiment.Outcome, result runOutput) {
	fmt.Fprintf(w, "Experiment: %s (%d cells, %d connections)\n", result.Experiment, result.Cells, result.Connections)
	fmt.Fprintf(w, "Simulated %g ms in %s ticks of %g ms\n", result.TStop, humanize.Comma(int64(result.Ticks)), result.DT)
	fmt.Fprintf(w, "Spikes: %d  Deliveries: %d  Pending: %d\n", len(out.Result.Spikes), result.Deliveries, result.Pending)
	fmt.Fprintln(w)

	for _, c := range out.Network().Cells() {
		times := result.Spikes[c.ID()]
		if len(times) == 0 {
			fmt.Fprintf(w, "  %s: silent\n", c.ID())
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", c.ID(), formatTimes(times))
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, result.Raster)

	if result.RunID != "" {
		fmt.Fprintf(w, "\nSaved run %s\n", result.RunID)
	}
	if result.Export != "" {
		fmt.Fprintf(w, "Exported %s to %s\n", humanize.Bytes(uint64(result.ExportBytes)), result.Export)
	}
}

func formatTimes(times []float64) string {
	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = strconv.FormatFloat(t, 'g', 6, 64)
	}
	return strings.Join(parts, ", ") + " ms"
}

// exportArrow writes traces and spikes to path and returns the file size.
func exportArrow(path string, traces []recording.Trace, spikes []recording.SpikeEvent) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	if err := recording.WriteArrow(f, traces, spikes); err != nil {
		f.Close()
		return 0, err
	}
	info, err := f.Stat()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", path, err)
	}
	return info.Size(), nil
}
