package main

import (
	"context"
	"fmt"

	"github.com/nvandessel/cellnet/internal/experiment"
	"github.com/spf13/cobra"
)

type sweepOutput struct {
	RunID        string                  `json:"run_id,omitempty"`
	Params       experiment.SweepParams  `json:"params"`
	Points       []experiment.SweepPoint `json:"points"`
	FirstSpiking *float64                `json:"first_spiking"`
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Find the smallest stimulus amplitude that makes a cell fire",
		Long: `Stimulate a single cell with evenly spaced current amplitudes, one 1 ms
pulse at 5 ms per run, and report which amplitudes elicit a spike.

Examples:
  cellnet sweep
  cellnet sweep --min 0.2 --max 0.4 --steps 21`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			save, _ := cmd.Flags().GetBool("save")

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			p := experiment.DefaultSweepParams()
			p.DT = sess.settings.Simulation.DT
			p.Min, _ = cmd.Flags().GetFloat64("min")
			p.Max, _ = cmd.Flags().GetFloat64("max")
			p.Steps, _ = cmd.Flags().GetInt("steps")
			p.TStop, _ = cmd.Flags().GetFloat64("tstop")

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runSweep(ctx, cmd, sess, p, save)
		},
	}

	defaults := experiment.DefaultSweepParams()
	cmd.Flags().Float64("min", defaults.Min, "Lowest amplitude in nA")
	cmd.Flags().Float64("max", defaults.Max, "Highest amplitude in nA")
	cmd.Flags().Int("steps", defaults.Steps, "Number of amplitudes")
	cmd.Flags().Float64("tstop", defaults.TStop, "Duration of each run in ms")
	cmd.Flags().Bool("save", false, "Save the sweep to the run store")

	return cmd
}

func runSweep(ctx context.Context, cmd *cobra.Command, sess *session, p experiment.SweepParams, save bool) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	runner := sess.runner()
	if save {
		rs, err := sess.openStore()
		if err != nil {
			return err
		}
		defer rs.Close()
		runner.Store = rs
	}

	res, err := runner.ThresholdSweep(ctx, p)
	if err != nil {
		return err
	}
	first, fired := res.FirstSpiking()

	if jsonOut {
		out := sweepOutput{RunID: res.RunID, Params: res.Params, Points: res.Points}
		if fired {
			out.FirstSpiking = &first
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Threshold sweep: %d amplitudes from %.3g to %.3g nA, %g ms each\n\n", len(res.Points), p.Min, p.Max, p.TStop)
	for _, pt := range res.Points {
		status := "no spike"
		if pt.Fired() {
			status = "spikes at " + formatTimes(pt.Spikes)
		}
		fmt.Fprintf(w, "  %6.3f nA  peak %7.2f mV  %s\n", pt.Amplitude, pt.Peak, status)
	}
	fmt.Fprintln(w)
	if fired {
		fmt.Fprintf(w, "First spiking amplitude: %.3g nA\n", first)
	} else {
		fmt.Fprintln(w, "No amplitude elicited a spike")
	}
	if res.RunID != "" {
		fmt.Fprintf(w, "Saved run %s\n", res.RunID)
	}
	return nil
}
