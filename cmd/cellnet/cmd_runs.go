package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nvandessel/cellnet/internal/recording"
	"github.com/nvandessel/cellnet/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved simulation runs",
		Long: `List the runs in the run store, newest first.

Examples:
  cellnet runs
  cellnet runs --limit 5
  cellnet runs export > runs.jsonl
  cellnet runs import runs.jsonl
  cellnet runs delete 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")
			experimentFilter, _ := cmd.Flags().GetString("experiment")

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()
			rs, err := sess.openStore()
			if err != nil {
				return err
			}
			defer rs.Close()

			runs, err := rs.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if experimentFilter != "" {
				filtered := runs[:0]
				for _, r := range runs {
					if r.Experiment == experimentFilter {
						filtered = append(filtered, r)
					}
				}
				runs = filtered
			}
			total := len(runs)
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
					"total": total,
				})
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No saved runs.")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  %-12s  %3d cells  %3d conns  %4d spikes  %6g ms  %s\n",
					r.ID, r.Experiment, r.Cells, r.Connections, r.SpikeCount, r.TStop, humanize.Time(r.CreatedAt))
			}
			if total > len(runs) {
				fmt.Fprintf(w, "\nShowing %d of %d runs\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 0, "Show at most this many runs")
	cmd.Flags().String("experiment", "", "Only show runs of this experiment")

	cmd.AddCommand(
		newRunsExportCmd(),
		newRunsImportCmd(),
		newRunsDeleteCmd(),
	)
	return cmd
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every saved run as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()
			rs, err := sess.openStore()
			if err != nil {
				return err
			}
			defer rs.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			n, err := store.ExportJSONL(cmd.Context(), rs, w)
			if err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d runs to %s\n", n, output)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newRunsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load runs from a JSON lines export",
		Long: `Load runs written by 'cellnet runs export'. Runs keep their ids; a run
whose id is already in the store replaces it. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()
			rs, err := sess.openStore()
			if err != nil {
				return err
			}
			defer rs.Close()

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			n, err := store.ImportJSONL(cmd.Context(), rs, r)
			if err != nil {
				return fmt.Errorf("import stopped after %d runs: %w", n, err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"imported": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d runs\n", n)
			return nil
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a saved run and its recorded data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()
			rs, err := sess.openStore()
			if err != nil {
				return err
			}
			defer rs.Close()

			if err := rs.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "deleted", "id": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a saved run",
		Long: `Show the parameters, spike times and recorded traces of a saved run.

With --export the run's traces and spikes are written to an Arrow IPC file;
--verify-export reads the file back and checks every row.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			exportPath, _ := cmd.Flags().GetString("export")
			verify, _ := cmd.Flags().GetBool("verify-export")
			if verify && exportPath == "" {
				return errors.New("--verify-export requires --export")
			}

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()
			rs, err := sess.openStore()
			if err != nil {
				return err
			}
			defer rs.Close()

			run, err := rs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var size int64
			if exportPath != "" {
				if size, err = exportArrow(exportPath, run.Traces, run.Spikes); err != nil {
					return err
				}
				if verify {
					if err := verifyArrow(exportPath, run); err != nil {
						return err
					}
				}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), run)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run:         %s\n", run.ID)
			fmt.Fprintf(w, "Experiment:  %s\n", run.Experiment)
			fmt.Fprintf(w, "Created:     %s (%s)\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.CreatedAt))
			fmt.Fprintf(w, "Duration:    %g ms at dt %g ms\n", run.TStop, run.DT)
			fmt.Fprintf(w, "Network:     %d cells, %d connections\n", run.Cells, run.Connections)

			if len(run.Params) > 0 {
				fmt.Fprintln(w, "\nParameters:")
				keys := make([]string, 0, len(run.Params))
				for k := range run.Params {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(w, "  %-24s %v\n", k, run.Params[k])
				}
			}

			if len(run.Spikes) > 0 {
				fmt.Fprintf(w, "\nSpikes (%d):\n", len(run.Spikes))
				bySource := make(map[string][]float64)
				var order []string
				for _, ev := range run.Spikes {
					if _, ok := bySource[ev.Source]; !ok {
						order = append(order, ev.Source)
					}
					bySource[ev.Source] = append(bySource[ev.Source], ev.T)
				}
				sort.Strings(order)
				for _, src := range order {
					fmt.Fprintf(w, "  %s: %s\n", src, formatTimes(bySource[src]))
				}
			}

			if len(run.Traces) > 0 {
				fmt.Fprintf(w, "\nTraces (%d):\n", len(run.Traces))
				for _, tr := range run.Traces {
					fmt.Fprintf(w, "  %-8s %-10s %s samples\n", tr.CellID, tr.Observable, humanize.Comma(int64(len(tr.Samples))))
				}
			}

			if exportPath != "" {
				status := ""
				if verify {
					status = ", verified"
				}
				fmt.Fprintf(w, "\nExported %s to %s%s\n", humanize.Bytes(uint64(size)), exportPath, status)
			}
			return nil
		},
	}

	cmd.Flags().String("export", "", "Write traces and spikes to an Arrow IPC file")
	cmd.Flags().Bool("verify-export", false, "Read the exported file back and compare it with the run")
	return cmd
}

// verifyArrow checks that the file at path holds exactly the samples and
// spikes of run, in order.
func verifyArrow(path string, run *store.RunRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	rows, err := recording.ReadArrow(f)
	if err != nil {
		return fmt.Errorf("verify export: %w", err)
	}

	var want []recording.Row
	for _, tr := range run.Traces {
		for _, s := range tr.Samples {
			want = append(want, recording.Row{Kind: string(tr.Observable), Cell: tr.CellID, T: s.T, Value: s.V})
		}
	}
	for _, ev := range run.Spikes {
		want = append(want, recording.Row{Kind: recording.KindSpike, Cell: ev.Source, T: ev.T, Value: float64(ev.ID)})
	}

	if len(rows) != len(want) {
		return fmt.Errorf("verify export: %d rows, want %d", len(rows), len(want))
	}
	for i := range rows {
		if rows[i] != want[i] {
			return fmt.Errorf("verify export: row %d is %s, want %s", i, describeRow(rows[i]), describeRow(want[i]))
		}
	}
	return nil
}

func describeRow(r recording.Row) string {
	return strings.Join([]string{r.Kind, r.Cell, fmt.Sprintf("t=%g", r.T), fmt.Sprintf("value=%g", r.Value)}, " ")
}
