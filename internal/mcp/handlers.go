package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/cellnet/internal/experiment"
	"github.com/nvandessel/cellnet/internal/network"
	"github.com/nvandessel/cellnet/internal/simerr"
	"github.com/nvandessel/cellnet/internal/visualization"
)

// rasterWidth is the raster width returned to clients.
const rasterWidth = 80

// registerTools registers all cellnet MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cellnet_simulate",
		Description: "Run a ring, two disconnected cells or the configured network and return spike times and a text raster",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cellnet_sweep",
		Description: "Stimulate a single cell with a range of current amplitudes and report which ones fire",
	}, s.handleSweep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cellnet_topology",
		Description: "Describe the cells and connections of a network in DOT (Graphviz) or JSON",
	}, s.handleTopology)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cellnet_runs",
		Description: "List saved simulation runs, newest first",
	}, s.handleRuns)
}

// record writes the audit entry for a finished tool call.
func (s *Server) record(tool string, start time.Time, err error, runID string, params map[string]any) {
	entry := AuditEntry{
		Timestamp:  start.UTC(),
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		RunID:      runID,
		Params:     auditParams(params),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
		s.logger.Warn("tool call failed", "tool", tool, "error", err)
	}
	s.audit.Log(entry)
}

// params merges tool arguments over the default experiment parameters.
func (s *Server) params(cells int, tstop, amp, delay, weight float64) (experiment.Params, error) {
	p := experiment.DefaultParams()
	p.DT = s.settings.Simulation.DT
	if cells != 0 {
		p.Cells = cells
	}
	if tstop != 0 {
		p.TStop = tstop
	}
	if amp != 0 {
		p.Amplitude = amp
	}
	if delay != 0 {
		p.Delay = delay
	}
	if weight != 0 {
		p.Weight = weight
	}
	if p.Cells > MaxCells {
		return p, simerr.Invalid("cells", p.Cells, fmt.Sprintf("at most %d per call", MaxCells))
	}
	if p.TStop > MaxTStop {
		return p, simerr.Invalid("tstop", p.TStop, fmt.Sprintf("at most %g ms per call", MaxTStop))
	}
	return p, nil
}

func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.record("cellnet_simulate", start, retErr, runID, map[string]any{
			"experiment": args.Experiment,
			"cells":      args.Cells,
			"tstop":      args.TStop,
			"amplitude":  args.Amplitude,
			"delay":      args.Delay,
			"weight":     args.Weight,
			"save":       args.Save,
		})
	}()

	if err := s.limiters.Check("cellnet_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	name := args.Experiment
	if name == "" {
		name = experiment.NameRing
	}

	runner := *s.runner
	if args.Save {
		runner.Store = s.store
	}

	var (
		out *experiment.Outcome
		err error
	)
	if name == experiment.NameNetwork {
		settings := *s.settings
		if args.TStop != 0 {
			if args.TStop > MaxTStop {
				return nil, SimulateOutput{}, simerr.Invalid("tstop", args.TStop, fmt.Sprintf("at most %g ms per call", MaxTStop))
			}
			settings.Simulation.TStop = args.TStop
		}
		out, err = runner.Configured(ctx, &settings)
	} else {
		p, perr := s.params(args.Cells, args.TStop, args.Amplitude, args.Delay, args.Weight)
		if perr != nil {
			return nil, SimulateOutput{}, perr
		}
		out, err = runner.Run(ctx, name, p)
	}
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	runID = out.RunID

	spikes := out.SpikeTimes()
	return nil, SimulateOutput{
		RunID:       out.RunID,
		Experiment:  out.Experiment,
		TStop:       out.Result.TStop,
		Cells:       out.Network().Len(),
		Connections: len(out.Network().Connections()),
		SpikeCount:  len(out.Result.Spikes),
		Spikes:      spikes,
		Pending:     out.Result.Pending,
		Raster:      out.Raster(rasterWidth),
	}, nil
}

func (s *Server) handleSweep(ctx context.Context, req *sdk.CallToolRequest, args SweepInput) (_ *sdk.CallToolResult, _ SweepOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.record("cellnet_sweep", start, retErr, runID, map[string]any{
			"min":   args.Min,
			"max":   args.Max,
			"steps": args.Steps,
			"save":  args.Save,
		})
	}()

	if err := s.limiters.Check("cellnet_sweep"); err != nil {
		return nil, SweepOutput{}, err
	}

	p := experiment.DefaultSweepParams()
	p.DT = s.settings.Simulation.DT
	if args.Min != 0 {
		p.Min = args.Min
	}
	if args.Max != 0 {
		p.Max = args.Max
	}
	if args.Steps != 0 {
		p.Steps = args.Steps
	}
	if p.Steps > MaxCells {
		return nil, SweepOutput{}, simerr.Invalid("steps", p.Steps, fmt.Sprintf("at most %d per call", MaxCells))
	}

	runner := *s.runner
	if args.Save {
		runner.Store = s.store
	}
	res, err := runner.ThresholdSweep(ctx, p)
	if err != nil {
		return nil, SweepOutput{}, err
	}
	runID = res.RunID

	out := SweepOutput{RunID: res.RunID, Points: make([]SweepPoint, 0, len(res.Points))}
	for _, pt := range res.Points {
		spikes := pt.Spikes
		if spikes == nil {
			spikes = []float64{}
		}
		out.Points = append(out.Points, SweepPoint{Amplitude: pt.Amplitude, Spikes: spikes, Peak: pt.Peak})
	}
	out.FirstSpiking, out.Fired = res.FirstSpiking()
	return nil, out, nil
}

func (s *Server) handleTopology(ctx context.Context, req *sdk.CallToolRequest, args TopologyInput) (_ *sdk.CallToolResult, _ TopologyOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.record("cellnet_topology", start, retErr, "", map[string]any{
			"experiment": args.Experiment,
			"cells":      args.Cells,
			"format":     args.Format,
		})
	}()

	if err := s.limiters.Check("cellnet_topology"); err != nil {
		return nil, TopologyOutput{}, err
	}

	format := visualization.FormatJSON
	if args.Format != "" {
		f, err := visualization.ParseFormat(args.Format)
		if err != nil {
			return nil, TopologyOutput{}, err
		}
		format = f
	}

	var (
		net *network.Network
		err error
	)
	switch args.Experiment {
	case "", experiment.NameNetwork:
		net, err = s.settings.BuildNetwork()
	default:
		p, perr := s.params(args.Cells, 0, 0, 0, 0)
		if perr != nil {
			return nil, TopologyOutput{}, perr
		}
		net, err = s.runner.Build(args.Experiment, p)
	}
	if err != nil {
		return nil, TopologyOutput{}, err
	}

	out := TopologyOutput{
		Format:          string(format),
		CellCount:       net.Len(),
		ConnectionCount: len(net.Connections()),
	}
	if format == visualization.FormatDOT {
		out.Graph = visualization.RenderDOT(net)
	} else {
		out.Graph = visualization.RenderJSON(net)
	}
	return nil, out, nil
}

func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.record("cellnet_runs", start, retErr, "", map[string]any{"limit": args.Limit})
	}()

	if err := s.limiters.Check("cellnet_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	runs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("list runs: %w", err)
	}
	total := len(runs)
	if args.Limit > 0 && len(runs) > args.Limit {
		runs = runs[:args.Limit]
	}

	items := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, RunItem{
			ID:          r.ID,
			Experiment:  r.Experiment,
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
			TStop:       r.TStop,
			Cells:       r.Cells,
			Connections: r.Connections,
			SpikeCount:  r.SpikeCount,
		})
	}
	return nil, RunsOutput{Runs: items, Count: len(items), Total: total}, nil
}
