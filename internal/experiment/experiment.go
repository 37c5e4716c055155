// Package experiment builds and runs the standard scenarios on top of the
// engine: a stimulus threshold sweep on one cell, two disconnected cells and
// a delayed excitatory ring. Completed runs can be saved to a RunStore.
//
// Usage:
//
//	r := experiment.NewRunner(cell.DefaultTemplate())
//	r.Store = rs
//	out, err := r.Ring(ctx, experiment.DefaultParams())
//	fmt.Print(out.Raster(60))
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/cellnet/internal/cell"
	"github.com/nvandessel/cellnet/internal/config"
	"github.com/nvandessel/cellnet/internal/engine"
	"github.com/nvandessel/cellnet/internal/logging"
	"github.com/nvandessel/cellnet/internal/network"
	"github.com/nvandessel/cellnet/internal/recording"
	"github.com/nvandessel/cellnet/internal/store"
	"github.com/nvandessel/cellnet/internal/visualization"
)

// Experiment names accepted by Runner.Run.
const (
	NameRing         = "ring"
	NameDisconnected = "disconnected"
	NameThreshold    = "threshold"
	NameNetwork      = "network"
)

// Names lists the experiments Run understands, in display order.
var Names = []string{NameRing, NameDisconnected, NameThreshold}

// Default durations per experiment, in ms.
const (
	RingTStop         = 150.0
	DisconnectedTStop = 25.0
	SweepTStop        = 25.0
	RingRasterWindow  = 100.0
)

// Params are the knobs shared by the ring and disconnected experiments.
// Zero TStop or RasterWindow selects the experiment's default.
type Params struct {
	Cells        int     `json:"cells"`
	Spacing      float64 `json:"spacing"`       // µm between neighbours along x
	Delay        float64 `json:"delay"`         // ms
	Weight       float64 `json:"weight"`        // µS
	Amplitude    float64 `json:"amplitude"`     // nA
	StimDelay    float64 `json:"stim_delay"`    // ms
	StimDuration float64 `json:"stim_duration"` // ms
	TStop        float64 `json:"tstop"`
	DT           float64 `json:"dt"`
	RasterWindow float64 `json:"raster_window"`
}

// DefaultParams returns a two-cell ring stimulated with 0.6 nA for 1 ms at
// 5 ms.
func DefaultParams() Params {
	return Params{
		Cells:        2,
		Spacing:      100,
		Delay:        10,
		Weight:       1,
		Amplitude:    0.6,
		StimDelay:    5,
		StimDuration: 1,
		DT:           engine.DefaultDT,
	}
}

func (p Params) asMap() map[string]any {
	return map[string]any{
		"cells":         p.Cells,
		"spacing":       p.Spacing,
		"delay":         p.Delay,
		"weight":        p.Weight,
		"amplitude":     p.Amplitude,
		"stim_delay":    p.StimDelay,
		"stim_duration": p.StimDuration,
	}
}

// Outcome is one completed experiment run.
type Outcome struct {
	RunID      string                    `json:"run_id,omitempty"`
	Experiment string                    `json:"experiment"`
	Params     map[string]any            `json:"params"`
	Result     *engine.Result            `json:"result"`
	Rows       []visualization.RasterRow `json:"-"`
	Window     float64                   `json:"raster_window"`

	net *network.Network
}

// Network returns the network the outcome was produced on.
func (o *Outcome) Network() *network.Network { return o.net }

// Raster renders the spikes of the outcome's raster rows over its window.
func (o *Outcome) Raster(width int) string {
	return visualization.RenderRaster(o.Rows, o.Result.Spikes, o.Window, width)
}

// SpikeTimes returns the spike times of every cell that fired, keyed by id.
func (o *Outcome) SpikeTimes() map[string][]float64 {
	out := make(map[string][]float64)
	for _, ev := range o.Result.Spikes {
		out[ev.Source] = append(out[ev.Source], ev.T)
	}
	return out
}

// Record converts the outcome to a storable run.
func (o *Outcome) Record() store.RunRecord {
	return store.RunRecord{
		ID:          o.RunID,
		Experiment:  o.Experiment,
		TStop:       o.Result.TStop,
		DT:          o.Result.DT,
		Cells:       o.net.Len(),
		Connections: len(o.net.Connections()),
		Params:      o.Params,
		Traces:      o.Result.Traces,
		Spikes:      o.Result.Spikes,
	}
}

// Runner builds experiment networks from a template and runs them.
type Runner struct {
	Template cell.Template

	// Logger and RunLog are handed to every engine the runner creates.
	Logger *slog.Logger
	RunLog *logging.RunLogger

	// Store, when set, receives every completed run.
	Store store.RunStore
}

// NewRunner creates a runner for the given cell template.
func NewRunner(tmpl cell.Template) *Runner {
	return &Runner{Template: tmpl, Logger: logging.Discard()}
}

// Build constructs the stimulated network of the named experiment without
// running it.
func (r *Runner) Build(name string, p Params) (*network.Network, error) {
	var (
		net *network.Network
		err error
	)
	switch name {
	case NameRing:
		net, err = network.Ring(r.Template, p.Cells, p.Spacing, p.Delay, p.Weight)
	case NameDisconnected:
		net, err = network.Build(r.Template, 2, p.Spacing)
	default:
		return nil, fmt.Errorf("unknown experiment %q (want one of %v)", name, Names)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := attachPulse(net, network.CellID(0), p); err != nil {
		return nil, err
	}
	return net, nil
}

// Run dispatches to the named experiment. The threshold sweep is not a
// single run; use ThresholdSweep for it.
func (r *Runner) Run(ctx context.Context, name string, p Params) (*Outcome, error) {
	switch name {
	case NameRing:
		return r.Ring(ctx, p)
	case NameDisconnected:
		return r.Disconnected(ctx, p)
	default:
		return nil, fmt.Errorf("unknown experiment %q (want one of %v)", name, Names)
	}
}

// Ring connects p.Cells cells in a ring and stimulates the first. The raster
// shows every connection's source spikes over the first RasterWindow ms.
func (r *Runner) Ring(ctx context.Context, p Params) (*Outcome, error) {
	net, err := r.Build(NameRing, p)
	if err != nil {
		return nil, err
	}

	tstop := orDefault(p.TStop, RingTStop)
	window := orDefault(p.RasterWindow, RingRasterWindow)
	if window > tstop {
		window = tstop
	}
	out, err := r.execute(ctx, NameRing, net, tstop, p.DT, p.asMap())
	if err != nil {
		return nil, err
	}
	out.Rows = visualization.ConnectionRows(net)
	out.Window = window
	return out, r.save(ctx, out)
}

// Disconnected builds two unconnected cells 100 µm apart and stimulates the
// first; the second must stay at rest.
func (r *Runner) Disconnected(ctx context.Context, p Params) (*Outcome, error) {
	net, err := r.Build(NameDisconnected, p)
	if err != nil {
		return nil, err
	}

	params := p.asMap()
	params["cells"] = 2
	delete(params, "delay")
	delete(params, "weight")

	tstop := orDefault(p.TStop, DisconnectedTStop)
	out, err := r.execute(ctx, NameDisconnected, net, tstop, p.DT, params)
	if err != nil {
		return nil, err
	}
	out.Rows = visualization.CellRows(network.CellID(0), network.CellID(1))
	out.Window = tstop
	return out, r.save(ctx, out)
}

// Configured runs the network described by cfg for cfg.Simulation.TStop.
func (r *Runner) Configured(ctx context.Context, cfg *config.CellnetConfig) (*Outcome, error) {
	net, err := cfg.BuildNetwork()
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"threshold": cfg.Simulation.Threshold,
		"stimuli":   len(cfg.Stimuli),
	}
	if cfg.Network.Ring != nil {
		params["ring_cells"] = cfg.Network.Ring.Cells
		params["delay"] = cfg.Network.Ring.Delay
		params["weight"] = cfg.Network.Ring.Weight
	}
	out, err := r.execute(ctx, NameNetwork, net, cfg.Simulation.TStop, cfg.Simulation.DT, params)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, net.Len())
	for _, c := range net.Cells() {
		ids = append(ids, c.ID())
	}
	out.Rows = visualization.CellRows(ids...)
	out.Window = cfg.Simulation.TStop
	return out, r.save(ctx, out)
}

// execute records the voltage of every cell and all spikes.
func (r *Runner) execute(ctx context.Context, name string, net *network.Network, tstop, dt float64, params map[string]any) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eng, err := engine.New(net, engine.Options{DT: dt, Logger: r.Logger, RunLog: r.RunLog})
	if err != nil {
		return nil, err
	}

	recs := make([]recording.Recorder, 0, net.Len()+1)
	for _, c := range net.Cells() {
		recs = append(recs, recording.NewVoltageRecorder(c.ID()))
	}
	recs = append(recs, recording.NewSpikeRecorder())

	start := time.Now()
	res, err := eng.Run(tstop, recs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	r.logger().Debug("experiment finished", "experiment", name, "spikes", len(res.Spikes), "elapsed", time.Since(start))

	if params == nil {
		params = make(map[string]any)
	}
	params["tstop"] = tstop
	params["dt"] = eng.DT()
	return &Outcome{Experiment: name, Params: params, Result: res, net: net}, nil
}

func (r *Runner) save(ctx context.Context, out *Outcome) error {
	if r.Store == nil {
		return nil
	}
	id, err := r.Store.SaveRun(ctx, out.Record())
	if err != nil {
		return fmt.Errorf("save %s run: %w", out.Experiment, err)
	}
	out.RunID = id
	r.logger().Info("run saved", "id", id, "experiment", out.Experiment)
	return nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.Discard()
	}
	return r.Logger
}

func attachPulse(net *network.Network, id string, p Params) error {
	stim, err := cell.NewStimulus(p.StimDelay, p.StimDuration, p.Amplitude)
	if err != nil {
		return fmt.Errorf("stimulus: %w", err)
	}
	return net.AttachStimulus(id, stim)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
