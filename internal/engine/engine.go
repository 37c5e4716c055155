// Package engine advances a network through time on a fixed tick grid.
// Each tick it sums external and synaptic input, steps every cell from the
// previous tick's snapshot, turns threshold crossings into delayed synaptic
// events on a min-heap, and samples the bound recorders.
package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/nvandessel/cellnet/internal/cell"
	"github.com/nvandessel/cellnet/internal/logging"
	"github.com/nvandessel/cellnet/internal/network"
	"github.com/nvandessel/cellnet/internal/recording"
	"github.com/nvandessel/cellnet/internal/simerr"
)

// DefaultDT is the integration tick in ms.
const DefaultDT = 0.025

// State is the engine's run state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Options configures an Engine.
type Options struct {
	// DT is the tick size in ms. Zero selects DefaultDT.
	DT float64

	// Logger receives run boundaries at info and spikes at debug.
	// Nil discards.
	Logger *slog.Logger

	// RunLog receives the JSONL run trace. Nil disables it.
	RunLog *logging.RunLogger
}

// Delivery is a synaptic event that reached its target.
type Delivery struct {
	T       float64 `json:"t"`
	Emitted float64 `json:"emitted"`
	Conn    string  `json:"conn"`
	Source  string  `json:"source"`
	Target  string  `json:"target"`
	Weight  float64 `json:"weight"`
}

// Result summarises one completed run. Recorder contents stay on the
// recorders passed to Run; Traces holds a copy of every trace recorder.
type Result struct {
	TStop      float64                `json:"tstop"`
	DT         float64                `json:"dt"`
	Ticks      int                    `json:"ticks"`
	Spikes     []recording.SpikeEvent `json:"spikes"`
	Deliveries []Delivery             `json:"deliveries"`
	Traces     []recording.Trace      `json:"traces,omitempty"`
	Pending    int                    `json:"pending"` // events scheduled past tstop
}

// SpikeTimes returns the spike times of one cell.
func (r *Result) SpikeTimes(cellID string) []float64 {
	var out []float64
	for _, s := range r.Spikes {
		if s.Source == cellID {
			out = append(out, s.T)
		}
	}
	return out
}

// Engine drives one network. It is not safe for concurrent use.
type Engine struct {
	net    *network.Network
	dt     float64
	log    *slog.Logger
	runLog *logging.RunLogger

	state State
	queue eventQueue
	now   int
	due   []event
}

// New creates an engine for net.
func New(net *network.Network, opts Options) (*Engine, error) {
	if net == nil {
		return nil, simerr.Invalid("network", nil, "must not be nil")
	}
	dt := opts.DT
	if dt == 0 {
		dt = DefaultDT
	}
	if err := simerr.Positive("dt", dt); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Engine{net: net, dt: dt, log: log, runLog: opts.RunLog}, nil
}

// DT returns the tick size in ms.
func (e *Engine) DT() float64 { return e.dt }

// State returns the current run state.
func (e *Engine) State() State { return e.state }

// Network returns the network the engine drives.
func (e *Engine) Network() *network.Network { return e.net }

// Reset clears the event queue and returns every cell and synapse to rest.
// Topology and stimuli are untouched.
func (e *Engine) Reset() error {
	if e.state != Idle {
		return &simerr.EngineStateError{Op: "reset", State: e.state.String()}
	}
	e.reset()
	return nil
}

func (e *Engine) reset() {
	e.queue.reset()
	e.now = 0
	for _, c := range e.net.Cells() {
		c.Reset()
	}
}

// scheduler adapts the queue to network.Scheduler for one emission.
type scheduler struct {
	e       *Engine
	emitted float64
}

func (s scheduler) Schedule(at float64, conn *network.Connection) {
	tick := int(math.Round(at / s.e.dt))
	// A zero delay delivers at the start of the next step.
	if tick < s.e.now {
		tick = s.e.now
	}
	s.e.queue.push(tick, s.emitted, conn)
}

type traceBinding struct {
	rec  *recording.TraceRecorder
	cell *cell.Cell
}

func (b traceBinding) sample(t float64) {
	switch b.rec.Observable() {
	case recording.ObserveSynapticCurrent:
		b.rec.Record(t, b.cell.SynapticCurrent())
	default:
		b.rec.Record(t, b.cell.Voltage())
	}
}

func (e *Engine) bind(recorders []recording.Recorder) ([]traceBinding, []*recording.SpikeRecorder, error) {
	var traces []traceBinding
	var spikes []*recording.SpikeRecorder
	for _, r := range recorders {
		switch rec := r.(type) {
		case *recording.TraceRecorder:
			switch rec.Observable() {
			case recording.ObserveVoltage, recording.ObserveSynapticCurrent:
			default:
				return nil, nil, simerr.Invalid("observable", rec.Observable(), "unsupported")
			}
			c, err := e.net.Cell(rec.CellID())
			if err != nil {
				return nil, nil, &simerr.UnknownCellError{ID: rec.CellID(), Op: "bind recorder"}
			}
			traces = append(traces, traceBinding{rec: rec, cell: c})
		case *recording.SpikeRecorder:
			spikes = append(spikes, rec)
		case nil:
			return nil, nil, simerr.Invalid("recorder", nil, "must not be nil")
		default:
			return nil, nil, simerr.Invalid("recorder", fmt.Sprintf("%T", r), "unsupported recorder type")
		}
	}
	return traces, spikes, nil
}

// Run resets transient state, simulates from 0 to tstop and leaves the
// engine idle. The recorders are cleared at the start; if the run fails they
// are marked invalid. tstop is rounded to the nearest tick.
func (e *Engine) Run(tstop float64, recorders ...recording.Recorder) (*Result, error) {
	if e.state != Idle {
		return nil, &simerr.EngineStateError{Op: "run", State: e.state.String()}
	}
	if err := simerr.NonNegative("tstop", tstop); err != nil {
		return nil, err
	}
	traces, spikeRecs, err := e.bind(recorders)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if err := e.net.BeginRun(); err != nil {
		return nil, err
	}
	e.state = Running
	defer func() {
		e.state = Idle
		e.net.EndRun()
	}()

	for _, r := range recorders {
		r.Begin()
	}

	res, err := e.loop(tstop, traces, spikeRecs)
	for _, r := range recorders {
		r.End(err == nil)
	}
	if err != nil {
		e.log.Error("run failed", "error", err)
		return nil, err
	}

	for _, b := range traces {
		res.Traces = append(res.Traces, b.rec.Trace())
	}
	return res, nil
}

func (e *Engine) loop(tstop float64, traces []traceBinding, spikeRecs []*recording.SpikeRecorder) (*Result, error) {
	e.reset()

	cells := e.net.Cells()
	n := int(math.Round(tstop / e.dt))
	res := &Result{TStop: float64(n) * e.dt, DT: e.dt, Ticks: n}

	e.log.Info("run started",
		"cells", len(cells),
		"connections", len(e.net.Connections()),
		"tstop", res.TStop,
		"dt", e.dt)
	e.runLog.RunStarted(len(cells), len(e.net.Connections()), res.TStop, e.dt)

	for _, b := range traces {
		b.sample(0)
	}

	for k := 0; k < n; k++ {
		e.now = k
		t := float64(k) * e.dt

		// deliver events due now
		e.due = e.queue.popDue(k, e.due[:0])
		for _, ev := range e.due {
			ev.conn.Deliver()
			res.Deliveries = append(res.Deliveries, Delivery{
				T:       t,
				Emitted: ev.emitted,
				Conn:    ev.conn.ID(),
				Source:  ev.conn.Source,
				Target:  ev.conn.Target,
				Weight:  ev.conn.Weight,
			})
			e.runLog.Delivery(t, ev.conn.ID(), ev.conn.Target, ev.conn.Weight)
		}

		// cells interact only through the queue, so each step reads only the
		// snapshot taken at t
		next := float64(k+1) * e.dt
		for _, c := range cells {
			c.Step(e.dt, c.ExternalCurrent(t))
			if !c.Finite() {
				err := fmt.Errorf("cell %s at t=%g ms: %w", c.ID(), next, simerr.ErrDiverged)
				e.runLog.RunFinished(k+1, len(res.Spikes), err)
				return nil, err
			}
		}

		// crossings schedule deliveries once every cell has moved
		e.now = k + 1
		for i, c := range cells {
			if !c.CrossedThreshold() {
				continue
			}
			ev := recording.SpikeEvent{T: next, Source: c.ID(), ID: i}
			res.Spikes = append(res.Spikes, ev)
			for _, sr := range spikeRecs {
				sr.Record(ev)
			}
			e.log.Debug("spike", "cell", c.ID(), "t", next)
			e.runLog.Spike(next, c.ID())

			sched := scheduler{e: e, emitted: next}
			for _, conn := range e.net.ConnectionsFrom(c.ID()) {
				conn.OnSourceSpike(next, sched)
			}
		}

		// sample
		for _, b := range traces {
			b.sample(next)
		}
	}

	res.Pending = e.queue.len()
	e.log.Info("run finished",
		"ticks", n,
		"spikes", len(res.Spikes),
		"deliveries", len(res.Deliveries))
	e.runLog.RunFinished(n, len(res.Spikes), nil)
	return res, nil
}
