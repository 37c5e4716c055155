package experiment

import (
	"context"
	"fmt"

	"github.com/nvandessel/cellnet/internal/cell"
	"github.com/nvandessel/cellnet/internal/engine"
	"github.com/nvandessel/cellnet/internal/network"
	"github.com/nvandessel/cellnet/internal/recording"
	"github.com/nvandessel/cellnet/internal/simerr"
	"github.com/nvandessel/cellnet/internal/store"
)

// SweepParams configures a stimulus threshold sweep on a single cell.
type SweepParams struct {
	Min          float64 `json:"min"`   // nA
	Max          float64 `json:"max"`   // nA
	Steps        int     `json:"steps"` // amplitudes from Min to Max inclusive
	StimDelay    float64 `json:"stim_delay"`
	StimDuration float64 `json:"stim_duration"`
	TStop        float64 `json:"tstop"`
	DT           float64 `json:"dt"`
}

// DefaultSweepParams returns 0.1 to 0.8 nA in 8 steps, 1 ms pulses at 5 ms.
func DefaultSweepParams() SweepParams {
	return SweepParams{
		Min:          0.1,
		Max:          0.8,
		Steps:        8,
		StimDelay:    5,
		StimDuration: 1,
		TStop:        SweepTStop,
		DT:           engine.DefaultDT,
	}
}

// Amplitudes returns the evenly spaced amplitudes of the sweep.
func (p SweepParams) Amplitudes() []float64 {
	if p.Steps == 1 {
		return []float64{p.Min}
	}
	out := make([]float64, p.Steps)
	step := (p.Max - p.Min) / float64(p.Steps-1)
	for i := range out {
		out[i] = p.Min + float64(i)*step
	}
	return out
}

func (p SweepParams) validate() error {
	if p.Steps < 1 {
		return simerr.Invalid("steps", p.Steps, "must be at least 1")
	}
	if err := simerr.NonNegative("min amplitude", p.Min); err != nil {
		return err
	}
	if p.Max < p.Min {
		return simerr.Invalid("max amplitude", p.Max, "must not be below min")
	}
	return nil
}

// SweepPoint is the response of the cell to one amplitude.
type SweepPoint struct {
	Amplitude float64         `json:"amplitude"`
	Spikes    []float64       `json:"spikes"`
	Peak      float64         `json:"peak"` // mV
	Trace     recording.Trace `json:"-"`
}

// Fired reports whether the amplitude elicited at least one spike.
func (p SweepPoint) Fired() bool { return len(p.Spikes) > 0 }

// SweepResult holds every amplitude's response.
type SweepResult struct {
	RunID  string       `json:"run_id,omitempty"`
	Params SweepParams  `json:"params"`
	Points []SweepPoint `json:"points"`
}

// FirstSpiking returns the lowest amplitude that fired.
func (r *SweepResult) FirstSpiking() (float64, bool) {
	for _, p := range r.Points {
		if p.Fired() {
			return p.Amplitude, true
		}
	}
	return 0, false
}

// ThresholdSweep stimulates one cell with each amplitude in turn. The same
// engine is reused; every run starts from rest.
func (r *Runner) ThresholdSweep(ctx context.Context, p SweepParams) (*SweepResult, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("threshold sweep: %w", err)
	}
	net, err := network.Build(r.Template, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("threshold sweep: %w", err)
	}
	eng, err := engine.New(net, engine.Options{DT: p.DT, Logger: r.Logger, RunLog: r.RunLog})
	if err != nil {
		return nil, err
	}

	id := network.CellID(0)
	out := &SweepResult{Params: p}
	for _, amp := range p.Amplitudes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stim, err := cell.NewStimulus(p.StimDelay, p.StimDuration, amp)
		if err != nil {
			return nil, fmt.Errorf("threshold sweep: %w", err)
		}
		if err := net.ClearStimuli(); err != nil {
			return nil, err
		}
		if err := net.AttachStimulus(id, stim); err != nil {
			return nil, err
		}

		v := recording.NewVoltageRecorder(id)
		res, err := eng.Run(p.TStop, v)
		if err != nil {
			return nil, fmt.Errorf("threshold sweep at %g nA: %w", amp, err)
		}
		peak, _ := v.Peak()
		out.Points = append(out.Points, SweepPoint{
			Amplitude: amp,
			Spikes:    res.SpikeTimes(id),
			Peak:      peak.V,
			Trace:     v.Trace(),
		})
		r.logger().Debug("sweep point", "amplitude", amp, "spikes", len(res.SpikeTimes(id)))
	}

	if r.Store != nil {
		runID, err := r.Store.SaveRun(ctx, out.record(eng.DT()))
		if err != nil {
			return nil, fmt.Errorf("save sweep: %w", err)
		}
		out.RunID = runID
	}
	return out, nil
}

// record stores one voltage trace per amplitude, in sweep order. Spikes are
// kept per amplitude in Params since every trace belongs to the same cell.
func (r *SweepResult) record(dt float64) store.RunRecord {
	amps := make([]any, len(r.Points))
	spikes := make([]any, len(r.Points))
	traces := make([]recording.Trace, len(r.Points))
	for i, p := range r.Points {
		amps[i] = p.Amplitude
		times := make([]any, len(p.Spikes))
		for j, t := range p.Spikes {
			times[j] = t
		}
		spikes[i] = times
		traces[i] = p.Trace
	}
	params := map[string]any{
		"amplitudes":    amps,
		"spike_times":   spikes,
		"stim_delay":    r.Params.StimDelay,
		"stim_duration": r.Params.StimDuration,
	}
	if a, ok := r.FirstSpiking(); ok {
		params["first_spiking_amplitude"] = a
	}
	return store.RunRecord{
		Experiment: NameThreshold,
		TStop:      r.Params.TStop,
		DT:         dt,
		Cells:      1,
		Params:     params,
		Traces:     traces,
	}
}
