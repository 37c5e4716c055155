// Package recording holds the per-run observers the engine writes into:
// time series of a cell observable and the spike event stream. Recorders
// are cleared when a run begins and are read-only once it ends.
package recording

// Observable selects what a trace recorder samples.
type Observable string

const (
	// ObserveVoltage samples the observation-site membrane voltage (mV).
	ObserveVoltage Observable = "voltage"

	// ObserveSynapticCurrent samples the total synaptic current (nA) the
	// cell received during the last step.
	ObserveSynapticCurrent Observable = "synaptic_current"
)

// Sample is one (time, value) pair.
type Sample struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// SpikeEvent is a threshold crossing: emission time and source.
type SpikeEvent struct {
	T      float64 `json:"t"`
	Source string  `json:"source"`
	ID     int     `json:"id"` // index of the source cell in network order
}

// Recorder is implemented by every recorder the engine can drive.
type Recorder interface {
	// Begin clears previous contents and starts accepting samples.
	Begin()
	// End stops accepting samples. valid is false when the run failed.
	End(valid bool)
	// Valid reports whether the recorder holds a complete run.
	Valid() bool
}

type phase int

const (
	phaseFresh phase = iota
	phaseRecording
	phaseDone
	phaseInvalid
)

type lifecycle struct {
	phase phase
}

func (l *lifecycle) begin() { l.phase = phaseRecording }

func (l *lifecycle) End(valid bool) {
	if valid {
		l.phase = phaseDone
		return
	}
	l.phase = phaseInvalid
}

func (l *lifecycle) Valid() bool     { return l.phase == phaseDone }
func (l *lifecycle) recording() bool { return l.phase == phaseRecording }

// TraceRecorder samples one observable of one cell at every tick.
type TraceRecorder struct {
	lifecycle
	cellID     string
	observable Observable
	samples    []Sample
}

// NewVoltageRecorder records the membrane voltage of a cell.
func NewVoltageRecorder(cellID string) *TraceRecorder {
	return NewTraceRecorder(cellID, ObserveVoltage)
}

// NewTraceRecorder records the given observable of a cell.
func NewTraceRecorder(cellID string, obs Observable) *TraceRecorder {
	return &TraceRecorder{cellID: cellID, observable: obs}
}

func (r *TraceRecorder) CellID() string         { return r.cellID }
func (r *TraceRecorder) Observable() Observable { return r.observable }

func (r *TraceRecorder) Begin() {
	r.begin()
	r.samples = r.samples[:0]
}

// Record appends a sample. Samples outside a run are dropped.
func (r *TraceRecorder) Record(t, v float64) {
	if !r.recording() {
		return
	}
	r.samples = append(r.samples, Sample{T: t, V: v})
}

// Samples returns a copy of the recorded samples in time order.
func (r *TraceRecorder) Samples() []Sample {
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Trace returns the recorded samples labelled with their source.
func (r *TraceRecorder) Trace() Trace {
	return Trace{CellID: r.cellID, Observable: r.observable, Samples: r.Samples()}
}

// Peak returns the largest sampled value and its time. ok is false when no
// samples were recorded.
func (r *TraceRecorder) Peak() (s Sample, ok bool) {
	for i, x := range r.samples {
		if i == 0 || x.V > s.V {
			s = x
		}
	}
	return s, len(r.samples) > 0
}

// Trace is an immutable recorded time series.
type Trace struct {
	CellID     string     `json:"cell_id"`
	Observable Observable `json:"observable"`
	Samples    []Sample   `json:"samples"`
}

// SpikeRecorder collects threshold crossings of a set of cells, or of every
// cell when constructed without sources.
type SpikeRecorder struct {
	lifecycle
	sources map[string]bool
	events  []SpikeEvent
}

// NewSpikeRecorder watches the given cells; no arguments watches all cells.
func NewSpikeRecorder(sources ...string) *SpikeRecorder {
	r := &SpikeRecorder{}
	if len(sources) > 0 {
		r.sources = make(map[string]bool, len(sources))
		for _, s := range sources {
			r.sources[s] = true
		}
	}
	return r
}

func (r *SpikeRecorder) Begin() {
	r.begin()
	r.events = r.events[:0]
}

// Watches reports whether spikes of the given cell are recorded.
func (r *SpikeRecorder) Watches(cellID string) bool {
	return r.sources == nil || r.sources[cellID]
}

// Record appends a spike if its source is watched.
func (r *SpikeRecorder) Record(ev SpikeEvent) {
	if !r.recording() || !r.Watches(ev.Source) {
		return
	}
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded spikes in time order.
func (r *SpikeRecorder) Events() []SpikeEvent {
	out := make([]SpikeEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Times returns the spike times of one source.
func (r *SpikeRecorder) Times(source string) []float64 {
	var out []float64
	for _, ev := range r.events {
		if ev.Source == source {
			out = append(out, ev.T)
		}
	}
	return out
}

// BySource groups spike times per source, the list-of-lists layout raster
// plots consume.
func (r *SpikeRecorder) BySource() map[string][]float64 {
	out := make(map[string][]float64)
	for _, ev := range r.events {
		out[ev.Source] = append(out[ev.Source], ev.T)
	}
	return out
}
