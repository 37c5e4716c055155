package cell

import "math"

// SynapseParams configures an exponentially decaying excitatory synapse.
type SynapseParams struct {
	Tau      float64 `json:"tau" yaml:"tau"`           // ms
	Reversal float64 `json:"reversal" yaml:"reversal"` // mV
}

// DefaultSynapseParams matches a standard ExpSyn: tau 2 ms, reversal 0 mV.
func DefaultSynapseParams() SynapseParams {
	return SynapseParams{Tau: 2, Reversal: 0}
}

// Synapse is a conductance-based point synapse on one compartment of a cell.
// Each delivered event increments the conductance by its weight (µS); the
// conductance then decays with time constant Tau.
type Synapse struct {
	site Site
	p    SynapseParams
	g    float64
	last float64
}

// Site returns the compartment the synapse is placed on.
func (s *Synapse) Site() Site { return s.site }

// Conductance returns the current synaptic conductance in µS.
func (s *Synapse) Conductance() float64 { return s.g }

// Deliver adds one event of the given weight.
func (s *Synapse) Deliver(weight float64) {
	s.g += weight
}

// LastCurrent returns the current (nA) the synapse injected during the most
// recent step.
func (s *Synapse) LastCurrent() float64 { return s.last }

func (s *Synapse) reset() {
	s.g = 0
	s.last = 0
}

// current returns the synaptic current into a compartment at voltage v.
// The driving force is taken at the end of the step (linearised backward
// Euler), which keeps large weights from overshooting the reversal.
func (s *Synapse) current(v, dt float64, m Membrane) float64 {
	if s.g == 0 {
		s.last = 0
		return 0
	}
	gDensity := s.g * densityPerNA(m.Area)
	s.last = s.g * (s.p.Reversal - v) / (1 + dt*gDensity/m.Capacitance)
	return s.last
}

func (s *Synapse) decay(dt float64) {
	s.g *= math.Exp(-dt / s.p.Tau)
}
