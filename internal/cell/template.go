package cell

import (
	"fmt"

	"github.com/goki/mat32"
	"github.com/nvandessel/cellnet/internal/simerr"
)

// Template builds ready-to-step cells. It stands in for a morphology file:
// callers only ever ask it for a new cell.
type Template interface {
	NewCell(id string, position mat32.Vec3) (*Cell, error)
}

// TwoCompartment is the reduced form of the reference morphology: an active
// soma (soma and axon, Hodgkin-Huxley) coupled to a passive dendrite (basal
// and apical branches). Current is injected into and observed at the soma;
// synapses go on the dendrite.
type TwoCompartment struct {
	Soma      ActiveParams  `json:"soma" yaml:"soma"`
	Dendrite  PassiveParams `json:"dendrite" yaml:"dendrite"`
	Coupling  float64       `json:"coupling" yaml:"coupling"` // µS
	Threshold float64       `json:"threshold" yaml:"threshold"`
	Synapse   SynapseParams `json:"synapse" yaml:"synapse"`
}

// DefaultTemplate returns the reference two-compartment cell.
func DefaultTemplate() TwoCompartment {
	return TwoCompartment{
		Soma:      DefaultActiveParams(),
		Dendrite:  DefaultPassiveParams(),
		Coupling:  0.01,
		Threshold: DefaultThreshold,
		Synapse:   DefaultSynapseParams(),
	}
}

// Validate checks that the template can produce a stable cell.
func (t TwoCompartment) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"soma area", t.Soma.Area},
		{"soma capacitance", t.Soma.Capacitance},
		{"dendrite area", t.Dendrite.Area},
		{"dendrite capacitance", t.Dendrite.Capacitance},
		{"synapse tau", t.Synapse.Tau},
	}
	for _, c := range checks {
		if err := simerr.Positive(c.name, c.v); err != nil {
			return err
		}
	}
	nonNegative := []struct {
		name string
		v    float64
	}{
		{"soma gna", t.Soma.GNa},
		{"soma gk", t.Soma.GK},
		{"soma gl", t.Soma.GL},
		{"dendrite g", t.Dendrite.G},
		{"coupling", t.Coupling},
	}
	for _, c := range nonNegative {
		if err := simerr.NonNegative(c.name, c.v); err != nil {
			return err
		}
	}
	return nil
}

// NewCell builds a cell at rest.
func (t TwoCompartment) NewCell(id string, position mat32.Vec3) (*Cell, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	return New(id, position, Layout{
		Sections: []Section{
			{Site: SiteSoma, Body: NewActiveCompartment(t.Soma)},
			{Site: SiteDend, Body: NewPassiveCompartment(t.Dendrite)},
		},
		Coupling:        t.Coupling,
		StimulationSite: SiteSoma,
		ObservationSite: SiteSoma,
		SynapseSite:     SiteDend,
		Threshold:       t.Threshold,
		Synapse:         t.Synapse,
	})
}
