// Package cell implements compartmental neuron models: membrane dynamics
// behind the Integrable interface, point synapses, current-clamp stimuli and
// the Cell that ties them together with an edge-triggered spike detector.
package cell

import (
	"fmt"
	"math"

	"github.com/goki/mat32"
	"github.com/nvandessel/cellnet/internal/simerr"
)

// Site names a compartment of a cell.
type Site string

const (
	SiteSoma Site = "soma"
	SiteDend Site = "dend"
)

// DefaultThreshold is the spike detection threshold at the observation site.
const DefaultThreshold = 10.0 // mV

// Section is one named compartment of a cell.
type Section struct {
	Site Site
	Body Integrable
}

// Layout describes how a cell is assembled from sections.
type Layout struct {
	// Sections are coupled in a chain: each section to the next.
	Sections []Section

	// Coupling is the axial conductance (µS) between neighbouring sections.
	Coupling float64

	StimulationSite Site
	ObservationSite Site
	SynapseSite     Site

	Threshold float64
	Synapse   SynapseParams
}

// Cell is a compartmental neuron. Its dynamical state is private; it is
// mutated only by Step, Reset and synaptic delivery.
type Cell struct {
	id       string
	position mat32.Vec3

	sections []Section
	index    map[Site]int
	coupling float64

	stimSite int
	obsSite  int
	synSite  Site

	threshold float64
	synParams SynapseParams
	synapses  []*Synapse

	injections []Stimulus

	above   bool
	crossed bool

	// scratch buffers reused across steps
	volts    []float64
	currents []float64
}

// New assembles a cell. Unknown or duplicate sites are construction errors.
func New(id string, position mat32.Vec3, layout Layout) (*Cell, error) {
	if id == "" {
		return nil, simerr.Invalid("cell id", id, "must not be empty")
	}
	if len(layout.Sections) == 0 {
		return nil, simerr.Invalid("sections", 0, "cell needs at least one section")
	}
	if err := simerr.NonNegative("coupling", layout.Coupling); err != nil {
		return nil, err
	}
	if err := simerr.Positive("synapse tau", layout.Synapse.Tau); err != nil {
		return nil, err
	}

	c := &Cell{
		id:        id,
		position:  position,
		sections:  layout.Sections,
		index:     make(map[Site]int, len(layout.Sections)),
		coupling:  layout.Coupling,
		threshold: layout.Threshold,
		synParams: layout.Synapse,
		volts:     make([]float64, len(layout.Sections)),
		currents:  make([]float64, len(layout.Sections)),
	}
	for i, s := range layout.Sections {
		if s.Site == "" || s.Body == nil {
			return nil, simerr.Invalid("section", i, "site and body are required")
		}
		if _, dup := c.index[s.Site]; dup {
			return nil, simerr.Invalid("section", s.Site, "duplicate site")
		}
		m := s.Body.Membrane()
		if err := simerr.Positive(fmt.Sprintf("%s area", s.Site), m.Area); err != nil {
			return nil, err
		}
		if err := simerr.Positive(fmt.Sprintf("%s capacitance", s.Site), m.Capacitance); err != nil {
			return nil, err
		}
		c.index[s.Site] = i
	}

	var err error
	if c.stimSite, err = c.lookup("stimulation site", layout.StimulationSite); err != nil {
		return nil, err
	}
	if c.obsSite, err = c.lookup("observation site", layout.ObservationSite); err != nil {
		return nil, err
	}
	if _, err = c.lookup("synapse site", layout.SynapseSite); err != nil {
		return nil, err
	}
	c.synSite = layout.SynapseSite

	c.Reset()
	return c, nil
}

func (c *Cell) lookup(name string, site Site) (int, error) {
	i, ok := c.index[site]
	if !ok {
		return 0, simerr.Invalid(name, site, fmt.Sprintf("cell %s has no such section", c.id))
	}
	return i, nil
}

// ID returns the cell's unique id.
func (c *Cell) ID() string { return c.id }

// Position returns the display position in µm.
func (c *Cell) Position() mat32.Vec3 { return c.position }

// Threshold returns the spike detection threshold.
func (c *Cell) Threshold() float64 { return c.threshold }

// Sites returns the section names in chain order.
func (c *Cell) Sites() []Site {
	sites := make([]Site, len(c.sections))
	for i, s := range c.sections {
		sites[i] = s.Site
	}
	return sites
}

// DefaultSynapseSite is where connections place their synapse unless told
// otherwise.
func (c *Cell) DefaultSynapseSite() Site { return c.synSite }

// AddSynapse places a new synapse on the given section.
func (c *Cell) AddSynapse(site Site) (*Synapse, error) {
	if _, err := c.lookup("synapse site", site); err != nil {
		return nil, err
	}
	s := &Synapse{site: site, p: c.synParams}
	c.synapses = append(c.synapses, s)
	return s, nil
}

// Inject adds a current of the given amplitude over the half-open interval.
// Concurrent injections sum.
func (c *Cell) Inject(amplitude float64, iv Interval) error {
	stim, err := NewStimulus(iv.Start, iv.End-iv.Start, amplitude)
	if err != nil {
		return err
	}
	c.injections = append(c.injections, stim)
	return nil
}

// Attach adds a stimulus to the cell's stimulation site.
func (c *Cell) Attach(s Stimulus) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.injections = append(c.injections, s)
	return nil
}

// Stimuli returns the attached stimuli.
func (c *Cell) Stimuli() []Stimulus {
	out := make([]Stimulus, len(c.injections))
	copy(out, c.injections)
	return out
}

// ClearStimuli detaches every stimulus.
func (c *Cell) ClearStimuli() {
	c.injections = nil
}

// ExternalCurrent sums every injection active at time t.
func (c *Cell) ExternalCurrent(t float64) float64 {
	var total float64
	for _, s := range c.injections {
		total += s.CurrentAt(t)
	}
	return total
}

// Voltage returns the membrane voltage at the observation site.
func (c *Cell) Voltage() float64 {
	return c.sections[c.obsSite].Body.Voltage()
}

// VoltageAt returns the membrane voltage of a section.
func (c *Cell) VoltageAt(site Site) (float64, error) {
	i, err := c.lookup("site", site)
	if err != nil {
		return 0, err
	}
	return c.sections[i].Body.Voltage(), nil
}

// SynapticCurrent returns the total current the cell's synapses injected
// during the most recent step.
func (c *Cell) SynapticCurrent() float64 {
	var total float64
	for _, s := range c.synapses {
		total += s.LastCurrent()
	}
	return total
}

// Step advances every section by dt. external is the current (nA) injected
// at the stimulation site; synaptic currents are added at their sites. All
// inter-section currents are computed from the voltages at the start of the
// step. Step returns the new observation-site voltage.
func (c *Cell) Step(dt, external float64) float64 {
	for i, s := range c.sections {
		c.volts[i] = s.Body.Voltage()
		c.currents[i] = 0
	}
	c.currents[c.stimSite] += external

	for i := 0; i+1 < len(c.sections); i++ {
		axial := c.coupling * (c.volts[i+1] - c.volts[i])
		c.currents[i] += axial
		c.currents[i+1] -= axial
	}

	for _, syn := range c.synapses {
		i := c.index[syn.site]
		c.currents[i] += syn.current(c.volts[i], dt, c.sections[i].Body.Membrane())
	}

	for i, s := range c.sections {
		s.Body.Step(dt, c.currents[i])
	}
	for _, syn := range c.synapses {
		syn.decay(dt)
	}

	v := c.Voltage()
	nowAbove := v >= c.threshold
	c.crossed = nowAbove && !c.above
	c.above = nowAbove
	return v
}

// CrossedThreshold reports whether the observation-site voltage crossed the
// threshold from below during the most recent step. It stays false while the
// voltage remains above threshold.
func (c *Cell) CrossedThreshold() bool { return c.crossed }

// Finite reports whether every section voltage is a finite number.
func (c *Cell) Finite() bool {
	for _, s := range c.sections {
		v := s.Body.Voltage()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Reset returns every section and synapse to rest and re-arms the spike
// detector. Stimuli and synapse placement are kept.
func (c *Cell) Reset() {
	for _, s := range c.sections {
		s.Body.Reset()
	}
	for _, syn := range c.synapses {
		syn.reset()
	}
	c.above = c.Voltage() >= c.threshold
	c.crossed = false
}
