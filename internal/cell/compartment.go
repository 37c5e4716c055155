package cell

import "math"

// Units used throughout the package:
//
//	time         ms
//	voltage      mV
//	current      nA (absolute, per compartment)
//	conductance  mS/cm² for membrane densities, µS for point conductances
//	area         µm²
//	capacitance  µF/cm²

// densityPerNA converts an absolute current in nA into a current density in
// µA/cm² for a compartment of the given area in µm².
func densityPerNA(area float64) float64 {
	return 1e5 / area
}

// Membrane describes the passive geometry of a compartment.
type Membrane struct {
	Area        float64 `json:"area" yaml:"area"`               // µm²
	Capacitance float64 `json:"capacitance" yaml:"capacitance"` // µF/cm²
}

// Integrable is the membrane dynamics of a single compartment. The cell
// orchestrates compartments only through this interface and never depends on
// which variant it is stepping.
type Integrable interface {
	// Step advances the compartment by dt given the total current (nA)
	// flowing into it and returns the new membrane voltage.
	Step(dt, current float64) float64

	// Voltage returns the current membrane voltage.
	Voltage() float64

	// Reset returns the compartment to its resting state.
	Reset()

	// Membrane returns the compartment geometry.
	Membrane() Membrane
}

// ActiveParams configures a Hodgkin-Huxley compartment.
type ActiveParams struct {
	Membrane `yaml:",inline"`

	GNa float64 `json:"gna" yaml:"gna"` // mS/cm²
	GK  float64 `json:"gk" yaml:"gk"`   // mS/cm²
	GL  float64 `json:"gl" yaml:"gl"`   // mS/cm²
	ENa float64 `json:"ena" yaml:"ena"` // mV
	EK  float64 `json:"ek" yaml:"ek"`   // mV
	EL  float64 `json:"el" yaml:"el"`   // mV

	// VInit is the voltage the compartment starts from after Reset.
	VInit float64 `json:"v_init" yaml:"v_init"`
}

// DefaultActiveParams returns the soma/axon conductances of the reference
// cell: gNa 0.12, gK 0.036 and gLeak 0.0003 S/cm².
func DefaultActiveParams() ActiveParams {
	return ActiveParams{
		Membrane: Membrane{Area: 3000, Capacitance: 1},
		GNa:      120,
		GK:       36,
		GL:       0.3,
		ENa:      50,
		EK:       -77,
		EL:       -54.3,
		VInit:    -65,
	}
}

// ActiveCompartment integrates the Hodgkin-Huxley sodium, potassium and leak
// currents. Gating variables use exponential Euler; the voltage update is
// semi-implicit in the total membrane conductance.
type ActiveCompartment struct {
	p       ActiveParams
	v       float64
	m, h, n float64
}

// NewActiveCompartment returns a compartment at rest.
func NewActiveCompartment(p ActiveParams) *ActiveCompartment {
	c := &ActiveCompartment{p: p}
	c.Reset()
	return c
}

func (c *ActiveCompartment) Voltage() float64   { return c.v }
func (c *ActiveCompartment) Membrane() Membrane { return c.p.Membrane }

// Reset sets the voltage to VInit and every gate to its steady state there.
func (c *ActiveCompartment) Reset() {
	c.v = c.p.VInit
	c.m = steadyState(alphaM(c.v), betaM(c.v))
	c.h = steadyState(alphaH(c.v), betaH(c.v))
	c.n = steadyState(alphaN(c.v), betaN(c.v))
}

func (c *ActiveCompartment) Step(dt, current float64) float64 {
	v := c.v
	c.m = gateStep(c.m, alphaM(v), betaM(v), dt)
	c.h = gateStep(c.h, alphaH(v), betaH(v), dt)
	c.n = gateStep(c.n, alphaN(v), betaN(v), dt)

	gNa := c.p.GNa * c.m * c.m * c.m * c.h
	gK := c.p.GK * c.n * c.n * c.n * c.n
	gTotal := gNa + gK + c.p.GL
	drive := gNa*c.p.ENa + gK*c.p.EK + c.p.GL*c.p.EL + current*densityPerNA(c.p.Area)

	k := dt / c.p.Capacitance
	c.v = (v + k*drive) / (1 + k*gTotal)
	return c.v
}

// PassiveParams configures a leak-only compartment.
type PassiveParams struct {
	Membrane `yaml:",inline"`

	G float64 `json:"g" yaml:"g"` // mS/cm²
	E float64 `json:"e" yaml:"e"` // mV
}

// DefaultPassiveParams returns the dendrite/apical conductance of the
// reference cell: 0.0002 S/cm² reversing at -65 mV.
func DefaultPassiveParams() PassiveParams {
	return PassiveParams{
		Membrane: Membrane{Area: 5000, Capacitance: 1},
		G:        0.2,
		E:        -65,
	}
}

// PassiveCompartment integrates a single leak conductance with backward Euler.
type PassiveCompartment struct {
	p PassiveParams
	v float64
}

// NewPassiveCompartment returns a compartment resting at its leak reversal.
func NewPassiveCompartment(p PassiveParams) *PassiveCompartment {
	c := &PassiveCompartment{p: p}
	c.Reset()
	return c
}

func (c *PassiveCompartment) Voltage() float64   { return c.v }
func (c *PassiveCompartment) Membrane() Membrane { return c.p.Membrane }
func (c *PassiveCompartment) Reset()             { c.v = c.p.E }

func (c *PassiveCompartment) Step(dt, current float64) float64 {
	k := dt / c.p.Capacitance
	c.v = (c.v + k*(c.p.G*c.p.E+current*densityPerNA(c.p.Area))) / (1 + k*c.p.G)
	return c.v
}

// Hodgkin-Huxley rate functions at 6.3 °C, V in mV, rates in 1/ms.

func alphaM(v float64) float64 { return 0.1 * vtrap(-(v + 40), 10) }
func betaM(v float64) float64  { return 4 * math.Exp(-(v+65)/18) }
func alphaH(v float64) float64 { return 0.07 * math.Exp(-(v+65)/20) }
func betaH(v float64) float64  { return 1 / (1 + math.Exp(-(v+35)/10)) }
func alphaN(v float64) float64 { return 0.01 * vtrap(-(v + 55), 10) }
func betaN(v float64) float64  { return 0.125 * math.Exp(-(v+65)/80) }

// vtrap computes x/(exp(x/y)-1) without the removable singularity at x=0.
func vtrap(x, y float64) float64 {
	if math.Abs(x/y) < 1e-6 {
		return y * (1 - x/y/2)
	}
	return x / (math.Exp(x/y) - 1)
}

func steadyState(alpha, beta float64) float64 {
	return alpha / (alpha + beta)
}

func gateStep(x, alpha, beta, dt float64) float64 {
	sum := alpha + beta
	inf := alpha / sum
	return inf + (x-inf)*math.Exp(-dt*sum)
}
