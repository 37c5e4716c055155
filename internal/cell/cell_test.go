package cell

import (
	"errors"
	"math"
	"testing"

	"github.com/goki/mat32"
	"github.com/nvandessel/cellnet/internal/simerr"
)

const testDT = 0.025

// clampCompartment is an Integrable whose voltage follows its input current
// instantly, so a sustained pulse holds it above threshold.
type clampCompartment struct {
	rest, gain float64
	v          float64
}

func (c *clampCompartment) Step(dt, current float64) float64 {
	c.v = c.rest + c.gain*current
	return c.v
}
func (c *clampCompartment) Voltage() float64   { return c.v }
func (c *clampCompartment) Reset()             { c.v = c.rest }
func (c *clampCompartment) Membrane() Membrane { return Membrane{Area: 1000, Capacitance: 1} }

func newClampCell(t *testing.T) *Cell {
	t.Helper()
	c, err := New("clamp", mat32.Vec3{}, Layout{
		Sections:        []Section{{Site: SiteSoma, Body: &clampCompartment{rest: -65, gain: 100}}},
		StimulationSite: SiteSoma,
		ObservationSite: SiteSoma,
		SynapseSite:     SiteSoma,
		Threshold:       DefaultThreshold,
		Synapse:         DefaultSynapseParams(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func newDefaultCell(t *testing.T, id string) *Cell {
	t.Helper()
	c, err := DefaultTemplate().NewCell(id, mat32.Vec3{})
	if err != nil {
		t.Fatalf("NewCell(%s): %v", id, err)
	}
	return c
}

// drive steps the cell from t=0 to tstop and returns the crossing times.
func drive(c *Cell, tstop float64) []float64 {
	var crossings []float64
	steps := int(math.Round(tstop / testDT))
	for k := 0; k < steps; k++ {
		t := float64(k) * testDT
		c.Step(testDT, c.ExternalCurrent(t))
		if c.CrossedThreshold() {
			crossings = append(crossings, float64(k+1)*testDT)
		}
	}
	return crossings
}

func TestCell_SustainedPulseCrossesOnce(t *testing.T) {
	c := newClampCell(t)
	if err := c.Inject(1, Interval{Start: 5, End: 20}); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	crossings := drive(c, 30)
	if len(crossings) != 1 {
		t.Fatalf("got %d crossings %v, want exactly 1", len(crossings), crossings)
	}
}

func TestCell_TwoPulsesCrossTwice(t *testing.T) {
	c := newClampCell(t)
	if err := c.Inject(1, Interval{Start: 5, End: 8}); err != nil {
		t.Fatal(err)
	}
	if err := c.Inject(1, Interval{Start: 12, End: 14}); err != nil {
		t.Fatal(err)
	}

	if crossings := drive(c, 20); len(crossings) != 2 {
		t.Errorf("got %d crossings %v, want 2", len(crossings), crossings)
	}
}

func TestCell_InjectionsSum(t *testing.T) {
	c := newClampCell(t)
	if err := c.Inject(0.25, Interval{Start: 0, End: 10}); err != nil {
		t.Fatal(err)
	}
	if err := c.Attach(Stimulus{Delay: 5, Duration: 10, Amplitude: 0.5}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		t, want float64
	}{
		{1, 0.25},
		{6, 0.75},
		{12, 0.5},
		{16, 0},
	}
	for _, tt := range tests {
		if got := c.ExternalCurrent(tt.t); got != tt.want {
			t.Errorf("ExternalCurrent(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}

	c.ClearStimuli()
	if got := c.ExternalCurrent(6); got != 0 {
		t.Errorf("ExternalCurrent after ClearStimuli = %v, want 0", got)
	}
}

func TestCell_InjectRejectsReversedInterval(t *testing.T) {
	c := newClampCell(t)
	err := c.Inject(1, Interval{Start: 10, End: 5})
	if !errors.Is(err, simerr.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestCell_MalformedSitesRejected(t *testing.T) {
	body := func() Integrable { return NewPassiveCompartment(DefaultPassiveParams()) }

	tests := []struct {
		name   string
		layout Layout
	}{
		{
			name: "unknown stimulation site",
			layout: Layout{
				Sections:        []Section{{Site: SiteSoma, Body: body()}},
				StimulationSite: "axon", ObservationSite: SiteSoma, SynapseSite: SiteSoma,
				Synapse: DefaultSynapseParams(),
			},
		},
		{
			name: "unknown observation site",
			layout: Layout{
				Sections:        []Section{{Site: SiteSoma, Body: body()}},
				StimulationSite: SiteSoma, ObservationSite: "apic", SynapseSite: SiteSoma,
				Synapse: DefaultSynapseParams(),
			},
		},
		{
			name: "duplicate site",
			layout: Layout{
				Sections:        []Section{{Site: SiteSoma, Body: body()}, {Site: SiteSoma, Body: body()}},
				StimulationSite: SiteSoma, ObservationSite: SiteSoma, SynapseSite: SiteSoma,
				Synapse: DefaultSynapseParams(),
			},
		},
		{
			name: "no sections",
			layout: Layout{
				StimulationSite: SiteSoma, ObservationSite: SiteSoma, SynapseSite: SiteSoma,
				Synapse: DefaultSynapseParams(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("c", mat32.Vec3{}, tt.layout)
			if !errors.Is(err, simerr.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestCell_AddSynapseUnknownSite(t *testing.T) {
	c := newDefaultCell(t, "c0")
	if _, err := c.AddSynapse("axon"); !errors.Is(err, simerr.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
	if _, err := c.AddSynapse(c.DefaultSynapseSite()); err != nil {
		t.Errorf("AddSynapse(default): %v", err)
	}
}

func TestCell_SupraThresholdPulseSpikesOnce(t *testing.T) {
	c := newDefaultCell(t, "c0")
	if err := c.Inject(2, Interval{Start: 5, End: 6}); err != nil {
		t.Fatal(err)
	}

	crossings := drive(c, 25)
	if len(crossings) != 1 {
		t.Fatalf("got %d crossings %v, want 1", len(crossings), crossings)
	}
	if crossings[0] < 5 || crossings[0] > 10 {
		t.Errorf("spike at %.3f ms, expected shortly after 5 ms onset", crossings[0])
	}
}

func TestCell_SubThresholdPulseDoesNotSpike(t *testing.T) {
	c := newDefaultCell(t, "c0")
	if err := c.Inject(0.05, Interval{Start: 5, End: 6}); err != nil {
		t.Fatal(err)
	}
	if crossings := drive(c, 25); len(crossings) != 0 {
		t.Errorf("got crossings %v for a sub-threshold pulse", crossings)
	}
}

func TestCell_SynapticDeliveryDepolarisesSoma(t *testing.T) {
	c := newDefaultCell(t, "c0")
	syn, err := c.AddSynapse(c.DefaultSynapseSite())
	if err != nil {
		t.Fatal(err)
	}
	rest := c.Voltage()

	syn.Deliver(1)
	if syn.Conductance() != 1 {
		t.Fatalf("Conductance = %v, want 1", syn.Conductance())
	}

	peak := rest
	for k := 0; k < 800; k++ {
		if v := c.Step(testDT, 0); v > peak {
			peak = v
		}
	}
	if peak <= rest+1 {
		t.Errorf("soma peak %.2f mV barely moved from rest %.2f mV", peak, rest)
	}
	if syn.Conductance() >= 1e-3 {
		t.Errorf("conductance %v did not decay", syn.Conductance())
	}
}

func TestCell_SynapticCurrentMonotonicInWeight(t *testing.T) {
	var prev float64
	for i, w := range []float64{0, 0.01, 0.1, 0.5, 1, 2, 10} {
		c := newDefaultCell(t, "c0")
		syn, err := c.AddSynapse(c.DefaultSynapseSite())
		if err != nil {
			t.Fatal(err)
		}
		syn.Deliver(w)
		c.Step(testDT, 0)
		got := c.SynapticCurrent()
		if i > 0 && got < prev {
			t.Errorf("weight %v: delivered current %v < %v at smaller weight", w, got, prev)
		}
		prev = got
	}
}

func TestCell_ResetClearsDynamicsKeepsStimuli(t *testing.T) {
	c := newDefaultCell(t, "c0")
	syn, _ := c.AddSynapse(SiteDend)
	if err := c.Inject(2, Interval{Start: 0, End: 1}); err != nil {
		t.Fatal(err)
	}
	initial := c.Voltage()
	syn.Deliver(0.5)
	drive(c, 5)

	c.Reset()
	if c.Voltage() != initial {
		t.Errorf("voltage after Reset = %v, want %v", c.Voltage(), initial)
	}
	if syn.Conductance() != 0 {
		t.Errorf("synapse conductance after Reset = %v, want 0", syn.Conductance())
	}
	if c.CrossedThreshold() {
		t.Error("spike detector not re-armed by Reset")
	}
	if len(c.Stimuli()) != 1 {
		t.Errorf("Reset dropped stimuli: %d left", len(c.Stimuli()))
	}
}

func TestDefaultTemplate_Validate(t *testing.T) {
	tmpl := DefaultTemplate()
	if err := tmpl.Validate(); err != nil {
		t.Fatalf("default template invalid: %v", err)
	}

	tmpl.Soma.Area = 0
	if _, err := tmpl.NewCell("c", mat32.Vec3{}); !errors.Is(err, simerr.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for zero soma area, got %v", err)
	}
}
