package cell

import (
	"math"
	"testing"
)

func TestActiveCompartment_RestsNearVInit(t *testing.T) {
	c := NewActiveCompartment(DefaultActiveParams())
	const dt = 0.025
	for i := 0; i < 4000; i++ {
		c.Step(dt, 0)
	}
	if v := c.Voltage(); math.Abs(v-(-65)) > 0.5 {
		t.Errorf("resting voltage drifted to %.3f mV, want about -65", v)
	}
}

func TestActiveCompartment_FiresOnStrongPulse(t *testing.T) {
	c := NewActiveCompartment(DefaultActiveParams())
	const dt = 0.025
	peak := math.Inf(-1)
	for i := 0; i < 800; i++ {
		current := 0.0
		if i < 40 {
			current = 2
		}
		if v := c.Step(dt, current); v > peak {
			peak = v
		}
	}
	if peak < 20 {
		t.Errorf("peak voltage %.2f mV, expected an action potential above 20 mV", peak)
	}
}

func TestActiveCompartment_ResetRestoresState(t *testing.T) {
	c := NewActiveCompartment(DefaultActiveParams())
	initial := c.Voltage()
	for i := 0; i < 100; i++ {
		c.Step(0.025, 2)
	}
	c.Reset()
	if c.Voltage() != initial {
		t.Errorf("Voltage after Reset = %v, want %v", c.Voltage(), initial)
	}
}

func TestPassiveCompartment_RelaxesToReversal(t *testing.T) {
	p := DefaultPassiveParams()
	c := NewPassiveCompartment(p)
	for i := 0; i < 40; i++ {
		c.Step(0.025, 1)
	}
	if c.Voltage() <= p.E {
		t.Fatalf("depolarising current did not raise voltage: %v", c.Voltage())
	}
	for i := 0; i < 200000; i++ {
		c.Step(0.025, 0)
	}
	if math.Abs(c.Voltage()-p.E) > 1e-3 {
		t.Errorf("voltage %.5f did not relax to %v", c.Voltage(), p.E)
	}
}

func TestVtrapContinuousAtSingularity(t *testing.T) {
	at := vtrap(0, 10)
	near := vtrap(1e-4, 10)
	if math.Abs(at-near) > 1e-3 {
		t.Errorf("vtrap discontinuous at 0: %v vs %v", at, near)
	}
	if alphaM(-40) <= 0 || alphaN(-55) <= 0 {
		t.Error("rates must be positive at their singular points")
	}
}
