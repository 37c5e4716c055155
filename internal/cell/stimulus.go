package cell

import "github.com/nvandessel/cellnet/internal/simerr"

// Interval is a half-open time window [Start, End).
type Interval struct {
	Start float64
	End   float64
}

// Contains reports whether Start <= t < End.
func (iv Interval) Contains(t float64) bool {
	return iv.Start <= t && t < iv.End
}

// Stimulus is a square current pulse, the equivalent of a current clamp.
type Stimulus struct {
	Delay     float64 `json:"delay" yaml:"delay"`         // ms before onset
	Duration  float64 `json:"duration" yaml:"duration"`   // ms
	Amplitude float64 `json:"amplitude" yaml:"amplitude"` // nA
}

// NewStimulus validates and returns a stimulus.
func NewStimulus(delay, duration, amplitude float64) (Stimulus, error) {
	s := Stimulus{Delay: delay, Duration: duration, Amplitude: amplitude}
	if err := s.Validate(); err != nil {
		return Stimulus{}, err
	}
	return s, nil
}

// Validate rejects negative delays and durations.
func (s Stimulus) Validate() error {
	if err := simerr.NonNegative("stimulus delay", s.Delay); err != nil {
		return err
	}
	if err := simerr.NonNegative("stimulus duration", s.Duration); err != nil {
		return err
	}
	return nil
}

// Window returns the interval during which the stimulus is on.
func (s Stimulus) Window() Interval {
	return Interval{Start: s.Delay, End: s.Delay + s.Duration}
}

// CurrentAt returns Amplitude inside [Delay, Delay+Duration) and 0 elsewhere.
func (s Stimulus) CurrentAt(t float64) float64 {
	if s.Window().Contains(t) {
		return s.Amplitude
	}
	return 0
}
