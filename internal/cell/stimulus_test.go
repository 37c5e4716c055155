package cell

import (
	"errors"
	"testing"

	"github.com/nvandessel/cellnet/internal/simerr"
)

func TestStimulus_CurrentAtWindow(t *testing.T) {
	for _, amp := range []float64{0, 0.1, 0.6, 3} {
		s, err := NewStimulus(5, 1, amp)
		if err != nil {
			t.Fatalf("NewStimulus: %v", err)
		}

		tests := []struct {
			t    float64
			want float64
		}{
			{0, 0},
			{4.999, 0},
			{5, amp},
			{5.5, amp},
			{5.999, amp},
			{6, 0},
			{25, 0},
		}
		for _, tt := range tests {
			if got := s.CurrentAt(tt.t); got != tt.want {
				t.Errorf("amp=%v: CurrentAt(%v) = %v, want %v", amp, tt.t, got, tt.want)
			}
		}
	}
}

func TestStimulus_ZeroDurationNeverActive(t *testing.T) {
	s, err := NewStimulus(5, 0, 1)
	if err != nil {
		t.Fatalf("NewStimulus: %v", err)
	}
	if got := s.CurrentAt(5); got != 0 {
		t.Errorf("CurrentAt(5) = %v, want 0 for an empty window", got)
	}
}

func TestStimulus_RejectsNegativeParameters(t *testing.T) {
	tests := []struct {
		name            string
		delay, duration float64
	}{
		{"negative delay", -1, 1},
		{"negative duration", 1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStimulus(tt.delay, tt.duration, 0.5)
			if !errors.Is(err, simerr.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}
