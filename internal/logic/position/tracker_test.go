package position

import (
	"testing"

	"github.com/cjeanneret/PillGo/internal/config"
)

// fiveCompartments is the standard tray: 200*16 steps, five compartments
// every 72 degrees.
func fiveCompartments() *config.Config {
	return &config.Config{
		Drive: config.DriveConfig{
			StepsPerRev:   200,
			Microstepping: 16,
			GearRatio:     1.0,
		},
		Carousel: config.CarouselConfig{
			Compartments: 5,
			PositionsDeg: []float64{0, 72, 144, 216, 288},
		},
	}
}

func TestTracker_CompartmentTable(t *testing.T) {
	tr := NewTracker(fiveCompartments())

	if tr.Compartments() != 5 {
		t.Fatalf("Compartments = %d, want 5", tr.Compartments())
	}
	if tr.StepsPerRotation() != 3200 {
		t.Fatalf("StepsPerRotation = %d, want 3200", tr.StepsPerRotation())
	}

	want := []int64{0, 640, 1280, 1920, 2560}
	for i, steps := range want {
		if got := tr.CompartmentSteps(i + 1); got != steps {
			t.Errorf("CompartmentSteps(%d) = %d, want %d", i+1, got, steps)
		}
	}
}

func TestTracker_ValidCompartment(t *testing.T) {
	tr := NewTracker(fiveCompartments())

	cases := []struct {
		n     int
		valid bool
	}{
		{0, false},
		{1, true},
		{5, true},
		{6, false},
		{-1, false},
	}
	for _, tc := range cases {
		if got := tr.ValidCompartment(tc.n); got != tc.valid {
			t.Errorf("ValidCompartment(%d) = %v, want %v", tc.n, got, tc.valid)
		}
	}
}

func TestTracker_StepsForAngle(t *testing.T) {
	tr := NewTracker(fiveCompartments())

	cases := []struct {
		deg  float64
		want int64
	}{
		{360, 3200},
		{90, 800},
		{10, 88},  // 88.88 truncated
		{5, 44},   // 44.44 truncated
		{0, 0},
	}
	for _, tc := range cases {
		if got := tr.StepsForAngle(tc.deg); got != tc.want {
			t.Errorf("StepsForAngle(%v) = %d, want %d", tc.deg, got, tc.want)
		}
	}
}

func TestTracker_DeltaShortestPath(t *testing.T) {
	tr := NewTracker(fiveCompartments())

	cases := []struct {
		name    string
		current int64
		target  int64
		want    int64
	}{
		{"forward_one_compartment", 0, 640, 640},
		{"wrap_backward", 0, 2560, -640},
		{"wrap_forward", 2560, 0, 640},
		{"half_turn_goes_forward", 0, 1600, 1600},
		{"already_there", 1280, 1280, 0},
		{"multi_revolution_target", 0, 5760, -640},
		{"negative_position", -700, 0, 700},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr.ResetToHome()
			tr.Apply(tc.current)
			if got := tr.Delta(tc.target); got != tc.want {
				t.Errorf("Delta(%d) from %d = %d, want %d", tc.target, tc.current, got, tc.want)
			}
		})
	}
}

func TestTracker_DeltaNeverExceedsHalfRotation(t *testing.T) {
	tr := NewTracker(fiveCompartments())
	half := tr.StepsPerRotation() / 2

	for current := int64(-6400); current <= 6400; current += 177 {
		for target := int64(-6400); target <= 6400; target += 251 {
			tr.ResetToHome()
			tr.Apply(current)
			delta := tr.Delta(target)
			if delta > half || delta < -half {
				t.Fatalf("Delta(%d) from %d = %d exceeds half rotation %d",
					target, current, delta, half)
			}
			// Landing position must be congruent with the target.
			landed := (current + delta - target) % tr.StepsPerRotation()
			if landed != 0 {
				t.Fatalf("Delta(%d) from %d = %d lands off target (mod %d)",
					target, current, delta, tr.StepsPerRotation())
			}
		}
	}
}

func TestTracker_AtTarget(t *testing.T) {
	tr := NewTracker(fiveCompartments())

	cases := []struct {
		delta int64
		want  bool
	}{
		{0, true},
		{4, true},
		{-4, true},
		{5, false},
		{-5, false},
		{640, false},
	}
	for _, tc := range cases {
		if got := tr.AtTarget(tc.delta); got != tc.want {
			t.Errorf("AtTarget(%d) = %v, want %v", tc.delta, got, tc.want)
		}
	}
}

func TestTracker_ApplyAndReset(t *testing.T) {
	tr := NewTracker(fiveCompartments())

	tr.Apply(640)
	tr.SetCompartment(2)
	if tr.PositionSteps() != 640 {
		t.Errorf("PositionSteps = %d, want 640", tr.PositionSteps())
	}
	if tr.Compartment() != 2 {
		t.Errorf("Compartment = %d, want 2", tr.Compartment())
	}

	// Partial moves accumulate signed.
	tr.Apply(-40)
	if tr.PositionSteps() != 600 {
		t.Errorf("PositionSteps = %d, want 600", tr.PositionSteps())
	}

	tr.ResetToHome()
	if tr.PositionSteps() != 0 || tr.Compartment() != 0 {
		t.Errorf("after reset: steps=%d compartment=%d, want 0/0",
			tr.PositionSteps(), tr.Compartment())
	}
}

func TestTracker_PositionDegrees(t *testing.T) {
	tr := NewTracker(fiveCompartments())

	tr.Apply(1600)
	if got := tr.PositionDegrees(); got < 179.99 || got > 180.01 {
		t.Errorf("PositionDegrees = %v, want 180", got)
	}
}
