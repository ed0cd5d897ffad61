package position

import (
	"github.com/cjeanneret/PillGo/internal/config"
	"github.com/cjeanneret/PillGo/internal/debug"
)

// MoveTolerance is the step distance under which a target counts as
// already reached. Such moves only update the compartment label.
const MoveTolerance = 5

// Tracker maintains the absolute tray position in step units relative
// to the home reference, and converts compartment indices and angles
// into step targets. It performs no I/O; movements are reported to it
// by the callers that executed them.
type Tracker struct {
	stepsPerRotation int64
	stepsPerDegree   float64
	positions        []int64 // step offset per compartment, index 0 = compartment 1

	currentSteps int64
	compartment  int // 0 = home, 1-based compartment otherwise
}

// NewTracker creates a tracker from configuration. Compartment angles
// are converted to step offsets once, truncated toward zero.
func NewTracker(cfg *config.Config) *Tracker {
	stepsPerRotation := cfg.TotalStepsPerRotation()
	stepsPerDegree := float64(stepsPerRotation) / 360.0

	positions := make([]int64, len(cfg.Carousel.PositionsDeg))
	for i, deg := range cfg.Carousel.PositionsDeg {
		positions[i] = int64(deg * stepsPerDegree)
	}

	debug.Carousel(len(positions), stepsPerRotation)

	return &Tracker{
		stepsPerRotation: stepsPerRotation,
		stepsPerDegree:   stepsPerDegree,
		positions:        positions,
	}
}

// Compartments returns the number of configured compartments.
func (t *Tracker) Compartments() int {
	return len(t.positions)
}

// ValidCompartment reports whether n addresses a configured compartment.
// Compartments are numbered from 1.
func (t *Tracker) ValidCompartment(n int) bool {
	return n >= 1 && n <= len(t.positions)
}

// CompartmentSteps returns the absolute step offset of a compartment.
// The caller must have validated n.
func (t *Tracker) CompartmentSteps(n int) int64 {
	return t.positions[n-1]
}

// StepsForAngle converts a tray angle to step units, truncated toward zero.
func (t *Tracker) StepsForAngle(deg float64) int64 {
	return int64(deg * t.stepsPerDegree)
}

// Delta returns the shortest signed travel from the current position to
// the target, flipping direction across the wrap point. The result never
// exceeds half a rotation in magnitude, whatever revolution the target
// offset lives in.
func (t *Tracker) Delta(target int64) int64 {
	rev := t.stepsPerRotation
	if rev <= 0 {
		return target - t.currentSteps
	}
	delta := (target - t.currentSteps) % rev
	if delta < 0 {
		delta += rev
	}
	if delta > rev/2 {
		delta -= rev
	}
	return delta
}

// DeltaToCompartment returns the shortest signed travel to a compartment.
// The caller must have validated n.
func (t *Tracker) DeltaToCompartment(n int) int64 {
	return t.Delta(t.positions[n-1])
}

// AtTarget reports whether a travel delta is within the move tolerance.
func (t *Tracker) AtTarget(delta int64) bool {
	if delta < 0 {
		delta = -delta
	}
	return delta < MoveTolerance
}

// Apply accumulates an executed signed displacement, including partial
// moves that aborted on error.
func (t *Tracker) Apply(moved int64) {
	t.currentSteps += moved
}

// SetCompartment records which compartment the tray sits at.
func (t *Tracker) SetCompartment(n int) {
	t.compartment = n
}

// ResetToHome zeroes the position at the home reference.
func (t *Tracker) ResetToHome() {
	t.currentSteps = 0
	t.compartment = 0
}

// PositionSteps returns the accumulated position in step units.
func (t *Tracker) PositionSteps() int64 {
	return t.currentSteps
}

// PositionDegrees returns the accumulated position as a tray angle.
func (t *Tracker) PositionDegrees() float64 {
	if t.stepsPerDegree == 0 {
		return 0
	}
	return float64(t.currentSteps) / t.stepsPerDegree
}

// Compartment returns the current compartment label, 0 at home.
func (t *Tracker) Compartment() int {
	return t.compartment
}

// StepsPerRotation returns the step units in one full tray rotation.
func (t *Tracker) StepsPerRotation() int64 {
	return t.stepsPerRotation
}
