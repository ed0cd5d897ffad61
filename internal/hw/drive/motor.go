package drive

import (
	"time"
)

// Motor is the drive interface consumed by the homing and dispensing
// logic. Implementations exist for a stepper behind an A4988 driver and
// for a brushed DC motor behind an H-bridge. Distances are expressed in
// step units for both; the DC implementation converts them to timed runs.
type Motor interface {
	// Enable prepares the drive for movement in the given direction.
	Enable(forward bool) error
	// StepForward performs one movement increment at the given pacing.
	// The caller polls sensors between increments.
	StepForward(interval time.Duration) error
	// MoveForward executes a bounded forward move and reports the signed
	// displacement actually issued, even on error.
	MoveForward(steps int64, interval time.Duration) (int64, error)
	// MoveBackward is the reverse counterpart. The reported displacement
	// is negative.
	MoveBackward(steps int64, interval time.Duration) (int64, error)
	// Stop halts movement and removes drive power.
	Stop() error
	Close() error
}

// Config holds the hardware parameters shared by the motor drivers.
// Only the pins matching the configured drive type need to be set.
type Config struct {
	// Stepper wiring (A4988 or similar). EnablePin 0 = not used,
	// active LOW (LOW=enabled).
	StepPin   int
	DirPin    int
	EnablePin int

	// DC wiring (H-bridge). SpeedPin carries PWM.
	ForwardPin  int
	BackwardPin int
	SpeedPin    int

	// StepsPerRotation is one full tray rotation including microstepping
	// and gear ratio. The DC driver uses it to convert steps to time.
	StepsPerRotation int64

	StepInterval    time.Duration // full STEP cycle at base speed
	MinStepInterval time.Duration // fastest allowed cycle
	MaxStepInterval time.Duration // slowest allowed cycle

	Speed         int     // DC base duty, 0-255
	DegreesPerSec float64 // DC tray speed at base duty
	MinMove       time.Duration
	MaxMove       time.Duration
}

// clampInterval bounds the requested step pacing into the safe range.
// Zero or negative requests fall back to the base interval.
func (c Config) clampInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = c.StepInterval
	}
	if c.MinStepInterval > 0 && interval < c.MinStepInterval {
		return c.MinStepInterval
	}
	if c.MaxStepInterval > 0 && interval > c.MaxStepInterval {
		return c.MaxStepInterval
	}
	return interval
}

// stepAngle returns the tray angle covered by a number of steps.
func (c Config) stepAngle(steps int64) float64 {
	if c.StepsPerRotation <= 0 {
		return 0
	}
	return float64(steps) * 360.0 / float64(c.StepsPerRotation)
}
