package servo

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/gpio"
)

// servoCycleUs is the PWM frame length in microseconds (50 Hz).
const servoCycleUs = 20000

// Config holds the hardware parameters of the pill gate servo.
type Config struct {
	Pin         int
	MinPulseUs  int // mechanical minimum pulse width
	MaxPulseUs  int // mechanical maximum pulse width
	EndMarginUs int // kept clear of both mechanical ends
	SweepStepUs int // increment per sweep step
	StepDelay   time.Duration
}

// Gate is the interface consumed by the dispensing and homing logic.
type Gate interface {
	// MoveTo sweeps to the target pulse width, clamped into the safe range.
	MoveTo(pulseUs int) error
	// Rest sweeps back to the closed position.
	Rest() error
	Position() int
	SafeMin() int
	SafeMax() int
}

// Servo sweeps the pill gate incrementally instead of jumping, so the
// horn never slams into a mechanical end. Position is the last pulse
// width written.
type Servo struct {
	gpio     gpio.Driver
	cfg      Config
	clk      clock.Clock
	position int
}

// New creates the gate servo and parks it at the rest position. The
// power-up position is unknown, so the first write is direct rather
// than swept.
func New(g gpio.Driver, cfg Config) *Servo {
	_ = g.SetupPin(cfg.Pin, gpio.PWM)

	if cfg.MinPulseUs <= 0 {
		cfg.MinPulseUs = 150
	}
	if cfg.MaxPulseUs <= cfg.MinPulseUs {
		cfg.MaxPulseUs = cfg.MinPulseUs + 1950
	}
	if cfg.EndMarginUs < 0 {
		cfg.EndMarginUs = 0
	}
	if cfg.SweepStepUs <= 0 {
		cfg.SweepStepUs = 60
	}
	if cfg.StepDelay <= 0 {
		cfg.StepDelay = 1 * time.Millisecond
	}

	s := &Servo{
		gpio: g,
		cfg:  cfg,
		clk:  clock.New(),
	}
	s.position = s.SafeMin()
	_ = s.write(s.position)
	return s
}

// SafeMin is the closed gate position, clear of the mechanical end.
func (s *Servo) SafeMin() int {
	return s.cfg.MinPulseUs + s.cfg.EndMarginUs
}

// SafeMax is the fully open gate position, clear of the mechanical end.
func (s *Servo) SafeMax() int {
	return s.cfg.MaxPulseUs - s.cfg.EndMarginUs
}

// Position returns the last pulse width written.
func (s *Servo) Position() int {
	return s.position
}

// MoveTo sweeps from the current position to the target in SweepStepUs
// increments with a pause between steps. Targets outside the safe range
// are clamped. The final write always lands on the exact target.
func (s *Servo) MoveTo(pulseUs int) error {
	target := s.clamp(pulseUs)
	debug.Live("Servo: sweep %d -> %d us", s.position, target)

	step := s.cfg.SweepStepUs
	for abs(target-s.position) > step {
		next := s.position + step
		if target < s.position {
			next = s.position - step
		}
		if err := s.write(next); err != nil {
			return err
		}
		s.position = next
		s.clk.Sleep(s.cfg.StepDelay)
	}

	if err := s.write(target); err != nil {
		return err
	}
	s.position = target
	return nil
}

// Rest closes the gate.
func (s *Servo) Rest() error {
	return s.MoveTo(s.SafeMin())
}

func (s *Servo) write(pulseUs int) error {
	return s.gpio.WritePWM(s.cfg.Pin, uint32(pulseUs), servoCycleUs)
}

func (s *Servo) clamp(pulseUs int) int {
	if min := s.SafeMin(); pulseUs < min {
		return min
	}
	if max := s.SafeMax(); pulseUs > max {
		return max
	}
	return pulseUs
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
