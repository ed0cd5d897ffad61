package drive

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/gpio"
)

// Stepper drives the tray through an A4988-style step/dir interface.
// Acceleration ramps are not needed at tray speeds.
type Stepper struct {
	gpio gpio.Driver
	cfg  Config
	clk  clock.Clock
}

// NewStepper creates a stepper motor driver. The driver outputs are
// enabled immediately so the motor holds position.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	if cfg.StepInterval <= 0 {
		cfg.StepInterval = 2 * time.Millisecond
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low)
	}

	return &Stepper{
		gpio: g,
		cfg:  cfg,
		clk:  clock.New(),
	}
}

func (s *Stepper) Enable(forward bool) error {
	dirLevel := gpio.Low
	if forward {
		dirLevel = gpio.High
	}
	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return err
	}
	if s.cfg.EnablePin > 0 {
		return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
	}
	return nil
}

// StepForward emits a single STEP pulse. Direction must have been set
// with Enable beforehand.
func (s *Stepper) StepForward(interval time.Duration) error {
	return s.stepPulse(s.cfg.clampInterval(interval))
}

func (s *Stepper) MoveForward(steps int64, interval time.Duration) (int64, error) {
	moved, err := s.move(steps, true, interval)
	return moved, err
}

func (s *Stepper) MoveBackward(steps int64, interval time.Duration) (int64, error) {
	moved, err := s.move(steps, false, interval)
	return -moved, err
}

// move pulses the motor for the requested number of steps and returns
// how many were actually issued. A GPIO failure aborts mid-move, so the
// count can be short.
func (s *Stepper) move(steps int64, forward bool, interval time.Duration) (int64, error) {
	if steps <= 0 {
		return 0, nil
	}

	direction := "backward"
	if forward {
		direction = "forward"
	}
	debug.Move("stepper", steps, direction)

	if err := s.Enable(forward); err != nil {
		return 0, err
	}

	interval = s.cfg.clampInterval(interval)
	for i := int64(0); i < steps; i++ {
		if err := s.stepPulse(interval); err != nil {
			return i, err
		}
	}
	return steps, nil
}

func (s *Stepper) stepPulse(interval time.Duration) error {
	half := interval / 2
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	s.clk.Sleep(half)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	s.clk.Sleep(half)
	return nil
}

// Stop drops the STEP line and disables the driver outputs. The motor
// freewheels, no holding torque.
func (s *Stepper) Stop() error {
	err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low)
	if s.cfg.EnablePin > 0 {
		err = multierr.Append(err, s.gpio.WritePin(s.cfg.EnablePin, gpio.High))
	}
	return err
}

func (s *Stepper) Close() error {
	debug.Trace("Stepper close")
	return s.Stop()
}
