package drive

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/gpio"
)

// dcDutyCycle is the PWM cycle length for the speed pin. Duty values
// follow the 0-255 scale of the configuration.
const dcDutyCycle = 255

// DCMotor drives the tray through an H-bridge with two direction pins
// and a PWM speed pin. There is no step feedback, so moves are timed
// from the configured tray speed and reported displacements are the
// requested ones.
type DCMotor struct {
	gpio    gpio.Driver
	cfg     Config
	clk     clock.Clock
	running bool
	duty    uint32
}

// NewDCMotor creates a DC motor driver. The motor starts stopped with
// both direction pins released.
func NewDCMotor(g gpio.Driver, cfg Config) *DCMotor {
	_ = g.SetupPin(cfg.ForwardPin, gpio.Output)
	_ = g.SetupPin(cfg.BackwardPin, gpio.Output)
	_ = g.SetupPin(cfg.SpeedPin, gpio.PWM)

	if cfg.Speed <= 0 || cfg.Speed > 255 {
		cfg.Speed = 200
	}
	if cfg.DegreesPerSec <= 0 {
		cfg.DegreesPerSec = 30
	}

	return &DCMotor{
		gpio: g,
		cfg:  cfg,
		clk:  clock.New(),
	}
}

func (m *DCMotor) Enable(forward bool) error {
	fwd, bwd := gpio.High, gpio.Low
	if !forward {
		fwd, bwd = gpio.Low, gpio.High
	}
	if err := m.gpio.WritePin(m.cfg.ForwardPin, fwd); err != nil {
		return err
	}
	return m.gpio.WritePin(m.cfg.BackwardPin, bwd)
}

// StepForward keeps the motor running at the duty mapped from the
// requested pacing and waits one poll slice. The caller samples sensors
// between slices, mirroring the per-step polling of the stepper drive.
func (m *DCMotor) StepForward(interval time.Duration) error {
	interval = m.cfg.clampInterval(interval)
	if err := m.run(m.dutyFor(interval)); err != nil {
		return err
	}
	m.clk.Sleep(interval)
	return nil
}

func (m *DCMotor) MoveForward(steps int64, interval time.Duration) (int64, error) {
	moved, err := m.timedMove(steps, true, interval)
	return moved, err
}

func (m *DCMotor) MoveBackward(steps int64, interval time.Duration) (int64, error) {
	moved, err := m.timedMove(steps, false, interval)
	return -moved, err
}

// timedMove converts the requested steps into a run time at the
// configured tray speed, bounded by the move duration limits.
func (m *DCMotor) timedMove(steps int64, forward bool, interval time.Duration) (int64, error) {
	if steps <= 0 {
		return 0, nil
	}

	direction := "backward"
	if forward {
		direction = "forward"
	}
	debug.Move("dcmotor", steps, direction)

	duration := m.moveDuration(steps)
	if err := m.Enable(forward); err != nil {
		return 0, err
	}
	if err := m.run(m.dutyFor(m.cfg.clampInterval(interval))); err != nil {
		return 0, err
	}
	m.clk.Sleep(duration)
	if err := m.Stop(); err != nil {
		return steps, err
	}
	return steps, nil
}

func (m *DCMotor) moveDuration(steps int64) time.Duration {
	seconds := m.cfg.stepAngle(steps) / m.cfg.DegreesPerSec
	duration := time.Duration(seconds * float64(time.Second))
	if m.cfg.MinMove > 0 && duration < m.cfg.MinMove {
		return m.cfg.MinMove
	}
	if m.cfg.MaxMove > 0 && duration > m.cfg.MaxMove {
		return m.cfg.MaxMove
	}
	return duration
}

// dutyFor maps step pacing onto the 0-255 duty scale. The base interval
// runs at the configured speed; faster pacing raises the duty, saturating
// at full power.
func (m *DCMotor) dutyFor(interval time.Duration) uint32 {
	duty := float64(m.cfg.Speed)
	if interval > 0 && m.cfg.StepInterval > 0 {
		duty *= float64(m.cfg.StepInterval) / float64(interval)
	}
	if duty < 0 {
		duty = 0
	}
	if duty > 255 {
		duty = 255
	}
	return uint32(duty)
}

func (m *DCMotor) run(duty uint32) error {
	if m.running && m.duty == duty {
		return nil
	}
	if err := m.gpio.WritePWM(m.cfg.SpeedPin, duty, dcDutyCycle); err != nil {
		return err
	}
	m.running = duty > 0
	m.duty = duty
	return nil
}

// Stop cuts PWM and releases both direction pins so the bridge coasts.
func (m *DCMotor) Stop() error {
	err := multierr.Combine(
		m.gpio.WritePWM(m.cfg.SpeedPin, 0, dcDutyCycle),
		m.gpio.WritePin(m.cfg.ForwardPin, gpio.Low),
		m.gpio.WritePin(m.cfg.BackwardPin, gpio.Low),
	)
	m.running = false
	m.duty = 0
	return err
}

func (m *DCMotor) Close() error {
	debug.Trace("DC motor close")
	return m.Stop()
}
