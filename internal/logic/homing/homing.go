package homing

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cjeanneret/PillGo/internal/config"
	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/drive"
	"github.com/cjeanneret/PillGo/internal/hw/sensors"
	"github.com/cjeanneret/PillGo/internal/hw/servo"
	"github.com/cjeanneret/PillGo/internal/logic/position"
)

// Engine drives the tray onto the home switch and owns the homed state.
// Each retry attempt runs faster and is given a longer window than the
// one before, which shakes the tray loose when something binds.
//
// A mechanical failure (switch never engages) is an ordinary outcome
// reported as false. Errors are reserved for hardware faults, which also
// invalidate the homed state because the tray position is no longer
// trustworthy.
type Engine struct {
	cfg     *config.Config
	motor   drive.Motor
	gate    servo.Gate
	sensors sensors.Sensors
	tracker *position.Tracker
	clk     clock.Clock
	homed   bool
}

func NewEngine(cfg *config.Config, motor drive.Motor, gate servo.Gate, sens sensors.Sensors, tracker *position.Tracker) *Engine {
	return &Engine{
		cfg:     cfg,
		motor:   motor,
		gate:    gate,
		sensors: sens,
		tracker: tracker,
		clk:     clock.New(),
	}
}

// Homed reports whether the tray position is referenced to the switch.
func (e *Engine) Homed() bool {
	return e.homed
}

// Home runs the homing sequence and records the resulting homed state.
func (e *Engine) Home() (bool, error) {
	ok, err := e.run()
	e.homed = ok && err == nil
	return ok, err
}

func (e *Engine) run() (bool, error) {
	debug.Summary("Homing sequence")

	// The gate must be closed before the tray turns.
	if err := e.gate.Rest(); err != nil {
		return false, err
	}
	e.clk.Sleep(e.cfg.ServoMovementDelay())

	attempts := e.cfg.Homing.RetryAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		interval := e.attemptInterval(attempt)
		timeout := e.attemptTimeout(attempt)
		debug.Attempt("homing", attempt, attempts)

		// Previously homed and still parked on the switch: just re-zero.
		if e.homed && e.sensors.HomeSwitchActive() {
			e.sensors.ResetEncoder()
			e.tracker.ResetToHome()
			debug.Info("Already homed, switch still engaged")
			return true, nil
		}

		// Starting on the switch: back off for a clean approach.
		if e.sensors.HomeSwitchActive() {
			if err := e.nudge(-e.cfg.Homing.BackoffDeg, interval); err != nil {
				return false, err
			}
		}

		found, err := e.seek(interval, timeout)
		if err != nil {
			_ = e.motor.Stop()
			return false, err
		}
		if err := e.motor.Stop(); err != nil {
			return false, err
		}

		if found {
			e.clk.Sleep(e.cfg.HomingSettle())
			e.sensors.ResetEncoder()
			e.tracker.ResetToHome()
			debug.Info("Homing complete on attempt %d", attempt)
			return true, nil
		}

		// Shake the tray before trying again.
		if attempt < attempts {
			e.clk.Sleep(e.cfg.HomingRetryPause())
			if err := e.nudge(e.cfg.Homing.DislodgeDeg, interval); err != nil {
				return false, err
			}
		}
	}

	debug.Error(errors.New("homing failed: home switch never engaged"))
	return false, nil
}

// attemptInterval returns the step pacing for an attempt. Later attempts
// run faster, clamped so the pace never leaves the safe pulse range.
func (e *Engine) attemptInterval(attempt int) time.Duration {
	base := e.cfg.StepInterval()
	interval := base - time.Duration(attempt-1)*e.cfg.HomingDelayDecrement()
	if min := e.cfg.MinStepInterval(); interval < min {
		interval = min
	}
	if interval > base {
		interval = base
	}
	return interval
}

// attemptTimeout returns the seek window for an attempt. Later attempts
// get more time.
func (e *Engine) attemptTimeout(attempt int) time.Duration {
	return e.cfg.HomingBaseTimeout() + time.Duration(attempt-1)*e.cfg.HomingTimeoutIncrement()
}

// seek steps forward until the switch engages or the window elapses.
// Issued steps land in the tracker even when the attempt fails, so the
// position accounting stays truthful.
func (e *Engine) seek(interval, timeout time.Duration) (found bool, err error) {
	if err := e.motor.Enable(true); err != nil {
		return false, err
	}

	var steps int64
	defer func() { e.tracker.Apply(steps) }()

	start := e.clk.Now()
	for !e.sensors.HomeSwitchActive() {
		if e.clk.Since(start) > timeout {
			debug.Live("Homing: window elapsed after %d steps", steps)
			return false, nil
		}
		if err := e.motor.StepForward(interval); err != nil {
			return false, err
		}
		steps++
	}
	return true, nil
}

// nudge moves the tray by a small angle, backward when negative. The
// executed displacement lands in the tracker.
func (e *Engine) nudge(deg float64, interval time.Duration) error {
	backward := deg < 0
	if backward {
		deg = -deg
	}
	steps := e.tracker.StepsForAngle(deg)

	var moved int64
	var err error
	if backward {
		moved, err = e.motor.MoveBackward(steps, interval)
	} else {
		moved, err = e.motor.MoveForward(steps, interval)
	}
	e.tracker.Apply(moved)
	if err != nil {
		return err
	}

	e.clk.Sleep(e.cfg.HomingNudgeSettle())
	return nil
}
