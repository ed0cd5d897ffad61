package dispense

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/cjeanneret/PillGo/internal/config"
	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/drive"
	"github.com/cjeanneret/PillGo/internal/hw/magnet"
	"github.com/cjeanneret/PillGo/internal/hw/sensors"
	"github.com/cjeanneret/PillGo/internal/hw/servo"
	"github.com/cjeanneret/PillGo/internal/logic/homing"
	"github.com/cjeanneret/PillGo/internal/logic/position"
)

// seedDelay is the pause before sampling the barrier for the first time,
// letting the gate vibration die down so the seed state is clean.
const seedDelay = 50 * time.Millisecond

// calibrationSettle is the pause around the calibration lap.
const calibrationSettle = 500 * time.Millisecond

// calibrationTimeout bounds the calibration lap.
const calibrationTimeout = 30 * time.Second

// Engine orchestrates pill delivery: position the tray, run magnet and
// gate cycles, count pills crossing the IR barrier, keep per-compartment
// statistics, and re-home afterwards when configured.
//
// Mechanical failures (no pill detected, homing exhausted) are ordinary
// outcomes reported through counts and booleans. Errors are reserved for
// hardware faults.
type Engine struct {
	cfg     *config.Config
	motor   drive.Motor
	gate    servo.Gate
	magnet  magnet.Magnet
	sensors sensors.Sensors
	tracker *position.Tracker
	homing  *homing.Engine
	clk     clock.Clock
	counts  []int
}

func NewEngine(cfg *config.Config, motor drive.Motor, gate servo.Gate, mag magnet.Magnet, sens sensors.Sensors, tracker *position.Tracker, homer *homing.Engine) *Engine {
	return &Engine{
		cfg:     cfg,
		motor:   motor,
		gate:    gate,
		magnet:  mag,
		sensors: sens,
		tracker: tracker,
		homing:  homer,
		clk:     clock.New(),
		counts:  make([]int, tracker.Compartments()),
	}
}

// MoveToCompartment positions the tray at a compartment along the
// shortest path. Validation precedes everything else, so an invalid
// compartment leaves the actuators untouched. A false return without
// error means the tray could not be referenced (homing failed).
func (e *Engine) MoveToCompartment(n int) (bool, error) {
	if !e.tracker.ValidCompartment(n) {
		debug.Info("Invalid compartment %d, have 1-%d", n, e.tracker.Compartments())
		return false, nil
	}

	if ok, err := e.ensureHomed(); err != nil || !ok {
		return false, err
	}

	if e.tracker.Compartment() == n {
		debug.Live("Already at compartment %d", n)
		return true, nil
	}

	delta := e.tracker.DeltaToCompartment(n)
	if e.tracker.AtTarget(delta) {
		e.tracker.SetCompartment(n)
		return true, nil
	}

	interval := e.cfg.StepInterval()
	var moved int64
	var err error
	if delta > 0 {
		moved, err = e.motor.MoveForward(delta, interval)
	} else {
		moved, err = e.motor.MoveBackward(-delta, interval)
	}
	e.tracker.Apply(moved)
	if err != nil {
		return false, multierr.Append(err, e.motor.Stop())
	}

	e.clk.Sleep(e.cfg.AfterMove())
	e.tracker.SetCompartment(n)
	return true, nil
}

func (e *Engine) ensureHomed() (bool, error) {
	if e.homing.Homed() {
		return true, nil
	}
	debug.Info("Tray not referenced, homing first")
	return e.homing.Home()
}

// DispenseFromCompartment moves to the compartment and runs the pickup
// cycle once per requested pill, returning the number of pills actually
// detected at the chute. Requests below one pill are floored to one.
func (e *Engine) DispenseFromCompartment(compartment, count int) (int, error) {
	if count < 1 {
		count = 1
	}
	debug.Summary(debug.Fmt("Dispense %d pill(s) from compartment %d", count, compartment))

	ok, err := e.MoveToCompartment(compartment)
	if err != nil || !ok {
		return 0, err
	}

	total := 0
	for i := 0; i < count; i++ {
		pills, err := e.dispenseWithRetries()
		if err != nil {
			return total, err
		}
		if pills > 0 {
			total += pills
			e.counts[compartment-1] += pills
		}
		if i < count-1 {
			e.clk.Sleep(e.cfg.BetweenPills())
		}
	}

	// Re-reference the tray after moving pills around. A failure here is
	// logged, clears the homed state, and leaves the dispense result alone.
	if e.cfg.AutoHomeAfterDispense() && total > 0 {
		debug.Info("Re-homing after dispense")
		if ok, err := e.homing.Home(); err != nil {
			debug.Error(err)
		} else if !ok {
			debug.Info("Re-home failed, tray position no longer referenced")
		}
	}

	debug.Info("Dispensed %d of %d requested", total, count)
	return total, nil
}

// dispenseWithRetries runs pickup cycles until pills drop or attempts
// run out. Zero pills after the final attempt is an ordinary outcome.
func (e *Engine) dispenseWithRetries() (int, error) {
	attempts := e.cfg.Dispense.MaxAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		debug.Attempt("dispense", attempt, attempts)
		count, err := e.dispenseOnce()
		if err != nil {
			return 0, err
		}
		if count > 0 {
			return count, nil
		}
		if attempt < attempts {
			e.clk.Sleep(e.cfg.BetweenAttempts())
		}
	}
	return 0, nil
}

// dispenseOnce runs one magnet and gate cycle and counts pills crossing
// the chute barrier during the detection window. The gate returns to the
// position it started from, and the magnet never stays energized past an
// error.
func (e *Engine) dispenseOnce() (int, error) {
	if err := e.magnet.Activate(); err != nil {
		return 0, err
	}

	startPos := e.gate.Position()
	if err := e.gate.MoveTo(e.gate.SafeMax()); err != nil {
		return 0, multierr.Append(err, e.magnet.Deactivate())
	}
	e.clk.Sleep(e.cfg.ServoMovementDelay())

	count := e.countPills()

	if err := e.gate.MoveTo(startPos); err != nil {
		return count, multierr.Append(err, e.magnet.Deactivate())
	}
	e.clk.Sleep(e.cfg.ServoMovementDelay())

	if err := e.magnet.Deactivate(); err != nil {
		return count, err
	}
	return count, nil
}

// countPills samples the IR barrier over the detection window and counts
// rising edges. Each clear-to-blocked transition is one pill passing.
func (e *Engine) countPills() int {
	e.clk.Sleep(seedDelay)

	last := e.sensors.PillDetected()
	count := 0
	start := e.clk.Now()
	for e.clk.Since(start) < e.cfg.DetectionWindow() {
		current := e.sensors.PillDetected()
		if current && !last {
			count++
			debug.Pill(count)
		}
		last = current
		e.clk.Sleep(e.cfg.DetectionCheckInterval())
	}
	return count
}

// CountForCompartment returns the lifetime pill count of a compartment,
// zero for indices outside the tray.
func (e *Engine) CountForCompartment(n int) int {
	if n < 1 || n > len(e.counts) {
		return 0
	}
	return e.counts[n-1]
}

// TotalDispensed returns the lifetime pill count across the tray.
func (e *Engine) TotalDispensed() int {
	total := 0
	for _, c := range e.counts {
		total += c
	}
	return total
}

// Counts returns a copy of the per-compartment counters.
func (e *Engine) Counts() []int {
	counts := make([]int, len(e.counts))
	copy(counts, e.counts)
	return counts
}

// ResetStatistics zeroes all per-compartment counters.
func (e *Engine) ResetStatistics() {
	for i := range e.counts {
		e.counts[i] = 0
	}
	debug.Info("Statistics reset")
}

// CalibrationResult describes one timed calibration lap.
type CalibrationResult struct {
	FullRotation time.Duration
	PerDegree    time.Duration
	Steps        int64
}

// CalibrateRotationTiming homes the tray, backs off the switch, then
// steps forward until the switch engages again, timing the lap. The
// per-degree figure and the estimated travel time to each compartment
// go to the debug output. The tray ends re-zeroed on the switch.
func (e *Engine) CalibrateRotationTiming() (*CalibrationResult, error) {
	debug.Summary("Rotation timing calibration")

	if ok, err := e.homing.Home(); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.New("calibration requires a homed tray")
	}
	if !e.sensors.HomeSwitchActive() {
		return nil, errors.New("home switch not engaged after homing")
	}
	e.clk.Sleep(calibrationSettle)

	interval := e.cfg.StepInterval()
	moved, err := e.motor.MoveBackward(e.tracker.StepsForAngle(e.cfg.Homing.BackoffDeg), interval)
	e.tracker.Apply(moved)
	if err != nil {
		return nil, err
	}
	e.clk.Sleep(e.cfg.HomingNudgeSettle())
	e.clk.Sleep(calibrationSettle)

	if err := e.motor.Enable(true); err != nil {
		return nil, err
	}

	var steps int64
	start := e.clk.Now()
	for !e.sensors.HomeSwitchActive() {
		if e.clk.Since(start) > calibrationTimeout {
			e.tracker.Apply(steps)
			return nil, multierr.Append(errors.New("calibration timed out before the switch engaged"), e.motor.Stop())
		}
		if err := e.motor.StepForward(interval); err != nil {
			e.tracker.Apply(steps)
			return nil, multierr.Append(err, e.motor.Stop())
		}
		steps++
	}
	elapsed := e.clk.Since(start)
	e.tracker.Apply(steps)
	if err := e.motor.Stop(); err != nil {
		return nil, err
	}

	result := &CalibrationResult{
		FullRotation: elapsed,
		PerDegree:    elapsed / 360,
		Steps:        steps,
	}
	debug.Value("Full rotation", result.FullRotation)
	debug.Value("Per degree", result.PerDegree)
	for i := 1; i <= e.tracker.Compartments(); i++ {
		travel := time.Duration(e.cfg.Carousel.PositionsDeg[i-1] * float64(result.PerDegree))
		debug.Value(debug.Fmt("Compartment %d travel", i), travel)
	}

	e.sensors.ResetEncoder()
	e.tracker.ResetToHome()
	return result, nil
}
