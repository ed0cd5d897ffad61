package led

import (
	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/gpio"
)

// StatusLED signals readiness on the front panel: lit when the dispenser
// is homed and idle, dark while a command is running or homing is lost.
type StatusLED struct {
	gpio gpio.Driver
	pin  int
	lit  bool
}

// New creates the status LED, initially dark.
func New(g gpio.Driver, pin int) *StatusLED {
	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, gpio.Low)

	return &StatusLED{gpio: g, pin: pin}
}

func (l *StatusLED) On() error {
	return l.set(true)
}

func (l *StatusLED) Off() error {
	return l.set(false)
}

// Toggle flips the LED, used as a heartbeat during long calibrations.
func (l *StatusLED) Toggle() error {
	return l.set(!l.lit)
}

func (l *StatusLED) Lit() bool {
	return l.lit
}

func (l *StatusLED) set(lit bool) error {
	level := gpio.Low
	if lit {
		level = gpio.High
	}
	debug.Trace("LED %v", level)
	if err := l.gpio.WritePin(l.pin, level); err != nil {
		return err
	}
	l.lit = lit
	return nil
}
