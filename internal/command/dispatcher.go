package command

import (
	"strings"

	"go.uber.org/atomic"

	"github.com/cjeanneret/PillGo/internal/debug"
)

// Dispenser is the engine surface the dispatcher drives.
type Dispenser interface {
	// DispenseFromCompartment delivers pills and returns how many were
	// actually detected. Mechanical failure is a zero count, not an error.
	DispenseFromCompartment(compartment, count int) (int, error)
	Counts() []int
	ResetStatistics()
}

// Homer re-references the tray on request.
type Homer interface {
	Home() (bool, error)
	Homed() bool
}

// Light is the front panel ready indicator. Dark while a command runs.
type Light interface {
	On() error
	Off() error
}

// Handler is the capability interface transports invoke. A transport
// delivers raw command lines and carries the returned reply back; it
// never sees the engines behind the dispatcher.
type Handler interface {
	OnConnect()
	OnDisconnect()
	// OnCommand handles one command line and returns exactly one reply line.
	OnCommand(line string) string
}

// Dispatcher maps parsed intents onto engine operations and formats the
// reply lines. One command runs at a time: a line arriving while another
// is in flight is answered with a busy error instead of interleaving
// actuator operations.
type Dispatcher struct {
	dispenser Dispenser
	homer     Homer
	light     Light
	busy      atomic.Bool
}

// NewDispatcher builds the dispatcher. The light may be nil when no
// indicator is wired.
func NewDispatcher(dispenser Dispenser, homer Homer, light Light) *Dispatcher {
	return &Dispatcher{dispenser: dispenser, homer: homer, light: light}
}

func (d *Dispatcher) OnConnect() {
	debug.Live("Command channel connected")
}

func (d *Dispatcher) OnDisconnect() {
	debug.Live("Command channel disconnected")
}

// Busy reports whether a command is currently in flight.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// OnCommand executes one command line. The reply is always a single
// line in the brace format of this package, including for rejected and
// unknown commands.
func (d *Dispatcher) OnCommand(line string) string {
	line = strings.TrimSpace(line)
	debug.Command(line)

	if !d.busy.CompareAndSwap(false, true) {
		return Error("Busy: another command is in progress")
	}
	defer d.busy.Store(false)

	// Dark while working, restored by homed state afterwards.
	d.setLight(false)
	defer func() { d.setLight(d.homer.Homed()) }()

	intent := Parse(line)
	switch intent.Kind {
	case Dispense:
		dispensed, err := d.dispenser.DispenseFromCompartment(intent.Compartment, intent.Count)
		if err != nil {
			debug.Error(err)
			return Error("Dispense failed: " + err.Error())
		}
		return DispenseResult(dispensed, intent.Count)

	case Status:
		return StatusReport(d.dispenser.Counts())

	case Reset:
		d.dispenser.ResetStatistics()
		return OK("Statistics reset")

	case Home:
		ok, err := d.homer.Home()
		if err != nil {
			debug.Error(err)
			return Error("Homing failed: " + err.Error())
		}
		if !ok {
			return Error("Homing failed: home switch not found")
		}
		return OK("Homing complete")

	default:
		return Unknown(intent.Raw)
	}
}

func (d *Dispatcher) setLight(on bool) {
	if d.light == nil {
		return
	}
	var err error
	if on {
		err = d.light.On()
	} else {
		err = d.light.Off()
	}
	if err != nil {
		debug.Error(err)
	}
}
