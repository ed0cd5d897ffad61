package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmClockHz is the PWM counter clock. 1 MHz gives 1 microsecond duty
// resolution, which fits both the servo frame (20000 us cycle = 50 Hz)
// and the DC motor speed cycle.
const pwmClockHz = 1000000

// edgePollInterval is how often the watcher goroutine scans the event
// detect status of watched pins.
const edgePollInterval = 1 * time.Millisecond

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	mu       sync.Mutex
	pins     map[int]rpio.Pin
	watchers map[int]func(Level)
	watching bool
	stop     chan struct{}
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:     make(map[int]rpio.Pin),
		watchers: make(map[int]func(Level)),
		stop:     make(chan struct{}),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	r.mu.Lock()
	r.pins[pin] = p
	r.mu.Unlock()

	switch mode {
	case Input:
		p.Input()
		p.PullOff()
	case InputPullup:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	case PWM:
		p.Pwm()
		p.Freq(pwmClockHz)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, err := r.pin(pin, Output)
	if err != nil {
		return err
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, err := r.pin(pin, Input)
	if err != nil {
		return Low, err
	}

	state := p.Read()
	if state == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) WritePWM(pin int, duty, cycle uint32) error {
	debug.GPIO("WritePWM", pin, duty)

	p, err := r.pin(pin, PWM)
	if err != nil {
		return err
	}

	p.DutyCycle(duty, cycle)
	return nil
}

// WatchEdges enables hardware edge detection on the pin and starts the
// watcher goroutine on first use. Watched pins must already be inputs.
func (r *RPiDriver) WatchEdges(pin int, handler func(Level)) error {
	debug.GPIO("WatchEdges", pin, nil)

	p, err := r.pin(pin, Input)
	if err != nil {
		return err
	}
	p.Detect(rpio.AnyEdge)

	r.mu.Lock()
	r.watchers[pin] = handler
	if !r.watching {
		r.watching = true
		go r.watchLoop()
	}
	r.mu.Unlock()

	return nil
}

// watchLoop polls the event detect status registers of watched pins and
// dispatches handlers with the current level. go-rpio exposes edge events
// as a latched flag, so polling at millisecond rate is enough for the
// encoder and does not miss transitions between scans.
func (r *RPiDriver) watchLoop() {
	ticker := time.NewTicker(edgePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			for pin, handler := range r.watchers {
				p := r.pins[pin]
				if p.EdgeDetected() {
					level := Low
					if p.Read() == rpio.High {
						level = High
					}
					handler(level)
				}
			}
			r.mu.Unlock()
		}
	}
}

// pin returns the rpio handle for a pin, setting it up in fallback mode
// if nothing configured it yet.
func (r *RPiDriver) pin(pin int, fallback PinMode) (rpio.Pin, error) {
	r.mu.Lock()
	p, ok := r.pins[pin]
	r.mu.Unlock()
	if ok {
		return p, nil
	}
	if err := r.SetupPin(pin, fallback); err != nil {
		return 0, err
	}
	r.mu.Lock()
	p = r.pins[pin]
	r.mu.Unlock()
	return p, nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	r.mu.Lock()
	if r.watching {
		close(r.stop)
		r.watching = false
	}
	for pin := range r.watchers {
		r.pins[pin].Detect(rpio.NoEdge)
	}

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}
	r.mu.Unlock()

	return rpio.Close()
}
