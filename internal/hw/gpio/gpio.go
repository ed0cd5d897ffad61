package gpio

import (
	"sync"

	"github.com/cjeanneret/PillGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode selects the electrical function of a GPIO.
type PinMode int

const (
	Input PinMode = iota
	Output
	// InputPullup enables the internal pull-up resistor. Used for the
	// home switch and the IR barrier, both of which pull the line LOW
	// when active.
	InputPullup
	// PWM puts the pin in hardware PWM mode (servo and DC motor speed).
	PWM
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// WritePWM sets the duty cycle on a pin configured as PWM.
	// duty and cycle share the same time base (see pwmClockHz).
	WritePWM(pin int, duty, cycle uint32) error
	// WatchEdges registers a handler invoked on every level change of an
	// input pin. Handlers run on the driver's watcher goroutine and must
	// not block.
	WatchEdges(pin int, handler func(Level)) error
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

// MockDriver is an in-memory implementation that logs actions and lets
// callers script input levels and inject edges. Used for development on
// PC and as the test seam for the hardware packages.
type MockDriver struct {
	mu       sync.Mutex
	modes    map[int]PinMode
	levels   map[int]Level
	watchers map[int]func(Level)
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		modes:    make(map[int]PinMode),
		levels:   make(map[int]Level),
		watchers: make(map[int]func(Level)),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	if mode == InputPullup {
		// Pull-up idles HIGH until something drives the line LOW.
		if _, ok := m.levels[pin]; !ok {
			m.levels[pin] = High
		}
	}
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	level := m.levels[pin]
	m.mu.Unlock()
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

func (m *MockDriver) WritePWM(pin int, duty, cycle uint32) error {
	debug.GPIO("WritePWM", pin, duty)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = duty > 0
	return nil
}

func (m *MockDriver) WatchEdges(pin int, handler func(Level)) error {
	debug.GPIO("WatchEdges", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers[pin] = handler
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

// SetPinLevel scripts the level returned by subsequent ReadPin calls.
func (m *MockDriver) SetPinLevel(pin int, level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
}

// InjectEdge sets a pin level and invokes its edge watcher synchronously,
// simulating an electrical transition on the line.
func (m *MockDriver) InjectEdge(pin int, level Level) {
	m.mu.Lock()
	m.levels[pin] = level
	handler := m.watchers[pin]
	m.mu.Unlock()
	if handler != nil {
		handler(level)
	}
}
