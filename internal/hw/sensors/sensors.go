package sensors

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/gpio"
)

// Sensors is the read-side interface consumed by the homing and
// dispensing logic.
type Sensors interface {
	// HomeSwitchActive reports whether the tray sits on the reference switch.
	HomeSwitchActive() bool
	// PillDetected reports whether the IR barrier at the chute is blocked.
	PillDetected() bool
	// EncoderPosition returns the accumulated quadrature count.
	EncoderPosition() int64
	ResetEncoder()
}

// Config holds the wiring of the sensor bank. Encoder pins are optional;
// zero disables the encoder.
type Config struct {
	HomeSwitchPin int
	PillSensorPin int
	EncoderPinA   int
	EncoderPinB   int
	PollInterval  time.Duration
}

// Manager reads the home switch and the IR pill barrier, and counts the
// optional rotary encoder. Both switch and barrier are wired with
// pull-ups and pull the line LOW when active.
type Manager struct {
	gpio    gpio.Driver
	cfg     Config
	clk     clock.Clock
	encoder atomic.Int64
}

// NewManager sets up the sensor pins and registers the encoder edge
// handler when encoder pins are configured.
func NewManager(g gpio.Driver, cfg Config) (*Manager, error) {
	_ = g.SetupPin(cfg.HomeSwitchPin, gpio.InputPullup)
	_ = g.SetupPin(cfg.PillSensorPin, gpio.InputPullup)

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}

	m := &Manager{
		gpio: g,
		cfg:  cfg,
		clk:  clock.New(),
	}

	if cfg.EncoderPinA > 0 && cfg.EncoderPinB > 0 {
		_ = g.SetupPin(cfg.EncoderPinA, gpio.Input)
		_ = g.SetupPin(cfg.EncoderPinB, gpio.Input)
		if err := g.WatchEdges(cfg.EncoderPinA, m.onEncoderEdge); err != nil {
			return nil, err
		}
		debug.Info("Encoder enabled on pins A=%d B=%d", cfg.EncoderPinA, cfg.EncoderPinB)
	}

	return m, nil
}

// onEncoderEdge runs on the GPIO watcher goroutine for every transition
// of channel A. Channel B leads or lags depending on rotation direction.
func (m *Manager) onEncoderEdge(levelA gpio.Level) {
	levelB, err := m.gpio.ReadPin(m.cfg.EncoderPinB)
	if err != nil {
		debug.Error(err)
		return
	}
	if levelB != levelA {
		m.encoder.Inc()
	} else {
		m.encoder.Dec()
	}
}

func (m *Manager) HomeSwitchActive() bool {
	return m.activeLow(m.cfg.HomeSwitchPin)
}

func (m *Manager) PillDetected() bool {
	return m.activeLow(m.cfg.PillSensorPin)
}

// activeLow reads a pulled-up pin. Read failures are logged and treated
// as inactive; they can only happen when pin setup failed at startup.
func (m *Manager) activeLow(pin int) bool {
	level, err := m.gpio.ReadPin(pin)
	if err != nil {
		debug.Error(err)
		return false
	}
	return level == gpio.Low
}

// WaitForHomeSwitch polls the switch until it activates or the timeout
// elapses.
func (m *Manager) WaitForHomeSwitch(timeout time.Duration) bool {
	deadline := m.clk.Now().Add(timeout)
	for {
		if m.HomeSwitchActive() {
			return true
		}
		if !m.clk.Now().Before(deadline) {
			return false
		}
		m.clk.Sleep(m.cfg.PollInterval)
	}
}

func (m *Manager) EncoderPosition() int64 {
	return m.encoder.Load()
}

func (m *Manager) ResetEncoder() {
	m.encoder.Store(0)
}
