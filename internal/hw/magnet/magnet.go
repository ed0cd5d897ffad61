package magnet

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/gpio"
)

// Magnet is the high-level interface used by the dispensing logic.
// It represents the pickup electromagnet, regardless of how it is
// switched (relay, MOSFET, driver board).
type Magnet interface {
	// Activate energizes the magnet and waits for the field to stabilize.
	Activate() error
	// Deactivate releases the magnet and waits for held pills to drop.
	Deactivate() error
	Active() bool
}

// Config holds the wiring and settle times of the electromagnet.
type Config struct {
	Pin             int
	ActivateDelay   time.Duration // field stabilization after energizing
	DeactivateDelay time.Duration // release settle after de-energizing
}

// GPIOMagnet is a Magnet implementation switched through a single GPIO
// driving a MOSFET. HIGH energizes the coil.
type GPIOMagnet struct {
	gpio   gpio.Driver
	cfg    Config
	clk    clock.Clock
	active bool
}

// NewGPIOMagnet creates a GPIO-switched electromagnet. The coil starts
// de-energized.
func NewGPIOMagnet(g gpio.Driver, cfg Config) *GPIOMagnet {
	_ = g.SetupPin(cfg.Pin, gpio.Output)
	_ = g.WritePin(cfg.Pin, gpio.Low)

	return &GPIOMagnet{
		gpio: g,
		cfg:  cfg,
		clk:  clock.New(),
	}
}

func (m *GPIOMagnet) Activate() error {
	debug.Verbose("Magnet: energizing (pin %d -> HIGH)", m.cfg.Pin)
	if err := m.gpio.WritePin(m.cfg.Pin, gpio.High); err != nil {
		return err
	}
	m.active = true
	m.clk.Sleep(m.cfg.ActivateDelay)
	return nil
}

func (m *GPIOMagnet) Deactivate() error {
	debug.Verbose("Magnet: releasing (pin %d -> LOW)", m.cfg.Pin)
	if err := m.gpio.WritePin(m.cfg.Pin, gpio.Low); err != nil {
		return err
	}
	m.active = false
	m.clk.Sleep(m.cfg.DeactivateDelay)
	return nil
}

func (m *GPIOMagnet) Active() bool {
	return m.active
}
