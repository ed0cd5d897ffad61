package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.bug.st/serial"

	"github.com/cjeanneret/PillGo/internal/debug"
)

// maxLineBytes bounds the command line accumulator. Lines longer than
// this without a newline are noise, not commands, and are dropped.
const maxLineBytes = 256

// port is the slice of the serial device surface the channel uses.
// serial.Port satisfies it; tests inject scripted implementations.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// openFunc opens the named serial device at the given baud rate.
type openFunc func(device string, baud int) (port, error)

func openSerial(device string, baud int) (port, error) {
	p, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial device %s: %w", device, err)
	}
	return p, nil
}

// SerialConfig holds the command channel wiring.
type SerialConfig struct {
	Device         string
	Baud           int
	ReadTimeout    time.Duration // read poll slice, bounds shutdown latency
	ReconnectDelay time.Duration // pause before reopening a lost device
}

// SerialChannel frames commands by newline over a serial device and
// writes one reply line per command. A lost device is reopened after
// the reconnect delay, so an unplugged adapter or a rebooting radio
// bridge does not take the dispenser down with it.
type SerialChannel struct {
	cfg     SerialConfig
	handler Handler
	open    openFunc
	clk     clock.Clock
}

// NewSerialChannel builds the channel. It does not touch the device
// until Run.
func NewSerialChannel(cfg SerialConfig, handler Handler) *SerialChannel {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 500 * time.Millisecond
	}
	return &SerialChannel{
		cfg:     cfg,
		handler: handler,
		open:    openSerial,
		clk:     clock.New(),
	}
}

// Run services the device until ctx is cancelled. Open and read
// failures are logged and followed by a reopen attempt after the
// reconnect delay.
func (c *SerialChannel) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil {
			debug.Error(err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.clk.After(c.cfg.ReconnectDelay):
		}
	}
}

// session serves one open-to-close lifetime of the device. It returns
// nil when ctx ended it and an error when the device did.
func (c *SerialChannel) session(ctx context.Context) error {
	p, err := c.open(c.cfg.Device, c.cfg.Baud)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.SetReadTimeout(c.cfg.ReadTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}

	c.handler.OnConnect()
	defer c.handler.OnDisconnect()
	debug.Info("Serial channel open on %s at %d baud", c.cfg.Device, c.cfg.Baud)

	buf := make([]byte, 64)
	var line strings.Builder
	for {
		if ctx.Err() != nil {
			return nil
		}

		// A zero-byte read is the poll timeout, not a failure.
		n, err := p.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("serial device closed: %w", err)
			}
			return fmt.Errorf("serial read: %w", err)
		}

		for _, b := range buf[:n] {
			switch b {
			case '\n':
				c.dispatchLine(p, line.String())
				line.Reset()
			case '\r':
				// CRLF clients
			default:
				line.WriteByte(b)
			}
		}
		if line.Len() > maxLineBytes {
			debug.Error(fmt.Errorf("serial line exceeded %d bytes, dropped", maxLineBytes))
			line.Reset()
		}
	}
}

// dispatchLine runs one framed command and writes the reply. Blank
// frames are keepalive noise and make no reply.
func (c *SerialChannel) dispatchLine(w io.Writer, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	reply := c.handler.OnCommand(line)
	if _, err := io.WriteString(w, reply+"\n"); err != nil {
		debug.Error(fmt.Errorf("serial write: %w", err))
	}
}
