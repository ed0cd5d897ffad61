package led

import (
	"testing"

	"github.com/cjeanneret/PillGo/internal/hw/gpio"
)

type recordingDriver struct {
	writes []gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error { return nil }

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.writes = append(d.writes, level)
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) { return gpio.Low, nil }

func (d *recordingDriver) WritePWM(pin int, duty, cycle uint32) error { return nil }

func (d *recordingDriver) WatchEdges(pin int, handler func(gpio.Level)) error { return nil }

func (d *recordingDriver) Close() error { return nil }

func TestStatusLED_OnOffToggle(t *testing.T) {
	drv := &recordingDriver{}
	l := New(drv, 16)
	drv.writes = nil

	if err := l.On(); err != nil {
		t.Fatalf("On: %v", err)
	}
	if !l.Lit() {
		t.Error("LED should be lit after On")
	}

	if err := l.Off(); err != nil {
		t.Fatalf("Off: %v", err)
	}
	if l.Lit() {
		t.Error("LED should be dark after Off")
	}

	if err := l.Toggle(); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !l.Lit() {
		t.Error("Toggle from dark should light the LED")
	}

	want := []gpio.Level{gpio.High, gpio.Low, gpio.High}
	if len(drv.writes) != len(want) {
		t.Fatalf("got %d writes, want %d", len(drv.writes), len(want))
	}
	for i, level := range want {
		if drv.writes[i] != level {
			t.Errorf("write %d = %v, want %v", i, drv.writes[i], level)
		}
	}
}
