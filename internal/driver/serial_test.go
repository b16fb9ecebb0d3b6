package driver

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/serial-hub/backend/internal/datamgr"
	"github.com/serial-hub/backend/internal/event"
	"github.com/serial-hub/backend/internal/history"
	"github.com/serial-hub/backend/internal/library"
	"go.bug.st/serial"
)

func TestParityMapping(t *testing.T) {
	cases := map[string]serial.Parity{
		"N": serial.NoParity,
		"E": serial.EvenParity,
		"O": serial.OddParity,
		"M": serial.MarkParity,
		"S": serial.SpaceParity,
		"?": serial.NoParity,
	}
	for in, want := range cases {
		if got := parityFor(in); got != want {
			t.Errorf("parityFor(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStopBitsMapping(t *testing.T) {
	cases := map[float64]serial.StopBits{
		1:   serial.OneStopBit,
		1.5: serial.OnePointFiveStopBits,
		2:   serial.TwoStopBits,
		0:   serial.OneStopBit,
	}
	for in, want := range cases {
		if got := stopBitsFor(in); got != want {
			t.Errorf("stopBitsFor(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestWriteWithoutOpenPortIsDropped(t *testing.T) {
	dir := t.TempDir()
	bus := event.NewBus()
	mgr := datamgr.NewManager(
		library.Parse(strings.NewReader("")),
		history.Load(filepath.Join(dir, "h.json")),
		bus,
		filepath.Join(dir, "s.yaml"),
	)

	a := New(mgr)
	// Must not panic or block when no device is held.
	a.HandleEvent(event.Event{Type: event.TypeDataSent, Port: "COM1", RawBytes: []byte{0x01}})
	a.HandleEvent(event.Event{Type: event.TypePortStopped, Port: "COM1"})
	a.Close()
}
