// Package driver bridges physical serial ports to the data manager. It
// observes the event bus: port_started opens the device and begins a read
// loop feeding received frames into the manager, port_stopped closes it,
// and data_sent transmits the raw bytes over the wire.
package driver

import (
	"fmt"
	"sync"
	"time"

	"github.com/serial-hub/backend/internal/datamgr"
	"github.com/serial-hub/backend/internal/event"
	"github.com/serial-hub/backend/internal/hexcodec"
	"github.com/serial-hub/backend/internal/models"
	"go.bug.st/serial"
)

const readBufferSize = 256

// Adapter owns the open serial devices, one reader goroutine per active
// port.
type Adapter struct {
	mgr *datamgr.Manager

	mu    sync.Mutex
	ports map[string]*portReader
	wg    sync.WaitGroup
}

type portReader struct {
	device string
	port   serial.Port
	closed chan struct{}
}

// New creates an adapter around the data manager. Register it on the bus
// with Subscribe to activate it.
func New(mgr *datamgr.Manager) *Adapter {
	return &Adapter{
		mgr:   mgr,
		ports: make(map[string]*portReader),
	}
}

// ListPorts enumerates the serial devices visible to the host.
func (a *Adapter) ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// HandleEvent implements event.Observer.
func (a *Adapter) HandleEvent(ev event.Event) {
	switch ev.Type {
	case event.TypePortStarted:
		cfg := models.DefaultPortConfig()
		if ev.Config != nil {
			cfg = *ev.Config
		}
		a.open(ev.Port, cfg)
	case event.TypePortStopped:
		a.close(ev.Port)
	case event.TypeDataSent:
		a.write(ev.Port, ev.RawBytes)
	}
}

// open connects to the device and starts its read loop. An open failure is
// logged; the session stays registered so the caller sees the port as
// monitored even when the wire is unavailable.
func (a *Adapter) open(device string, cfg models.PortConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.ports[device]; exists {
		return
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.ByteSize,
		Parity:   parityFor(cfg.Parity),
		StopBits: stopBitsFor(cfg.StopBits),
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		fmt.Printf("[Driver] Failed to open %s: %v\n", device, err)
		return
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		fmt.Printf("[Driver] Failed to set read timeout on %s: %v\n", device, err)
	}

	reader := &portReader{device: device, port: port, closed: make(chan struct{})}
	a.ports[device] = reader

	a.wg.Add(1)
	go a.readLoop(reader)
	fmt.Printf("[Driver] Opened %s (%d/%d/%s/%g)\n", device, cfg.BaudRate, cfg.ByteSize, cfg.Parity, cfg.StopBits)
}

// close shuts the device down and waits for nothing: the read loop notices
// the closed channel on its next timeout tick.
func (a *Adapter) close(device string) {
	a.mu.Lock()
	reader, ok := a.ports[device]
	if ok {
		delete(a.ports, device)
	}
	a.mu.Unlock()

	if !ok {
		return
	}
	close(reader.closed)
	if err := reader.port.Close(); err != nil {
		fmt.Printf("[Driver] Error closing %s: %v\n", device, err)
	}
	fmt.Printf("[Driver] Closed %s\n", device)
}

// write transmits raw bytes on an open device. Sends to ports the driver
// does not hold are dropped with a log line; validation already happened
// upstream.
func (a *Adapter) write(device string, raw []byte) {
	if len(raw) == 0 {
		return
	}

	a.mu.Lock()
	reader, ok := a.ports[device]
	a.mu.Unlock()

	if !ok {
		fmt.Printf("[Driver] Dropping %d bytes for %s: port not open\n", len(raw), device)
		return
	}
	if _, err := reader.port.Write(raw); err != nil {
		fmt.Printf("[Driver] Write failed on %s: %v\n", device, err)
	}
}

func (a *Adapter) readLoop(reader *portReader) {
	defer a.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-reader.closed:
			return
		default:
		}

		n, err := reader.port.Read(buf)
		if n > 0 {
			a.mgr.Append(reader.device, models.DirectionReceived, hexcodec.Format(buf[:n]))
		}
		if err != nil {
			select {
			case <-reader.closed:
			default:
				fmt.Printf("[Driver] Read error on %s: %v\n", reader.device, err)
			}
			return
		}
	}
}

// Close shuts down all open devices and waits for their read loops.
func (a *Adapter) Close() {
	a.mu.Lock()
	readers := make([]*portReader, 0, len(a.ports))
	for _, r := range a.ports {
		readers = append(readers, r)
	}
	a.ports = make(map[string]*portReader)
	a.mu.Unlock()

	for _, r := range readers {
		close(r.closed)
		r.port.Close()
	}
	a.wg.Wait()
}

func parityFor(p string) serial.Parity {
	switch p {
	case "E":
		return serial.EvenParity
	case "O":
		return serial.OddParity
	case "M":
		return serial.MarkParity
	case "S":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

func stopBitsFor(s float64) serial.StopBits {
	switch {
	case s >= 2:
		return serial.TwoStopBits
	case s > 1:
		return serial.OnePointFiveStopBits
	default:
		return serial.OneStopBit
	}
}
