// Package datamgr implements the data manager: the single thread-safe
// facade owning all shared serial hub state. It tracks which ports are
// monitored, keeps the bounded per-port log buffers and the send history,
// annotates traffic against the pattern library, and emits events on the
// bus for every state change.
//
// One coarse mutex guards the session registry, every log buffer and the
// history stack. Events are published after the mutex is released, with
// payload snapshots taken inside the critical section; observers therefore
// run lock-free but must not call the manager's mutating operations from
// their callbacks.
package datamgr

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/serial-hub/backend/internal/event"
	"github.com/serial-hub/backend/internal/hexcodec"
	"github.com/serial-hub/backend/internal/history"
	"github.com/serial-hub/backend/internal/library"
	"github.com/serial-hub/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// MaxBufferEntries caps each port's log buffer; the oldest entries are
// evicted first once the cap is reached.
const MaxBufferEntries = 1000

// PortLister enumerates the serial devices currently visible to the host.
// The driver provides the real implementation.
type PortLister func() ([]string, error)

// PortSession records that a port is actively monitored. At most one
// session exists per port.
type PortSession struct {
	Active bool
	Config models.PortConfig
}

// Manager is safe for concurrent use by the driver goroutines, HTTP
// handlers and websocket clients.
type Manager struct {
	mu           sync.Mutex
	sessions     map[string]*PortSession
	buffers      map[string][]models.Entry
	settings     map[string]models.PortConfig
	settingsPath string

	history *history.Stack
	library *library.Library
	bus     *event.Bus
	lister  PortLister
}

// NewManager builds a manager around a loaded pattern library, history
// stack and event bus. Port settings are loaded from settingsPath; a
// missing or corrupt settings file starts empty, logged but never fatal.
func NewManager(lib *library.Library, hist *history.Stack, bus *event.Bus, settingsPath string) *Manager {
	m := &Manager{
		sessions:     make(map[string]*PortSession),
		buffers:      make(map[string][]models.Entry),
		settings:     make(map[string]models.PortConfig),
		settingsPath: settingsPath,
		history:      hist,
		library:      lib,
		bus:          bus,
	}
	m.loadSettings()
	return m
}

// SetPortLister wires the device enumeration used by AvailablePorts.
func (m *Manager) SetPortLister(lister PortLister) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lister = lister
}

// StartPort begins monitoring a port. Starting an already-active port is a
// no-op that reports failure; the existing session is untouched. The port's
// buffer is reset for the new session.
func (m *Manager) StartPort(port string) bool {
	m.mu.Lock()
	if _, exists := m.sessions[port]; exists {
		m.mu.Unlock()
		return false
	}
	cfg := m.settingsLocked(port)
	m.sessions[port] = &PortSession{Active: true, Config: cfg}
	m.buffers[port] = nil
	m.mu.Unlock()

	m.bus.Publish(event.Event{Type: event.TypePortStarted, Port: port, Config: &cfg})
	return true
}

// StopPort ends monitoring for a port. Stopping an inactive port reports
// failure. The buffer reference is dropped with the session; a late append
// from an in-flight read recreates it lazily (see Append).
func (m *Manager) StopPort(port string) bool {
	m.mu.Lock()
	if _, exists := m.sessions[port]; !exists {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, port)
	delete(m.buffers, port)
	m.mu.Unlock()

	m.bus.Publish(event.Event{Type: event.TypePortStopped, Port: port})
	return true
}

// ActiveConfig returns the configuration snapshot held by a running
// session, if any.
func (m *Manager) ActiveConfig(port string) (models.PortConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[port]; ok {
		return session.Config, true
	}
	return models.PortConfig{}, false
}

// IsActive reports whether a session exists for the port.
func (m *Manager) IsActive(port string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[port]
	return ok
}

// Append annotates rawHex against the pattern library, stamps it and adds
// it to the port's buffer, evicting past the cap. Appends are accepted
// whether or not a session exists: the buffer is created lazily, so an
// append racing a concurrent stop completes against a fresh buffer and is
// retained. Emits data_received with the new entry.
func (m *Manager) Append(port string, direction models.Direction, rawHex string) models.Entry {
	m.mu.Lock()
	entry := m.appendLocked(port, direction, rawHex)
	m.mu.Unlock()

	m.bus.Publish(event.Event{Type: event.TypeDataReceived, Port: port, Entry: &entry})
	return entry
}

func (m *Manager) appendLocked(port string, direction models.Direction, rawHex string) models.Entry {
	entry := models.Entry{
		Direction: direction,
		Payload:   rawHex,
		Annotated: m.library.Annotate(rawHex),
		Timestamp: time.Now(),
	}

	buf := append(m.buffers[port], entry)
	if len(buf) > MaxBufferEntries {
		buf = buf[len(buf)-MaxBufferEntries:]
	}
	m.buffers[port] = buf
	return entry
}

// Send validates userHexText as a hex byte sequence and, on success,
// records it in the history, appends a sent entry to the port's buffer and
// emits data_sent carrying both the canonical text and the raw bytes for
// the driver to transmit. Malformed input (odd length, non-hex digits)
// returns false with no state mutated and no event emitted.
func (m *Manager) Send(port, userHexText string) bool {
	canonical, raw, err := hexcodec.Canonicalize(userHexText)
	if err != nil {
		fmt.Printf("[DataManager] Rejecting send on %s: %v\n", port, err)
		return false
	}

	m.mu.Lock()
	inserted := m.history.Record(canonical)
	var snapshot []string
	if inserted {
		snapshot = m.history.Snapshot()
	}
	entry := m.appendLocked(port, models.DirectionSent, canonical)
	m.mu.Unlock()

	if inserted {
		m.bus.Publish(event.Event{Type: event.TypeHistoryUpdated, History: snapshot})
	}
	m.bus.Publish(event.Event{Type: event.TypeDataReceived, Port: port, Entry: &entry})
	m.bus.Publish(event.Event{Type: event.TypeDataSent, Port: port, Data: canonical, RawBytes: raw})
	return true
}

// Entries returns a copy of the port's buffer; observers never see the
// live slice.
func (m *Manager) Entries(port string) []models.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.buffers[port]
	out := make([]models.Entry, len(buf))
	copy(out, buf)
	return out
}

// ClearPort truncates a port's buffer and emits data_cleared. Clearing a
// port that has no buffer is a silent no-op.
func (m *Manager) ClearPort(port string) {
	m.mu.Lock()
	_, exists := m.buffers[port]
	if exists {
		m.buffers[port] = nil
	}
	m.mu.Unlock()

	if exists {
		m.bus.Publish(event.Event{Type: event.TypeDataCleared, Port: port})
	}
}

// History returns the send history, most recent first.
func (m *Manager) History() []string {
	return m.history.Snapshot()
}

// PortSettings returns the stored configuration for a port, or the
// 9600/8/N/1 defaults when none exists.
func (m *Manager) PortSettings(port string) models.PortConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsLocked(port)
}

func (m *Manager) settingsLocked(port string) models.PortConfig {
	if cfg, ok := m.settings[port]; ok {
		return cfg
	}
	return models.DefaultPortConfig()
}

// UpdatePortSettings persists a port's configuration regardless of session
// state. An active session has its snapshot refreshed in place. Emits
// settings_updated.
func (m *Manager) UpdatePortSettings(port string, cfg models.PortConfig) {
	m.mu.Lock()
	m.settings[port] = cfg
	if session, ok := m.sessions[port]; ok {
		session.Config = cfg
	}
	m.saveSettingsLocked()
	m.mu.Unlock()

	m.bus.Publish(event.Event{Type: event.TypeSettingsUpdated, Port: port, Config: &cfg})
}

// UpdatePortName sets only the display label of a port, creating a default
// configuration for it if needed. Emits port_name_updated.
func (m *Manager) UpdatePortName(port, name string) {
	name = strings.TrimSpace(name)

	m.mu.Lock()
	cfg := m.settingsLocked(port)
	cfg.Name = name
	m.settings[port] = cfg
	m.saveSettingsLocked()
	m.mu.Unlock()

	m.bus.Publish(event.Event{Type: event.TypePortNameUpdated, Port: port, Name: name})
}

// PortName returns the stored display label of a port.
func (m *Manager) PortName(port string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.settings[port]; ok {
		return cfg.Name
	}
	return ""
}

// PortDisplayName returns "device (label)" when a label is stored.
func (m *Manager) PortDisplayName(port string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsLocked(port).DisplayName(port)
}

// AvailablePorts merges the devices visible to the driver with stored
// labels and session state. Active sessions are always listed, even for
// devices the driver no longer reports. Iteration order over ports is not
// semantically significant; the result is sorted by device for stable
// display only.
func (m *Manager) AvailablePorts() []models.PortInfo {
	var devices []string
	m.mu.Lock()
	lister := m.lister
	m.mu.Unlock()

	if lister != nil {
		var err error
		devices, err = lister()
		if err != nil {
			fmt.Printf("[DataManager] Port enumeration failed: %v\n", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(devices))
	infos := make([]models.PortInfo, 0, len(devices))
	for _, device := range devices {
		seen[device] = true
		cfg := m.settingsLocked(device)
		_, active := m.sessions[device]
		infos = append(infos, models.PortInfo{
			Device:      device,
			Name:        cfg.Name,
			DisplayName: cfg.DisplayName(device),
			Active:      active,
		})
	}
	for device := range m.sessions {
		if seen[device] {
			continue
		}
		cfg := m.settingsLocked(device)
		infos = append(infos, models.PortInfo{
			Device:      device,
			Name:        cfg.Name,
			DisplayName: cfg.DisplayName(device),
			Active:      true,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Device < infos[j].Device })
	return infos
}

// loadSettings reads the YAML settings file at construction time.
func (m *Manager) loadSettings() {
	if m.settingsPath == "" {
		return
	}
	data, err := os.ReadFile(m.settingsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("[DataManager] Failed to read port settings %s: %v\n", m.settingsPath, err)
		}
		return
	}
	if err := yaml.Unmarshal(data, &m.settings); err != nil {
		fmt.Printf("[DataManager] Failed to parse port settings %s: %v\n", m.settingsPath, err)
		m.settings = make(map[string]models.PortConfig)
	}
}

// saveSettingsLocked persists the settings map. Failures are logged, never
// fatal.
func (m *Manager) saveSettingsLocked() {
	if m.settingsPath == "" {
		return
	}
	data, err := yaml.Marshal(m.settings)
	if err != nil {
		fmt.Printf("[DataManager] Failed to encode port settings: %v\n", err)
		return
	}
	if err := os.WriteFile(m.settingsPath, data, 0644); err != nil {
		fmt.Printf("[DataManager] Failed to write port settings %s: %v\n", m.settingsPath, err)
	}
}
