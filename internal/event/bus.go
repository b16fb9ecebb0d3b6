// Package event implements the in-process publish/subscribe bus that fans
// out data manager state changes to decoupled observers (websocket hub,
// serial driver, tests). Delivery is synchronous on the publishing
// goroutine; a failing observer is isolated and never blocks the rest.
package event

import (
	"fmt"
	"sync"

	"github.com/serial-hub/backend/internal/models"
)

// Type identifies one of the closed set of hub events.
type Type string

const (
	TypePortStarted     Type = "port_started"
	TypePortStopped     Type = "port_stopped"
	TypeDataReceived    Type = "data_received"
	TypeDataSent        Type = "data_sent"
	TypeDataCleared     Type = "data_cleared"
	TypeHistoryUpdated  Type = "history_updated"
	TypeSettingsUpdated Type = "settings_updated"
	TypePortNameUpdated Type = "port_name_updated"
)

// Event is the tagged variant delivered to observers. Only the fields
// belonging to the Type are set:
//
//	port_started      Port, Config
//	port_stopped      Port
//	data_received     Port, Entry
//	data_sent         Port, Data (canonical text), RawBytes
//	data_cleared      Port
//	history_updated   History
//	settings_updated  Port, Config
//	port_name_updated Port, Name
//
// RawBytes exist for the serial driver to transmit; remote broadcasters
// must never forward them.
type Event struct {
	Type     Type
	Port     string
	Config   *models.PortConfig
	Entry    *models.Entry
	Data     string
	RawBytes []byte
	History  []string
	Name     string
}

// Observer receives every published event. Callbacks run synchronously on
// the publisher's goroutine and must not call back into the data manager's
// mutating operations.
type Observer interface {
	HandleEvent(ev Event)
}

// Bus holds the observer registrations. Delivery order is registration
// order, but callers must not depend on it.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers an observer for all subsequent events.
func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Unsubscribe removes a previously registered observer. Unknown observers
// are ignored.
func (b *Bus) Unsubscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.observers {
		if existing == o {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return
		}
	}
}

// Len returns the current observer count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// Publish delivers ev to every currently registered observer, one after
// another. A panicking observer is logged and skipped; it never prevents
// delivery to the remaining observers nor propagates to the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		deliver(o, ev)
	}
}

func deliver(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[EventBus] Observer failed on %s: %v\n", ev.Type, r)
		}
	}()
	o.HandleEvent(ev)
}
