package api

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/serial-hub/backend/internal/datamgr"
	"github.com/serial-hub/backend/internal/event"
	"github.com/serial-hub/backend/internal/history"
	"github.com/serial-hub/backend/internal/library"
	"github.com/serial-hub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *event.Bus) {
	t.Helper()
	dir := t.TempDir()
	bus := event.NewBus()
	mgr := datamgr.NewManager(
		library.Parse(strings.NewReader("")),
		history.Load(filepath.Join(dir, "send_history.json")),
		bus,
		filepath.Join(dir, "comsettings.yaml"),
	)
	hub := NewHub(mgr)
	bus.Subscribe(hub)
	return hub, bus
}

// drain pops every queued message off a detached client.
func drain(c *wsClient) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestDispatchPing(t *testing.T) {
	hub, _ := newTestHub(t)
	client := &wsClient{id: "test-client-1", send: make(chan WSMessage, sendChanSize)}

	hub.dispatch(client, WSMessage{Type: MsgTypePing})

	msgs := drain(client)
	require.Len(t, msgs, 1)
	assert.Equal(t, MsgTypePong, msgs[0].Type)
}

func TestDispatchStartPortCommand(t *testing.T) {
	hub, _ := newTestHub(t)
	client := &wsClient{id: "test-client-2", send: make(chan WSMessage, sendChanSize)}

	hub.mu.Lock()
	hub.clients[client.id] = client
	hub.mu.Unlock()

	payload, _ := json.Marshal(portCommandPayload{Port: "COM5"})
	hub.dispatch(client, WSMessage{Type: MsgTypeStartPort, Payload: payload})

	msgs := drain(client)
	var result *portResultPayload
	var sawPortsUpdate bool
	for _, msg := range msgs {
		switch msg.Type {
		case MsgTypePortStartResult:
			result = &portResultPayload{}
			require.NoError(t, json.Unmarshal(msg.Payload, result))
		case MsgTypePortsUpdate:
			sawPortsUpdate = true
		}
	}
	require.NotNil(t, result, "expected a port_start_result, got %v", msgs)
	assert.True(t, result.Success)
	assert.Equal(t, "COM5", result.Port)
	assert.True(t, sawPortsUpdate, "port_started should trigger a ports_update broadcast")

	// Duplicate start reports failure over the same channel.
	hub.dispatch(client, WSMessage{Type: MsgTypeStartPort, Payload: payload})
	msgs = drain(client)
	var second portResultPayload
	for _, msg := range msgs {
		if msg.Type == MsgTypePortStartResult {
			require.NoError(t, json.Unmarshal(msg.Payload, &second))
		}
	}
	assert.False(t, second.Success)
}

func TestHandleEventStripsRawBytes(t *testing.T) {
	hub, bus := newTestHub(t)
	client := &wsClient{id: "test-client-3", send: make(chan WSMessage, sendChanSize)}

	hub.mu.Lock()
	hub.clients[client.id] = client
	hub.mu.Unlock()

	bus.Publish(event.Event{
		Type:     event.TypeDataSent,
		Port:     "COM1",
		Data:     "DE AD",
		RawBytes: []byte{0xDE, 0xAD},
	})

	msgs := drain(client)
	require.Len(t, msgs, 1)
	assert.Equal(t, string(event.TypeDataSent), msgs[0].Type)
	assert.Contains(t, string(msgs[0].Payload), `"DE AD"`)
	assert.NotContains(t, string(msgs[0].Payload), "rawBytes")
	assert.NotContains(t, string(msgs[0].Payload), "RawBytes")
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	hub, _ := newTestHub(t)
	client := &wsClient{id: "test-client-4", send: make(chan WSMessage, 1)}

	hub.mu.Lock()
	hub.clients[client.id] = client
	hub.mu.Unlock()

	entry := models.Entry{Direction: models.DirectionReceived, Payload: "AA", Annotated: "AA"}
	for i := 0; i < 5; i++ {
		hub.HandleEvent(event.Event{Type: event.TypeDataReceived, Port: "COM1", Entry: &entry})
	}

	// The queue holds one message; the rest were dropped without blocking.
	msgs := drain(client)
	assert.Len(t, msgs, 1)
}

func TestHandleEventWithNoClients(t *testing.T) {
	hub, bus := newTestHub(t)
	assert.Equal(t, 0, hub.ClientCount())

	// Must not panic with zero clients.
	bus.Publish(event.Event{Type: event.TypePortStopped, Port: "COM1"})
	bus.Publish(event.Event{Type: event.TypeHistoryUpdated, History: []string{"AA"}})
}
