package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/serial-hub/backend/internal/datamgr"
	"github.com/serial-hub/backend/internal/event"
	"github.com/serial-hub/backend/internal/models"
)

// WebSocket message types for the monitor protocol
const (
	// Client -> Server messages
	MsgTypeStartPort       = "start_port"
	MsgTypeStopPort        = "stop_port"
	MsgTypeSendData        = "send_data"
	MsgTypeClearData       = "clear_data"
	MsgTypeRequestPortData = "request_port_data"
	MsgTypeRequestPorts    = "request_ports_update"
	MsgTypeUpdatePortName  = "update_port_name"
	MsgTypePing            = "ping"

	// Server -> Client messages
	MsgTypeConnected       = "connected"
	MsgTypePong            = "pong"
	MsgTypePortStartResult = "port_start_result"
	MsgTypePortStopResult  = "port_stop_result"
	MsgTypeSendResult      = "send_result"
	MsgTypePortData        = "port_data"
	MsgTypePortsUpdate     = "ports_update"
	MsgTypeHistoryUpdate   = "history_update"
	MsgTypeError           = "error"
)

// WSMessage is the envelope for both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Command payloads (client -> server)
type portCommandPayload struct {
	Port string `json:"port"`
	Data string `json:"data,omitempty"`
	Name string `json:"name,omitempty"`
}

// Result payloads (server -> client)
type portResultPayload struct {
	Port    string `json:"port"`
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Name    string `json:"name,omitempty"`
}

type portEntryPayload struct {
	Port    string       `json:"port"`
	Entry   models.Entry `json:"entry"`
	Display string       `json:"display"` // timestamped line as the log view renders it
}

type portDataPayload struct {
	Port string         `json:"port"`
	Data []models.Entry `json:"data"`
}

type portConfigPayload struct {
	Port   string            `json:"port"`
	Config models.PortConfig `json:"config"`
}

// sendChanSize bounds each client's outbound queue; a client that cannot
// keep up has messages dropped rather than stalling the publisher.
const sendChanSize = 64

// Hub broadcasts data manager events to every connected websocket client
// and accepts the same commands the HTTP routes expose. It registers on
// the event bus as an observer.
type Hub struct {
	mgr      *datamgr.Manager
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan WSMessage
}

// NewHub creates a websocket hub over the data manager.
func NewHub(mgr *datamgr.Manager) *Hub {
	return &Hub{
		mgr: mgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
		clients: make(map[string]*wsClient),
	}
}

// HandleWebSocket upgrades the connection, pushes a bootstrap snapshot and
// serves the command protocol until the client disconnects.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		id:   uuid.New().String(),
		conn: ws,
		send: make(chan WSMessage, sendChanSize),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	fmt.Printf("[WebSocket] Client %s connected (%d total)\n", client.id[:8], h.ClientCount())

	go client.writePump()

	// Bootstrap: current state so the client can render immediately.
	client.enqueue(WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})
	client.enqueue(h.message(MsgTypePortsUpdate, h.mgr.AvailablePorts()))
	client.enqueue(h.message(MsgTypeHistoryUpdate, h.mgr.History()))

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WebSocket] Client %s connection error: %v\n", client.id[:8], err)
			}
			break
		}
		h.dispatch(client, msg)
	}

	h.mu.Lock()
	delete(h.clients, client.id)
	close(client.send)
	h.mu.Unlock()

	ws.Close()
	fmt.Printf("[WebSocket] Client %s disconnected\n", client.id[:8])
	return nil
}

// dispatch handles one inbound command on the client's read goroutine.
func (h *Hub) dispatch(client *wsClient, msg WSMessage) {
	var cmd portCommandPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			client.enqueue(h.message(MsgTypeError, map[string]string{"message": "invalid payload: " + err.Error()}))
			return
		}
	}

	switch msg.Type {
	case MsgTypePing:
		client.enqueue(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
	case MsgTypeStartPort:
		success := h.mgr.StartPort(cmd.Port)
		client.enqueue(h.message(MsgTypePortStartResult, portResultPayload{Port: cmd.Port, Success: success}))
	case MsgTypeStopPort:
		success := h.mgr.StopPort(cmd.Port)
		client.enqueue(h.message(MsgTypePortStopResult, portResultPayload{Port: cmd.Port, Success: success}))
	case MsgTypeSendData:
		success := h.mgr.Send(cmd.Port, cmd.Data)
		client.enqueue(h.message(MsgTypeSendResult, portResultPayload{Port: cmd.Port, Success: success, Data: cmd.Data}))
	case MsgTypeClearData:
		h.mgr.ClearPort(cmd.Port)
	case MsgTypeRequestPortData:
		client.enqueue(h.message(MsgTypePortData, portDataPayload{Port: cmd.Port, Data: h.mgr.Entries(cmd.Port)}))
	case MsgTypeRequestPorts:
		client.enqueue(h.message(MsgTypePortsUpdate, h.mgr.AvailablePorts()))
	case MsgTypeUpdatePortName:
		h.mgr.UpdatePortName(cmd.Port, cmd.Name)
		client.enqueue(h.message(string(event.TypePortNameUpdated), portResultPayload{Port: cmd.Port, Name: cmd.Name, Success: true}))
	default:
		client.enqueue(h.message(MsgTypeError, map[string]string{"message": "unknown message type: " + msg.Type}))
	}
}

// HandleEvent implements event.Observer: every state change is fanned out
// to all connected clients. Raw bytes from data_sent are never forwarded;
// remote clients only receive the canonical text form.
func (h *Hub) HandleEvent(ev event.Event) {
	switch ev.Type {
	case event.TypePortStarted:
		cfg := models.DefaultPortConfig()
		if ev.Config != nil {
			cfg = *ev.Config
		}
		h.broadcast(h.message(string(ev.Type), portConfigPayload{Port: ev.Port, Config: cfg}))
		h.broadcast(h.message(MsgTypePortsUpdate, h.mgr.AvailablePorts()))
	case event.TypePortStopped:
		h.broadcast(h.message(string(ev.Type), portCommandPayload{Port: ev.Port}))
		h.broadcast(h.message(MsgTypePortsUpdate, h.mgr.AvailablePorts()))
	case event.TypeDataReceived:
		if ev.Entry == nil {
			return
		}
		h.broadcast(h.message(string(ev.Type), portEntryPayload{Port: ev.Port, Entry: *ev.Entry, Display: ev.Entry.Display()}))
	case event.TypeDataSent:
		h.broadcast(h.message(string(ev.Type), portResultPayload{Port: ev.Port, Success: true, Data: ev.Data}))
	case event.TypeDataCleared:
		h.broadcast(h.message(string(ev.Type), portCommandPayload{Port: ev.Port}))
	case event.TypeHistoryUpdated:
		h.broadcast(h.message(MsgTypeHistoryUpdate, ev.History))
	case event.TypeSettingsUpdated:
		cfg := models.DefaultPortConfig()
		if ev.Config != nil {
			cfg = *ev.Config
		}
		h.broadcast(h.message(string(ev.Type), portConfigPayload{Port: ev.Port, Config: cfg}))
		h.broadcast(h.message(MsgTypePortsUpdate, h.mgr.AvailablePorts()))
	case event.TypePortNameUpdated:
		h.broadcast(h.message(string(ev.Type), portResultPayload{Port: ev.Port, Name: ev.Name, Success: true}))
		h.broadcast(h.message(MsgTypePortsUpdate, h.mgr.AvailablePorts()))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast enqueues msg for every client. A full queue drops the message
// for that client only; one slow consumer never blocks the publisher or
// its peers.
func (h *Hub) broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			fmt.Printf("[WebSocket] Client %s queue full, dropping %s\n", client.id[:8], msg.Type)
		}
	}
}

// enqueue queues a message for one client, dropping on a full queue.
func (c *wsClient) enqueue(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		fmt.Printf("[WebSocket] Client %s queue full, dropping %s\n", c.id[:8], msg.Type)
	}
}

// writePump is the only goroutine writing to the connection. It exits when
// the send channel is closed on disconnect.
func (c *wsClient) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			fmt.Printf("[WebSocket] Write to client %s failed: %v\n", c.id[:8], err)
			return
		}
	}
}

// message wraps a payload in the envelope.
func (h *Hub) message(msgType string, payload interface{}) WSMessage {
	return WSMessage{
		Type:      msgType,
		Payload:   mustJSON(payload),
		Timestamp: time.Now().UnixMilli(),
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
