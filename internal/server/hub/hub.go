// Package hub manages the server side of the realtime channel: the set
// of websocket connections and their per-trace subscriptions.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection is a single websocket connection.
type Connection struct {
	ID      string
	Subject string
	Conn    *websocket.Conn
	Send    chan []byte

	mu sync.Mutex
}

// WriteMessage writes to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// traceMessage is a broadcast addressed to one trace's subscribers.
type traceMessage struct {
	TraceID string
	Data    []byte
}

// Hub tracks connections and trace subscriptions.
type Hub struct {
	connections map[string]*Connection
	// traceSubs maps trace_id to the set of subscribed connection IDs.
	traceSubs map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *traceMessage

	mu sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		traceSubs:   make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *traceMessage, 256),
	}
}

// Run is the hub's main loop; run it as a goroutine. It returns when
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			log.Printf("hub: connection registered: %s (subject: %s)", conn.ID, conn.Subject)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				for traceID := range h.traceSubs {
					delete(h.traceSubs[traceID], conn.ID)
					if len(h.traceSubs[traceID]) == 0 {
						delete(h.traceSubs, traceID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("hub: connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.traceSubs[msg.TraceID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					log.Printf("hub: connection %s buffer full, closing", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection wraps a websocket connection for registration.
func (h *Hub) NewConnection(ws *websocket.Conn, subject string) *Connection {
	return &Connection{
		ID:      uuid.New().String(),
		Subject: subject,
		Conn:    ws,
		Send:    make(chan []byte, 256),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection and all its subscriptions.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Subscribe adds conn to traceID's subscriber set.
func (h *Hub) Subscribe(conn *Connection, traceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.traceSubs[traceID] == nil {
		h.traceSubs[traceID] = make(map[string]bool)
	}
	h.traceSubs[traceID][conn.ID] = true
}

// Unsubscribe removes conn from traceID's subscriber set.
func (h *Hub) Unsubscribe(conn *Connection, traceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.traceSubs[traceID] != nil {
		delete(h.traceSubs[traceID], conn.ID)
		if len(h.traceSubs[traceID]) == 0 {
			delete(h.traceSubs, traceID)
		}
	}
}

// BroadcastJSON sends v to every subscriber of traceID.
func (h *Hub) BroadcastJSON(traceID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.broadcast <- &traceMessage{TraceID: traceID, Data: data}
	return nil
}

// SendJSON sends v to a single connection.
func (h *Hub) SendJSON(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SubscriberCount returns the number of subscribers for a trace.
func (h *Hub) SubscriberCount(traceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.traceSubs[traceID])
}
