// Package realtime owns the multiplexed websocket connection to the
// server: reconnect with backoff, per-trace subscription restore, and
// dispatch of inbound envelopes to registered handlers.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/protocol"
)

// Status is the connection state of the transport.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Wildcard registers a handler for every envelope type.
const Wildcard = "*"

// Handler consumes one inbound envelope. Handlers run on the read
// goroutine and must not block.
type Handler func(protocol.Envelope)

// TokenSource supplies the bearer token for the websocket handshake.
// A nil source connects unauthenticated.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
}

const (
	defaultReconnectDelay = 3 * time.Second
	dialTimeout           = 10 * time.Second
)

// Transport is a reconnecting subscription-multiplexed websocket client.
// The set of desired subscriptions is owned by the Transport, not by any
// single connection: connections are disposable, subscriptions are not.
type Transport struct {
	url    string
	tokens TokenSource

	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	mu            sync.Mutex
	status        Status
	conn          *websocket.Conn
	subs          map[string]bool
	handlers      map[string]map[int]Handler
	statusWatch   map[int]func(Status)
	nextHandlerID int
	cancel        context.CancelFunc
	closed        bool

	// wmu serializes writes; gorilla connections allow one writer.
	wmu sync.Mutex
}

// NewTransport creates a transport for the given websocket URL.
func NewTransport(url string, tokens TokenSource) *Transport {
	return &Transport{
		url:            url,
		tokens:         tokens,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: defaultReconnectDelay,
		status:         StatusDisconnected,
		subs:           make(map[string]bool),
		handlers:       make(map[string]map[int]Handler),
		statusWatch:    make(map[int]func(Status)),
	}
}

// Status returns the current connection status.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Connect starts the connection loop. Calling Connect on a running
// transport is a no-op; calling it after Disconnect clears the
// do-not-reconnect flag and starts over.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	t.closed = false
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx)
}

// Disconnect tears the connection down and prevents reconnects until
// the next Connect. Any pending backoff timer is cancelled.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.closed = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	t.setStatus(StatusDisconnected)
}

// Subscribe marks traceID as part of the desired working set and, if
// connected, sends the subscribe command immediately. The subscription
// is re-issued automatically after every reconnect.
func (t *Transport) Subscribe(traceID string) {
	t.mu.Lock()
	t.subs[traceID] = true
	connected := t.status == StatusConnected
	t.mu.Unlock()

	if connected {
		t.Send(protocol.Command{Action: protocol.ActionSubscribe, TraceID: traceID})
	}
}

// Unsubscribe removes traceID from the working set.
func (t *Transport) Unsubscribe(traceID string) {
	t.mu.Lock()
	delete(t.subs, traceID)
	connected := t.status == StatusConnected
	t.mu.Unlock()

	if connected {
		t.Send(protocol.Command{Action: protocol.ActionUnsubscribe, TraceID: traceID})
	}
}

// Subscriptions returns the active subscription set.
func (t *Transport) Subscriptions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subs))
	for id := range t.subs {
		out = append(out, id)
	}
	return out
}

// Send writes v as JSON to the live connection. While disconnected it
// silently drops the message: commands that must survive a disconnect
// belong on the request gateway, not this channel.
func (t *Transport) Send(v any) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}

	t.wmu.Lock()
	err := conn.WriteJSON(v)
	t.wmu.Unlock()
	if err != nil {
		log.Printf("realtime: write failed: %v", err)
	}
}

// On registers a handler for envelopes of the given type (or Wildcard).
// The returned closure unregisters it and is safe to call during
// dispatch.
func (t *Transport) On(msgType string, h Handler) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextHandlerID
	t.nextHandlerID++
	if t.handlers[msgType] == nil {
		t.handlers[msgType] = make(map[int]Handler)
	}
	t.handlers[msgType][id] = h
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers[msgType], id)
	}
}

// OnStatus registers a connection status observer.
func (t *Transport) OnStatus(fn func(Status)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextHandlerID
	t.nextHandlerID++
	t.statusWatch[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.statusWatch, id)
	}
}

// run is the connection loop: dial, restore subscriptions, read until
// failure, back off, repeat. It exits when ctx is cancelled.
func (t *Transport) run(ctx context.Context) {
	for {
		t.setStatus(StatusConnecting)

		conn, err := t.dial(ctx)
		if err != nil {
			t.setStatus(StatusDisconnected)
			if ctx.Err() != nil {
				return
			}
			log.Printf("realtime: connect failed: %v", err)
		} else {
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				conn.Close()
				return
			}
			t.conn = conn
			t.mu.Unlock()
			t.setStatus(StatusConnected)

			// Per-connection subscription state died with the previous
			// connection; restore the working set before reading.
			t.resubscribe()

			t.readLoop(conn)

			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			conn.Close()
			t.setStatus(StatusDisconnected)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.reconnectDelay):
		}
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	if t.tokens != nil {
		token, err := t.tokens.ValidToken(dialCtx)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := t.dialer.DialContext(dialCtx, t.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (t *Transport) resubscribe() {
	for _, traceID := range t.Subscriptions() {
		t.Send(protocol.Command{Action: protocol.ActionSubscribe, TraceID: traceID})
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("realtime: read failed: %v", err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			// One bad message must not take down the connection.
			continue
		}
		t.dispatch(env)
	}
}

// dispatch calls every handler registered for the envelope's type plus
// the wildcard handlers, iterating over a snapshot so handlers may
// register or unregister during dispatch.
func (t *Transport) dispatch(env protocol.Envelope) {
	t.mu.Lock()
	snapshot := make([]Handler, 0, len(t.handlers[env.Type])+len(t.handlers[Wildcard]))
	for _, h := range t.handlers[env.Type] {
		snapshot = append(snapshot, h)
	}
	for _, h := range t.handlers[Wildcard] {
		snapshot = append(snapshot, h)
	}
	t.mu.Unlock()

	for _, h := range snapshot {
		h(env)
	}
}

func (t *Transport) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	watchers := make([]func(Status), 0, len(t.statusWatch))
	for _, fn := range t.statusWatch {
		watchers = append(watchers, fn)
	}
	t.mu.Unlock()

	for _, fn := range watchers {
		fn(s)
	}
}
