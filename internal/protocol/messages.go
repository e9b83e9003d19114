// Package protocol defines the realtime channel message shapes between
// the dashboard client and the server.
package protocol

import "encoding/json"

// Actions from client to server.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Envelope types from server to client.
const (
	TypeConnected    = "connected"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
	TypeError        = "error"

	TypeSpanCreated  = "span_created"
	TypeSpanUpdated  = "span_updated"
	TypeTraceUpdated = "trace_updated"
	TypeStateChange  = "state_change"
)

// Command is a client-to-server control message.
type Command struct {
	Action  string `json:"action"`
	TraceID string `json:"trace_id,omitempty"`
}

// Envelope is the discriminated-union message carried on the realtime
// channel from server to client. Fields are populated per Type.
type Envelope struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	// Data carries the span payload for span_created/span_updated and
	// the trace payload for trace_updated.
	Data json.RawMessage `json:"data,omitempty"`

	// ControlStatus and State are populated for state_change.
	ControlStatus string          `json:"control_status,omitempty"`
	State         json.RawMessage `json:"state,omitempty"`

	// Message is populated for connected and error envelopes.
	Message string `json:"message,omitempty"`
}
