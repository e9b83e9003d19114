package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/protocol"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/auth"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard may be served from any origin in dev.
		return true
	},
}

// HandleWebSocket upgrades the connection and runs the subscription
// protocol. Auth happens before the upgrade, from the Authorization
// header the client sets on the dial.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	subject := "dev-user"
	if h.cfg.RequireAuth {
		token := bearerToken(c.Request().Header.Get("Authorization"))
		if token == "" {
			return detail(c, http.StatusUnauthorized, "Missing Authorization header")
		}
		var err error
		subject, err = h.issuer.Verify(token, auth.TypeAccess)
		if err != nil {
			return detail(c, http.StatusUnauthorized, "Invalid or expired token")
		}
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return err
	}

	conn := h.hub.NewConnection(ws, subject)
	h.hub.Register(conn)

	ws.SetReadLimit(h.cfg.MaxMessageSize)

	go h.writePump(conn)
	go h.readPump(conn)

	h.hub.SendJSON(conn, protocol.Envelope{
		Type:    protocol.TypeConnected,
		Message: "connected",
	})
	return nil
}

// readPump reads commands from the client until the connection drops.
func (h *Handler) readPump(conn *hub.Connection) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			break
		}
		// Any client traffic counts as liveness.
		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		h.handleCommand(conn, message)
	}
}

// writePump drains the send buffer and keeps the connection alive with
// pings.
func (h *Handler) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("ws: write failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand dispatches one client command.
func (h *Handler) handleCommand(conn *hub.Connection, data []byte) {
	var cmd protocol.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.sendError(conn, "Invalid JSON message")
		return
	}

	switch cmd.Action {
	case protocol.ActionSubscribe:
		if cmd.TraceID == "" {
			h.sendError(conn, "trace_id is required")
			return
		}
		h.hub.Subscribe(conn, cmd.TraceID)
		h.hub.SendJSON(conn, protocol.Envelope{
			Type:    protocol.TypeSubscribed,
			TraceID: cmd.TraceID,
		})

	case protocol.ActionUnsubscribe:
		if cmd.TraceID == "" {
			h.sendError(conn, "trace_id is required")
			return
		}
		h.hub.Unsubscribe(conn, cmd.TraceID)
		h.hub.SendJSON(conn, protocol.Envelope{
			Type:    protocol.TypeUnsubscribed,
			TraceID: cmd.TraceID,
		})

	case protocol.ActionPing:
		h.hub.SendJSON(conn, protocol.Envelope{Type: protocol.TypePong})

	default:
		h.sendError(conn, "unknown action: "+cmd.Action)
	}
}

func (h *Handler) sendError(conn *hub.Connection, message string) {
	h.hub.SendJSON(conn, protocol.Envelope{
		Type:    protocol.TypeError,
		Message: message,
	})
}
