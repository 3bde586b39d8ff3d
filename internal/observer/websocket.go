package observer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Controller is the subset of the Execution Registry the websocket handler
// needs to forward inbound pause/resume/cancel commands (spec §4.7's
// bidirectional channel); kept as a narrow interface here so this package
// never imports internal/registry.
type Controller interface {
	SendControl(executionID, command string) error
}

// wsCommand is an inbound client message.
type wsCommand struct {
	Action      string `json:"action"`
	ExecutionID string `json:"execution_id"`
}

// wsAck is sent back for every inbound command.
type wsAck struct {
	Action  string `json:"action"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Handler upgrades an HTTP request to a websocket connection, subscribes it
// to one execution's event stream, and relays inbound control commands.
// Grounded on the teacher's internal/infrastructure/websocket
// handler.go/client.go pair, trimmed to this engine's single
// execution_id subscription (no multi-topic subscribe/unsubscribe
// protocol, since each connection targets exactly one run per spec §6).
type Handler struct {
	hub        *Hub
	controller Controller
	log        *slog.Logger
}

// NewHandler builds a websocket Handler.
func NewHandler(hub *Hub, controller Controller, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{hub: hub, controller: controller, log: log}
}

// ServeWS implements the SUBSCRIBE events endpoint (spec §6): it expects an
// execution_id path/query parameter, upgrades the connection, and pumps
// events to the client until it disconnects.
func (h *Handler) ServeWS(c *gin.Context) {
	executionID := c.Param("id")
	if executionID == "" {
		executionID = c.Query("execution_id")
	}
	if executionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "execution_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err, "remote_addr", c.Request.RemoteAddr)
		return
	}

	queue, unsubscribe := h.hub.Subscribe(executionID)
	defer unsubscribe()

	done := make(chan struct{})
	go h.writePump(conn, queue, done)
	h.readPump(conn, executionID, done)
}

// writePump drains the subscriber's queue and forwards it to the client,
// pinging on an idle period to keep the connection alive.
func (h *Handler) writePump(conn *websocket.Conn, queue *eventQueue, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case <-queue.wake:
			for _, e := range queue.drain() {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(e); err != nil {
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound control commands until the client disconnects.
func (h *Handler) readPump(conn *websocket.Conn, executionID string, done chan struct{}) {
	defer close(done)
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket unexpected close", "execution_id", executionID, "error", err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			h.sendAck(conn, wsAck{Action: "error", OK: false, Message: "invalid command format"})
			continue
		}
		cmd.ExecutionID = executionID

		if h.controller == nil {
			h.sendAck(conn, wsAck{Action: cmd.Action, OK: false, Message: "control channel unavailable"})
			continue
		}
		if err := h.controller.SendControl(cmd.ExecutionID, cmd.Action); err != nil {
			h.sendAck(conn, wsAck{Action: cmd.Action, OK: false, Message: err.Error()})
			continue
		}
		h.sendAck(conn, wsAck{Action: cmd.Action, OK: true})
	}
}

func (h *Handler) sendAck(conn *websocket.Conn, ack wsAck) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(ack)
}
