package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// inboundMessage is the only frame a client may send. Anything else is ignored.
type inboundMessage struct {
	Type   string `json:"type"`
	UserID *int64 `json:"userId"`
}

// HandlerConfig configures the websocket endpoint.
type HandlerConfig struct {
	// CheckOrigin decides whether an upgrade is allowed; nil keeps the
	// same-origin default.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades HTTP requests to websocket connections registered with a Hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler returns an http.Handler for the realtime endpoint.
func NewHandler(hub *Hub, cfg HandlerConfig) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// ServeHTTP blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hub.mu.RLock()
	closed := h.hub.closed
	h.hub.mu.RUnlock()
	if closed {
		http.Error(w, "realtime unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.hub.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c, ok := h.hub.register(conn)
	if !ok {
		writeClose(conn, websocket.CloseGoingAway, "shutting down")
		_ = conn.Close()
		return
	}
	h.hub.logger.Info("realtime client connected", zap.Int64("connection_id", c.id))

	go h.writeLoop(c)
	h.readLoop(c)

	h.hub.unregister(c)
	h.hub.logger.Info("realtime client disconnected", zap.Int64("connection_id", c.id))
}

func (h *Handler) readLoop(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.hub.logger.Debug("realtime read failed", zap.Int64("connection_id", c.id), zap.Error(err))
			}
			return
		}
		h.handleMessage(c, data)
	}
}

func (h *Handler) handleMessage(c *client, data []byte) {
	var message inboundMessage
	if err := json.Unmarshal(data, &message); err != nil {
		h.hub.logger.Warn("malformed realtime message", zap.Int64("connection_id", c.id), zap.Error(err))
		return
	}
	switch message.Type {
	case "":
		h.hub.logger.Warn("realtime message missing type", zap.Int64("connection_id", c.id))
	case messageTypeAuth:
		if message.UserID == nil || *message.UserID <= 0 {
			h.hub.logger.Debug("realtime auth without user id", zap.Int64("connection_id", c.id))
			return
		}
		c.authenticate(*message.UserID)
		h.hub.logger.Info("realtime client authenticated",
			zap.Int64("connection_id", c.id),
			zap.Int64("user_id", *message.UserID))
	default:
		h.hub.logger.Debug("ignoring realtime message", zap.Int64("connection_id", c.id), zap.String("type", message.Type))
	}
}

func (h *Handler) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.hub.logger.Debug("realtime write failed", zap.Int64("connection_id", c.id), zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeWait))
}
