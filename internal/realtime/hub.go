package realtime

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	messageTypeAuth   = "auth"
	defaultBufferSize = 16
	timestampLayout   = "2006-01-02T15:04:05.000Z07:00"
)

// Event is the envelope pushed to every connection.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// ConnectionState tracks a connection through its lifecycle.
type ConnectionState int

const (
	StateConnected ConnectionState = iota
	StateAuthenticated
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectionInfo is a snapshot of one registry entry.
type ConnectionInfo struct {
	ID     int64
	UserID int64
	State  ConnectionState
}

// HubConfig configures a Hub.
type HubConfig struct {
	// BufferSize bounds the events queued per connection; overflow is dropped.
	BufferSize int
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Hub is the registry of open websocket connections and the broadcaster
// for note events. Delivery is best effort: a connection whose queue is full
// misses the event.
type Hub struct {
	mu         sync.RWMutex
	clients    map[int64]*client
	nextID     int64
	closed     bool
	bufferSize int
	clock      func() time.Time
	logger     *zap.Logger
}

// NewHub constructs an empty Hub.
func NewHub(cfg HubConfig) *Hub {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[int64]*client),
		bufferSize: bufferSize,
		clock:      clock,
		logger:     logger,
	}
}

// Publish broadcasts an event to every open connection. It satisfies the
// notes publisher contract and never fails the caller.
func (h *Hub) Publish(eventType string, data any) {
	delivered, err := h.Broadcast(eventType, data)
	if err != nil {
		h.logger.Error("realtime broadcast failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	h.logger.Debug("realtime event broadcast", zap.String("event", eventType), zap.Int("delivered", delivered))
}

// Broadcast serialises the envelope once and enqueues it on every open
// connection regardless of the identity it claimed. It returns the number of
// connections that accepted the event.
func (h *Hub) Broadcast(eventType string, data any) (int, error) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: h.clock().UTC().Format(timestampLayout),
	})
	if err != nil {
		return 0, fmt.Errorf("realtime: encode %s event: %w", eventType, err)
	}

	h.mu.RLock()
	recipients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range recipients {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		h.logger.Debug("realtime event dropped", zap.Int64("connection_id", c.id), zap.String("event", eventType))
	}
	return delivered, nil
}

// Connections returns a snapshot of the registry ordered by connection id.
func (h *Hub) Connections() []ConnectionInfo {
	h.mu.RLock()
	infos := make([]ConnectionInfo, 0, len(h.clients))
	for _, c := range h.clients {
		infos = append(infos, c.info())
	}
	h.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Close disconnects every connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[int64]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.logger.Info("realtime hub closed", zap.Int("connections", len(clients)))
}

func (h *Hub) register(conn *websocket.Conn) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.nextID++
	c := newClient(h.nextID, conn, h.bufferSize)
	h.clients[c.id] = c
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

type client struct {
	id   int64
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu        sync.RWMutex
	userID    int64
	state     ConnectionState
	closeOnce sync.Once
}

func newClient(id int64, conn *websocket.Conn, bufferSize int) *client {
	return &client{
		id:    id,
		conn:  conn,
		send:  make(chan []byte, bufferSize),
		done:  make(chan struct{}),
		state: StateConnected,
	}
}

func (c *client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) authenticate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.userID = userID
	c.state = StateAuthenticated
}

func (c *client) info() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionInfo{ID: c.id, UserID: c.userID, State: c.state}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
		writeClose(c.conn, websocket.CloseNormalClosure, "")
		_ = c.conn.Close()
	})
}
