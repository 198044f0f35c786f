package events

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Type names an inbox change.
type Type string

const (
	TypeInboxAdded   Type = "inbox.added"
	TypeInboxUpdated Type = "inbox.updated"
	TypeInboxRemoved Type = "inbox.removed"
	TypeInboxStatus  Type = "inbox.status"
)

// Event is the JSON message pushed to websocket subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	ThingUID  string    `json:"thing_uid"`
	Label     string    `json:"label,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType Type, thingUID, label, status string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ThingUID:  thingUID,
		Label:     label,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

const (
	clientBuffer = 32
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local network dashboards connect from arbitrary origins
	},
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans inbox events out to websocket subscribers.
type Hub struct {
	logger       *log.Logger
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:       logger,
		pingInterval: 30 * time.Second,
		clients:      make(map[*client]struct{}),
	}
}

// Publish delivers event to every subscriber. Subscribers whose buffer is full
// are disconnected rather than blocking the publisher.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			h.logger.Printf("[EVENTS] Dropping slow subscriber %s", c.conn.RemoteAddr())
			h.removeLocked(c)
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade failed - error already written to response
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Printf("[EVENTS] Subscriber connected %s", conn.RemoteAddr())
	go h.writeLoop(c)
	go h.readLoop(c)
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				h.logger.Printf("[EVENTS] Write failed: %v", err)
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop drains control frames and notices when the peer goes away.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
