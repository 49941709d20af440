package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/threadline/threadline/internal/event"
	"github.com/threadline/threadline/internal/threads"
)

const (
	writeWait      = 10 * time.Second
	sendBuffer     = 32
	maxMessageSize = 1024
)

// Frame is the wire payload pushed to connected clients.
type Frame struct {
	Type    string           `json:"type"`
	Message *threads.Message `json:"message,omitempty"`
}

// Hub relays message-created events to websocket clients subscribed to a
// thread. Delivery is best effort: a slow client is disconnected rather
// than allowed to block the rest.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan Frame
}

// NewHub creates a Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: map[string]map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
		},
		logger: log.With(slog.String("service", "broadcast")),
	}
}

// Attach subscribes the hub to message-created events.
func (h *Hub) Attach(hub *event.Hub) {
	hub.Subscribe(func(ev event.Event) {
		if ev.Type != event.TypeMessageCreated {
			return
		}
		payload, ok := ev.Data.(threads.NewMessageEvent)
		if !ok {
			return
		}
		h.Broadcast(payload.Thread.ID, Frame{Type: "message.created", Message: &payload.Message})
	})
}

// Serve upgrades the request and streams thread frames until the client
// disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, threadID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan Frame, sendBuffer)}
	h.join(threadID, c)
	go h.writeLoop(threadID, c)
	go h.readLoop(threadID, c)
	return nil
}

// Broadcast pushes a frame to every client on the thread.
func (h *Hub) Broadcast(threadID string, frame Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[threadID] {
		select {
		case c.send <- frame:
		default:
			// Slow consumer; drop the frame and let the write loop
			// close the connection on the next stall.
		}
	}
}

// ClientCount returns the number of clients on a thread.
func (h *Hub) ClientCount(threadID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[threadID])
}

func (h *Hub) join(threadID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[threadID] == nil {
		h.clients[threadID] = map[*client]struct{}{}
	}
	h.clients[threadID][c] = struct{}{}
}

func (h *Hub) leave(threadID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[threadID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, threadID)
		}
	}
}

func (h *Hub) writeLoop(threadID string, c *client) {
	defer func() {
		h.leave(threadID, c)
		c.conn.Close()
	}()
	for frame := range c.send {
		data, err := json.Marshal(frame)
		if err != nil {
			h.logger.Warn("marshal broadcast frame failed", slog.Any("error", err))
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readLoop discards inbound frames; the socket is one-way. It exists to
// detect disconnects.
func (h *Hub) readLoop(threadID string, c *client) {
	defer func() {
		h.leave(threadID, c)
		close(c.send)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
