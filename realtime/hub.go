// Package realtime pushes notifications to connected websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

// UserRoom is the room every connection of a user joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	room   string
	closed bool
	mu     sync.Mutex
}

func NewClient(hub *Hub, conn *websocket.Conn, room string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		room: room,
	}
}

// Hub tracks clients by room. Registration is served by Run; once Run has
// returned, Join and unregister no longer block.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	rooms  map[string]map[*Client]bool
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Join registers c. It returns false when the hub is stopped; the caller
// owns the connection then.
func (h *Hub) Join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[c.room]; !ok {
		h.rooms[c.room] = make(map[*Client]bool)
	}
	h.rooms[c.room][c] = true
	h.logger.Debug("websocket client registered", slog.String("room", c.room), slog.Int("clients", len(h.rooms[c.room])))
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.room]
	if !ok || !clients[c] {
		return
	}
	c.close()
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
	h.logger.Debug("websocket client unregistered", slog.String("room", c.room))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.rooms {
		for c := range clients {
			c.close()
		}
		delete(h.rooms, room)
	}
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastToRoom sends message to every client of room. Slow clients with a
// full buffer miss the message.
func (h *Hub) BroadcastToRoom(room string, message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.rooms[room]
	if !ok {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", slog.String("room", room), slog.Any("error", err))
		return
	}
	for c := range clients {
		c.mu.Lock()
		if !c.closed {
			select {
			case c.send <- data:
			default:
				h.logger.Warn("websocket send buffer full, message dropped", slog.String("room", room))
			}
		}
		c.mu.Unlock()
	}
}

// PublishToUser wraps payload into a Message and sends it to the user's room.
func (h *Hub) PublishToUser(userID, messageType string, payload interface{}) {
	room := UserRoom(userID)
	h.BroadcastToRoom(room, Message{Type: messageType, Payload: payload, RoomID: room})
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

// ReadPump drains incoming frames; clients are not expected to send anything
// besides pongs.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", slog.String("room", c.room), slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write failed", slog.String("room", c.room), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
