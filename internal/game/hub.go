package game

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one websocket subscriber. Messages are written by a single
// goroutine from a buffered queue, so every client sees events in emit order.
type Client struct {
	conn   Conn
	userID string
	send   chan []byte
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func (c *Client) UserID() string { return c.userID }

// Send queues data for this client only. It reports false if the client is
// gone or too slow to keep up.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendJSON marshals and queues message.
func (c *Client) SendJSON(message interface{}) bool {
	data, err := json.Marshal(message)
	if err != nil {
		slog.Error("marshal client message", "component", "hub", "error", err)
		return false
	}
	return c.Send(data)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Done is closed once the writer has stopped and closed the connection.
// The connection must stay valid until then.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) writePump() {
	defer close(c.done)
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("websocket write failed", "component", "hub", "user_id", c.userID, "error", err)
			return
		}
	}
}

// Hub fans events out to every connected client. It implements Emitter.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan interface{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan interface{}, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        slog.Default().With("component", "hub"),
	}
}

// Run is the hub loop; it closes every client when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", "user_id", client.userID, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.log.Info("client disconnected", "user_id", client.userID, "total", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			jsonMessage, err := json.Marshal(message)
			if err != nil {
				h.log.Error("marshal broadcast", "error", err)
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				if !client.Send(jsonMessage) {
					// too slow to keep the event order; drop it
					delete(h.clients, client)
					client.close()
					h.log.Warn("dropped slow client", "user_id", client.userID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Emit broadcasts a named event.
func (h *Hub) Emit(event string, payload any) {
	h.Broadcast(WSMessage{Type: event, Data: payload})
}

func (h *Hub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("broadcast channel full, dropping message")
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient starts the client's writer and hands it to the hub loop.
// Any initial messages are queued before the client can see a broadcast.
func (h *Hub) RegisterClient(conn Conn, userID string, initial ...interface{}) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
	}
	for _, msg := range initial {
		client.SendJSON(msg)
	}
	go client.writePump()

	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
	return client
}

// UnregisterClient removes the client and blocks until its writer has
// released the connection, so the caller may reuse or free conn afterwards.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
	// a client dropped earlier is no longer in the hub's map
	client.close()
	<-client.done
}
