// Package liveserver streams orchestration progress to websocket clients
package liveserver

import (
	"context"
	"sync"
)

// Client is one websocket subscriber
type Client struct {
	id     string
	runID  string // Only frames for this run are delivered when set
	send   chan Message
	mu     sync.Mutex
	closed bool
}

func NewClient(id string) *Client {
	return &Client{
		id:   id,
		send: make(chan Message, 256),
	}
}

// NewRunClient subscribes to the frames of a single run
func NewRunClient(id, runID string) *Client {
	c := NewClient(id)
	c.runID = runID
	return c
}

// Send queues msg without blocking. It reports false when the client is closed or its buffer is
// full. Frames for other runs are skipped and count as delivered.
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.runID != "" && msg.RunID != c.runID {
		return true
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) GetSendChan() <-chan Message {
	return c.send
}

// Close is idempotent
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Logger is the subset of core.ILogger the hub and server use
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Hub fans run events out to every registered client. New clients first receive the
// greeting, if one is set, so they can render the run in progress.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	greetMu  sync.RWMutex
	greeting func() (Message, bool)

	done   chan struct{}
	logger Logger
}

func NewHub(logger Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// SetGreeting installs the function producing the first message for each new client
func (h *Hub) SetGreeting(fn func() (Message, bool)) {
	h.greetMu.Lock()
	defer h.greetMu.Unlock()
	h.greeting = fn
}

func (h *Hub) greet(client *Client) {
	h.greetMu.RLock()
	fn := h.greeting
	h.greetMu.RUnlock()
	if fn == nil {
		return
	}
	if msg, ok := fn(); ok {
		client.Send(msg)
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.greet(client)
			if h.logger != nil {
				h.logger.Info("Client registered", "client_id", client.id, "total_clients", total)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Info("Client unregistered", "client_id", client.id, "total_clients", total)
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			clientList := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clientList = append(clientList, client)
			}
			h.mu.RUnlock()

			for _, client := range clientList {
				if !client.Send(message) {
					// slow or gone; drop it
					h.mu.Lock()
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						client.Close()
					}
					h.mu.Unlock()
				}
			}
		}
	}
}

// Register adds client. After the hub stops the client is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues msg for every client. Messages are dropped when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		if h.logger != nil {
			h.logger.Warn("Broadcast channel full, dropping message", "type", msg.Type, "run_id", msg.RunID)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
