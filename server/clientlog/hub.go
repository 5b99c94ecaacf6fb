package clientlog

import (
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// clientBuffer is how many messages may queue per session before new ones are dropped
const clientBuffer = 64

type client struct {
	messages chan protocol.LogMessageParams
	done     chan struct{}
}

// Hub delivers log messages to registered LSP sessions.
// Each session drains its own queue, so a slow editor never blocks logging.
type Hub struct {
	clients map[string]*client
	mu      sync.RWMutex
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
	}
}

// Register starts forwarding to the session id through notify.
// Registering an id again replaces the previous notify func.
func (h *Hub) Register(id string, notify glsp.NotifyFunc) {
	c := &client{
		messages: make(chan protocol.LogMessageParams, clientBuffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.clients[id]; ok {
		close(old.messages)
	}
	h.clients[id] = c
	h.mu.Unlock()

	go func() {
		defer close(c.done)
		for msg := range c.messages {
			params := msg
			notify(protocol.ServerWindowLogMessage, &params)
		}
	}()
}

// Unregister stops forwarding to the session id and waits for its queue to drain
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.messages)
	}
	h.mu.Unlock()

	if ok {
		<-c.done
	}
}

// Send queues msg for the session connID, or for every session when connID
// is empty. Messages for an unregistered connID or a full queue are dropped.
func (h *Hub) Send(connID string, msg protocol.LogMessageParams) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, ok := h.clients[connID]; ok {
		offer(c, msg)
		return
	}
	if connID != "" {
		// entry from a session that never registered
		return
	}
	for _, c := range h.clients {
		offer(c, msg)
	}
}

func offer(c *client, msg protocol.LogMessageParams) {
	select {
	case c.messages <- msg:
	default:
	}
}

// ClientCount returns the number of registered sessions
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
