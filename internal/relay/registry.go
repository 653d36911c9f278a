package relay

import (
	"sync"

	"github.com/neetil/vibe/internal/protocol"
	"github.com/neetil/vibe/internal/util"
)

// Registry tracks every currently connected participant. It is the
// single source of truth for "is this id still reachable": anything
// removed here can no longer receive messages, full stop.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Admit registers a connected client under its id.
func (r *Registry) Admit(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Remove deregisters id. Returns the removed client, or nil if the id
// was not registered. The caller is responsible for tearing down the
// client's pairing state afterwards.
func (r *Registry) Remove(id string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.clients[id]
	delete(r.clients, id)
	return c
}

// Send enqueues msg on id's outbound channel. Returns false when the id
// is unknown or the client's buffer is full; in both cases the message
// is dropped, which is the expected best-effort behavior under churn.
func (r *Registry) Send(id string, msg *protocol.Message) bool {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		util.LogWarning("registry: outbound buffer full for %s, dropping %s", id, msg.Type)
		return false
	}
}

// Len returns the number of connected participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
