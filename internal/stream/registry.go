package stream

import (
	"context"
	"encoding/json"
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry keeps at most one live connection per client.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*ws.Conn)} }

// Replace sets the connection for a client and closes the previous one if present.
func (r *Registry) Replace(clientID string, c *ws.Conn) (prevClosed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[clientID]; ok && old != nil && old != c {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	r.conns[clientID] = c
	return
}

func (r *Registry) Get(clientID string) *ws.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[clientID]
}

// Remove drops the client's entry only while it still points at c, so a
// replaced connection shutting down does not evict its successor.
func (r *Registry) Remove(clientID string, c *ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[clientID] == c {
		delete(r.conns, clientID)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// SendJSON writes v to the client's connection, if any.
func (r *Registry) SendJSON(ctx context.Context, clientID string, v any) error {
	c := r.Get(clientID)
	if c == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Write(ctx, ws.MessageText, b)
}
