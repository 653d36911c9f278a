package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/neetil/vibe/internal/protocol"
)

// Link is the client's persistent connection to the relay. Writes are
// serialized with a mutex; reads happen on a single loop owned by the
// caller.
type Link struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial connects to the relay's WebSocket endpoint, e.g.
// wss://example.com/ws.
func Dial(ctx context.Context, url string) (*Link, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return &Link{conn: conn}, nil
}

// Send writes a message to the relay, guarded by a mutex.
func (l *Link) Send(msg *protocol.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteJSON(msg)
}

// ReadLoop delivers every inbound message to handle until the
// connection dies, then returns the read error. A closed connection is
// the normal way out.
func (l *Link) ReadLoop(handle func(*protocol.Message)) error {
	for {
		var msg protocol.Message
		if err := l.conn.ReadJSON(&msg); err != nil {
			return err
		}
		handle(&msg)
	}
}

// Close closes the underlying connection, which also unblocks ReadLoop.
func (l *Link) Close() error {
	return l.conn.Close()
}
