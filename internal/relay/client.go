package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/neetil/vibe/internal/protocol"
	"github.com/neetil/vibe/internal/util"
)

const (
	sendBufferSize = 32

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // must be less than pongWait
)

// Client is one connected participant: the WebSocket connection plus a
// buffered outbound channel drained by its write pump.
//
// The send channel is never closed — a concurrent Registry.Send must
// not be able to hit a closed channel. Shutdown is signalled through
// done instead.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan *protocol.Message

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan *protocol.Message, sendBufferSize),
		done: make(chan struct{}),
	}
}

// close signals the write pump to exit and closes the connection.
// Safe to call multiple times.
func (c *Client) close() {
	c.doneOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads frames until the connection dies, dispatching each one
// to the matcher or the relay. It owns connection teardown: whatever
// ends the loop funnels into Server.drop exactly once.
func (c *Client) readPump(s *Server) {
	defer s.drop(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				util.LogDebug("relay: read error for %s: %v", c.ID, err)
			}
			return
		}

		switch {
		case msg.Type == protocol.MsgTypeFindPartner:
			s.matcher.RequestPartner(c.ID)
		case msg.Type == protocol.MsgTypeSkip:
			s.matcher.Skip(c.ID)
		case msg.Type.Relayable():
			s.relay.Forward(c.ID, &msg)
		default:
			util.LogWarning("relay: unknown message type %q from %s", msg.Type, c.ID)
		}
	}
}

// writePump drains the outbound channel onto the wire and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				util.LogDebug("relay: write error for %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
