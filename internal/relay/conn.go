package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vidmesh/vidmesh/internal/protocol"
	"github.com/vidmesh/vidmesh/internal/util"
)

const outboxSize = 64 // outbound message channel capacity per connection

// conn wraps one participant's WebSocket. All writes go through a single
// pump goroutine fed by the outbox channel, which both serializes writes
// and preserves per-recipient delivery order.
type conn struct {
	identity string
	ws       *websocket.Conn

	outbox chan *protocol.Message
	done   chan struct{}
	once   sync.Once

	writeTimeout time.Duration

	mu      sync.Mutex
	session string // session this connection has joined, "" before join
}

func newConn(identity string, ws *websocket.Conn, writeTimeout time.Duration) *conn {
	return &conn{
		identity:     identity,
		ws:           ws,
		outbox:       make(chan *protocol.Message, outboxSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Deliver enqueues msg for transmission. It never blocks: when the outbox
// is full or the connection is closing it reports false and the message is
// dropped, per the router's failure semantics.
func (c *conn) Deliver(msg *protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- msg:
		return true
	default:
		return false
	}
}

// pump is the single-writer goroutine draining the outbox.
func (c *conn) pump() {
	for {
		select {
		case msg := <-c.outbox:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				util.LogDebug("write to %s failed: %v", c.identity, err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close shuts the connection down. Safe to call multiple times.
func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *conn) setSession(id string) {
	c.mu.Lock()
	c.session = id
	c.mu.Unlock()
}

func (c *conn) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
