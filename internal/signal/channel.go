// Package signal maintains a participant's WebSocket to the relay:
// serialized writes, a read-dispatch loop, and automatic reconnection
// with join replay after transport loss.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/vidmesh/vidmesh/internal/protocol"
	"github.com/vidmesh/vidmesh/internal/util"
)

// ErrNotConnected is returned by Send while the channel is down. Callers
// that must not lose a message retry after reconnection.
var ErrNotConnected = errors.New("signaling channel not connected")

// Channel is the client side of the signaling link.
type Channel struct {
	url string

	mu        sync.Mutex
	ws        *websocket.Conn
	connected atomic.Bool

	handlerMu sync.RWMutex
	handler   func(*protocol.Message)

	joinMu sync.Mutex
	join   *protocol.Join // pending room membership, replayed on reconnect
}

// NewChannel creates a channel targeting the relay's /ws URL. Run must be
// called to actually connect.
func NewChannel(url string) *Channel {
	return &Channel{url: url}
}

// OnMessage registers the inbound dispatch callback. Register before Run.
func (c *Channel) OnMessage(fn func(*protocol.Message)) {
	c.handlerMu.Lock()
	c.handler = fn
	c.handlerMu.Unlock()
}

// Connected reports whether the WebSocket is currently up.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Send writes a message to the relay, guarded by a mutex.
func (c *Channel) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteJSON(msg)
}

// Join sends a join request and records it so that a reconnect replays it.
// The registry's join is idempotent, so replay is safe.
func (c *Channel) Join(sessionID, displayName string, isHost bool) error {
	j := &protocol.Join{SessionID: sessionID, DisplayName: displayName, IsHost: isHost}
	c.joinMu.Lock()
	c.join = j
	c.joinMu.Unlock()
	return c.Send(&protocol.Message{Kind: protocol.KindJoin, Join: j})
}

// Leave clears the recorded membership and drops the transport; the relay
// notices the close and removes us from the session.
func (c *Channel) Leave() {
	c.joinMu.Lock()
	c.join = nil
	c.joinMu.Unlock()

	c.mu.Lock()
	if c.ws != nil {
		c.ws.Close()
	}
	c.mu.Unlock()
}

// Run drives the connect / read / reconnect cycle until ctx is cancelled.
// Transport loss is never fatal: the channel retries indefinitely with
// randomized backoff (base ~1s, cap ~5s). Peer connections are left alone
// here — media can outlive brief signaling interruptions.
func (c *Channel) Run(ctx context.Context) error {
	for {
		ws, err := c.dial(ctx)
		if err != nil {
			return err // only on ctx cancellation
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.connected.Store(true)
		util.LogInfo("signaling channel connected")

		c.replayJoin()
		c.readLoop(ctx, ws)

		c.connected.Store(false)
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		util.LogWarning("signaling channel lost, reconnecting")
	}
}

// dial connects with infinite randomized exponential backoff.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0 // retry forever

	var ws *websocket.Conn
	err := backoff.Retry(func() error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			util.LogDebug("dial %s failed: %v", c.url, err)
			return err
		}
		ws = conn
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return ws, nil
}

// replayJoin re-enters the room we believed ourselves a member of.
func (c *Channel) replayJoin() {
	c.joinMu.Lock()
	j := c.join
	c.joinMu.Unlock()
	if j == nil {
		return
	}
	if err := c.Send(&protocol.Message{Kind: protocol.KindJoin, Join: j}); err != nil {
		util.LogWarning("join replay failed: %v", err)
	}
}

// readLoop dispatches inbound messages until the socket errors out.
func (c *Channel) readLoop(ctx context.Context, ws *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		var msg protocol.Message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		c.handlerMu.RLock()
		fn := c.handler
		c.handlerMu.RUnlock()
		if fn != nil {
			fn(&msg)
		}
	}
}
