package signal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/vidmesh/vidmesh/internal/config"
	"github.com/vidmesh/vidmesh/internal/protocol"
	"github.com/vidmesh/vidmesh/internal/relay"
)

func TestSendWithoutConnectionReturnsSentinel(t *testing.T) {
	req := require.New(t)
	c := NewChannel("ws://127.0.0.1:1/ws")

	req.False(c.Connected())
	err := c.Send(&protocol.Message{Kind: protocol.KindChat})
	req.ErrorIs(err, ErrNotConnected)
}

// TestJoinRecordedBeforeConnectIsReplayed joins while the channel is still
// down; once Run connects, the membership must be replayed so the relay
// acks with a Joined message.
func TestJoinRecordedBeforeConnectIsReplayed(t *testing.T) {
	req := require.New(t)

	srv := relay.NewServer(config.Relay{WriteTimeout: 1000})
	port, err := srv.Start("127.0.0.1:0")
	req.NoError(err)
	defer srv.Close()

	c := NewChannel(wsURL(port))

	var mu sync.Mutex
	var inbound []*protocol.Message
	c.OnMessage(func(msg *protocol.Message) {
		mu.Lock()
		inbound = append(inbound, msg)
		mu.Unlock()
	})

	// The channel is down, so the immediate send fails, but the
	// membership is recorded for replay.
	err = c.Join("exam-1", "Alice", false)
	req.ErrorIs(err, ErrNotConnected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range inbound {
			if m.Kind == protocol.KindJoined && m.Joined != nil {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	req.True(c.Connected())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// TestReconnectReplaysJoin drops the first transport from the server side
// and verifies the channel reconnects and re-sends its join.
func TestReconnectReplaysJoin(t *testing.T) {
	req := require.New(t)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var accepts atomic.Int64
	joins := make(chan protocol.Message, 4)

	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := accepts.Add(1)

		var msg protocol.Message
		if err := ws.ReadJSON(&msg); err != nil {
			ws.Close()
			return
		}
		joins <- msg

		if n == 1 {
			// First transport dies right after the join.
			ws.Close()
			return
		}
		_ = ws.WriteJSON(&protocol.Message{
			Kind:   protocol.KindJoined,
			Joined: &protocol.Joined{Identity: "id-2"},
		})
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer httpSrv.Close()

	c := NewChannel("ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/")

	joined := make(chan struct{}, 1)
	c.OnMessage(func(msg *protocol.Message) {
		if msg.Kind == protocol.KindJoined {
			joined <- struct{}{}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	req.Eventually(c.Connected, 5*time.Second, 10*time.Millisecond)
	req.NoError(c.Join("exam-1", "Alice", true))

	for i := 0; i < 2; i++ {
		select {
		case msg := <-joins:
			req.Equal(protocol.KindJoin, msg.Kind)
			req.NotNil(msg.Join)
			req.Equal("exam-1", msg.Join.SessionID)
			req.Equal("Alice", msg.Join.DisplayName)
		case <-time.After(5 * time.Second):
			t.Fatalf("join %d never arrived", i+1)
		}
	}

	select {
	case <-joined:
	case <-time.After(5 * time.Second):
		t.Fatal("no Joined ack after reconnect")
	}
}

// TestLeaveClearsMembership verifies that after Leave a reconnect does not
// re-enter the old room.
func TestLeaveClearsMembership(t *testing.T) {
	req := require.New(t)

	srv := relay.NewServer(config.Relay{WriteTimeout: 1000})
	port, err := srv.Start("127.0.0.1:0")
	req.NoError(err)
	defer srv.Close()

	c := NewChannel(wsURL(port))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	req.Eventually(c.Connected, 5*time.Second, 10*time.Millisecond)
	req.NoError(c.Join("exam-1", "Alice", false))

	req.Eventually(func() bool {
		sessions, _ := srv.Registry().Counts()
		return sessions == 1
	}, 5*time.Second, 10*time.Millisecond)

	c.Leave()

	// The registry drops the member when the transport closes, and the
	// channel's reconnect must not replay the join.
	req.Eventually(func() bool {
		sessions, _ := srv.Registry().Counts()
		return sessions == 0
	}, 5*time.Second, 10*time.Millisecond)
	req.Eventually(c.Connected, 10*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	sessions, _ := srv.Registry().Counts()
	req.Zero(sessions)
}

func wsURL(port int) string {
	return fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
}
