package relay

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vidmesh/vidmesh/internal/config"
	"github.com/vidmesh/vidmesh/internal/protocol"
	"github.com/vidmesh/vidmesh/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the signaling relay: a WebSocket endpoint backed by the room
// registry, plus a health endpoint reporting live counts.
type Server struct {
	registry *Registry
	listener net.Listener

	writeTimeout time.Duration
}

// NewServer creates a relay server around a fresh registry.
func NewServer(cfg config.Relay) *Server {
	return &Server{
		registry:     NewRegistry(),
		writeTimeout: time.Duration(cfg.WriteTimeout) * time.Millisecond,
	}
}

// Registry exposes the room registry, mainly for tests.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start begins listening on addr (":0" picks a random port). Returns the
// assigned port number.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start relay: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return port, nil
}

// Close shuts down the listener, preventing new connections. Existing
// connections drain on their own read loops.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sessions, participants := s.registry.Counts()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{
		"sessions":     int64(sessions),
		"participants": int64(participants),
		"routed":       util.Stats.MsgsRouted.Load(),
		"dropped":      util.Stats.MsgsDropped.Load(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Identity is minted per transport connection, never client-chosen.
	c := newConn(uuid.NewString(), ws, s.writeTimeout)
	go c.pump()
	util.LogDebug("connection %s opened", c.identity)

	defer func() {
		s.registry.Leave(c.identity)
		c.close()
		util.LogDebug("connection %s closed", c.identity)
	}()

	for {
		var msg protocol.Message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		s.dispatch(c, &msg)
	}
}

// dispatch routes one inbound message. The relay stamps From with the
// connection's minted identity; anything the client put there is ignored.
func (s *Server) dispatch(c *conn, msg *protocol.Message) {
	msg.From = c.identity

	switch {
	case msg.Kind == protocol.KindJoin:
		if msg.Join == nil {
			util.LogWarning("join from %s without payload, ignoring", c.identity)
			return
		}
		c.setSession(msg.Join.SessionID)
		members := s.registry.Join(msg.Join.SessionID, c.identity, msg.Join.DisplayName, msg.Join.IsHost, c)
		c.Deliver(&protocol.Message{
			Kind:    protocol.KindJoined,
			Session: msg.Join.SessionID,
			Joined:  &protocol.Joined{Identity: c.identity, Members: members},
		})

	case msg.Kind.PointToPoint():
		s.registry.Route(c.sessionID(), msg)

	case msg.Kind.SessionWide():
		s.registry.Broadcast(c.sessionID(), msg, c.identity)

	case msg.Kind.HostBound():
		s.registry.RouteToHost(c.sessionID(), msg)

	default:
		util.LogDebug("ignoring client message kind %q from %s", msg.Kind, c.identity)
	}
}
