// Package relay implements the signaling relay: the room registry that
// tracks session membership and the router that forwards session-scoped
// control messages between participants.
package relay

import (
	"sync"

	"github.com/vidmesh/vidmesh/internal/protocol"
	"github.com/vidmesh/vidmesh/internal/util"
)

// Recipient is one connected participant's outbound sink. Deliver must
// never block; it reports false when the message had to be dropped.
type Recipient interface {
	Deliver(msg *protocol.Message) bool
}

// member is one participant's record inside a session.
type member struct {
	identity    string
	displayName string
	isHost      bool
	out         Recipient
}

// session is a named room. Each session carries its own lock so message
// volume in one room never delays another.
type session struct {
	id string

	mu      sync.RWMutex
	members map[string]*member
	host    string // identity of the recorded host, "" when none
	dead    bool   // destroyed by the last member's leave; joiners recreate
}

// Registry owns all sessions. Its own lock guards only the session map and
// the identity index; member mutation happens under the per-session lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	index    map[string]map[string]struct{} // identity -> session ids it belongs to
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		index:    make(map[string]map[string]struct{}),
	}
}

// Join adds identity to the named session, creating the session implicitly
// on first join. A joiner with isHost=true takes over the host slot,
// overwriting any prior record. Everyone else in the session receives a
// participant-joined notification; the joiner receives the returned
// snapshot of existing members instead.
func (r *Registry) Join(sessionID, identity, displayName string, isHost bool, out Recipient) []protocol.Participant {
	var s *session
	for {
		r.mu.Lock()
		var ok bool
		s, ok = r.sessions[sessionID]
		if !ok {
			s = &session{id: sessionID, members: make(map[string]*member)}
			r.sessions[sessionID] = s
			util.Stats.AddSession()
		}
		if r.index[identity] == nil {
			r.index[identity] = make(map[string]struct{})
		}
		r.index[identity][sessionID] = struct{}{}
		r.mu.Unlock()

		s.mu.Lock()
		if !s.dead {
			break
		}
		// Lost the race against the last member's leave: this session
		// object is condemned. Unmap it and create a fresh one.
		s.mu.Unlock()
		r.mu.Lock()
		if r.sessions[sessionID] == s {
			delete(r.sessions, sessionID)
		}
		r.mu.Unlock()
	}

	existing := make([]protocol.Participant, 0, len(s.members))
	for _, m := range s.members {
		existing = append(existing, protocol.Participant{
			Identity:    m.identity,
			DisplayName: m.displayName,
			IsHost:      m.isHost,
		})
	}
	s.members[identity] = &member{identity: identity, displayName: displayName, isHost: isHost, out: out}
	if isHost {
		s.host = identity
	}
	s.mu.Unlock()

	s.fanout(&protocol.Message{
		Kind:    protocol.KindParticipantJoined,
		From:    identity,
		Session: sessionID,
		Participant: &protocol.Participant{
			Identity:    identity,
			DisplayName: displayName,
			IsHost:      isHost,
		},
	}, identity)

	return existing
}

// Route delivers a point-to-point message to msg.To within the session.
// An absent recipient or unknown session is a silent no-op: senders must
// tolerate dropped messages.
func (r *Registry) Route(sessionID string, msg *protocol.Message) {
	s := r.lookup(sessionID)
	if s == nil {
		util.Stats.AddDropped()
		return
	}

	s.mu.RLock()
	m := s.members[msg.To]
	s.mu.RUnlock()

	if m == nil {
		util.LogDebug("route: no recipient %s in session %s, dropping %s", msg.To, sessionID, msg.Kind)
		util.Stats.AddDropped()
		return
	}
	r.deliver(m, msg)
}

// Broadcast delivers a session-wide message to every member except the
// excluded sender.
func (r *Registry) Broadcast(sessionID string, msg *protocol.Message, excludeIdentity string) {
	s := r.lookup(sessionID)
	if s == nil {
		util.Stats.AddDropped()
		return
	}
	s.fanout(msg, excludeIdentity)
}

// RouteToHost delivers a message to the session's recorded host. When no
// host is recorded the message is dropped.
func (r *Registry) RouteToHost(sessionID string, msg *protocol.Message) {
	s := r.lookup(sessionID)
	if s == nil {
		util.Stats.AddDropped()
		return
	}

	s.mu.RLock()
	m := s.members[s.host]
	s.mu.RUnlock()

	if m == nil {
		util.LogDebug("route: no host in session %s, dropping %s", sessionID, msg.Kind)
		util.Stats.AddDropped()
		return
	}
	msg.To = m.identity
	r.deliver(m, msg)
}

// Leave removes identity from every session it belongs to, clearing the
// host slot where it held one and notifying the remaining members. Empty
// sessions are destroyed. Calling Leave for an unknown identity is a no-op.
func (r *Registry) Leave(identity string) {
	r.mu.Lock()
	ids := r.index[identity]
	delete(r.index, identity)
	affected := make([]*session, 0, len(ids))
	for sid := range ids {
		if s, ok := r.sessions[sid]; ok {
			affected = append(affected, s)
		}
	}
	r.mu.Unlock()

	for _, s := range affected {
		s.mu.Lock()
		m, present := s.members[identity]
		delete(s.members, identity)
		if s.host == identity {
			s.host = ""
		}
		empty := present && len(s.members) == 0
		if empty {
			// Condemn the object while still holding its lock so a joiner
			// racing the destruction recreates the session instead of
			// inserting itself into an unmapped one.
			s.dead = true
		}
		s.mu.Unlock()

		if !present {
			continue
		}

		if empty {
			r.mu.Lock()
			if r.sessions[s.id] == s {
				delete(r.sessions, s.id)
			}
			r.mu.Unlock()
			util.Stats.RemoveSession()
			util.LogDebug("session %s destroyed (empty)", s.id)
			continue
		}

		s.fanout(&protocol.Message{
			Kind:    protocol.KindParticipantLeft,
			From:    identity,
			Session: s.id,
			Participant: &protocol.Participant{
				Identity:    identity,
				DisplayName: m.displayName,
				IsHost:      m.isHost,
			},
		}, identity)
	}
}

// Host returns the recorded host identity for a session ("" when none).
func (r *Registry) Host(sessionID string) string {
	s := r.lookup(sessionID)
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

// Members returns a snapshot of the session's member identities.
func (r *Registry) Members(sessionID string) []string {
	s := r.lookup(sessionID)
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	return ids
}

// Counts returns the number of live sessions and total members, for the
// health endpoint.
func (r *Registry) Counts() (sessions, participants int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.mu.RLock()
		participants += len(s.members)
		s.mu.RUnlock()
	}
	return len(r.sessions), participants
}

func (r *Registry) lookup(sessionID string) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

func (r *Registry) deliver(m *member, msg *protocol.Message) {
	if m.out.Deliver(msg) {
		util.Stats.AddRouted()
	} else {
		util.LogWarning("outbox full for %s, dropping %s", m.identity, msg.Kind)
		util.Stats.AddDropped()
	}
}

// fanout sends msg to every member except exclude, under a read lock
// snapshot so a slow recipient cannot hold up membership changes.
func (s *session) fanout(msg *protocol.Message, exclude string) {
	s.mu.RLock()
	targets := make([]*member, 0, len(s.members))
	for id, m := range s.members {
		if id != exclude {
			targets = append(targets, m)
		}
	}
	s.mu.RUnlock()

	for _, m := range targets {
		if m.out.Deliver(msg) {
			util.Stats.AddRouted()
		} else {
			util.LogWarning("outbox full for %s, dropping %s", m.identity, msg.Kind)
			util.Stats.AddDropped()
		}
	}
}
