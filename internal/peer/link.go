package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/vidmesh/vidmesh/internal/util"
)

// State is the negotiation state of a PeerLink.
type State string

const (
	StateNew         State = "new"
	StateNegotiating State = "negotiating"
	StateStable      State = "stable"
	StateClosed      State = "closed"
)

// Status is the connection status reported per remote peer.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusFailed     Status = "failed"
	StatusClosed     Status = "closed"
)

// Events are the callbacks a Link raises. All are invoked from pion or
// link goroutines; handlers must not call back into the link while holding
// their own locks.
type Events struct {
	OnStatus         func(remote string, status Status)
	OnStream         func(stream *RemoteStream)
	OnLocalCandidate func(remote string, candidateJSON string)
}

// slot is one local outgoing track attached to the link.
type slot struct {
	track  webrtc.TrackLocal
	sender *webrtc.RTPSender
}

// Link is one participant's end of a negotiated connection to one specific
// remote participant. A link is owned by exactly one session and never
// shared; its lock only guards against pion callback goroutines.
type Link struct {
	remote    string
	initiator bool
	conn      Conn
	events    Events

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	status        Status
	negotiated    bool // any description applied yet
	remoteDescSet bool
	pendingCands  []webrtc.ICECandidateInit // held until the remote description lands
	slots         map[Classification]*slot
	rs            *reassembler
}

// NewLink wires a link around conn. The initiator flag records which side
// created the link: the participant who observed the join event initiates,
// the one who received an inbound offer responds.
func NewLink(parent context.Context, remote string, conn Conn, initiator bool, events Events) *Link {
	ctx, cancel := context.WithCancel(parent)
	l := &Link{
		remote:    remote,
		initiator: initiator,
		conn:      conn,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusConnecting,
		slots:     make(map[Classification]*slot),
		rs:        newReassembler(remote),
	}

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		if l.events.OnLocalCandidate != nil {
			l.events.OnLocalCandidate(remote, string(data))
		}
	})

	conn.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.handleRemoteTrack(t)
	})

	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("peer %s connection state: %s", remote, state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			l.setStatus(StatusConnected)
		case webrtc.PeerConnectionStateFailed:
			l.setStatus(StatusFailed)
		case webrtc.PeerConnectionStateClosed:
			l.setStatus(StatusClosed)
		}
	})

	return l
}

func (l *Link) Remote() string { return l.remote }

func (l *Link) Initiator() bool { return l.initiator }

func (l *Link) Done() <-chan struct{} { return l.ctx.Done() }

// Context governs the link's outstanding negotiation tasks; closing the
// link cancels them all.
func (l *Link) Context() context.Context { return l.ctx }

// SignalingState exposes the underlying signaling state for the
// coordinator's wait-for-stable poll.
func (l *Link) SignalingState() webrtc.SignalingState {
	return l.conn.SignalingState()
}

// State reports the negotiation state machine's position.
func (l *Link) State() State {
	select {
	case <-l.ctx.Done():
		return StateClosed
	default:
	}

	l.mu.Lock()
	negotiated := l.negotiated
	l.mu.Unlock()

	switch l.conn.SignalingState() {
	case webrtc.SignalingStateStable:
		if !negotiated {
			return StateNew
		}
		return StateStable
	case webrtc.SignalingStateClosed:
		return StateClosed
	default:
		return StateNegotiating
	}
}

// Status reports the last observed connection status.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// MarkFailed records a terminal negotiation failure for this peer.
func (l *Link) MarkFailed() {
	l.setStatus(StatusFailed)
}

func (l *Link) setStatus(st Status) {
	l.mu.Lock()
	if l.status == StatusClosed || l.status == st {
		l.mu.Unlock()
		return
	}
	l.status = st
	l.mu.Unlock()

	if l.events.OnStatus != nil {
		l.events.OnStatus(l.remote, st)
	}
}

// ─── Negotiation ─────────────────────────────────────────────────────────

// CreateOffer produces a fresh local offer and applies it as the local
// description. ICE restart is requested only for cleanup renegotiations.
func (l *Link) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	offer, err := l.conn.CreateOffer(iceRestart)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("CreateOffer: %w", err)
	}
	if err := l.conn.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("SetLocalDescription: %w", err)
	}
	l.mu.Lock()
	l.negotiated = true
	l.mu.Unlock()
	return offer, nil
}

// ApplyRemoteOffer applies an inbound offer and produces the answer,
// already set as the local description.
func (l *Link) ApplyRemoteOffer(sdp string) (webrtc.SessionDescription, error) {
	err := l.conn.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("SetRemoteDescription: %w", err)
	}
	l.remoteDescApplied()

	answer, err := l.conn.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := l.conn.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("SetLocalDescription: %w", err)
	}
	return answer, nil
}

// ApplyRemoteAnswer applies an inbound answer to the outstanding offer.
func (l *Link) ApplyRemoteAnswer(sdp string) error {
	err := l.conn.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		return fmt.Errorf("SetRemoteDescription: %w", err)
	}
	l.remoteDescApplied()
	return nil
}

// AddRemoteCandidate feeds an inbound ICE candidate (JSON-encoded
// ICECandidateInit). Candidates arriving before the remote description are
// held and flushed once it lands.
func (l *Link) AddRemoteCandidate(candidateJSON string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &init); err != nil {
		return fmt.Errorf("invalid ICE candidate: %w", err)
	}

	l.mu.Lock()
	if !l.remoteDescSet {
		l.pendingCands = append(l.pendingCands, init)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	return l.conn.AddICECandidate(init)
}

// remoteDescApplied marks the description set and flushes held candidates.
func (l *Link) remoteDescApplied() {
	l.mu.Lock()
	l.negotiated = true
	l.remoteDescSet = true
	cands := l.pendingCands
	l.pendingCands = nil
	l.mu.Unlock()

	for _, init := range cands {
		if err := l.conn.AddICECandidate(init); err != nil {
			util.LogWarning("peer %s: flush candidate: %v", l.remote, err)
		}
	}
}

// ─── Track slots ─────────────────────────────────────────────────────────

// SetLocalTrack installs track into the slot for class, retiring any track
// already occupying it. A nil track empties the slot. The caller is
// expected to request a renegotiation afterwards.
func (l *Link) SetLocalTrack(class Classification, track webrtc.TrackLocal) error {
	l.mu.Lock()
	existing := l.slots[class]
	delete(l.slots, class)
	l.mu.Unlock()

	if existing != nil {
		if err := l.conn.RemoveTrack(existing.sender); err != nil {
			util.LogWarning("peer %s: remove %s track: %v", l.remote, class, err)
		}
	}
	if track == nil {
		return nil
	}

	sender, err := l.conn.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add %s track: %w", class, err)
	}
	l.mu.Lock()
	l.slots[class] = &slot{track: track, sender: sender}
	l.mu.Unlock()
	return nil
}

// LocalTrack returns the track currently occupying the slot, nil when empty.
func (l *Link) LocalTrack(class Classification) webrtc.TrackLocal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.slots[class]; s != nil {
		return s.track
	}
	return nil
}

// handleRemoteTrack classifies an inbound track and reports the streams
// whose composition changed.
func (l *Link) handleRemoteTrack(t *webrtc.TrackRemote) {
	info := TrackInfo{
		Kind:     t.Kind().String(),
		Label:    t.ID(),
		StreamID: t.StreamID(),
	}

	l.mu.Lock()
	changed := l.rs.add(info, t)
	l.mu.Unlock()

	for _, s := range changed {
		util.LogDebug("peer %s: %s stream updated (audio=%v)", l.remote, s.Class, s.HasAudio())
		if l.events.OnStream != nil {
			l.events.OnStream(s)
		}
	}
}

// ─── Teardown ────────────────────────────────────────────────────────────

// Close tears the link down: cancels outstanding negotiation work, releases
// track slots and reassembly state, and closes the connection. Idempotent.
func (l *Link) Close() error {
	l.cancel()

	l.mu.Lock()
	l.slots = make(map[Classification]*slot)
	l.rs.reset()
	l.pendingCands = nil
	l.mu.Unlock()

	l.setStatus(StatusClosed)
	return l.conn.Close()
}
