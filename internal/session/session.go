// Package session orchestrates one participant's side of a conference: it
// turns routed signaling messages into peer links, keeps their negotiation
// correct as tracks come and go, and surfaces lifecycle events to the
// presentation layer.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/vidmesh/vidmesh/internal/media"
	"github.com/vidmesh/vidmesh/internal/peer"
	"github.com/vidmesh/vidmesh/internal/protocol"
	"github.com/vidmesh/vidmesh/internal/util"
)

// Signaler is the slice of the signaling channel the session depends on.
// *signal.Channel satisfies it; tests substitute an in-process fake.
type Signaler interface {
	Send(msg *protocol.Message) error
	Connected() bool
	Join(sessionID, displayName string, isHost bool) error
}

// Options tune a session. Zero values fall back to production defaults.
type Options struct {
	DisplayName string
	IsHost      bool
	STUNServers []string

	// VideoEnabled / AudioEnabled select the media transmitted on join.
	VideoEnabled bool
	AudioEnabled bool

	Timing              peer.Timing   // renegotiation bounds
	StatusRetryInterval time.Duration // screen-share status broadcast retry spacing
	SettleDelay         time.Duration // pause between screen-share cleanup and restart
	ProctorInterval     time.Duration // face-detection cadence

	// NewConn builds the underlying peer connection; defaults to a pion
	// PeerConnection over STUNServers.
	NewConn func() (peer.Conn, error)
}

func (o *Options) applyDefaults() {
	if o.Timing == (peer.Timing{}) {
		o.Timing = peer.DefaultTiming()
	}
	if o.StatusRetryInterval == 0 {
		o.StatusRetryInterval = time.Second
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.ProctorInterval == 0 {
		o.ProctorInterval = 5 * time.Second
	}
	if o.NewConn == nil {
		stun := o.STUNServers
		o.NewConn = func() (peer.Conn, error) { return peer.NewRTCConn(stun) }
	}
}

// Session is one participant's conference state. All PeerLinks, pending
// buffers, and track slots are owned here exclusively; only the relay's
// registry is shared across processes.
type Session struct {
	opts  Options
	ch    Signaler
	src   media.Source
	sink  media.Sink
	det   media.Detector
	coord *peer.Coordinator

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	self          string            // relay-assigned identity
	host          string            // recorded host identity, "" when unknown
	names         map[string]string // remote identity -> display name
	links         map[string]*peer.Link
	pending       map[string]*peer.SignalBuffer
	sharing       bool
	screenTrack   webrtc.TrackLocal
	videoEnabled  bool
	audioEnabled  bool
	proctorOff    context.CancelFunc // nil when proctoring is off

	events chan Event
}

// New assembles a session around its collaborators. Run Join afterwards.
func New(opts Options, ch Signaler, src media.Source, sink media.Sink, det media.Detector) *Session {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		opts:         opts,
		ch:           ch,
		src:          src,
		sink:         sink,
		det:          det,
		ctx:          ctx,
		cancel:       cancel,
		names:        make(map[string]string),
		links:        make(map[string]*peer.Link),
		pending:      make(map[string]*peer.SignalBuffer),
		videoEnabled: opts.VideoEnabled,
		audioEnabled: opts.AudioEnabled,
		events:       make(chan Event, 128),
	}
	s.coord = peer.NewCoordinator(opts.Timing, s.sendOffer, nil)
	return s
}

// Events is the stream of lifecycle events for the presentation layer.
func (s *Session) Events() <-chan Event { return s.events }

// Identity returns the relay-assigned connection identity ("" until joined).
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Join acquires the local media and enters the named session. Media
// acquisition failure is fatal to the join flow: it is surfaced
// immediately with no retry.
func (s *Session) Join(sessionID string) error {
	if s.opts.VideoEnabled {
		if _, err := s.src.CameraTrack(); err != nil {
			return fmt.Errorf("camera unavailable: %w", err)
		}
	}
	if s.opts.AudioEnabled {
		if _, err := s.src.MicTrack(); err != nil {
			return fmt.Errorf("microphone unavailable: %w", err)
		}
	}

	return s.ch.Join(sessionID, s.opts.DisplayName, s.opts.IsHost)
}

// Close leaves the session and tears down every peer link.
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	links := s.links
	s.links = make(map[string]*peer.Link)
	s.pending = make(map[string]*peer.SignalBuffer)
	s.mu.Unlock()

	for remote, l := range links {
		s.coord.Drop(remote)
		l.Close()
	}
}

// HandleMessage dispatches one routed signaling message. Wire it to the
// channel's OnMessage.
func (s *Session) HandleMessage(msg *protocol.Message) {
	switch msg.Kind {
	case protocol.KindJoined:
		s.onJoined(msg)
	case protocol.KindParticipantJoined:
		s.onRemoteJoined(msg.Participant)
	case protocol.KindParticipantLeft:
		s.onRemoteLeft(msg.Participant)
	case protocol.KindOffer:
		s.onInboundOffer(msg.From, msg.SDP)
	case protocol.KindAnswer:
		s.onInboundAnswer(msg.From, msg)
	case protocol.KindICECandidate:
		s.onInboundCandidate(msg.From, msg)
	case protocol.KindChat:
		if msg.Chat != nil {
			s.emit(ChatEvent{SenderName: msg.Chat.SenderName, Text: msg.Chat.Text})
		}
	case protocol.KindMediaToggle:
		s.onMediaToggle(msg.MediaToggle)
	case protocol.KindProctorToggle:
		s.onProctorToggle(msg.ProctorToggle)
	case protocol.KindDetectionAlert:
		if msg.Alert != nil {
			s.emit(AlertEvent{Kind: msg.Kind, About: msg.Alert.Target, Message: msg.Alert.Message})
		}
	case protocol.KindTabSwitchAlert:
		if msg.Alert != nil {
			s.emit(AlertEvent{Kind: msg.Kind, About: msg.Alert.Identity, Message: msg.Alert.Message})
		}
	case protocol.KindScreenShareStatus:
		if msg.ScreenShareStatus != nil {
			s.emit(ScreenShareEvent{
				Identity:    msg.ScreenShareStatus.Identity,
				DisplayName: msg.ScreenShareStatus.DisplayName,
				Sharing:     msg.ScreenShareStatus.Sharing,
			})
		}
	default:
		util.LogDebug("unhandled message kind %q", msg.Kind)
	}
}

// ─── Membership ──────────────────────────────────────────────────────────

func (s *Session) onJoined(msg *protocol.Message) {
	if msg.Joined == nil {
		return
	}
	s.mu.Lock()
	s.self = msg.Joined.Identity
	for _, m := range msg.Joined.Members {
		s.names[m.Identity] = m.DisplayName
		if m.IsHost {
			s.host = m.Identity
		}
	}
	if s.opts.IsHost {
		s.host = msg.Joined.Identity
	}
	s.mu.Unlock()

	util.LogInfo("joined session as %s", msg.Joined.Identity)
	s.emit(JoinedEvent{Identity: msg.Joined.Identity, Members: msg.Joined.Members})
	// The members already present will initiate toward us; we wait for
	// their offers.
}

// onRemoteJoined creates a PeerLink as initiator: the side that observes
// the join event breaks the symmetry and sends the first offer.
func (s *Session) onRemoteJoined(p *protocol.Participant) {
	if p == nil {
		return
	}
	s.mu.Lock()
	s.names[p.Identity] = p.DisplayName
	if p.IsHost {
		s.host = p.Identity
	}
	exists := s.links[p.Identity] != nil
	s.mu.Unlock()

	s.emit(ParticipantJoinedEvent{Identity: p.Identity, DisplayName: p.DisplayName, IsHost: p.IsHost})
	if exists {
		return
	}

	link, err := s.createLink(p.Identity, true)
	if err != nil {
		util.LogError("peer %s: %v", p.Identity, err)
		return
	}
	s.coord.Request(link, peer.PurposeRegular)
}

func (s *Session) onRemoteLeft(p *protocol.Participant) {
	if p == nil {
		return
	}
	s.mu.Lock()
	link := s.links[p.Identity]
	delete(s.links, p.Identity)
	delete(s.pending, p.Identity)
	name := s.names[p.Identity]
	delete(s.names, p.Identity)
	if s.host == p.Identity {
		s.host = ""
	}
	s.mu.Unlock()

	s.coord.Drop(p.Identity)
	if link != nil {
		link.Close()
	}
	s.sink.Remove(p.Identity)
	s.emit(ParticipantLeftEvent{Identity: p.Identity, DisplayName: name})
}

// ─── Negotiation signals ─────────────────────────────────────────────────

func (s *Session) onInboundOffer(remote, sdp string) {
	s.mu.Lock()
	link := s.links[remote]
	s.mu.Unlock()

	if link == nil {
		var err error
		link, err = s.createLink(remote, false)
		if err != nil {
			util.LogError("peer %s: %v", remote, err)
			return
		}
	}

	answer, err := link.ApplyRemoteOffer(sdp)
	if err != nil {
		util.LogWarning("peer %s: apply offer: %v", remote, err)
		return
	}
	if err := s.ch.Send(&protocol.Message{
		Kind: protocol.KindAnswer,
		To:   remote,
		SDP:  answer.SDP,
	}); err != nil {
		util.LogWarning("peer %s: send answer: %v", remote, err)
	}
}

func (s *Session) onInboundAnswer(remote string, msg *protocol.Message) {
	// An in-flight renegotiation task gets first claim on the answer.
	if s.coord.DeliverAnswer(remote, msg.SDP) {
		return
	}

	s.mu.Lock()
	link := s.links[remote]
	s.mu.Unlock()

	if link == nil {
		s.buffer(remote, msg)
		return
	}
	if err := link.ApplyRemoteAnswer(msg.SDP); err != nil {
		util.LogWarning("peer %s: apply answer: %v", remote, err)
	}
}

func (s *Session) onInboundCandidate(remote string, msg *protocol.Message) {
	s.mu.Lock()
	link := s.links[remote]
	s.mu.Unlock()

	if link == nil {
		s.buffer(remote, msg)
		return
	}
	if err := link.AddRemoteCandidate(msg.Candidate); err != nil {
		util.LogWarning("peer %s: add candidate: %v", remote, err)
	}
}

// buffer appends a signal that arrived before its PeerLink existed. Only
// announced members get a buffer: identities are minted per transport
// connection, so a signal from an identity we never saw join, or one that
// already left, can never find a link to replay into and is dropped.
func (s *Session) buffer(remote string, msg *protocol.Message) {
	s.mu.Lock()
	if _, known := s.names[remote]; !known {
		s.mu.Unlock()
		util.LogDebug("peer %s: dropping %s for unknown or departed peer", remote, msg.Kind)
		return
	}
	b := s.pending[remote]
	if b == nil {
		b = &peer.SignalBuffer{}
		s.pending[remote] = b
	}
	b.Append(msg)
	s.mu.Unlock()
	util.LogDebug("peer %s: buffered early %s", remote, msg.Kind)
}

// ─── Link construction ───────────────────────────────────────────────────

// createLink builds a PeerLink, attaches the currently transmitted local
// tracks, and replays any buffered signals in arrival order.
func (s *Session) createLink(remote string, initiator bool) (*peer.Link, error) {
	conn, err := s.opts.NewConn()
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}

	link := peer.NewLink(s.ctx, remote, conn, initiator, peer.Events{
		OnStatus: func(remote string, st peer.Status) {
			s.emit(PeerStatusEvent{Identity: remote, Status: st})
		},
		OnStream: func(stream *peer.RemoteStream) {
			s.sink.Present(stream)
			s.emit(StreamReadyEvent{Stream: stream})
		},
		OnLocalCandidate: func(remote, candidate string) {
			_ = s.ch.Send(&protocol.Message{
				Kind:      protocol.KindICECandidate,
				To:        remote,
				Candidate: candidate,
			})
		},
	})

	s.mu.Lock()
	if existing := s.links[remote]; existing != nil {
		// Lost the creation race with another signal for this remote.
		s.mu.Unlock()
		link.Close()
		return existing, nil
	}
	s.links[remote] = link
	b := s.pending[remote]
	delete(s.pending, remote)
	video, audio, screen := s.videoEnabled, s.audioEnabled, s.screenTrack
	s.mu.Unlock()

	s.attachLocalTracks(link, video, audio, screen)

	if b != nil {
		for _, m := range b.Drain() {
			switch m.Kind {
			case protocol.KindAnswer:
				s.onInboundAnswer(remote, m)
			case protocol.KindICECandidate:
				s.onInboundCandidate(remote, m)
			}
		}
	}
	return link, nil
}

func (s *Session) attachLocalTracks(link *peer.Link, video, audio bool, screen webrtc.TrackLocal) {
	if video {
		if track, err := s.src.CameraTrack(); err == nil {
			if err := link.SetLocalTrack(peer.ClassCamera, track); err != nil {
				util.LogWarning("peer %s: %v", link.Remote(), err)
			}
		}
	}
	if audio {
		if track, err := s.src.MicTrack(); err == nil {
			if err := link.SetLocalTrack(peer.ClassAudio, track); err != nil {
				util.LogWarning("peer %s: %v", link.Remote(), err)
			}
		}
	}
	if screen != nil {
		if err := link.SetLocalTrack(peer.ClassScreen, screen); err != nil {
			util.LogWarning("peer %s: %v", link.Remote(), err)
		}
	}
}

// sendOffer transmits a renegotiation offer; the coordinator calls it.
func (s *Session) sendOffer(remote string, offer webrtc.SessionDescription) error {
	return s.ch.Send(&protocol.Message{
		Kind: protocol.KindOffer,
		To:   remote,
		SDP:  offer.SDP,
	})
}

// emit delivers an event without ever blocking the signaling path.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		util.LogDebug("event channel full, dropping %T", ev)
	}
}

// link returns the PeerLink for a remote identity, nil when absent.
func (s *Session) link(remote string) *peer.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[remote]
}

// linkSnapshot returns the current links.
func (s *Session) linkSnapshot() []*peer.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peer.Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	return out
}
