package session

import (
	"github.com/vidmesh/vidmesh/internal/peer"
	"github.com/vidmesh/vidmesh/internal/protocol"
)

// Event is delivered to the presentation layer via Session.Events.
type Event any

// JoinedEvent reports our own successful entry into a session, carrying
// the relay-assigned identity and the members already present.
type JoinedEvent struct {
	Identity string
	Members  []protocol.Participant
}

// ParticipantJoinedEvent reports a new remote participant.
type ParticipantJoinedEvent struct {
	Identity    string
	DisplayName string
	IsHost      bool
}

// ParticipantLeftEvent reports a remote participant leaving.
type ParticipantLeftEvent struct {
	Identity    string
	DisplayName string
}

// StreamReadyEvent reports a classified remote stream ready for display.
type StreamReadyEvent struct {
	Stream *peer.RemoteStream
}

// PeerStatusEvent reports a change in one remote peer's connection status.
type PeerStatusEvent struct {
	Identity string
	Status   peer.Status
}

// ChatEvent is an inbound session-wide chat message.
type ChatEvent struct {
	SenderName string
	Text       string
}

// AlertEvent is an inbound integrity alert (host side): a detection alert
// about About, or a tab-switch report from About itself.
type AlertEvent struct {
	Kind    protocol.Kind
	About   string
	Message string
}

// ScreenShareEvent reports a remote participant starting or stopping a
// screen share.
type ScreenShareEvent struct {
	Identity    string
	DisplayName string
	Sharing     bool
}

// MediaControlEvent reports a host instruction applied to our own media.
type MediaControlEvent struct {
	Video *bool
	Audio *bool
}

// ProctorEvent reports proctor monitoring being switched on or off for us.
type ProctorEvent struct {
	Enabled bool
}
