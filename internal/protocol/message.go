// Package protocol defines the signaling messages exchanged between
// participants and the relay. The envelope is a closed tagged variant:
// exactly one payload field is set, selected by Kind, so routing code can
// switch exhaustively instead of digging through an open-ended map.
package protocol

// Kind identifies the kind of signaling message.
type Kind string

const (
	KindJoin              Kind = "join"
	KindJoined            Kind = "joined"
	KindParticipantJoined Kind = "participant-joined"
	KindParticipantLeft   Kind = "participant-left"
	KindOffer             Kind = "offer"
	KindAnswer            Kind = "answer"
	KindICECandidate      Kind = "ice-candidate"
	KindChat              Kind = "chat-message"
	KindMediaToggle       Kind = "media-toggle"
	KindProctorToggle     Kind = "proctor-toggle"
	KindDetectionAlert    Kind = "detection-alert"
	KindTabSwitchAlert    Kind = "tab-switch-alert"
	KindScreenShareStatus Kind = "screen-share-status"
)

// PointToPoint reports whether messages of this kind are addressed to a
// single recipient identity within the session.
func (k Kind) PointToPoint() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate, KindMediaToggle, KindProctorToggle, KindDetectionAlert:
		return true
	}
	return false
}

// SessionWide reports whether messages of this kind fan out to every other
// member of the sender's session.
func (k Kind) SessionWide() bool {
	return k == KindChat || k == KindScreenShareStatus
}

// HostBound reports whether messages of this kind are delivered only to the
// session's recorded host.
func (k Kind) HostBound() bool {
	return k == KindTabSwitchAlert
}

// Message is the JSON envelope exchanged over the signaling WebSocket.
// From and To carry connection identities; the relay stamps From on every
// forwarded message so recipients never trust a sender-supplied value.
type Message struct {
	Kind    Kind   `json:"kind"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Session string `json:"session,omitempty"`

	Join              *Join              `json:"join,omitempty"`
	Joined            *Joined            `json:"joined,omitempty"`
	Participant       *Participant       `json:"participant,omitempty"`
	SDP               string             `json:"sdp,omitempty"`       // offer / answer
	Candidate         string             `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
	Chat              *Chat              `json:"chat,omitempty"`
	MediaToggle       *MediaToggle       `json:"mediaToggle,omitempty"`
	ProctorToggle     *ProctorToggle     `json:"proctorToggle,omitempty"`
	Alert             *Alert             `json:"alert,omitempty"`
	ScreenShareStatus *ScreenShareStatus `json:"screenShareStatus,omitempty"`
}

// Join is sent by a client right after connecting. The connection identity
// is assigned by the relay, not chosen by the client.
type Join struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
	IsHost      bool   `json:"isHost"`
}

// Joined acknowledges a join, telling the client its assigned identity and
// who else is already in the session.
type Joined struct {
	Identity string        `json:"identity"`
	Members  []Participant `json:"members,omitempty"`
}

// Participant describes one session member in join/leave notifications.
type Participant struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	IsHost      bool   `json:"isHost"`
}

// Chat is a session-wide text message.
type Chat struct {
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
}

// MediaToggle is a host instruction to enable/disable a participant's
// outgoing media. Nil fields leave that medium unchanged.
type MediaToggle struct {
	Target string `json:"target"`
	Video  *bool  `json:"video,omitempty"`
	Audio  *bool  `json:"audio,omitempty"`
}

// ProctorToggle is a host instruction switching proctor monitoring on or
// off for a participant.
type ProctorToggle struct {
	Target  string `json:"target"`
	Enabled bool   `json:"enabled"`
}

// Alert carries integrity notifications: detection-alert (participant →
// host, about Target) and tab-switch-alert (participant → host, about the
// sender itself).
type Alert struct {
	Target      string `json:"target,omitempty"`
	Identity    string `json:"identity,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Message     string `json:"message"`
}

// ScreenShareStatus announces the start or end of a screen share to the
// whole session.
type ScreenShareStatus struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Sharing     bool   `json:"sharing"`
}
