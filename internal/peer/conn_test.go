package peer

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface check.
var _ Conn = (*fakeConn)(nil)

// fakeConn is an in-process Conn with a controllable signaling state,
// recording every operation the negotiation layer performs on it.
type fakeConn struct {
	mu          sync.Mutex
	state       webrtc.SignalingState
	offerCount  int
	iceRestarts []bool
	applied     []webrtc.SessionDescription // remote descriptions in apply order
	candidates  []webrtc.ICECandidateInit
	added       []webrtc.TrackLocal
	removed     int
	offerErr    error

	onICE   func(*webrtc.ICECandidate)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState func(webrtc.PeerConnectionState)
}

func newFakeConn() *fakeConn {
	return &fakeConn{state: webrtc.SignalingStateStable}
}

func (c *fakeConn) setState(s webrtc.SignalingState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *fakeConn) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offerErr != nil {
		return webrtc.SessionDescription{}, c.offerErr
	}
	c.offerCount++
	c.iceRestarts = append(c.iceRestarts, iceRestart)
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  fmt.Sprintf("v=0 offer %d", c.offerCount),
	}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *fakeConn) SetLocalDescription(sdp webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sdp.Type == webrtc.SDPTypeOffer {
		c.state = webrtc.SignalingStateHaveLocalOffer
	} else {
		c.state = webrtc.SignalingStateStable
	}
	return nil
}

func (c *fakeConn) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, sdp)
	if sdp.Type == webrtc.SDPTypeOffer {
		c.state = webrtc.SignalingStateHaveRemoteOffer
	} else {
		c.state = webrtc.SignalingStateStable
	}
	return nil
}

func (c *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, track)
	return &webrtc.RTPSender{}, nil
}

func (c *fakeConn) RemoveTrack(*webrtc.RTPSender) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed++
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(*webrtc.ICECandidate)) { c.onICE = fn }
func (c *fakeConn) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.onTrack = fn
}
func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.onState = fn
}

func (c *fakeConn) Close() error {
	c.setState(webrtc.SignalingStateClosed)
	return nil
}

func (c *fakeConn) appliedRemotes() []webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), c.applied...)
}

func (c *fakeConn) addedTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.added)
}

func (c *fakeConn) removedTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed
}

func (c *fakeConn) restarts() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.iceRestarts...)
}
