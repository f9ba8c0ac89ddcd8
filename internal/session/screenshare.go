package session

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pion/webrtc/v4"

	"github.com/vidmesh/vidmesh/internal/peer"
	"github.com/vidmesh/vidmesh/internal/protocol"
	"github.com/vidmesh/vidmesh/internal/util"
)

// StartScreenShare captures a screen track and pushes it to every stable
// peer. A still-active previous share is fully cleaned up first, with a
// short settle delay, so a stale sender never lingers alongside the new
// track. Session state flips to sharing only after every peer has the
// track, and the status broadcast is retried until the signaling channel
// is confirmed connected.
func (s *Session) StartScreenShare() error {
	s.mu.Lock()
	active := s.sharing
	s.mu.Unlock()

	if active {
		util.LogDebug("previous screen share still active, cleaning up first")
		s.stopScreenShare(false)
		time.Sleep(s.opts.SettleDelay)
	}

	track, err := s.src.ScreenTrack()
	if err != nil {
		return fmt.Errorf("screen capture: %w", err)
	}

	for _, link := range s.linkSnapshot() {
		if link.SignalingState() != webrtc.SignalingStateStable {
			continue
		}
		// SetLocalTrack retires any existing screen slot before adding.
		if err := link.SetLocalTrack(peer.ClassScreen, track); err != nil {
			util.LogWarning("peer %s: %v", link.Remote(), err)
			continue
		}
		s.coord.Request(link, peer.PurposeRegular)
	}

	s.mu.Lock()
	s.screenTrack = track
	s.sharing = true
	s.mu.Unlock()

	s.broadcastShareStatus(true)
	return nil
}

// StopScreenShare ends the share: user action and the track ending on its
// own both land here.
func (s *Session) StopScreenShare() {
	s.stopScreenShare(true)
}

// stopScreenShare marks sharing false first — the UI reacts immediately —
// then empties every screen slot. Stable links get a cleanup-purpose
// renegotiation, which also requests an ICE restart: removing the last
// track can otherwise leave a connection degraded.
func (s *Session) stopScreenShare(announce bool) {
	s.mu.Lock()
	if !s.sharing && s.screenTrack == nil {
		s.mu.Unlock()
		return
	}
	s.sharing = false
	s.screenTrack = nil
	s.mu.Unlock()

	s.src.StopScreen()

	for _, link := range s.linkSnapshot() {
		if err := link.SetLocalTrack(peer.ClassScreen, nil); err != nil {
			util.LogWarning("peer %s: %v", link.Remote(), err)
		}
		if link.SignalingState() == webrtc.SignalingStateStable {
			s.coord.Request(link, peer.PurposeCleanup)
		}
	}

	if announce {
		s.broadcastShareStatus(false)
	}
}

// Sharing reports whether a local screen share is active.
func (s *Session) Sharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharing
}

// broadcastShareStatus announces the share state session-wide. A
// disconnected signaling channel must not silently lose this notification,
// so the send retries at a fixed interval up to 5 attempts, waiting for
// the channel to come back.
func (s *Session) broadcastShareStatus(sharing bool) {
	s.mu.Lock()
	msg := &protocol.Message{
		Kind: protocol.KindScreenShareStatus,
		ScreenShareStatus: &protocol.ScreenShareStatus{
			Identity:    s.self,
			DisplayName: s.opts.DisplayName,
			Sharing:     sharing,
		},
	}
	s.mu.Unlock()

	go func() {
		bo := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.StatusRetryInterval), 4),
			s.ctx)
		err := backoff.Retry(func() error {
			if !s.ch.Connected() {
				return fmt.Errorf("signaling channel down")
			}
			return s.ch.Send(msg)
		}, bo)
		if err != nil {
			util.LogWarning("screen-share status broadcast failed: %v", err)
		}
	}()
}
