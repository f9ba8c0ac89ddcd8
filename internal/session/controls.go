package session

import (
	"context"
	"fmt"
	"time"

	"github.com/vidmesh/vidmesh/internal/peer"
	"github.com/vidmesh/vidmesh/internal/protocol"
	"github.com/vidmesh/vidmesh/internal/util"
)

// SetVideoEnabled toggles camera transmission. Every peer link gets its
// camera slot updated and a regular renegotiation requested.
func (s *Session) SetVideoEnabled(enabled bool) {
	s.src.SetVideoEnabled(enabled)

	s.mu.Lock()
	s.videoEnabled = enabled
	s.mu.Unlock()

	for _, link := range s.linkSnapshot() {
		if enabled {
			track, err := s.src.CameraTrack()
			if err != nil {
				util.LogError("camera unavailable: %v", err)
				return
			}
			if err := link.SetLocalTrack(peer.ClassCamera, track); err != nil {
				util.LogWarning("peer %s: %v", link.Remote(), err)
			}
		} else {
			if err := link.SetLocalTrack(peer.ClassCamera, nil); err != nil {
				util.LogWarning("peer %s: %v", link.Remote(), err)
			}
		}
		s.coord.Request(link, peer.PurposeRegular)
	}
}

// SetAudioEnabled toggles microphone transmission, mirroring SetVideoEnabled.
func (s *Session) SetAudioEnabled(enabled bool) {
	s.src.SetAudioEnabled(enabled)

	s.mu.Lock()
	s.audioEnabled = enabled
	s.mu.Unlock()

	for _, link := range s.linkSnapshot() {
		if enabled {
			track, err := s.src.MicTrack()
			if err != nil {
				util.LogError("microphone unavailable: %v", err)
				return
			}
			if err := link.SetLocalTrack(peer.ClassAudio, track); err != nil {
				util.LogWarning("peer %s: %v", link.Remote(), err)
			}
		} else {
			if err := link.SetLocalTrack(peer.ClassAudio, nil); err != nil {
				util.LogWarning("peer %s: %v", link.Remote(), err)
			}
		}
		s.coord.Request(link, peer.PurposeRegular)
	}
}

// SendChat broadcasts a chat message to the session.
func (s *Session) SendChat(text string) error {
	return s.ch.Send(&protocol.Message{
		Kind: protocol.KindChat,
		Chat: &protocol.Chat{Text: text, SenderName: s.opts.DisplayName},
	})
}

// ReportTabSwitch notifies the host that the local user left the exam tab.
// With no host recorded at the relay the alert is silently dropped there.
func (s *Session) ReportTabSwitch(message string) error {
	s.mu.Lock()
	self, name := s.self, s.opts.DisplayName
	s.mu.Unlock()

	return s.ch.Send(&protocol.Message{
		Kind: protocol.KindTabSwitchAlert,
		Alert: &protocol.Alert{
			Identity:    self,
			DisplayName: name,
			Message:     message,
		},
	})
}

// ─── Host controls ───────────────────────────────────────────────────────

// ToggleParticipantMedia instructs target to enable/disable its outgoing
// media. Host side only; nil fields leave that medium unchanged.
func (s *Session) ToggleParticipantMedia(target string, video, audio *bool) error {
	return s.ch.Send(&protocol.Message{
		Kind:        protocol.KindMediaToggle,
		To:          target,
		MediaToggle: &protocol.MediaToggle{Target: target, Video: video, Audio: audio},
	})
}

// SetParticipantProctored switches proctor monitoring for target.
func (s *Session) SetParticipantProctored(target string, enabled bool) error {
	return s.ch.Send(&protocol.Message{
		Kind:          protocol.KindProctorToggle,
		To:            target,
		ProctorToggle: &protocol.ProctorToggle{Target: target, Enabled: enabled},
	})
}

// ─── Inbound host instructions ───────────────────────────────────────────

func (s *Session) onMediaToggle(t *protocol.MediaToggle) {
	if t == nil {
		return
	}
	if t.Video != nil {
		s.SetVideoEnabled(*t.Video)
	}
	if t.Audio != nil {
		s.SetAudioEnabled(*t.Audio)
	}
	s.emit(MediaControlEvent{Video: t.Video, Audio: t.Audio})
}

func (s *Session) onProctorToggle(t *protocol.ProctorToggle) {
	if t == nil {
		return
	}

	s.mu.Lock()
	if t.Enabled == (s.proctorOff != nil) {
		s.mu.Unlock()
		return // already in the requested state
	}
	if !t.Enabled {
		s.proctorOff()
		s.proctorOff = nil
		s.mu.Unlock()
		s.emit(ProctorEvent{Enabled: false})
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.proctorOff = cancel
	s.mu.Unlock()

	go s.proctorLoop(ctx)
	s.emit(ProctorEvent{Enabled: true})
}

// proctorLoop periodically runs the face detector over the local camera
// stream and alerts the host when the count is not exactly one.
func (s *Session) proctorLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ProctorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			self, host := s.self, s.host
			s.mu.Unlock()

			preview := &peer.RemoteStream{Remote: self, Class: peer.ClassCamera}
			count, err := s.det.CountFaces(preview)
			if err != nil {
				util.LogWarning("face detection: %v", err)
				continue
			}
			if count == 1 || host == "" {
				continue
			}

			msg := fmt.Sprintf("face check failed: %d face(s) visible", count)
			_ = s.ch.Send(&protocol.Message{
				Kind:  protocol.KindDetectionAlert,
				To:    host,
				Alert: &protocol.Alert{Target: self, Message: msg},
			})

		case <-ctx.Done():
			return
		}
	}
}
