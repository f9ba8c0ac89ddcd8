// Package media declares the collaborator boundary around the negotiation
// core: where local tracks come from, where classified remote streams go,
// and the face-presence detector driven by proctor mode. Real capture and
// rendering live outside this module; the loopback implementations here
// serve the headless client and tests.
package media

import (
	"github.com/pion/webrtc/v4"

	"github.com/vidmesh/vidmesh/internal/peer"
)

// Source provides the local media tracks a participant transmits.
type Source interface {
	// CameraTrack and MicTrack return the long-lived camera/microphone
	// tracks, capturing on first use.
	CameraTrack() (webrtc.TrackLocal, error)
	MicTrack() (webrtc.TrackLocal, error)

	// ScreenTrack captures a fresh screen track. Each call returns a new
	// track; the previous one is expected to be stopped first.
	ScreenTrack() (webrtc.TrackLocal, error)
	StopScreen()

	// SetVideoEnabled / SetAudioEnabled toggle transmission without
	// releasing the devices.
	SetVideoEnabled(enabled bool)
	SetAudioEnabled(enabled bool)
}

// Sink receives classified remote streams for display.
type Sink interface {
	Present(stream *peer.RemoteStream)
	Remove(remoteIdentity string)
}

// Detector reports the number of faces visible in a displayed camera
// stream. Zero or more than one triggers an integrity alert.
type Detector interface {
	CountFaces(stream *peer.RemoteStream) (int, error)
}
