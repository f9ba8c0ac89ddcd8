package peer

import (
	"github.com/pion/webrtc/v4"
)

// RemoteStream is one logical playable stream reassembled from a remote
// participant's single-track transports: a video track plus, eventually,
// the audio track merged into it.
type RemoteStream struct {
	Remote string
	Class  Classification // camera or screen
	Video  *webrtc.TrackRemote
	Audio  *webrtc.TrackRemote
}

// HasAudio reports whether an audio track has been merged in.
func (s *RemoteStream) HasAudio() bool {
	return s.Audio != nil
}

// reassembler groups a remote identity's inbound tracks into logical
// streams. It is owned by a single Link and relies on the link's lock.
type reassembler struct {
	remote       string
	streams      map[Classification]*RemoteStream
	pendingAudio []*webrtc.TrackRemote // audio that arrived before any video it could join
}

func newReassembler(remote string) *reassembler {
	return &reassembler{remote: remote, streams: make(map[Classification]*RemoteStream)}
}

// videoSeen is the number of video tracks currently held. It feeds the
// classifier's second-video-is-screen rule.
func (r *reassembler) videoSeen() int {
	n := 0
	for _, s := range r.streams {
		if s.Video != nil {
			n++
		}
	}
	return n
}

// add feeds one inbound track and returns the streams whose composition
// changed, in a stable order (camera before screen).
func (r *reassembler) add(info TrackInfo, track *webrtc.TrackRemote) []*RemoteStream {
	class := Classify(info, r.videoSeen())

	if class == ClassAudio {
		if s := r.attachAudio(track); s != nil {
			return []*RemoteStream{s}
		}
		r.pendingAudio = append(r.pendingAudio, track)
		return nil
	}

	// A new video track of an occupied classification retires the prior
	// one: at most one active slot per classification.
	s := r.streams[class]
	if s == nil {
		s = &RemoteStream{Remote: r.remote, Class: class}
		r.streams[class] = s
	}
	s.Video = track

	changed := []*RemoteStream{s}
	for len(r.pendingAudio) > 0 {
		a := r.pendingAudio[0]
		merged := r.attachAudio(a)
		if merged == nil {
			break
		}
		r.pendingAudio = r.pendingAudio[1:]
		if merged != s {
			changed = append(changed, merged)
		}
	}
	return changed
}

// attachAudio merges an audio track into the stream lacking audio,
// preferring camera before screen. Returns nil when no stream can take it.
func (r *reassembler) attachAudio(track *webrtc.TrackRemote) *RemoteStream {
	for _, class := range []Classification{ClassCamera, ClassScreen} {
		if s := r.streams[class]; s != nil && s.Video != nil && s.Audio == nil {
			s.Audio = track
			return s
		}
	}
	return nil
}

// reset discards all reassembly state.
func (r *reassembler) reset() {
	r.streams = make(map[Classification]*RemoteStream)
	r.pendingAudio = nil
}
