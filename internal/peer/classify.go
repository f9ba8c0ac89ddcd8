package peer

import "strings"

// Classification of a media track attached to a PeerLink.
type Classification string

const (
	ClassCamera Classification = "camera"
	ClassScreen Classification = "screen"
	ClassAudio  Classification = "audio"
)

// TrackInfo is the metadata the classifier looks at. It is deliberately a
// plain value so that classification stays a deterministic function of its
// inputs.
type TrackInfo struct {
	Kind           string // "audio" or "video"
	Label          string // track id / label as carried by the transport
	StreamID       string // msid the sender grouped the track under
	Width, Height  int    // 0 when unknown
	FacingMode     string // camera facing attribute, "" when absent
	DisplaySurface string // screen-capture surface marker, "" when absent
}

// minimum resolution treated as a screen-capture hint when no camera
// facing mode is present
const (
	screenHintWidth  = 1280
	screenHintHeight = 720
)

var screenLabelHints = []string{"screen", "display", "window", "monitor", "web-contents"}

// Classify determines a track's classification. videoSeen is the number of
// video tracks already held concurrently from the same remote identity:
// the second and later video track is always a screen, whatever its
// metadata claims — one camera plus one screen is the maximum expected
// topology per peer.
func Classify(info TrackInfo, videoSeen int) Classification {
	if info.Kind == "audio" {
		return ClassAudio
	}

	if videoSeen >= 1 {
		return ClassScreen
	}
	if info.DisplaySurface != "" {
		return ClassScreen
	}

	label := strings.ToLower(info.Label + " " + info.StreamID)
	for _, hint := range screenLabelHints {
		if strings.Contains(label, hint) {
			return ClassScreen
		}
	}

	if info.Width >= screenHintWidth && info.Height >= screenHintHeight && info.FacingMode == "" {
		return ClassScreen
	}

	return ClassCamera
}
