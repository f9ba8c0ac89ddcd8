package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		info      TrackInfo
		videoSeen int
		want      Classification
	}{
		{
			name: "audio is always audio",
			info: TrackInfo{Kind: "audio", Label: "screen-audio"},
			want: ClassAudio,
		},
		{
			name: "surface marker wins",
			info: TrackInfo{Kind: "video", DisplaySurface: "monitor", Width: 640, Height: 480},
			want: ClassScreen,
		},
		{
			name: "label hint",
			info: TrackInfo{Kind: "video", Label: "Screen-3", Width: 640, Height: 480},
			want: ClassScreen,
		},
		{
			name: "stream id hint",
			info: TrackInfo{Kind: "video", StreamID: "vidmesh-screen"},
			want: ClassScreen,
		},
		{
			name: "high resolution without facing mode",
			info: TrackInfo{Kind: "video", Width: 1920, Height: 1080},
			want: ClassScreen,
		},
		{
			name: "high resolution with facing mode is a camera",
			info: TrackInfo{Kind: "video", Width: 1920, Height: 1080, FacingMode: "user"},
			want: ClassCamera,
		},
		{
			name: "plain low-res video is a camera",
			info: TrackInfo{Kind: "video", Label: "cam0", Width: 640, Height: 480},
			want: ClassCamera,
		},
		{
			name:      "second concurrent video is always a screen",
			info:      TrackInfo{Kind: "video", Label: "cam0", FacingMode: "user", Width: 640, Height: 480},
			videoSeen: 1,
			want:      ClassScreen,
		},
		{
			name:      "1080p no facing mode arriving second",
			info:      TrackInfo{Kind: "video", Width: 1920, Height: 1080},
			videoSeen: 1,
			want:      ClassScreen,
		},
		{
			name: "resolution just below the threshold",
			info: TrackInfo{Kind: "video", Width: 1279, Height: 719},
			want: ClassCamera,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.info, tc.videoSeen))
		})
	}
}

// The classifier must be a pure function of its inputs.
func TestClassifyDeterministic(t *testing.T) {
	info := TrackInfo{Kind: "video", Width: 1920, Height: 1080}
	first := Classify(info, 1)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Classify(info, 1))
	}
}
