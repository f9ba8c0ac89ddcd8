package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Every client-originated kind must fall into exactly one routing class;
// membership notifications and the joined ack are relay-originated and
// belong to none.
func TestKindRoutingClasses(t *testing.T) {
	req := require.New(t)

	p2p := []Kind{KindOffer, KindAnswer, KindICECandidate, KindMediaToggle, KindProctorToggle, KindDetectionAlert}
	wide := []Kind{KindChat, KindScreenShareStatus}
	hostBound := []Kind{KindTabSwitchAlert}
	relayOnly := []Kind{KindJoin, KindJoined, KindParticipantJoined, KindParticipantLeft}

	for _, k := range p2p {
		req.True(k.PointToPoint(), "%s", k)
		req.False(k.SessionWide(), "%s", k)
		req.False(k.HostBound(), "%s", k)
	}
	for _, k := range wide {
		req.True(k.SessionWide(), "%s", k)
		req.False(k.PointToPoint(), "%s", k)
		req.False(k.HostBound(), "%s", k)
	}
	for _, k := range hostBound {
		req.True(k.HostBound(), "%s", k)
		req.False(k.PointToPoint(), "%s", k)
		req.False(k.SessionWide(), "%s", k)
	}
	for _, k := range relayOnly {
		req.False(k.PointToPoint(), "%s", k)
		req.False(k.SessionWide(), "%s", k)
		req.False(k.HostBound(), "%s", k)
	}
}
