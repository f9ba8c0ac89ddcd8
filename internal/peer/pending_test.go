package peer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vidmesh/vidmesh/internal/protocol"
)

func TestSignalBufferDrainsInArrivalOrderExactlyOnce(t *testing.T) {
	req := require.New(t)
	var b SignalBuffer

	b.Append(&protocol.Message{Kind: protocol.KindAnswer, SDP: "first"})
	b.Append(&protocol.Message{Kind: protocol.KindICECandidate, Candidate: "second"})
	b.Append(&protocol.Message{Kind: protocol.KindICECandidate, Candidate: "third"})
	req.Equal(3, b.Len())

	msgs := b.Drain()
	req.Len(msgs, 3)
	req.Equal("first", msgs[0].SDP)
	req.Equal("second", msgs[1].Candidate)
	req.Equal("third", msgs[2].Candidate)

	req.Zero(b.Len())
	req.Nil(b.Drain(), "draining a cleared buffer is a no-op")
}
