package peer

import "github.com/vidmesh/vidmesh/internal/protocol"

// SignalBuffer holds signals that arrived before the PeerLink for their
// remote identity existed — an answer or ICE candidates racing ahead of
// link creation. Signals are replayed in arrival order exactly once.
type SignalBuffer struct {
	msgs []*protocol.Message
}

// Append stores a not-yet-deliverable signal.
func (b *SignalBuffer) Append(msg *protocol.Message) {
	b.msgs = append(b.msgs, msg)
}

// Drain returns the buffered signals in FIFO order and clears the buffer.
// Draining an already-cleared buffer returns nil.
func (b *SignalBuffer) Drain() []*protocol.Message {
	msgs := b.msgs
	b.msgs = nil
	return msgs
}

// Len reports the number of buffered signals.
func (b *SignalBuffer) Len() int {
	return len(b.msgs)
}
