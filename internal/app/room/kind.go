package room

// Kind identifies the relay protocol a room speaks. Capacity is a property of
// the kind, not a subclass hierarchy: chat rooms are unbounded, signaling
// rooms hold at most the two parties of a handshake.
type Kind string

const (
	// KindChat is a text chat room with unbounded membership.
	KindChat Kind = "chat"

	// KindSignal is a WebRTC signaling room limited to two members
	// (the initiator and the responder).
	KindSignal Kind = "webrtc"
)

// Capacity returns the maximum number of members a room of this kind may
// hold, or 0 for unbounded membership.
func (k Kind) Capacity() int {
	if k == KindSignal {
		return 2
	}
	return 0
}

// Valid reports whether k is a known room kind.
func (k Kind) Valid() bool {
	return k == KindChat || k == KindSignal
}
