package room

import "github.com/rs/zerolog"

// Member represents one participant's connection as seen by a room. The room
// is the only durable owner of a Member; relays receive Members transiently
// through callbacks.
type Member interface {
	// ID returns the process-unique connection identifier.
	ID() string

	// Name returns the participant's display name. The name comes straight
	// from the client and is never trusted for authorization.
	Name() string

	// Send queues payload for delivery. It never blocks: a closed connection
	// or a full outbound queue fails fast with an error.
	Send(payload []byte) error

	// Close tears the connection down. Safe to call more than once.
	Close()
}

// Ctx is the view of a room handed to its relay. All methods are only valid
// inside relay callbacks, which the room invokes from its own loop goroutine.
type Ctx interface {
	// ID returns the room identifier.
	ID() string

	// Kind returns the room kind.
	Kind() Kind

	// MemberCount returns the current number of members.
	MemberCount() int

	// Members returns a snapshot of the current members.
	Members() []Member

	// Broadcast delivers payload to every member matching the includeSender
	// policy. A member whose Send fails is treated as implicitly left and
	// evicted; delivery to the remaining members still proceeds.
	Broadcast(from Member, payload []byte, includeSender bool)

	// SendTo delivers payload to a single member, evicting it on failure.
	SendTo(m Member, payload []byte) error

	// Close marks the room closed. The room loop exits after the current
	// callback returns and every remaining member connection is closed.
	Close()
}

// Relay is the message-interpretation logic bound to a room kind. One relay
// instance serves one room, and every callback runs on the room's loop
// goroutine, so relays need no internal locking.
type Relay interface {
	// OnJoin runs after a member has been added to the room.
	OnJoin(rc Ctx, m Member)

	// OnMessage runs for each inbound frame from a current member, in the
	// member's arrival order.
	OnMessage(rc Ctx, from Member, payload []byte)

	// OnLeave runs after a member has been removed, whether by explicit
	// leave, connection failure, or eviction.
	OnLeave(rc Ctx, m Member)
}

// RelayFactory builds a fresh relay for a newly created room.
type RelayFactory func(kind Kind, roomID string, logger zerolog.Logger) Relay
