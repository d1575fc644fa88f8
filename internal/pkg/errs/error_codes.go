/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific relay or transport failures both internally
within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002
)

// 2xxx: Room Errors
const (
	// ErrRoomKindInvalid indicates that the relay kind segment of the URL is not a known kind.
	ErrRoomKindInvalid = 2001

	// ErrRoomFull indicates that the room being joined has reached its member capacity.
	ErrRoomFull = 2002

	// ErrRoomClosed indicates that the room has finished its handshake lifecycle
	// and accepts no further members or envelopes.
	ErrRoomClosed = 2003
)

// 3xxx: Connection and Envelope Errors
const (
	// ErrConnClosed indicates a send was attempted on a connection that has already closed.
	ErrConnClosed = 3001

	// ErrSendQueueFull indicates a member's outbound queue was full, so the member
	// is treated as unreachable and implicitly left.
	ErrSendQueueFull = 3002

	// ErrMalformedEnvelope indicates an inbound frame could not be parsed as a
	// structured envelope.
	ErrMalformedEnvelope = 3003
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
