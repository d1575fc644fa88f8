/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Room Errors
	ErrRoomKindInvalid: {Code: ErrRoomKindInvalid, Message: "Unknown relay kind.", Status: http.StatusNotFound},
	ErrRoomFull:        {Code: ErrRoomFull, Message: "This room is full."},
	ErrRoomClosed:      {Code: ErrRoomClosed, Message: "This room is closed."},

	// 3xxx: Connection and Envelope Errors
	ErrConnClosed:        {Code: ErrConnClosed, Message: "Connection is closed."},
	ErrSendQueueFull:     {Code: ErrSendQueueFull, Message: "Peer is unreachable."},
	ErrMalformedEnvelope: {Code: ErrMalformedEnvelope, Message: "Malformed message envelope."},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
