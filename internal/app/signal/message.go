/*
Package signal implements the two-party WebRTC signaling relay.

This file defines the signaling envelope carried over a connection. The relay
never inspects SDP or ICE payload contents; validation stops at the envelope
structure.
*/
package signal

import (
	"bytes"
	"encoding/json"

	"talkrelay/internal/pkg/errs"
)

// Type enumerates the signaling envelope kinds.
type Type string

const (
	// TypeOffer carries the initiator's SDP offer.
	TypeOffer Type = "offer"

	// TypeAnswer carries the responder's SDP answer.
	TypeAnswer Type = "answer"

	// TypeCandidate carries one ICE candidate as an opaque payload.
	TypeCandidate Type = "candidate"

	// TypeLeave ends the handshake. The relay also synthesizes one toward
	// the remaining member when a participant disconnects abruptly.
	TypeLeave Type = "leave"
)

// leaveEnvelope is the synthetic leave forwarded to the surviving member.
var leaveEnvelope = []byte(`{"type":"leave"}`)

// Envelope is the wire-level signaling unit.
type Envelope struct {
	// Type is one of offer, answer, candidate, leave.
	Type Type `json:"type"`

	// SDP is required for offer and answer envelopes.
	SDP string `json:"sdp,omitempty"`

	// Candidate is the opaque ICE payload, required for candidate envelopes.
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// jsonNull matches an explicit null candidate, which carries no payload.
var jsonNull = []byte("null")

// Decode parses and validates one signaling envelope. It returns
// ErrMalformedEnvelope for unparseable frames, unknown types, and envelopes
// missing their required field.
func Decode(payload []byte) (Envelope, *errs.CustomError) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, errs.NewError(errs.ErrMalformedEnvelope)
	}

	switch env.Type {
	case TypeOffer, TypeAnswer:
		if env.SDP == "" {
			return Envelope{}, errs.NewError(errs.ErrMalformedEnvelope)
		}
	case TypeCandidate:
		if len(env.Candidate) == 0 || bytes.Equal(env.Candidate, jsonNull) {
			return Envelope{}, errs.NewError(errs.ErrMalformedEnvelope)
		}
	case TypeLeave:
		// No required fields.
	default:
		return Envelope{}, errs.NewError(errs.ErrMalformedEnvelope)
	}

	return env, nil
}
