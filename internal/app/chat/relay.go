/*
Package chat implements the text chat relay.

This file defines the Relay, one instance per chat room. Every callback runs
on the room's loop goroutine; the relay itself keeps no mutable state.
*/
package chat

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"talkrelay/internal/app/room"
)

// Relay fans chat messages out to every room member except the sender. The
// sender renders its own message optimistically on the client side, so the
// relay must never echo it back.
type Relay struct {
	logger zerolog.Logger
}

// NewRelay constructs the chat relay for one room.
func NewRelay(roomID string, logger zerolog.Logger) *Relay {
	return &Relay{
		logger: logger.With().Str("relay", "chat").Str("room_id", roomID).Logger(),
	}
}

// OnJoin announces the new member to the rest of the room.
func (r *Relay) OnJoin(rc room.Ctx, m room.Member) {
	r.announce(rc, m, fmt.Sprintf("%s joined", m.Name()))
}

// OnMessage forwards one inbound frame to all other members. Canonical
// envelopes are forwarded byte-for-byte; anything that fails to parse
// degrades to the freeform heuristics and never crashes the relay.
func (r *Relay) OnMessage(rc room.Ctx, from room.Member, payload []byte) {
	if _, ok := parseStructured(payload); ok {
		rc.Broadcast(from, payload, false)
		return
	}

	envelope := decodeFreeform(string(payload))

	encoded, err := json.Marshal(envelope)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to encode freeform envelope.")
		return
	}

	r.logger.Debug().
		Str("conn_id", from.ID()).
		Str("tagged_as", envelope.Username).
		Msg("Freeform frame forwarded.")

	rc.Broadcast(from, encoded, false)
}

// OnLeave announces the departure to the remaining members.
func (r *Relay) OnLeave(rc room.Ctx, m room.Member) {
	r.announce(rc, m, fmt.Sprintf("%s left", m.Name()))
}

// announce broadcasts a server-tagged notice to everyone but the subject.
func (r *Relay) announce(rc room.Ctx, subject room.Member, text string) {
	notice, err := serverNotice(text)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to encode server notice.")
		return
	}

	rc.Broadcast(subject, notice, false)
}
