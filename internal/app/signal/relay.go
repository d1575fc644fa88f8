/*
Package signal implements the two-party WebRTC signaling relay.

This file defines the Relay, a per-room state machine enforcing the handshake
sequence: the first joiner is the initiator, the second the responder; the
offer travels initiator-to-responder, the answer back, and candidates flow
both ways once the pairing envelope has been forwarded. All callbacks run on
the room's loop goroutine, so no locking is needed here.
*/
package signal

import (
	"github.com/rs/zerolog"

	"talkrelay/internal/app/room"
)

// State is the handshake progress of one signaling room.
type State int

const (
	// StateEmpty: no participant has joined yet.
	StateEmpty State = iota

	// StateAwaitingOffer: the initiator is present; no offer forwarded yet.
	StateAwaitingOffer

	// StateAwaitingAnswer: the offer reached the responder.
	StateAwaitingAnswer

	// StateConnected: the answer reached the initiator.
	StateConnected

	// StateClosed: a participant left; the room accepts nothing further.
	StateClosed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAwaitingOffer:
		return "awaiting_offer"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Relay is the signaling state machine for one room. It forwards envelopes
// blindly between the two participants and enforces only who may talk to
// whom, plus cleanup propagation to the peer.
type Relay struct {
	state State

	// initiatorID and responderID hold the connection IDs of the first and
	// second joiner respectively. Empty until the role is taken.
	initiatorID string
	responderID string

	// pendingOffer holds an offer sent before the responder joined; it is
	// delivered the moment the responder registers.
	pendingOffer []byte

	// pendingCandidates buffers candidate envelopes, keyed by sender
	// connection ID, until the pairing envelope has been forwarded. They are
	// then flushed to the peer in arrival order, exactly once.
	pendingCandidates map[string][][]byte

	logger zerolog.Logger
}

// NewRelay constructs the signaling relay for one room.
func NewRelay(roomID string, logger zerolog.Logger) *Relay {
	return &Relay{
		state:             StateEmpty,
		pendingCandidates: make(map[string][][]byte),
		logger:            logger.With().Str("relay", "signal").Str("room_id", roomID).Logger(),
	}
}

// OnJoin assigns the joiner its role. A responder joining after the initiator
// already offered receives that pending offer immediately, which handles the
// race where the offer beats the responder's registration.
func (r *Relay) OnJoin(rc room.Ctx, m room.Member) {
	switch r.state {
	case StateEmpty:
		r.initiatorID = m.ID()
		r.state = StateAwaitingOffer
		r.logger.Info().Str("conn_id", m.ID()).Msg("Initiator joined.")

	case StateAwaitingOffer:
		r.responderID = m.ID()
		r.logger.Info().Str("conn_id", m.ID()).Msg("Responder joined.")

		if r.pendingOffer != nil {
			offer := r.pendingOffer
			r.pendingOffer = nil

			if err := rc.SendTo(m, offer); err != nil {
				// Eviction already triggered OnLeave; the room is closing.
				return
			}
			r.state = StateAwaitingAnswer
			r.flushCandidates(rc)
		}

	default:
		// Capacity 2 is enforced at join; a third member cannot get here.
		r.logger.Warn().
			Str("conn_id", m.ID()).
			Stringer("state", r.state).
			Msg("Unexpected join for current state.")
	}
}

// OnMessage validates and forwards one envelope according to the state
// machine. Malformed and out-of-order envelopes are dropped with a warning;
// the sending connection stays open.
func (r *Relay) OnMessage(rc room.Ctx, from room.Member, payload []byte) {
	if r.state == StateClosed {
		r.logger.Warn().Str("conn_id", from.ID()).Msg("Envelope for closed room dropped.")
		return
	}

	env, decodeErr := Decode(payload)
	if decodeErr != nil {
		r.logger.Warn().
			Str("conn_id", from.ID()).
			Msg("Malformed signaling envelope dropped.")
		return
	}

	switch env.Type {
	case TypeOffer:
		r.handleOffer(rc, from, payload)
	case TypeAnswer:
		r.handleAnswer(rc, from, payload)
	case TypeCandidate:
		r.handleCandidate(rc, from, payload)
	case TypeLeave:
		r.logger.Info().Str("conn_id", from.ID()).Msg("Leave received. Closing room.")
		r.closeRoom(rc, from)
	}
}

// OnLeave propagates an abrupt departure exactly like an explicit leave: the
// surviving member receives a synthetic leave and the room closes.
func (r *Relay) OnLeave(rc room.Ctx, m room.Member) {
	if r.state == StateClosed {
		return
	}

	r.logger.Info().Str("conn_id", m.ID()).Msg("Participant gone. Closing room.")
	r.closeRoom(rc, m)
}

// handleOffer accepts the first offer from the initiator. With no responder
// present yet the offer is held pending; otherwise it is forwarded verbatim.
func (r *Relay) handleOffer(rc room.Ctx, from room.Member, payload []byte) {
	if from.ID() != r.initiatorID || r.state != StateAwaitingOffer {
		r.dropOutOfOrder(from, TypeOffer)
		return
	}

	responder := r.memberByID(rc, r.responderID)
	if responder == nil {
		r.pendingOffer = payload
		r.logger.Debug().Msg("Offer held pending responder join.")
		return
	}

	if err := rc.SendTo(responder, payload); err != nil {
		return
	}
	r.state = StateAwaitingAnswer
	r.flushCandidates(rc)
}

// handleAnswer accepts the answer from the responder and completes the
// handshake.
func (r *Relay) handleAnswer(rc room.Ctx, from room.Member, payload []byte) {
	if from.ID() != r.responderID || r.state != StateAwaitingAnswer {
		r.dropOutOfOrder(from, TypeAnswer)
		return
	}

	initiator := r.memberByID(rc, r.initiatorID)
	if initiator == nil {
		return
	}

	if err := rc.SendTo(initiator, payload); err != nil {
		return
	}
	r.state = StateConnected
	r.flushCandidates(rc)
}

// handleCandidate forwards a candidate to the peer, buffering it while no
// pairing envelope has been forwarded yet so a candidate never arrives ahead
// of the offer that established the pairing.
func (r *Relay) handleCandidate(rc room.Ctx, from room.Member, payload []byte) {
	if r.state != StateAwaitingAnswer && r.state != StateConnected {
		r.bufferCandidate(from.ID(), payload)
		return
	}

	peer := r.peerOf(rc, from.ID())
	if peer == nil {
		r.bufferCandidate(from.ID(), payload)
		return
	}

	rc.SendTo(peer, payload)
}

// bufferCandidate queues a candidate for delivery once the peer is known.
func (r *Relay) bufferCandidate(senderID string, payload []byte) {
	r.pendingCandidates[senderID] = append(r.pendingCandidates[senderID], payload)
	r.logger.Debug().
		Str("conn_id", senderID).
		Int("buffered", len(r.pendingCandidates[senderID])).
		Msg("Candidate buffered until pairing is established.")
}

// flushCandidates delivers every buffered candidate to the sender's peer, in
// arrival order, then clears the buffer so each is delivered exactly once.
func (r *Relay) flushCandidates(rc room.Ctx) {
	for senderID, queued := range r.pendingCandidates {
		peer := r.peerOf(rc, senderID)
		if peer == nil {
			continue
		}

		delete(r.pendingCandidates, senderID)
		for _, payload := range queued {
			if err := rc.SendTo(peer, payload); err != nil {
				break
			}
		}
	}
}

// closeRoom forwards a synthetic leave to every member other than the one
// leaving, then transitions to Closed and shuts the room down.
func (r *Relay) closeRoom(rc room.Ctx, leaving room.Member) {
	if r.state == StateClosed {
		return
	}
	r.state = StateClosed

	for _, m := range rc.Members() {
		if leaving != nil && m.ID() == leaving.ID() {
			continue
		}
		rc.SendTo(m, leaveEnvelope)
	}

	rc.Close()
}

// dropOutOfOrder logs a protocol-ordering violation. A stray duplicate must
// not terminate an otherwise healthy session, so the envelope is discarded.
func (r *Relay) dropOutOfOrder(from room.Member, envType Type) {
	r.logger.Warn().
		Str("conn_id", from.ID()).
		Str("envelope_type", string(envType)).
		Stringer("state", r.state).
		Msg("Out-of-order signaling envelope dropped.")
}

// memberByID resolves a member by connection ID, or nil when absent.
func (r *Relay) memberByID(rc room.Ctx, id string) room.Member {
	if id == "" {
		return nil
	}
	for _, m := range rc.Members() {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

// peerOf returns the other participant, or nil when the sender has no peer
// yet.
func (r *Relay) peerOf(rc room.Ctx, senderID string) room.Member {
	switch senderID {
	case r.initiatorID:
		return r.memberByID(rc, r.responderID)
	case r.responderID:
		return r.memberByID(rc, r.initiatorID)
	}
	return nil
}
