/*
Package room contains the shared room registry and the per-room event loop used
by both relay kinds.

This file defines the Room struct. A Room owns its member set and serializes
every membership change, inbound frame, and fan-out on a single goroutine, so
a broadcast never observes the room mid-mutation.
*/
package room

import (
	"sync"

	"github.com/rs/zerolog"

	"talkrelay/internal/pkg/errs"
	"talkrelay/internal/pkg/logx"
)

// inboundBuffer bounds how many frames per room may wait for the loop. A full
// buffer applies backpressure to the sending connection's read pump only.
const inboundBuffer = 64

// joinRequest carries a candidate member into the room loop together with the
// channel its verdict is reported on. The capacity check happens inside the
// loop, atomically with the membership insert.
type joinRequest struct {
	member Member
	reply  chan *errs.CustomError
}

// frame is one inbound payload attributed to the member that sent it.
type frame struct {
	from    Member
	payload []byte
}

// cleanupMsg tells the Registry that a room's loop has finished.
type cleanupMsg struct {
	key  string
	room *Room
}

// Room is a single active room of either kind. The fields below need no lock
// because only the run goroutine touches them after construction.
type Room struct {
	id    string
	kind  Kind
	relay Relay

	// members is keyed by Member.ID and owned by the run goroutine.
	members map[string]Member

	join    chan joinRequest
	leave   chan Member
	inbound chan frame

	// done is closed when the run loop has exited; senders select on it so
	// no caller blocks against a dead room.
	done chan struct{}

	// stop is closed by the Registry on shutdown.
	stop     chan struct{}
	stopOnce sync.Once

	// closing is set via Ctx.Close; the loop exits after the current event.
	closing bool

	cleanup chan<- cleanupMsg
	key     string

	logger zerolog.Logger
}

func newRoom(key string, id string, kind Kind, relay Relay, cleanup chan<- cleanupMsg) *Room {
	roomLogger := logx.Logger().With().
		Str("room_id", id).
		Str("room_kind", string(kind)).
		Logger()

	return &Room{
		id:      id,
		kind:    kind,
		relay:   relay,
		members: make(map[string]Member),
		join:    make(chan joinRequest),
		leave:   make(chan Member),
		inbound: make(chan frame, inboundBuffer),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
		cleanup: cleanup,
		key:     key,
		logger:  roomLogger,
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Kind returns the room kind.
func (r *Room) Kind() Kind { return r.kind }

// MemberCount returns the current number of members. Loop-goroutine only.
func (r *Room) MemberCount() int { return len(r.members) }

// Members returns a snapshot of the current members. Loop-goroutine only.
func (r *Room) Members() []Member {
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Close marks the room closed from inside a relay callback.
func (r *Room) Close() { r.closing = true }

// Done returns a channel closed once the room loop has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Stop terminates the room loop immediately. Used by the Registry on shutdown.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Deliver hands an inbound frame from m to the room loop, preserving the
// member's arrival order. Frames for a dead room are discarded.
func (r *Room) Deliver(m Member, payload []byte) {
	select {
	case r.inbound <- frame{from: m, payload: payload}:
	case <-r.done:
	}
}

// Leave removes m from the room. Idempotent: leaving twice, or leaving a room
// that already shut down, is a no-op.
func (r *Room) Leave(m Member) {
	select {
	case r.leave <- m:
	case <-r.done:
	}
}

// requestJoin submits a join to the room loop and reports whether the loop is
// still alive to take it. The reply channel carries the verdict.
func (r *Room) requestJoin(req joinRequest) bool {
	select {
	case r.join <- req:
		return true
	case <-r.done:
		return false
	}
}

// run is the room's event loop. It exits when the room closes, empties out,
// or is stopped, then notifies the Registry and closes any remaining member
// connections.
func (r *Room) run() {
	defer func() {
		close(r.done)

		for _, m := range r.members {
			m.Close()
		}

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logx.Warn("Recovered from panic during Registry cleanup notification (channel likely closed).")
				}
			}()

			select {
			case r.cleanup <- cleanupMsg{key: r.key, room: r}:
			default:
				r.logger.Warn().Msg("Registry cleanup channel blocked. Skipping cleanup notification.")
			}
		}()

		r.logger.Info().Msg("Room loop finished.")
	}()

	for {
		select {
		case req := <-r.join:
			req.reply <- r.admit(req.member)

		case m := <-r.leave:
			if _, ok := r.members[m.ID()]; !ok {
				continue
			}
			delete(r.members, m.ID())
			r.logger.Info().
				Str("conn_id", m.ID()).
				Int("total_members", len(r.members)).
				Msg("Member left room.")
			r.relay.OnLeave(r, m)

		case f := <-r.inbound:
			if _, ok := r.members[f.from.ID()]; !ok {
				// Sender raced its own removal; the frame belongs to no one.
				continue
			}
			r.relay.OnMessage(r, f.from, f.payload)

		case <-r.stop:
			r.logger.Info().Msg("Room forced stop initiated.")
			return
		}

		if r.closing {
			return
		}
		if len(r.members) == 0 {
			r.logger.Info().Msg("Room is empty. Shutting down room loop.")
			return
		}
	}
}

// admit performs the capacity check and membership insert as one step on the
// loop goroutine, so a concurrent join can never oversubscribe the room.
func (r *Room) admit(m Member) *errs.CustomError {
	if r.closing {
		return errs.NewError(errs.ErrRoomClosed)
	}

	capacity := r.kind.Capacity()
	if capacity > 0 && len(r.members) >= capacity {
		r.logger.Warn().
			Str("conn_id", m.ID()).
			Int("capacity", capacity).
			Msg("Room is full. Join rejected.")
		return errs.NewError(errs.ErrRoomFull)
	}

	r.members[m.ID()] = m
	r.logger.Info().
		Str("conn_id", m.ID()).
		Str("member_name", m.Name()).
		Int("total_members", len(r.members)).
		Msg("Member joined room.")

	r.relay.OnJoin(r, m)
	return nil
}

// Broadcast implements Ctx. It delivers payload to every member matching the
// includeSender policy; members whose Send fails are evicted afterwards so
// the iteration sees a stable snapshot.
func (r *Room) Broadcast(from Member, payload []byte, includeSender bool) {
	var failed []Member

	for _, m := range r.members {
		if !includeSender && from != nil && m.ID() == from.ID() {
			continue
		}
		if err := m.Send(payload); err != nil {
			r.logger.Warn().
				Err(err).
				Str("conn_id", m.ID()).
				Msg("Broadcast send failed, treating member as left.")
			failed = append(failed, m)
		}
	}

	for _, m := range failed {
		r.evict(m)
	}
}

// SendTo implements Ctx. It delivers payload to a single member, evicting it
// on failure.
func (r *Room) SendTo(m Member, payload []byte) error {
	if _, ok := r.members[m.ID()]; !ok {
		return errs.NewError(errs.ErrConnClosed)
	}

	if err := m.Send(payload); err != nil {
		r.logger.Warn().
			Err(err).
			Str("conn_id", m.ID()).
			Msg("Send failed, treating member as left.")
		r.evict(m)
		return err
	}

	return nil
}

// evict removes a member whose connection failed mid-delivery. Runs on the
// loop goroutine only.
func (r *Room) evict(m Member) {
	if _, ok := r.members[m.ID()]; !ok {
		return
	}
	delete(r.members, m.ID())
	m.Close()
	r.relay.OnLeave(r, m)
}
