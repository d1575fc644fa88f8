package signal

import (
	"bytes"
	"testing"

	"talkrelay/internal/app/room"
	"talkrelay/internal/pkg/errs"
	"talkrelay/internal/pkg/logx"
)

type fakeMember struct {
	id     string
	name   string
	sent   [][]byte
	fail   bool
	closed bool
}

func (m *fakeMember) ID() string   { return m.id }
func (m *fakeMember) Name() string { return m.name }
func (m *fakeMember) Close()       { m.closed = true }

func (m *fakeMember) Send(payload []byte) error {
	if m.fail {
		return errs.NewError(errs.ErrSendQueueFull)
	}
	m.sent = append(m.sent, payload)
	return nil
}

// fakeCtx mirrors the room loop's Ctx semantics for a signaling room.
type fakeCtx struct {
	members []*fakeMember
	relay   room.Relay
	closed  bool
}

func (c *fakeCtx) ID() string       { return "call-1" }
func (c *fakeCtx) Kind() room.Kind  { return room.KindSignal }
func (c *fakeCtx) MemberCount() int { return len(c.members) }
func (c *fakeCtx) Close()           { c.closed = true }

func (c *fakeCtx) Members() []room.Member {
	out := make([]room.Member, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m)
	}
	return out
}

func (c *fakeCtx) Broadcast(from room.Member, payload []byte, includeSender bool) {
	for _, m := range c.members {
		if !includeSender && from != nil && m.ID() == from.ID() {
			continue
		}
		m.Send(payload)
	}
}

func (c *fakeCtx) SendTo(m room.Member, payload []byte) error {
	var fm *fakeMember
	for _, cur := range c.members {
		if cur.id == m.ID() {
			fm = cur
			break
		}
	}
	if fm == nil {
		return errs.NewError(errs.ErrConnClosed)
	}
	if err := fm.Send(payload); err != nil {
		c.evict(fm)
		return err
	}
	return nil
}

func (c *fakeCtx) evict(m *fakeMember) {
	for i, cur := range c.members {
		if cur.id == m.id {
			c.members = append(c.members[:i], c.members[i+1:]...)
			m.Close()
			if c.relay != nil {
				c.relay.OnLeave(c, m)
			}
			return
		}
	}
}

// join registers m with both the fake room and the relay.
func (c *fakeCtx) join(relay *Relay, m *fakeMember) {
	c.members = append(c.members, m)
	relay.OnJoin(c, m)
}

func newTestRelay() (*Relay, *fakeCtx) {
	relay := NewRelay("call-1", *logx.Logger())
	rc := &fakeCtx{relay: relay}
	return relay, rc
}

var (
	offer      = []byte(`{"type":"offer","sdp":"X"}`)
	answer     = []byte(`{"type":"answer","sdp":"Y"}`)
	candidateA = []byte(`{"type":"candidate","candidate":{"c":"a1"}}`)
	candidateB = []byte(`{"type":"candidate","candidate":{"c":"b1"}}`)
	leave      = []byte(`{"type":"leave"}`)
)

func TestHandshakeBothPresent(t *testing.T) {
	relay, rc := newTestRelay()
	init := &fakeMember{id: "i", name: "alice"}
	resp := &fakeMember{id: "r", name: "bob"}
	rc.join(relay, init)
	rc.join(relay, resp)

	if relay.state != StateAwaitingOffer {
		t.Fatalf("state = %v, want awaiting_offer", relay.state)
	}

	relay.OnMessage(rc, init, offer)
	if len(resp.sent) != 1 || !bytes.Equal(resp.sent[0], offer) {
		t.Fatalf("responder got %q, want the offer verbatim", resp.sent)
	}
	if relay.state != StateAwaitingAnswer {
		t.Fatalf("state = %v, want awaiting_answer", relay.state)
	}

	relay.OnMessage(rc, resp, answer)
	if len(init.sent) != 1 || !bytes.Equal(init.sent[0], answer) {
		t.Fatalf("initiator got %q, want the answer verbatim", init.sent)
	}
	if relay.state != StateConnected {
		t.Fatalf("state = %v, want connected", relay.state)
	}

	relay.OnMessage(rc, init, candidateA)
	relay.OnMessage(rc, resp, candidateB)
	if len(resp.sent) != 2 || !bytes.Equal(resp.sent[1], candidateA) {
		t.Fatalf("responder candidates = %q", resp.sent)
	}
	if len(init.sent) != 2 || !bytes.Equal(init.sent[1], candidateB) {
		t.Fatalf("initiator candidates = %q", init.sent)
	}
}

func TestOfferHeldUntilResponderJoins(t *testing.T) {
	relay, rc := newTestRelay()
	init := &fakeMember{id: "i", name: "alice"}
	rc.join(relay, init)

	relay.OnMessage(rc, init, offer)
	if relay.state != StateAwaitingOffer {
		t.Fatalf("state = %v, want awaiting_offer while responder absent", relay.state)
	}

	resp := &fakeMember{id: "r", name: "bob"}
	rc.join(relay, resp)

	if len(resp.sent) != 1 || !bytes.Equal(resp.sent[0], offer) {
		t.Fatalf("responder got %q, want the pending offer on join", resp.sent)
	}
	if relay.state != StateAwaitingAnswer {
		t.Fatalf("state = %v, want awaiting_answer", relay.state)
	}
}

func TestCandidatesBufferedUntilPairing(t *testing.T) {
	relay, rc := newTestRelay()
	init := &fakeMember{id: "i", name: "alice"}
	resp := &fakeMember{id: "r", name: "bob"}
	rc.join(relay, init)
	rc.join(relay, resp)

	// Candidates ahead of the offer must not reach the peer yet.
	c1 := []byte(`{"type":"candidate","candidate":{"c":"1"}}`)
	c2 := []byte(`{"type":"candidate","candidate":{"c":"2"}}`)
	relay.OnMessage(rc, init, c1)
	relay.OnMessage(rc, init, c2)
	if len(resp.sent) != 0 {
		t.Fatalf("responder received candidates before the offer: %q", resp.sent)
	}

	relay.OnMessage(rc, init, offer)

	want := [][]byte{offer, c1, c2}
	if len(resp.sent) != len(want) {
		t.Fatalf("responder got %d messages, want %d", len(resp.sent), len(want))
	}
	for i := range want {
		if !bytes.Equal(resp.sent[i], want[i]) {
			t.Fatalf("responder message %d = %s, want %s", i, resp.sent[i], want[i])
		}
	}

	// The flush must be exactly-once: completing the handshake does not
	// re-deliver buffered candidates.
	relay.OnMessage(rc, resp, answer)
	if len(resp.sent) != len(want) {
		t.Fatalf("buffered candidates delivered twice: %q", resp.sent)
	}
}

func TestCandidateBufferedBeforePeerJoins(t *testing.T) {
	relay, rc := newTestRelay()
	init := &fakeMember{id: "i", name: "alice"}
	rc.join(relay, init)

	relay.OnMessage(rc, init, candidateA)
	relay.OnMessage(rc, init, offer)

	resp := &fakeMember{id: "r", name: "bob"}
	rc.join(relay, resp)

	want := [][]byte{offer, candidateA}
	if len(resp.sent) != len(want) {
		t.Fatalf("responder got %d messages, want %d", len(resp.sent), len(want))
	}
	for i := range want {
		if !bytes.Equal(resp.sent[i], want[i]) {
			t.Fatalf("responder message %d = %s, want %s", i, resp.sent[i], want[i])
		}
	}
}

func TestLeaveForwardsSyntheticLeave(t *testing.T) {
	relay, rc := newTestRelay()
	init := &fakeMember{id: "i", name: "alice"}
	resp := &fakeMember{id: "r", name: "bob"}
	rc.join(relay, init)
	rc.join(relay, resp)
	relay.OnMessage(rc, init, offer)

	relay.OnMessage(rc, resp, leave)

	if len(init.sent) != 1 || string(init.sent[0]) != `{"type":"leave"}` {
		t.Fatalf("initiator got %q, want synthetic leave", init.sent)
	}
	if relay.state != StateClosed {
		t.Fatalf("state = %v, want closed", relay.state)
	}
	if !rc.closed {
		t.Fatal("room not closed after leave")
	}

	// Envelopes after close are dropped silently.
	relay.OnMessage(rc, init, candidateA)
	if len(resp.sent) != 1 {
		t.Fatalf("closed room still forwarded: %q", resp.sent)
	}
}

func TestAbruptDisconnectClosesRoom(t *testing.T) {
	relay, rc := newTestRelay()
	init := &fakeMember{id: "i", name: "alice"}
	resp := &fakeMember{id: "r", name: "bob"}
	rc.join(relay, init)
	rc.join(relay, resp)
	relay.OnMessage(rc, init, offer)
	relay.OnMessage(rc, resp, answer)

	// The room loop removes the member, then calls OnLeave.
	rc.members = rc.members[1:]
	relay.OnLeave(rc, init)

	if len(resp.sent) != 2 || string(resp.sent[1]) != `{"type":"leave"}` {
		t.Fatalf("responder got %q, want synthetic leave appended", resp.sent)
	}
	if relay.state != StateClosed || !rc.closed {
		t.Fatal("room not closed after abrupt disconnect")
	}
}

func TestOutOfOrderEnvelopesDropped(t *testing.T) {
	relay, rc := newTestRelay()
	init := &fakeMember{id: "i", name: "alice"}
	resp := &fakeMember{id: "r", name: "bob"}
	rc.join(relay, init)
	rc.join(relay, resp)

	// Answer before any offer.
	relay.OnMessage(rc, resp, answer)
	if len(init.sent) != 0 {
		t.Fatalf("initiator got %q, want stray answer dropped", init.sent)
	}
	if relay.state != StateAwaitingOffer {
		t.Fatalf("state = %v, want awaiting_offer untouched", relay.state)
	}

	// Offer from the responder.
	relay.OnMessage(rc, resp, offer)
	if len(init.sent) != 0 {
		t.Fatalf("initiator got %q, want responder offer dropped", init.sent)
	}

	// Duplicate offer after the handshake moved on.
	relay.OnMessage(rc, init, offer)
	relay.OnMessage(rc, init, offer)
	if len(resp.sent) != 1 {
		t.Fatalf("responder got %d offers, want 1", len(resp.sent))
	}
}

func TestMalformedEnvelopeDropped(t *testing.T) {
	relay, rc := newTestRelay()
	init := &fakeMember{id: "i", name: "alice"}
	resp := &fakeMember{id: "r", name: "bob"}
	rc.join(relay, init)
	rc.join(relay, resp)

	for _, payload := range [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"dance"}`),
		[]byte(`{"type":"offer"}`),
		[]byte(`{"type":"answer"}`),
		[]byte(`{"type":"candidate"}`),
		[]byte(`{"type":"candidate","candidate":null}`),
	} {
		relay.OnMessage(rc, init, payload)
	}

	if len(resp.sent) != 0 {
		t.Fatalf("responder got %q, want all malformed envelopes dropped", resp.sent)
	}
	if init.closed || relay.state == StateClosed {
		t.Fatal("malformed envelope closed the connection or room")
	}
}
