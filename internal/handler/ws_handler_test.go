package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"talkrelay/internal/app/chat"
	"talkrelay/internal/app/room"
	signalrelay "talkrelay/internal/app/signal"
	"talkrelay/internal/app/ws"
	"talkrelay/internal/configs"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	registry := room.NewRegistry(func(kind room.Kind, roomID string, logger zerolog.Logger) room.Relay {
		if kind == room.KindSignal {
			return signalrelay.NewRelay(roomID, logger)
		}
		return chat.NewRelay(roomID, logger)
	})

	deps := &AppDeps{
		Config: &configs.AppConfig{
			Environment:    "development",
			Port:           8080,
			AllowedOrigins: []string{},
		},
		Registry: registry,
	}

	srv := httptest.NewServer(Router(deps))
	t.Cleanup(func() {
		srv.Close()
		registry.Shutdown()
	})

	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(payload)
}

// expectSilence asserts that no frame arrives within the window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, payload, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no message, got %q", payload)
	}
}

func TestChatRelayEndToEnd(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv, "/api/v1/ws/chat/general?username=alice")
	bob := dial(t, srv, "/api/v1/ws/chat/general?username=bob")

	if got := readText(t, alice); got != `{"username":"server","message":"bob joined"}` {
		t.Fatalf("alice got %q, want join notice", got)
	}

	sent := `{"username":"bob","message":"hi"}`
	if err := bob.WriteMessage(websocket.TextMessage, []byte(sent)); err != nil {
		t.Fatalf("bob write: %v", err)
	}

	if got := readText(t, alice); got != sent {
		t.Fatalf("alice got %q, want %q forwarded verbatim", got, sent)
	}

	// The relay never echoes a message back to its sender.
	expectSilence(t, bob)

	// Raw text degrades to a server-tagged freeform message.
	if err := alice.WriteMessage(websocket.TextMessage, []byte("howdy")); err != nil {
		t.Fatalf("alice write: %v", err)
	}
	if got := readText(t, bob); got != `{"username":"server","message":"howdy"}` {
		t.Fatalf("bob got %q, want server-tagged freeform", got)
	}
}

func TestSignalingRelayEndToEnd(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv, "/api/v1/ws/webrtc/call-9?username=a")

	// The initiator may offer before the responder's connection registers;
	// the offer must still be the responder's first frame.
	offer := `{"type":"offer","sdp":"X"}`
	if err := a.WriteMessage(websocket.TextMessage, []byte(offer)); err != nil {
		t.Fatalf("a write offer: %v", err)
	}

	b := dial(t, srv, "/api/v1/ws/webrtc/call-9?username=b")

	if got := readText(t, b); got != offer {
		t.Fatalf("b got %q, want the offer", got)
	}

	// A third participant is rejected without disturbing the call.
	c := dial(t, srv, "/api/v1/ws/webrtc/call-9?username=c")
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); !websocket.IsCloseError(err, ws.CloseCodeRoomFull) {
		t.Fatalf("c read: %v, want close code %d", err, ws.CloseCodeRoomFull)
	}

	answer := `{"type":"answer","sdp":"Y"}`
	if err := b.WriteMessage(websocket.TextMessage, []byte(answer)); err != nil {
		t.Fatalf("b write answer: %v", err)
	}
	if got := readText(t, a); got != answer {
		t.Fatalf("a got %q, want the answer", got)
	}

	candidate := `{"type":"candidate","candidate":{"c":"b1"}}`
	if err := b.WriteMessage(websocket.TextMessage, []byte(candidate)); err != nil {
		t.Fatalf("b write candidate: %v", err)
	}
	if got := readText(t, a); got != candidate {
		t.Fatalf("a got %q, want the candidate", got)
	}

	// Abrupt disconnect of one party delivers a synthetic leave to the peer.
	a.Close()
	if got := readText(t, b); got != `{"type":"leave"}` {
		t.Fatalf("b got %q, want synthetic leave", got)
	}
}

func TestUnknownKindRejectedBeforeUpgrade(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/video/x?username=a"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial with unknown kind succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("response = %+v, want 404", resp)
	}
}

func TestMissingUsernameRejected(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/chat/general"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without username succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("response = %+v, want 400", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
}
