/*
Package ws wraps a gorilla WebSocket connection into the relay's Connection
abstraction: a process-unique identity, a bounded outbound queue drained by a
write pump, and a read pump that feeds inbound frames to the owning room in
arrival order.
*/
package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"talkrelay/internal/app/room"
	"talkrelay/internal/pkg/errs"
	"talkrelay/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 8192

	// capacity of the per-connection outbound queue. A full queue fails the
	// send instead of stalling the room.
	sendQueueSize = 256

	// CloseCodeRoomFull is the custom WebSocket Close Code (4000-4999 range)
	// sent to a client rejected from a full signaling room.
	CloseCodeRoomFull = 4002
)

// Conn represents one client's transport session. It satisfies room.Member.
type Conn struct {
	// id is the opaque, process-unique connection identifier.
	id string

	// name is the participant display name taken from the connect request.
	name string

	// sock is the underlying WebSocket connection. The write pump is the
	// only writer after the pumps start.
	sock *websocket.Conn

	// send is the bounded outbound queue drained by the write pump.
	send chan []byte

	// closed is closed exactly once when the connection enters the closed
	// state, by whichever side detects the transport is gone first.
	closed    chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

// NewConn wraps an upgraded WebSocket connection for the named participant.
func NewConn(sock *websocket.Conn, name string) *Conn {
	id := uuid.NewString()

	connLogger := logx.Logger().With().
		Str("conn_id", id).
		Str("participant", name).
		Logger()

	return &Conn{
		id:     id,
		name:   name,
		sock:   sock,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
		logger: connLogger,
	}
}

// ID returns the process-unique connection identifier.
func (c *Conn) ID() string { return c.id }

// Name returns the participant display name. Attacker-controllable; never
// trusted for authorization.
func (c *Conn) Name() string { return c.name }

// Send queues payload for delivery to the client. It fails fast with
// ErrConnClosed on a closed connection and ErrSendQueueFull under
// backpressure; it never blocks the caller.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errs.NewError(errs.ErrConnClosed)
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return errs.NewError(errs.ErrConnClosed)
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, dropping message.")
		return errs.NewError(errs.ErrSendQueueFull)
	}
}

// Close transitions the connection to closed exactly once. The write pump
// drains what it can, writes a close frame, and tears down the socket.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Reject writes a close frame with the given code and reason, then closes.
// Only valid before the pumps have started; afterwards the write pump owns
// the socket.
func (c *Conn) Reject(code int, reason string) {
	closeMessage := websocket.FormatCloseMessage(code, reason)

	c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.sock.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Warn().Err(err).Int("close_code", code).Msg("Failed to write rejection close frame.")
	}

	c.Close()
	c.sock.Close()
}

// ReadPump reads frames from the WebSocket connection and delivers them to rm
// until the transport goes away, then performs the one leave cleanup for this
// connection. It blocks the calling goroutine.
func (c *Conn) ReadPump(rm *room.Room) {
	defer func() {
		rm.Leave(c)
		c.Close()
	}()

	c.sock.SetReadLimit(maxMessageSize)

	if err := c.sock.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			break
		}

		rm.Deliver(c, payload)
	}
}

// WritePump drains the send queue to the WebSocket connection and keeps the
// heartbeat alive. It exits on write failure or once the connection closes,
// after flushing whatever was already queued.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Close()

		if err := c.sock.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Socket close error in WritePump")
		}
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeMessage(message) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}

		case <-c.closed:
			c.flushAndCloseFrame()
			return
		}
	}
}

// writeMessage writes one queued text frame. Returns false when the pump
// should terminate.
func (c *Conn) writeMessage(message []byte) bool {
	if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.sock.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePing sends the periodic heartbeat frame. Returns false when the pump
// should terminate.
func (c *Conn) writePing() bool {
	if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// flushAndCloseFrame delivers frames that were queued before the close, then
// writes the close frame.
func (c *Conn) flushAndCloseFrame() {
	for {
		select {
		case message := <-c.send:
			if !c.writeMessage(message) {
				return
			}
		default:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing close message")
			}
			return
		}
	}
}
