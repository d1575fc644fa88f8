/*
Package handler provides the HTTP handlers and routing setup for the relay server.

This file contains the HandleWebSocket function, which is responsible for rate
limiting, validating the relay kind and room parameters, upgrading the HTTP
connection to WebSocket, and joining the connection to its room.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"talkrelay/internal/app/room"
	"talkrelay/internal/app/ws"
	"talkrelay/internal/pkg/errs"
	"talkrelay/internal/pkg/limiter"
	"talkrelay/internal/pkg/logx"
	"talkrelay/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc processing relay connection
// requests on /api/v1/ws/{kind}/{room}?username=NAME.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		kind := room.Kind(chi.URLParam(r, "kind"))
		roomID := chi.URLParam(r, "room")
		username := r.URL.Query().Get("username")

		if !kind.Valid() {
			logx.Warn("WebSocket request rejected: Unknown relay kind.", "kind", string(kind))
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomKindInvalid))
			return
		}

		if roomID == "" || username == "" {
			logx.Warn("WebSocket request rejected: Missing room or username.", "room_id", roomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		conn := ws.NewConn(sock, username)

		rm, joinErr := deps.Registry.Join(kind, roomID, conn)
		if joinErr != nil {
			logx.Warn("WebSocket connection rejected at join.",
				"room_id", roomID,
				"kind", string(kind),
				"err_code", joinErr.Code,
			)

			closeCode := websocket.ClosePolicyViolation
			if joinErr.Code == errs.ErrRoomFull {
				closeCode = ws.CloseCodeRoomFull
			}
			conn.Reject(closeCode, joinErr.Message)
			return
		}

		logx.Info("WebSocket connection established.",
			"conn_id", conn.ID(),
			"room_id", roomID,
			"kind", string(kind),
		)

		go conn.WritePump()

		conn.ReadPump(rm)
	}
}
