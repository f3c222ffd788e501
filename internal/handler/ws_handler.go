/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, upgrading the
HTTP connection to WebSocket, attaching it to the ticket's channel and running the client lifecycle.
*/
package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"ticketchat/internal/app/chat"
	"ticketchat/internal/pkg/errs"
	"ticketchat/internal/pkg/limiter"
	"ticketchat/internal/pkg/logx"
	"ticketchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc for GET /ws/chat?user_id=&chat_token=.
// The connection is upgraded before validation so that a missing channel or a
// foreign participant is reported as a 1008 close frame.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(limiter.ClientIP(r)))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		query := r.URL.Query()
		chatToken := query.Get("chat_token")
		participantID, parseErr := strconv.ParseInt(query.Get("user_id"), 10, 64)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(conn, participantID)

		if parseErr != nil || participantID <= 0 {
			logx.Info("WebSocket connection rejected: Invalid user_id.")
			client.Close(chat.CloseStatus(errs.NewError(errs.ErrNotAuthorised)))
			return
		}

		session, err := deps.Chat.Attach(r.Context(), chatToken, participantID, client)
		if err != nil {
			logx.Info("WebSocket connection rejected.", "user_id", participantID, "code", errs.CodeOf(err))
			client.Close(chat.CloseStatus(err))
			return
		}

		logx.Info("WebSocket connection established",
			"ticket_id", session.TicketID(),
			"user_id", participantID,
			"attached", session.Attached(),
		)

		client.Run(r.Context(), session)
	}
}
