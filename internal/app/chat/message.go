package chat

import (
	"encoding/json"
	"errors"
	"time"

	"ticketchat/internal/app/db/sqlc"
	"ticketchat/internal/pkg/errs"
)

// Event is the frame relayed to every attached participant.
type Event struct {
	MessageText string    `json:"message_text"`
	UserID      int64     `json:"user_id"`
	Datetime    time.Time `json:"datetime"`
}

// ErrorEvent is sent to a single connection when one of its frames is rejected.
type ErrorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MessageView is a persisted chat message as returned by the history endpoint.
type MessageView struct {
	ID          int64     `json:"id"`
	TicketID    int64     `json:"ticket_id"`
	UserID      int64     `json:"user_id"`
	MessageText string    `json:"message_text"`
	Datetime    time.Time `json:"datetime"`
}

func newMessageView(m sqlc.ChatMessage) MessageView {
	return MessageView{
		ID:          m.ID,
		TicketID:    m.TicketID,
		UserID:      m.UserID,
		MessageText: m.MessageText,
		Datetime:    m.CreatedAt.Time,
	}
}

// encodeError renders err as an ErrorEvent frame.
func encodeError(err error) []byte {
	event := ErrorEvent{Code: errs.ErrUnknown, Message: "Internal server error"}

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		event.Code = customErr.Code
		event.Message = customErr.Message
	}

	// marshaling two scalar fields cannot fail
	payload, _ := json.Marshal(event)
	return payload
}
