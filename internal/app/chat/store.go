package chat

import (
	"context"

	"ticketchat/internal/app/db"
	"ticketchat/internal/app/db/sqlc"
)

// Store is the persistence the chat subsystem depends on. *db.Store implements it
// against PostgreSQL and memstore.Store in memory.
type Store interface {
	OpenTicket(ctx context.Context, arg sqlc.CreateTicketParams) (sqlc.TicketChat, error)
	CloseTicket(ctx context.Context, id int64) (sqlc.TicketChat, error)
	TicketByToken(ctx context.Context, token string) (sqlc.TicketChat, error)
	TicketByID(ctx context.Context, id int64) (sqlc.TicketChat, error)
	HasOpenTicket(ctx context.Context, userID int64) (bool, error)
	OpenTicketsByUser(ctx context.Context, userID int64) ([]sqlc.TicketChat, error)
	OpenTicketsByMentor(ctx context.Context, mentorID int64) ([]sqlc.TicketChat, error)
	SaveChatMessage(ctx context.Context, arg sqlc.InsertChatMessageParams) (sqlc.ChatMessage, error)
	ChatMessages(ctx context.Context, ticketID int64) ([]sqlc.ChatMessage, error)
}

var _ Store = (*db.Store)(nil)
