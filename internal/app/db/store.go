package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketchat/internal/app/db/sqlc"
)

// Store persists tickets, their audit history and chat messages in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	q    *sqlc.Queries
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		q:    sqlc.New(pool),
	}
}

// execTx runs fn inside a transaction, committing on success.
func (s *Store) execTx(ctx context.Context, fn func(q *sqlc.Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(s.q.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func historyOf(t sqlc.TicketChat) sqlc.InsertTicketHistoryParams {
	return sqlc.InsertTicketHistoryParams{
		TicketID: t.ID,
		Token:    t.Token,
		UserID:   t.UserID,
		MentorID: t.MentorID,
		Closed:   t.Closed,
	}
}

// OpenTicket inserts a ticket and its audit row. It returns ErrOpenTicketExists or
// ErrTokenTaken when the corresponding unique index rejects the insert.
func (s *Store) OpenTicket(ctx context.Context, arg sqlc.CreateTicketParams) (sqlc.TicketChat, error) {
	var ticket sqlc.TicketChat

	err := s.execTx(ctx, func(q *sqlc.Queries) error {
		var err error
		if ticket, err = q.CreateTicket(ctx, arg); err != nil {
			return err
		}
		return q.InsertTicketHistory(ctx, historyOf(ticket))
	})

	switch violatedConstraint(err) {
	case constraintTicketOpenUser:
		return sqlc.TicketChat{}, ErrOpenTicketExists
	case constraintTicketToken:
		return sqlc.TicketChat{}, ErrTokenTaken
	}
	if err != nil {
		return sqlc.TicketChat{}, fmt.Errorf("open ticket: %w", err)
	}

	return ticket, nil
}

// CloseTicket marks the ticket closed. Closing an already closed ticket is a no-op
// that returns the stored row; the audit row is written only on the transition.
func (s *Store) CloseTicket(ctx context.Context, id int64) (sqlc.TicketChat, error) {
	var ticket sqlc.TicketChat

	err := s.execTx(ctx, func(q *sqlc.Queries) error {
		current, err := q.GetTicketByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if current.Closed {
			ticket = current
			return nil
		}

		if ticket, err = q.CloseTicket(ctx, id); err != nil {
			return err
		}
		return q.InsertTicketHistory(ctx, historyOf(ticket))
	})
	if err != nil {
		return sqlc.TicketChat{}, notFound(fmt.Errorf("close ticket %d: %w", id, err))
	}

	return ticket, nil
}

// TicketByToken returns the ticket bound to a chat token.
func (s *Store) TicketByToken(ctx context.Context, token string) (sqlc.TicketChat, error) {
	ticket, err := s.q.GetTicketByToken(ctx, token)
	if err != nil {
		return sqlc.TicketChat{}, notFound(fmt.Errorf("ticket by token: %w", err))
	}
	return ticket, nil
}

// TicketByID returns the ticket with the given id.
func (s *Store) TicketByID(ctx context.Context, id int64) (sqlc.TicketChat, error) {
	ticket, err := s.q.GetTicketByID(ctx, id)
	if err != nil {
		return sqlc.TicketChat{}, notFound(fmt.Errorf("ticket %d: %w", id, err))
	}
	return ticket, nil
}

// HasOpenTicket reports whether userID has a ticket that is not closed.
func (s *Store) HasOpenTicket(ctx context.Context, userID int64) (bool, error) {
	count, err := s.q.CountOpenTicketsByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("count open tickets: %w", err)
	}
	return count > 0, nil
}

// OpenTicketsByUser lists the open tickets raised by userID, newest first.
func (s *Store) OpenTicketsByUser(ctx context.Context, userID int64) ([]sqlc.TicketChat, error) {
	tickets, err := s.q.ListOpenTicketsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list open tickets by user: %w", err)
	}
	return tickets, nil
}

// OpenTicketsByMentor lists the open tickets assigned to mentorID, newest first.
func (s *Store) OpenTicketsByMentor(ctx context.Context, mentorID int64) ([]sqlc.TicketChat, error) {
	tickets, err := s.q.ListOpenTicketsByMentor(ctx, mentorID)
	if err != nil {
		return nil, fmt.Errorf("list open tickets by mentor: %w", err)
	}
	return tickets, nil
}

// SaveChatMessage appends a chat message row.
func (s *Store) SaveChatMessage(ctx context.Context, arg sqlc.InsertChatMessageParams) (sqlc.ChatMessage, error) {
	msg, err := s.q.InsertChatMessage(ctx, arg)
	if err != nil {
		return sqlc.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return msg, nil
}

// ChatMessages returns a ticket's messages in send order.
func (s *Store) ChatMessages(ctx context.Context, ticketID int64) ([]sqlc.ChatMessage, error) {
	msgs, err := s.q.ListChatMessagesByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return msgs, nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound, keeping other errors as they are.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
