/*
Package memstore is an in-process implementation of the ticket and chat message
store. It enforces the same uniqueness rules as the PostgreSQL schema and is used
for local development (DATABASE_URL=memory) and tests.
*/
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"ticketchat/internal/app/db"
	"ticketchat/internal/app/db/sqlc"
)

// Store keeps tickets, history rows and chat messages in memory.
type Store struct {
	mu sync.RWMutex

	nextTicketID  int64
	nextMessageID int64
	nextHistoryID int64

	tickets  map[int64]sqlc.TicketChat
	byToken  map[string]int64
	history  []sqlc.TicketChatHistory
	messages map[int64][]sqlc.ChatMessage

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tickets:  make(map[int64]sqlc.TicketChat),
		byToken:  make(map[string]int64),
		messages: make(map[int64][]sqlc.ChatMessage),
		now:      time.Now,
	}
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// appendHistoryLocked records a ticket snapshot. Caller holds mu.
func (s *Store) appendHistoryLocked(t sqlc.TicketChat) {
	s.nextHistoryID++
	s.history = append(s.history, sqlc.TicketChatHistory{
		ID:         s.nextHistoryID,
		TicketID:   t.ID,
		Token:      t.Token,
		UserID:     t.UserID,
		MentorID:   t.MentorID,
		Closed:     t.Closed,
		ChangeTime: timestamptz(s.now()),
	})
}

// OpenTicket inserts a ticket, rejecting a duplicate token or a second open ticket for the same user.
func (s *Store) OpenTicket(_ context.Context, arg sqlc.CreateTicketParams) (sqlc.TicketChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tickets {
		if t.UserID == arg.UserID && !t.Closed {
			return sqlc.TicketChat{}, db.ErrOpenTicketExists
		}
	}
	if _, taken := s.byToken[arg.Token]; taken {
		return sqlc.TicketChat{}, db.ErrTokenTaken
	}

	s.nextTicketID++
	ticket := sqlc.TicketChat{
		ID:        s.nextTicketID,
		Token:     arg.Token,
		UserID:    arg.UserID,
		MentorID:  arg.MentorID,
		CreatedAt: timestamptz(s.now()),
	}
	s.tickets[ticket.ID] = ticket
	s.byToken[ticket.Token] = ticket.ID
	s.appendHistoryLocked(ticket)

	return ticket, nil
}

// CloseTicket flips closed to true. A second close is a no-op.
func (s *Store) CloseTicket(_ context.Context, id int64) (sqlc.TicketChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return sqlc.TicketChat{}, fmt.Errorf("close ticket %d: %w", id, db.ErrNotFound)
	}
	if ticket.Closed {
		return ticket, nil
	}

	ticket.Closed = true
	s.tickets[id] = ticket
	s.appendHistoryLocked(ticket)

	return ticket, nil
}

// TicketByToken returns the ticket bound to token, or db.ErrNotFound.
func (s *Store) TicketByToken(_ context.Context, token string) (sqlc.TicketChat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return sqlc.TicketChat{}, fmt.Errorf("ticket by token: %w", db.ErrNotFound)
	}
	return s.tickets[id], nil
}

// TicketByID returns the ticket with id, or db.ErrNotFound.
func (s *Store) TicketByID(_ context.Context, id int64) (sqlc.TicketChat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return sqlc.TicketChat{}, fmt.Errorf("ticket %d: %w", id, db.ErrNotFound)
	}
	return ticket, nil
}

// HasOpenTicket reports whether userID raised a ticket that is not closed yet.
func (s *Store) HasOpenTicket(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tickets {
		if t.UserID == userID && !t.Closed {
			return true, nil
		}
	}
	return false, nil
}

// OpenTicketsByUser lists the open tickets raised by userID, newest first.
func (s *Store) OpenTicketsByUser(_ context.Context, userID int64) ([]sqlc.TicketChat, error) {
	return s.openTickets(func(t sqlc.TicketChat) bool { return t.UserID == userID }), nil
}

// OpenTicketsByMentor lists the open tickets assigned to mentorID, newest first.
func (s *Store) OpenTicketsByMentor(_ context.Context, mentorID int64) ([]sqlc.TicketChat, error) {
	return s.openTickets(func(t sqlc.TicketChat) bool { return t.MentorID == mentorID }), nil
}

// openTickets returns matching open tickets newest first, the order of the SQL list queries.
func (s *Store) openTickets(match func(sqlc.TicketChat) bool) []sqlc.TicketChat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sqlc.TicketChat
	for _, t := range s.tickets {
		if !t.Closed && match(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	return out
}

// SaveChatMessage appends a message to an existing ticket.
func (s *Store) SaveChatMessage(_ context.Context, arg sqlc.InsertChatMessageParams) (sqlc.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[arg.TicketID]; !ok {
		return sqlc.ChatMessage{}, fmt.Errorf("insert chat message: ticket %d: %w", arg.TicketID, db.ErrNotFound)
	}

	createdAt := arg.CreatedAt
	if !createdAt.Valid {
		createdAt = timestamptz(s.now())
	}

	s.nextMessageID++
	msg := sqlc.ChatMessage{
		ID:          s.nextMessageID,
		TicketID:    arg.TicketID,
		CreatedAt:   createdAt,
		MessageText: arg.MessageText,
		UserID:      arg.UserID,
	}
	s.messages[arg.TicketID] = append(s.messages[arg.TicketID], msg)

	return msg, nil
}

// ChatMessages returns a copy of the ticket's messages in insertion order.
func (s *Store) ChatMessages(_ context.Context, ticketID int64) ([]sqlc.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[ticketID]
	out := make([]sqlc.ChatMessage, len(msgs))
	copy(out, msgs)

	return out, nil
}

// History returns the audit rows recorded for a ticket.
func (s *Store) History(ticketID int64) []sqlc.TicketChatHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sqlc.TicketChatHistory
	for _, h := range s.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out
}
