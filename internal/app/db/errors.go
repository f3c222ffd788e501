package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("db: record not found")

	// ErrOpenTicketExists is returned when the user already holds an open ticket.
	ErrOpenTicketExists = errors.New("db: user already has an open ticket")

	// ErrTokenTaken is returned when the chat token collides with an existing ticket.
	ErrTokenTaken = errors.New("db: chat token already in use")
)

// Unique index names from the migrations.
const (
	constraintTicketToken    = "ticket_chat_token_key"
	constraintTicketOpenUser = "ticket_chat_open_user_key"
)

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (code 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// violatedConstraint returns the constraint name of a unique violation, or "".
func violatedConstraint(err error) string {
	if !IsUniqueViolation(err) {
		return ""
	}

	var pgErr *pgconn.PgError
	errors.As(err, &pgErr)
	return pgErr.ConstraintName
}
