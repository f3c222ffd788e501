/*
Package chat contains the core logic for ticket chat channels, participant connections and message relay.

This file defines the Service struct, the entry point used by the HTTP layer. It issues tickets,
authorizes participants, attaches connections to channels and closes tickets.
*/
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ticketchat/internal/app/db"
	"ticketchat/internal/app/db/sqlc"
	"ticketchat/internal/configs"
	"ticketchat/internal/pkg/errs"
	"ticketchat/internal/pkg/logx"
	"ticketchat/internal/pkg/randx"
)

const (
	// maxTokenAttempts bounds the number of tokens tried when the unique index rejects one.
	maxTokenAttempts = 5

	// maxAttachAttempts bounds retries when a channel is evicted between lookup and lock.
	maxAttachAttempts = 3

	// DefaultIdleTimeout is how long a channel may stay inactive before the reaper evicts it.
	DefaultIdleTimeout = time.Hour

	// DefaultReapInterval is the period of the reaper sweep.
	DefaultReapInterval = 300 * time.Second

	// DefaultMaxMessageBytes caps the text of a single chat message.
	DefaultMaxMessageBytes = 5000
)

// Options tunes the chat Service and its Reaper.
type Options struct {
	// IdleTimeout is the inactivity after which a channel is evicted.
	IdleTimeout time.Duration

	// ReapInterval is the period of the idle sweep.
	ReapInterval time.Duration

	// TouchOnActivity refreshes a channel's activity clock on every attach and relay.
	// When false the clock is only set at creation.
	TouchOnActivity bool

	// MaxMessageBytes caps the text of a single message.
	MaxMessageBytes int

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps the application config onto Options.
func OptionsFromConfig(cfg *configs.AppConfig) Options {
	return Options{
		IdleTimeout:     cfg.ChannelIdleTimeout,
		ReapInterval:    cfg.ReapInterval,
		TouchOnActivity: cfg.TouchOnActivity,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = DefaultReapInterval
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// TicketView is a ticket as returned by the API, with the participants currently online.
type TicketView struct {
	ID        int64     `json:"id"`
	ChatToken string    `json:"chat_token"`
	UserID    int64     `json:"user_id"`
	MentorID  int64     `json:"mentor_id"`
	Closed    bool      `json:"closed"`
	CreatedAt time.Time `json:"created_at"`
	Online    []int64   `json:"online"`
}

// Service coordinates the ticket store and the channel registry.
type Service struct {
	store    Store
	registry *Registry
	opts     Options

	// structured logger with Service context.
	logger zerolog.Logger
}

// NewService constructs a Service. Zero option fields take their defaults.
func NewService(store Store, registry *Registry, opts Options) *Service {
	return &Service{
		store:    store,
		registry: registry,
		opts:     opts.withDefaults(),
		logger:   logx.Component("ChatService"),
	}
}

// Registry returns the channel registry the service attaches connections to.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

func (s *Service) touch(ch *Channel) {
	if s.opts.TouchOnActivity {
		ch.touch(s.now())
	}
}

// CreateTicket opens a ticket between userID and mentorID and returns its chat token.
// It fails with ErrOpenTicketExists while userID has another open ticket.
func (s *Service) CreateTicket(ctx context.Context, userID, mentorID int64) (string, error) {
	if userID <= 0 || mentorID <= 0 || userID == mentorID {
		return "", errs.NewError(errs.ErrInvalidParams)
	}

	open, err := s.store.HasOpenTicket(ctx, userID)
	if err != nil {
		return "", errs.Wrap(errs.ErrStorageFailed, err)
	}
	if open {
		return "", errs.NewError(errs.ErrOpenTicketExists)
	}

	for range maxTokenAttempts {
		token, err := randx.ChatToken()
		if err != nil {
			return "", errs.Wrap(errs.ErrUnknown, err)
		}

		ticket, err := s.store.OpenTicket(ctx, sqlc.CreateTicketParams{
			Token:    token,
			UserID:   userID,
			MentorID: mentorID,
		})
		switch {
		case errors.Is(err, db.ErrTokenTaken):
			s.logger.Warn().Msg("Chat token collision, regenerating.")
			continue
		case errors.Is(err, db.ErrOpenTicketExists):
			return "", errs.NewError(errs.ErrOpenTicketExists)
		case err != nil:
			return "", errs.Wrap(errs.ErrStorageFailed, err)
		}

		s.registry.GetOrCreate(ticket, s.now())

		s.logger.Info().
			Int64("ticket_id", ticket.ID).
			Int64("user_id", userID).
			Int64("mentor_id", mentorID).
			Msg("Ticket created.")

		return ticket.Token, nil
	}

	return "", errs.Wrap(errs.ErrUnknown, errors.New("exhausted chat token attempts"))
}

// IsAuthorized reports whether userID is one of the two participants of the ticket
// bound to token. An unknown token is not an error.
func (s *Service) IsAuthorized(ctx context.Context, userID int64, token string) (bool, error) {
	ticket, err := s.store.TicketByToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.ErrStorageFailed, err)
	}

	return ticket.UserID == userID || ticket.MentorID == userID, nil
}

// ticketByToken loads the ticket for token, mapping a miss to ErrChannelNotFound.
func (s *Service) ticketByToken(ctx context.Context, token string) (sqlc.TicketChat, error) {
	if !randx.IsValidChatToken(token) {
		return sqlc.TicketChat{}, errs.NewError(errs.ErrChannelNotFound)
	}

	ticket, err := s.store.TicketByToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return sqlc.TicketChat{}, errs.NewError(errs.ErrChannelNotFound)
	}
	if err != nil {
		return sqlc.TicketChat{}, errs.Wrap(errs.ErrStorageFailed, err)
	}

	return ticket, nil
}

// Attach registers peer as participantID's connection on the channel for token.
//
// The channel is created from the ticket when absent. Authorization is checked again
// under the channel lock. When participantID already holds a live connection that
// connection is kept and the returned Session is not attached: it may send but does
// not receive. A stale connection is replaced.
func (s *Service) Attach(ctx context.Context, token string, participantID int64, peer Peer) (*Session, error) {
	ticket, err := s.ticketByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	for range maxAttachAttempts {
		ch, _ := s.registry.GetOrCreate(ticket, s.now())

		session, retry, err := s.attachTo(ctx, ch, participantID, peer)
		if retry {
			continue
		}
		return session, err
	}

	return nil, errs.Wrap(errs.ErrUnknown, errors.New("channel evicted during attach"))
}

func (s *Service) attachTo(ctx context.Context, ch *Channel, participantID int64, peer Peer) (*Session, bool, error) {
	ch.mu.Lock()

	if ch.evicted.Load() {
		ch.mu.Unlock()
		return nil, true, nil
	}

	ok, err := s.IsAuthorized(ctx, participantID, ch.Token)
	if err != nil {
		ch.mu.Unlock()
		return nil, false, err
	}
	if !ok || !ch.isMember(participantID) {
		ch.mu.Unlock()
		return nil, false, errs.NewError(errs.ErrNotAuthorised)
	}

	counterpart := ch.counterpart(participantID)
	ch.ensureParticipant(participantID)
	ch.ensureParticipant(counterpart)

	attached, replaced := ch.attachLocked(participantID, peer)
	ch.mu.Unlock()

	if replaced != nil {
		replaced.Close(CloseGoingAway, "Session replaced")
	}
	s.touch(ch)

	s.logger.Info().
		Int64("ticket_id", ch.ticketID).
		Int64("participant_id", participantID).
		Int64("counterpart_id", counterpart).
		Bool("attached", attached).
		Bool("replaced_stale", replaced != nil).
		Str("connection_id", peer.ID()).
		Msg("Connection joined channel.")

	return &Session{
		svc:           s,
		token:         ch.Token,
		participantID: participantID,
		peer:          peer,
		ch:            ch,
		attached:      attached,
	}, false, nil
}

// resolve returns the live channel for token on behalf of participantID, re-validating
// through the ticket store and recreating the channel when it has been evicted.
func (s *Service) resolve(ctx context.Context, token string, participantID int64) (*Channel, error) {
	if ch := s.registry.Get(token); ch != nil {
		if !ch.isMember(participantID) {
			return nil, errs.NewError(errs.ErrNotAuthorised)
		}
		return ch, nil
	}

	ticket, err := s.ticketByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != participantID && ticket.MentorID != participantID {
		return nil, errs.NewError(errs.ErrNotAuthorised)
	}

	ch, created := s.registry.GetOrCreate(ticket, s.now())
	if created {
		s.logger.Info().Int64("ticket_id", ticket.ID).Msg("Channel recreated after eviction.")
	}
	return ch, nil
}

// Relay delivers text from senderID to every participant attached to the channel for
// token and persists it. Delivery is best-effort; the message is stored either way.
func (s *Service) Relay(ctx context.Context, token string, senderID int64, text string) (Event, error) {
	if err := s.checkText(text); err != nil {
		return Event{}, err
	}

	ch, err := s.resolve(ctx, token, senderID)
	if err != nil {
		return Event{}, err
	}

	return s.relay(ctx, ch, senderID, text)
}

// CloseTicket marks the ticket closed on behalf of callerID, evicts its channel and
// disconnects attached participants. Closing a closed ticket succeeds.
func (s *Service) CloseTicket(ctx context.Context, callerID, ticketID int64) (TicketView, error) {
	ticket, err := s.participantTicket(ctx, callerID, ticketID)
	if err != nil {
		return TicketView{}, err
	}

	closed, err := s.store.CloseTicket(ctx, ticket.ID)
	if err != nil {
		return TicketView{}, errs.Wrap(errs.ErrStorageFailed, err)
	}

	peers := s.registry.Evict(closed.Token)
	for _, p := range peers {
		p.Close(CloseNormal, "Ticket closed")
	}

	s.logger.Info().
		Int64("ticket_id", closed.ID).
		Int64("closed_by", callerID).
		Int("disconnected", len(peers)).
		Msg("Ticket closed.")

	return s.view(closed), nil
}

// History returns the ticket's messages in send order. Only participants may read it.
func (s *Service) History(ctx context.Context, callerID, ticketID int64) ([]MessageView, error) {
	ticket, err := s.participantTicket(ctx, callerID, ticketID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ChatMessages(ctx, ticket.ID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageFailed, err)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, newMessageView(m))
	}
	return views, nil
}

// OpenTicketsForUser lists the open tickets raised by userID.
func (s *Service) OpenTicketsForUser(ctx context.Context, userID int64) ([]TicketView, error) {
	tickets, err := s.store.OpenTicketsByUser(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageFailed, err)
	}
	return s.views(tickets), nil
}

// OpenTicketsForMentor lists the open tickets assigned to mentorID.
func (s *Service) OpenTicketsForMentor(ctx context.Context, mentorID int64) ([]TicketView, error) {
	tickets, err := s.store.OpenTicketsByMentor(ctx, mentorID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageFailed, err)
	}
	return s.views(tickets), nil
}

// Shutdown evicts every channel and closes all attached connections.
func (s *Service) Shutdown() {
	for _, p := range s.registry.Shutdown() {
		p.Close(CloseGoingAway, "Server shutting down")
	}
}

func (s *Service) participantTicket(ctx context.Context, callerID, ticketID int64) (sqlc.TicketChat, error) {
	ticket, err := s.store.TicketByID(ctx, ticketID)
	if errors.Is(err, db.ErrNotFound) {
		return sqlc.TicketChat{}, errs.NewError(errs.ErrTicketNotFound)
	}
	if err != nil {
		return sqlc.TicketChat{}, errs.Wrap(errs.ErrStorageFailed, err)
	}

	if ticket.UserID != callerID && ticket.MentorID != callerID {
		return sqlc.TicketChat{}, errs.NewError(errs.ErrForbidden)
	}

	return ticket, nil
}

func (s *Service) views(tickets []sqlc.TicketChat) []TicketView {
	out := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, s.view(t))
	}
	return out
}

func (s *Service) view(t sqlc.TicketChat) TicketView {
	online := []int64{}
	if ch := s.registry.Get(t.Token); ch != nil {
		online = ch.Online()
	}

	return TicketView{
		ID:        t.ID,
		ChatToken: t.Token,
		UserID:    t.UserID,
		MentorID:  t.MentorID,
		Closed:    t.Closed,
		CreatedAt: t.CreatedAt.Time,
		Online:    online,
	}
}
