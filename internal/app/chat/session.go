package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgtype"

	"ticketchat/internal/app/db/sqlc"
	"ticketchat/internal/pkg/errs"
)

// Close codes sent to participants.
const (
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
)

// CloseStatus maps an attach or relay error onto the close frame sent to the peer.
func CloseStatus(err error) (int, string) {
	switch errs.CodeOf(err) {
	case errs.ErrChannelNotFound:
		return ClosePolicyViolation, "Channel not found"
	case errs.ErrNotAuthorised:
		return ClosePolicyViolation, "Not authorised"
	default:
		return CloseInternalError, "Internal error"
	}
}

// IsTerminal reports whether err ends the connection rather than rejecting a single frame.
func IsTerminal(err error) bool {
	code := errs.CodeOf(err)
	return code == errs.ErrChannelNotFound || code == errs.ErrNotAuthorised
}

// Session is one participant's connection to a channel, returned by Service.Attach.
// It is driven from the connection's read loop and is not safe for concurrent use.
type Session struct {
	svc           *Service
	token         string
	participantID int64
	peer          Peer
	ch            *Channel
	attached      bool
}

// ParticipantID returns the id the connection authenticated as.
func (s *Session) ParticipantID() int64 {
	return s.participantID
}

// TicketID returns the id of the ticket the session belongs to.
func (s *Session) TicketID() int64 {
	return s.ch.ticketID
}

// Attached reports whether the session's connection receives relayed events.
func (s *Session) Attached() bool {
	return s.attached
}

// Relay sends text to the channel. If the channel was evicted since the last frame the
// session re-validates, moves to the recreated channel and carries over the
// connections that were still attached.
func (s *Session) Relay(ctx context.Context, text string) (Event, error) {
	if err := s.svc.checkText(text); err != nil {
		return Event{}, err
	}

	if s.ch.Evicted() {
		if err := s.rebind(ctx); err != nil {
			return Event{}, err
		}
	}

	return s.svc.relay(ctx, s.ch, s.participantID, text)
}

func (s *Session) rebind(ctx context.Context) error {
	old := s.ch

	for range maxAttachAttempts {
		ch, err := s.svc.resolve(ctx, s.token, s.participantID)
		if err != nil {
			return err
		}

		carried := old.livePeers()
		if s.attached {
			carried[s.participantID] = s.peer
		}

		ch.mu.Lock()
		if ch.evicted.Load() {
			ch.mu.Unlock()
			continue
		}
		var stale []Peer
		for id, p := range carried {
			attached, replaced := ch.attachLocked(id, p)
			if id == s.participantID {
				s.attached = attached
			}
			if replaced != nil {
				stale = append(stale, replaced)
			}
		}
		ch.mu.Unlock()

		for _, p := range stale {
			p.Close(CloseGoingAway, "Session replaced")
		}

		s.ch = ch
		s.svc.touch(ch)
		return nil
	}

	return errs.Wrap(errs.ErrUnknown, errors.New("channel evicted during rebind"))
}

// Detach removes the session's connection from its channel, and from the channel
// currently registered under the same token if that differs.
func (s *Session) Detach() {
	channels := []*Channel{s.ch}
	if current := s.svc.registry.Get(s.token); current != nil && current != s.ch {
		channels = append(channels, current)
	}

	detached := false
	for _, ch := range channels {
		ch.mu.Lock()
		if ch.detachLocked(s.participantID, s.peer) {
			detached = true
		}
		ch.mu.Unlock()
	}
	s.attached = false

	s.svc.logger.Info().
		Int64("ticket_id", s.ch.ticketID).
		Int64("participant_id", s.participantID).
		Str("connection_id", s.peer.ID()).
		Bool("was_attached", detached).
		Msg("Connection left channel.")
}

func (s *Service) checkText(text string) error {
	if text == "" {
		return errs.NewError(errs.ErrMessageEmpty)
	}
	if len(text) > s.opts.MaxMessageBytes {
		return errs.NewError(errs.ErrMessageContentTooLong, s.opts.MaxMessageBytes)
	}
	return nil
}

// relay persists the message and fans it out to every attached connection.
func (s *Service) relay(ctx context.Context, ch *Channel, senderID int64, text string) (Event, error) {
	now := s.now()
	s.touch(ch)

	event := Event{
		MessageText: text,
		UserID:      senderID,
		Datetime:    now,
	}

	_, storeErr := s.store.SaveChatMessage(ctx, sqlc.InsertChatMessageParams{
		TicketID:    ch.ticketID,
		UserID:      senderID,
		MessageText: text,
		CreatedAt:   pgtype.Timestamptz{Time: now, Valid: true},
	})

	payload, err := json.Marshal(event)
	if err != nil {
		return Event{}, errs.Wrap(errs.ErrUnknown, err)
	}

	for id, peer := range ch.livePeers() {
		if !peer.Deliver(payload) {
			s.logger.Warn().
				Int64("ticket_id", ch.ticketID).
				Int64("participant_id", id).
				Msg("Send queue full, event dropped.")
		}
	}

	if storeErr != nil {
		return event, errs.Wrap(errs.ErrStorageFailed, storeErr)
	}
	return event, nil
}
