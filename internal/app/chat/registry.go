/*
Package chat contains the core logic for ticket chat channels, participant connections and message relay.

This file defines the Registry struct, which owns every live Channel keyed by chat token. It is
responsible for creating, retrieving, evicting and sweeping channels.
*/
package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ticketchat/internal/app/db/sqlc"
	"ticketchat/internal/pkg/logx"
)

// Registry maps chat tokens to live channels.
//
// Lock order is registry then channel. Code holding a channel lock never calls back
// into the registry, and the registry never waits for a channel lock while holding
// its own: eviction marks the channel first and unlinks it afterwards.
type Registry struct {
	// mu protects concurrent access to the channels map.
	mu sync.Mutex

	// channels stores every live Channel, keyed by chat token.
	channels map[string]*Channel

	// structured logger with Registry context.
	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
		logger:   logx.Component("Registry"),
	}
}

// GetOrCreate returns the channel for ticket, creating it when absent or evicted.
// The bool reports whether a new channel was created.
func (r *Registry) GetOrCreate(ticket sqlc.TicketChat, now time.Time) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[ticket.Token]; ok && !ch.Evicted() {
		return ch, false
	}

	ch := newChannel(ticket, now)
	r.channels[ticket.Token] = ch

	r.logger.Debug().Int64("ticket_id", ticket.ID).Msg("Channel created.")
	return ch, true
}

// Get returns the live channel for token, or nil.
func (r *Registry) Get(token string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.channels[token]
	if ch == nil || ch.Evicted() {
		return nil
	}
	return ch
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.channels)
}

// Evict removes the channel for token and returns the connections that were attached to it.
func (r *Registry) Evict(token string) []Peer {
	r.mu.Lock()
	ch := r.channels[token]
	r.mu.Unlock()

	if ch == nil {
		return nil
	}

	peers, _ := r.evict(ch, nil)
	return peers
}

// evict marks ch evicted under its own lock, unlinks it from the map and returns the
// connections still attached. When due is non-nil it is re-checked under the channel
// lock and a false result leaves the channel in place. Must not be called with r.mu held.
func (r *Registry) evict(ch *Channel, due func() bool) ([]Peer, bool) {
	if !ch.markEvicted(due) {
		return nil, false
	}

	r.mu.Lock()
	if r.channels[ch.Token] == ch {
		delete(r.channels, ch.Token)
	}
	r.mu.Unlock()

	peers := make([]Peer, 0, ChannelCapacity)
	for _, p := range ch.livePeers() {
		peers = append(peers, p)
	}
	return peers, true
}

// snapshot returns the registered channels accepted by keep.
func (r *Registry) snapshot(keep func(*Channel) bool) []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		if keep == nil || keep(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Sweep evicts every channel idle for longer than idle and returns how many were removed.
// Connections still attached to an evicted channel are left open; their next relay
// re-validates against the ticket store.
func (r *Registry) Sweep(now time.Time, idle time.Duration) int {
	isIdle := func(ch *Channel) bool { return now.Sub(ch.LastActive()) > idle }

	evicted := 0
	for _, ch := range r.snapshot(isIdle) {
		orphaned, ok := r.evict(ch, func() bool { return isIdle(ch) })
		if !ok {
			continue
		}
		evicted++

		r.logger.Info().
			Int64("ticket_id", ch.ticketID).
			Int("orphaned_connections", len(orphaned)).
			Time("last_active", ch.LastActive()).
			Msg("Idle channel evicted.")
	}

	return evicted
}

// Shutdown evicts every channel and returns all connections that were attached.
func (r *Registry) Shutdown() []Peer {
	r.logger.Info().Msg("Shutting down channel registry...")

	var peers []Peer
	for _, ch := range r.snapshot(nil) {
		attached, _ := r.evict(ch, nil)
		peers = append(peers, attached...)
	}

	r.logger.Info().Int("connections", len(peers)).Msg("Registry shutdown complete.")
	return peers
}
