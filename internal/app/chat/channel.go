/*
Package chat contains the core logic for ticket chat channels, participant connections and message relay.

This file defines the Channel struct, the in-memory state of one ticket's conversation: the two
participant slots, the live connection held by each, the attach/detach lock and the activity clock
read by the reaper.
*/
package chat

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"ticketchat/internal/app/db/sqlc"
)

// ChannelCapacity is the number of participants a ticket channel admits.
const ChannelCapacity = 2

const (
	labelWorker = "worker"
	labelMentor = "mentor"
)

// Peer is a live connection that can receive relayed events.
type Peer interface {
	// ID uniquely identifies the connection.
	ID() string

	// Deliver queues payload without blocking. It reports false if the payload was dropped.
	Deliver(payload []byte) bool

	// Close terminates the connection with a close code and reason.
	Close(code int, reason string)

	// Alive reports whether the connection is still usable.
	Alive() bool
}

// participant is one slot of a channel. peer is nil while nobody is attached.
type participant struct {
	label string
	peer  Peer
}

// Channel is the live state of a single ticket.
type Channel struct {
	// Token is the chat token the channel is registered under.
	Token string

	// Capacity is the maximum number of simultaneously attached participants.
	Capacity int

	ticketID int64
	userID   int64
	mentorID int64

	// mu guards participants and serializes the evicted transition.
	mu           sync.Mutex
	participants map[int64]*participant

	// evicted is set, under mu, once the channel has been removed from the registry.
	// It is readable without mu so registry lookups never wait on a channel lock.
	evicted atomic.Bool

	// lastActive holds the Unix nanoseconds of the last attach or relay.
	lastActive atomic.Int64
}

// newChannel builds the channel for ticket with both participant slots seeded.
func newChannel(ticket sqlc.TicketChat, now time.Time) *Channel {
	c := &Channel{
		Token:        ticket.Token,
		Capacity:     ChannelCapacity,
		ticketID:     ticket.ID,
		userID:       ticket.UserID,
		mentorID:     ticket.MentorID,
		participants: make(map[int64]*participant, ChannelCapacity),
	}

	c.ensureParticipant(ticket.UserID)
	c.ensureParticipant(ticket.MentorID)
	c.touch(now)

	return c
}

// TicketID returns the id of the ticket backing the channel.
func (c *Channel) TicketID() int64 {
	return c.ticketID
}

// isMember reports whether id is one of the ticket's two participants.
func (c *Channel) isMember(id int64) bool {
	return id == c.userID || id == c.mentorID
}

// counterpart returns the other participant of the ticket.
func (c *Channel) counterpart(id int64) int64 {
	if id == c.userID {
		return c.mentorID
	}
	return c.userID
}

// ensureParticipant creates an empty slot for id. Caller holds mu or owns c exclusively.
func (c *Channel) ensureParticipant(id int64) {
	if _, ok := c.participants[id]; ok {
		return
	}

	label := labelWorker
	if id == c.mentorID && id != c.userID {
		label = labelMentor
	}
	c.participants[id] = &participant{label: label}
}

// liveCountLocked counts attached connections that are still alive. Caller holds mu.
func (c *Channel) liveCountLocked() int {
	n := 0
	for _, p := range c.participants {
		if p.peer != nil && p.peer.Alive() {
			n++
		}
	}
	return n
}

// attachLocked binds peer to id's slot. An existing live connection is kept and peer
// is left unattached; a dead one is replaced and returned so the caller can close it.
// Caller holds mu.
func (c *Channel) attachLocked(id int64, peer Peer) (attached bool, replaced Peer) {
	c.ensureParticipant(id)
	slot := c.participants[id]

	switch {
	case slot.peer == nil:
	case slot.peer.ID() == peer.ID():
		return true, nil
	case slot.peer.Alive():
		return false, nil
	default:
		replaced = slot.peer
		slot.peer = nil
	}

	if c.liveCountLocked() >= c.Capacity {
		return false, replaced
	}

	slot.peer = peer
	return true, replaced
}

// detachLocked clears id's slot if it still holds peer. Caller holds mu.
func (c *Channel) detachLocked(id int64, peer Peer) bool {
	slot, ok := c.participants[id]
	if !ok || slot.peer == nil || slot.peer.ID() != peer.ID() {
		return false
	}

	slot.peer = nil
	return true
}

// livePeers snapshots the attached connections keyed by participant id.
func (c *Channel) livePeers() map[int64]Peer {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.livePeersLocked()
}

func (c *Channel) livePeersLocked() map[int64]Peer {
	peers := make(map[int64]Peer, len(c.participants))
	for id, p := range c.participants {
		if p.peer != nil && p.peer.Alive() {
			peers[id] = p.peer
		}
	}
	return peers
}

// Online returns the sorted ids of participants holding a live connection.
func (c *Channel) Online() []int64 {
	peers := c.livePeers()

	ids := make([]int64, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Participants returns each slot's label keyed by participant id.
func (c *Channel) Participants() map[int64]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int64]string, len(c.participants))
	for id, p := range c.participants {
		out[id] = p.label
	}
	return out
}

// markEvicted flips the channel to evicted under its lock. It reports false when the
// channel was already evicted or due, checked under the lock, declines.
func (c *Channel) markEvicted(due func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.evicted.Load() || (due != nil && !due()) {
		return false
	}
	c.evicted.Store(true)
	return true
}

// Evicted reports whether the channel has been removed from the registry.
func (c *Channel) Evicted() bool {
	return c.evicted.Load()
}

func (c *Channel) touch(now time.Time) {
	c.lastActive.Store(now.UnixNano())
}

// LastActive returns the time of the last recorded activity.
func (c *Channel) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}
