package chat_test

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ticketchat/internal/app/chat"
	"ticketchat/internal/app/db/memstore"
)

var _ chat.Store = (*memstore.Store)(nil)

var peerSeq atomic.Int64

// fakePeer records what the service sends to a connection.
type fakePeer struct {
	id string

	mu          sync.Mutex
	frames      [][]byte
	dead        bool
	closed      bool
	closeCode   int
	closeReason string
	full        bool
	broken      bool
}

func newPeer() *fakePeer {
	return &fakePeer{id: "peer-" + strconv.FormatInt(peerSeq.Add(1), 10)}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Deliver(payload []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dead || p.closed || p.full {
		return false
	}
	p.frames = append(p.frames, payload)
	return true
}

func (p *fakePeer) Close(code int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.closeCode = code
	p.closeReason = reason
}

func (p *fakePeer) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broken {
		panic("connection state unavailable")
	}
	return !p.dead && !p.closed
}

// kill simulates a connection that dropped without a detach.
func (p *fakePeer) kill() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dead = true
}

// breakState makes every later Alive call panic.
func (p *fakePeer) breakState() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.broken = true
}

func (p *fakePeer) events(t *testing.T) []chat.Event {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]chat.Event, 0, len(p.frames))
	for _, frame := range p.frames {
		var ev chat.Event
		require.NoError(t, json.Unmarshal(frame, &ev))
		out = append(out, ev)
	}
	return out
}

func (p *fakePeer) closeStatus() (bool, int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed, p.closeCode, p.closeReason
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memstore.Store
	registry *chat.Registry
	svc      *chat.Service
	clock    *fakeClock
	ctx      context.Context
}

func newFixture(t *testing.T, mutate ...func(*chat.Options)) *fixture {
	t.Helper()

	clock := newClock()
	opts := chat.Options{
		IdleTimeout:     time.Hour,
		ReapInterval:    300 * time.Second,
		TouchOnActivity: true,
		MaxMessageBytes: 5000,
		Now:             clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}

	store := memstore.New()
	registry := chat.NewRegistry()

	return &fixture{
		store:    store,
		registry: registry,
		svc:      chat.NewService(store, registry, opts),
		clock:    clock,
		ctx:      context.Background(),
	}
}

func (f *fixture) createTicket(t *testing.T, userID, mentorID int64) string {
	t.Helper()

	token, err := f.svc.CreateTicket(f.ctx, userID, mentorID)
	require.NoError(t, err)
	return token
}

func (f *fixture) attach(t *testing.T, token string, participantID int64) (*chat.Session, *fakePeer) {
	t.Helper()

	peer := newPeer()
	session, err := f.svc.Attach(f.ctx, token, participantID, peer)
	require.NoError(t, err)
	return session, peer
}
