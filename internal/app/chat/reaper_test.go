package chat_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchat/internal/app/chat"
	"ticketchat/internal/app/db/memstore"
	"ticketchat/internal/app/db/sqlc"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	registry := chat.NewRegistry()
	ticket := sqlc.TicketChat{ID: 1, Token: "AbC12XyZ", UserID: 5, MentorID: 9}
	now := time.Now()

	first, created := registry.GetOrCreate(ticket, now)
	require.True(t, created)

	second, created := registry.GetOrCreate(ticket, now.Add(time.Minute))
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, now.UnixNano(), first.LastActive().UnixNano(), "lookup does not refresh activity")
	assert.Equal(t, int64(1), first.TicketID())
	assert.Equal(t, 1, registry.Len())

	assert.Empty(t, registry.Evict("AbC12XyZ"))
	assert.True(t, first.Evicted())
	assert.Nil(t, registry.Get("AbC12XyZ"))
	assert.Nil(t, registry.Evict("AbC12XyZ"))
}

func TestRegistry_Sweep(t *testing.T) {
	registry := chat.NewRegistry()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	stale, _ := registry.GetOrCreate(sqlc.TicketChat{ID: 1, Token: "staleTok", UserID: 1, MentorID: 2}, start)
	fresh, _ := registry.GetOrCreate(sqlc.TicketChat{ID: 2, Token: "freshTok", UserID: 3, MentorID: 4}, start.Add(30*time.Minute))

	// exactly one hour idle is not yet over the limit
	assert.Equal(t, 0, registry.Sweep(start.Add(time.Hour), time.Hour))

	assert.Equal(t, 1, registry.Sweep(start.Add(time.Hour+time.Second), time.Hour))
	assert.True(t, stale.Evicted())
	assert.False(t, fresh.Evicted())
	assert.Nil(t, registry.Get("staleTok"))
	assert.Same(t, fresh, registry.Get("freshTok"))
}

func TestReaper_EvictsIdleChannel(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	reaper := chat.NewReaper(f.registry, f.svc.Options())

	f.clock.Advance(30 * time.Minute)
	evicted, err := reaper.Sweep()
	require.NoError(t, err)
	assert.Zero(t, evicted)

	f.clock.Advance(31 * time.Minute)
	evicted, err = reaper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.Nil(t, f.registry.Get(token))

	// a later connect re-validates through the ticket store and recreates the channel
	session, _ := f.attach(t, token, 5)
	assert.True(t, session.Attached())
	require.NotNil(t, f.registry.Get(token))

	_, err = f.svc.Attach(f.ctx, token, 7, newPeer())
	assert.Error(t, err)
}

func TestReaper_ActivityKeepsChannelAlive(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	worker, _ := f.attach(t, token, 5)
	reaper := chat.NewReaper(f.registry, f.svc.Options())

	for range 3 {
		f.clock.Advance(50 * time.Minute)
		_, err := worker.Relay(f.ctx, "still here")
		require.NoError(t, err)

		_, err = reaper.Sweep()
		require.NoError(t, err)
		assert.NotNil(t, f.registry.Get(token))
	}
}

func TestReaper_WithoutTouchEvictsAfterCreation(t *testing.T) {
	f := newFixture(t, func(o *chat.Options) { o.TouchOnActivity = false })
	token := f.createTicket(t, 5, 9)
	worker, _ := f.attach(t, token, 5)
	reaper := chat.NewReaper(f.registry, f.svc.Options())

	f.clock.Advance(50 * time.Minute)
	_, err := worker.Relay(f.ctx, "activity is not recorded")
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	evicted, err := reaper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
}

func TestRelay_AfterEvictionRebindsBothConnections(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	worker, workerPeer := f.attach(t, token, 5)
	mentor, mentorPeer := f.attach(t, token, 9)
	reaper := chat.NewReaper(f.registry, f.svc.Options())

	f.clock.Advance(2 * time.Hour)
	_, err := reaper.Sweep()
	require.NoError(t, err)
	require.Nil(t, f.registry.Get(token))

	// the orphaned connections are left open
	closed, _, _ := mentorPeer.closeStatus()
	assert.False(t, closed)

	_, err = worker.Relay(f.ctx, "are you still there?")
	require.NoError(t, err)

	ch := f.registry.Get(token)
	require.NotNil(t, ch)
	assert.Equal(t, []int64{5, 9}, ch.Online())
	assert.Len(t, mentorPeer.events(t), 1)
	assert.Len(t, workerPeer.events(t), 1)

	// the mentor's session follows on its next frame
	_, err = mentor.Relay(f.ctx, "yes")
	require.NoError(t, err)
	assert.Same(t, ch, f.registry.Get(token))
	assert.Len(t, workerPeer.events(t), 2)

	mentor.Detach()
	assert.Equal(t, []int64{5}, ch.Online())
}

func TestReaper_Run(t *testing.T) {
	f := newFixture(t, func(o *chat.Options) {
		o.ReapInterval = 5 * time.Millisecond
		o.IdleTimeout = time.Minute
	})
	token := f.createTicket(t, 5, 9)
	reaper := chat.NewReaper(f.registry, f.svc.Options())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	f.clock.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool { return f.registry.Get(token) == nil }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

func TestReaper_SurvivesPanickingSweep(t *testing.T) {
	f := newFixture(t, func(o *chat.Options) {
		o.ReapInterval = 5 * time.Millisecond
		o.IdleTimeout = time.Minute
	})
	broken := f.createTicket(t, 5, 9)
	_, peer := f.attach(t, broken, 5)
	peer.breakState()
	reaper := chat.NewReaper(f.registry, f.svc.Options())

	f.clock.Advance(2 * time.Minute)
	evicted, err := reaper.Sweep()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection state unavailable")
	assert.Zero(t, evicted)

	// the registry is not left locked
	assert.Nil(t, f.registry.Get(broken))
	assert.Zero(t, f.registry.Len())

	second := f.createTicket(t, 6, 10)
	require.NotNil(t, f.registry.Get(second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f.clock.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool { return f.registry.Get(second) == nil }, time.Second, 5*time.Millisecond)
}

// slowLookupStore blocks the second token lookup, which Attach makes under the channel lock.
type slowLookupStore struct {
	*memstore.Store

	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (s *slowLookupStore) TicketByToken(ctx context.Context, token string) (sqlc.TicketChat, error) {
	if s.calls.Add(1) == 2 {
		close(s.entered)
		<-s.release
	}
	return s.Store.TicketByToken(ctx, token)
}

func TestRegistry_SweepDoesNotBlockLookupsBehindChannelLock(t *testing.T) {
	clock := newClock()
	store := &slowLookupStore{
		Store:   memstore.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	registry := chat.NewRegistry()
	svc := chat.NewService(store, registry, chat.Options{IdleTimeout: time.Hour, TouchOnActivity: true, Now: clock.Now})

	token, err := svc.CreateTicket(context.Background(), 5, 9)
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	attached := make(chan error, 1)
	go func() {
		_, err := svc.Attach(context.Background(), token, 5, newPeer())
		attached <- err
	}()
	<-store.entered

	swept := make(chan int, 1)
	go func() { swept <- registry.Sweep(clock.Now(), time.Hour) }()

	// let the sweep reach the held channel lock
	time.Sleep(20 * time.Millisecond)

	lookups := make(chan struct{})
	go func() {
		registry.Len()
		registry.GetOrCreate(sqlc.TicketChat{ID: 99, Token: "otherTok", UserID: 1, MentorID: 2}, clock.Now())
		close(lookups)
	}()

	select {
	case <-lookups:
	case <-time.After(time.Second):
		t.Fatal("registry calls waited for a channel lock")
	}

	close(store.release)
	require.NoError(t, <-attached)
	<-swept
}
