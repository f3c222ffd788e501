package chat_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticketchat/internal/app/chat"
	"ticketchat/internal/app/db/memstore"
	"ticketchat/internal/app/db/sqlc"
	"ticketchat/internal/pkg/errs"
	"ticketchat/internal/pkg/randx"
)

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)

	token := f.createTicket(t, 5, 9)

	assert.True(t, randx.IsValidChatToken(token))

	ch := f.registry.Get(token)
	require.NotNil(t, ch, "channel is seeded at creation")
	assert.Equal(t, chat.ChannelCapacity, ch.Capacity)
	assert.Equal(t, map[int64]string{5: "worker", 9: "mentor"}, ch.Participants())
	assert.Empty(t, ch.Online())

	ticket, err := f.store.TicketByToken(f.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ticket.UserID)
	assert.Equal(t, int64(9), ticket.MentorID)
	assert.False(t, ticket.Closed)
	assert.Len(t, f.store.History(ticket.ID), 1)
}

func TestCreateTicket_OneOpenTicketPerUser(t *testing.T) {
	f := newFixture(t)

	f.createTicket(t, 5, 9)

	_, err := f.svc.CreateTicket(f.ctx, 5, 10)
	assert.True(t, errs.Is(err, errs.ErrOpenTicketExists))

	// the mentor side is not limited
	f.createTicket(t, 6, 9)
}

func TestCreateTicket_AfterCloseAllowed(t *testing.T) {
	f := newFixture(t)

	token := f.createTicket(t, 5, 9)
	ticket, err := f.store.TicketByToken(f.ctx, token)
	require.NoError(t, err)

	_, err = f.svc.CloseTicket(f.ctx, 5, ticket.ID)
	require.NoError(t, err)

	second := f.createTicket(t, 5, 9)
	assert.NotEqual(t, token, second)
}

func TestCreateTicket_InvalidParams(t *testing.T) {
	f := newFixture(t)

	for name, ids := range map[string][2]int64{
		"zero user":   {0, 9},
		"zero mentor": {5, 0},
		"negative":    {-1, 9},
		"same person": {5, 5},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateTicket(f.ctx, ids[0], ids[1])
			assert.True(t, errs.Is(err, errs.ErrInvalidParams))
		})
	}
}

func withEntropy(t *testing.T, r io.Reader) {
	t.Helper()

	original := randx.Reader
	randx.Reader = r
	t.Cleanup(func() { randx.Reader = original })
}

func TestCreateTicket_RegeneratesOnTokenCollision(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.OpenTicket(f.ctx, sqlc.CreateTicketParams{Token: "00000000", UserID: 1, MentorID: 2})
	require.NoError(t, err)

	// zero bytes map to "00000000", ones to "11111111"
	withEntropy(t, io.MultiReader(
		bytes.NewReader(make([]byte, randx.ChatTokenLength)),
		bytes.NewReader(bytes.Repeat([]byte{1}, randx.ChatTokenLength)),
	))

	token := f.createTicket(t, 5, 9)
	assert.Equal(t, "11111111", token)
}

func TestCreateTicket_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.OpenTicket(f.ctx, sqlc.CreateTicketParams{Token: "00000000", UserID: 1, MentorID: 2})
	require.NoError(t, err)

	withEntropy(t, bytes.NewReader(make([]byte, 1024)))

	_, err = f.svc.CreateTicket(f.ctx, 5, 9)
	assert.True(t, errs.Is(err, errs.ErrUnknown))

	open, err := f.store.HasOpenTicket(f.ctx, 5)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestIsAuthorized(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)

	cases := []struct {
		name   string
		userID int64
		token  string
		want   bool
	}{
		{"worker", 5, token, true},
		{"mentor", 9, token, true},
		{"stranger", 7, token, false},
		{"unknown token", 5, "ZZZZZZZZ", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := f.svc.IsAuthorized(f.ctx, tc.userID, tc.token)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestAttach_UnknownToken(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"ZZZZZZZZ", "short", "", "bad-char"} {
		peer := newPeer()
		_, err := f.svc.Attach(f.ctx, token, 5, peer)

		require.Error(t, err)
		code, reason := chat.CloseStatus(err)
		assert.Equal(t, chat.ClosePolicyViolation, code)
		assert.Equal(t, "Channel not found", reason)
		assert.Equal(t, 0, f.registry.Len())
	}
}

func TestAttach_NotParticipant(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)

	peer := newPeer()
	_, err := f.svc.Attach(f.ctx, token, 7, peer)

	require.Error(t, err)
	code, reason := chat.CloseStatus(err)
	assert.Equal(t, 1008, code)
	assert.Equal(t, "Not authorised", reason)
	assert.Empty(t, f.registry.Get(token).Online())
}

func TestAttach_LazilyCreatesChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.OpenTicket(f.ctx, sqlc.CreateTicketParams{Token: "AbC12XyZ", UserID: 5, MentorID: 9})
	require.NoError(t, err)
	require.Nil(t, f.registry.Get("AbC12XyZ"))

	session, _ := f.attach(t, "AbC12XyZ", 9)

	assert.True(t, session.Attached())
	assert.Equal(t, []int64{9}, f.registry.Get("AbC12XyZ").Online())
}

func TestScenario_WorkerAndMentorChat(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)

	worker, workerPeer := f.attach(t, token, 5)
	_, mentorPeer := f.attach(t, token, 9)
	require.True(t, worker.Attached())

	sentAt := f.clock.Now()
	_, err := worker.Relay(f.ctx, "hello")
	require.NoError(t, err)

	for _, peer := range []*fakePeer{mentorPeer, workerPeer} {
		events := peer.events(t)
		require.Len(t, events, 1)
		assert.Equal(t, "hello", events[0].MessageText)
		assert.Equal(t, int64(5), events[0].UserID)
		assert.False(t, events[0].Datetime.Before(sentAt))
	}

	msgs, err := f.store.ChatMessages(f.ctx, worker.TicketID())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(5), msgs[0].UserID)
	assert.Equal(t, "hello", msgs[0].MessageText)
	assert.Equal(t, worker.TicketID(), msgs[0].TicketID)
}

func TestRelay_OnlyOneParticipantAttached(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)

	worker, workerPeer := f.attach(t, token, 5)

	_, err := worker.Relay(f.ctx, "anyone there?")
	require.NoError(t, err)

	assert.Len(t, workerPeer.events(t), 1)

	msgs, err := f.store.ChatMessages(f.ctx, worker.TicketID())
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestServiceRelay_ByToken(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	_, mentorPeer := f.attach(t, token, 9)

	ev, err := f.svc.Relay(f.ctx, token, 5, "from the REST side")
	require.NoError(t, err)
	assert.Equal(t, int64(5), ev.UserID)
	assert.Len(t, mentorPeer.events(t), 1)

	_, err = f.svc.Relay(f.ctx, token, 7, "intruder")
	assert.True(t, errs.Is(err, errs.ErrNotAuthorised))

	_, err = f.svc.Relay(f.ctx, "ZZZZZZZZ", 5, "lost")
	assert.True(t, errs.Is(err, errs.ErrChannelNotFound))
}

func TestRelay_RejectsEmptyAndOversizedText(t *testing.T) {
	f := newFixture(t, func(o *chat.Options) { o.MaxMessageBytes = 10 })
	token := f.createTicket(t, 5, 9)
	worker, _ := f.attach(t, token, 5)

	_, err := worker.Relay(f.ctx, "")
	assert.True(t, errs.Is(err, errs.ErrMessageEmpty))
	assert.False(t, chat.IsTerminal(err))

	_, err = worker.Relay(f.ctx, strings.Repeat("x", 11))
	assert.True(t, errs.Is(err, errs.ErrMessageContentTooLong))
	assert.Contains(t, errs.From(err).Message, "10")

	msgs, err := f.store.ChatMessages(f.ctx, worker.TicketID())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRelay_DropsForFullQueue(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	worker, _ := f.attach(t, token, 5)
	_, mentorPeer := f.attach(t, token, 9)

	mentorPeer.full = true

	_, err := worker.Relay(f.ctx, "dropped for mentor")
	require.NoError(t, err)

	msgs, err := f.store.ChatMessages(f.ctx, worker.TicketID())
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "persisted despite failed delivery")
}

// failingStore fails message inserts and delegates everything else.
type failingStore struct {
	*memstore.Store
	mock.Mock
}

func (s *failingStore) SaveChatMessage(ctx context.Context, arg sqlc.InsertChatMessageParams) (sqlc.ChatMessage, error) {
	args := s.Called(arg.MessageText)
	return sqlc.ChatMessage{}, args.Error(0)
}

func TestRelay_DeliversWhenStoreFails(t *testing.T) {
	store := &failingStore{Store: memstore.New()}
	store.On("SaveChatMessage", "hello").Return(errors.New("disk full")).Once()

	clock := newClock()
	svc := chat.NewService(store, chat.NewRegistry(), chat.Options{Now: clock.Now, TouchOnActivity: true})
	ctx := context.Background()

	token, err := svc.CreateTicket(ctx, 5, 9)
	require.NoError(t, err)

	worker, err := svc.Attach(ctx, token, 5, newPeer())
	require.NoError(t, err)
	mentorPeer := newPeer()
	_, err = svc.Attach(ctx, token, 9, mentorPeer)
	require.NoError(t, err)

	_, err = worker.Relay(ctx, "hello")
	assert.True(t, errs.Is(err, errs.ErrStorageFailed))
	assert.False(t, chat.IsTerminal(err))
	assert.Len(t, mentorPeer.events(t), 1)

	store.AssertExpectations(t)
}

func TestAttach_ExistingLiveConnectionIsKept(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)

	first, firstPeer := f.attach(t, token, 5)
	second, secondPeer := f.attach(t, token, 5)

	assert.True(t, first.Attached())
	assert.False(t, second.Attached())

	closed, _, _ := firstPeer.closeStatus()
	assert.False(t, closed)

	// the unattached connection may still send
	_, err := second.Relay(f.ctx, "from second tab")
	require.NoError(t, err)

	assert.Len(t, firstPeer.events(t), 1)
	assert.Empty(t, secondPeer.events(t))
}

func TestAttach_StaleConnectionIsReplaced(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)

	_, stalePeer := f.attach(t, token, 5)
	stalePeer.kill()

	fresh, freshPeer := f.attach(t, token, 5)
	assert.True(t, fresh.Attached())

	closed, code, _ := stalePeer.closeStatus()
	assert.True(t, closed)
	assert.Equal(t, chat.CloseGoingAway, code)

	_, err := f.svc.Relay(f.ctx, token, 9, "ping")
	require.NoError(t, err)
	assert.Len(t, freshPeer.events(t), 1)
}

func TestDetach(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)

	first, _ := f.attach(t, token, 5)
	second, _ := f.attach(t, token, 5)
	require.False(t, second.Attached())

	// detaching the unattached connection must not drop the live one
	second.Detach()
	assert.Equal(t, []int64{5}, f.registry.Get(token).Online())

	first.Detach()
	assert.Empty(t, f.registry.Get(token).Online())
	assert.False(t, first.Attached())

	// the participant slot survives as a placeholder
	assert.Contains(t, f.registry.Get(token).Participants(), int64(5))

	again, _ := f.attach(t, token, 5)
	assert.True(t, again.Attached())
}

func TestAttach_ConcurrentParticipants(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)

	const rounds = 50

	var wg sync.WaitGroup
	attached := make(chan bool, 2*rounds)

	for i := range 2 * rounds {
		participant := int64(5)
		if i%2 == 1 {
			participant = 9
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			session, err := f.svc.Attach(f.ctx, token, participant, newPeer())
			if assert.NoError(t, err) {
				attached <- session.Attached()
			}
		}()
	}
	wg.Wait()
	close(attached)

	count := 0
	for ok := range attached {
		if ok {
			count++
		}
	}

	assert.Equal(t, 2, count, "exactly one connection per participant is attached")
	assert.Equal(t, []int64{5, 9}, f.registry.Get(token).Online())
}

func TestCloseTicket(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	_, workerPeer := f.attach(t, token, 5)
	_, mentorPeer := f.attach(t, token, 9)

	ticket, err := f.store.TicketByToken(f.ctx, token)
	require.NoError(t, err)

	view, err := f.svc.CloseTicket(f.ctx, 9, ticket.ID)
	require.NoError(t, err)
	assert.True(t, view.Closed)
	assert.Nil(t, f.registry.Get(token))

	for _, peer := range []*fakePeer{workerPeer, mentorPeer} {
		closed, code, reason := peer.closeStatus()
		assert.True(t, closed)
		assert.Equal(t, chat.CloseNormal, code)
		assert.Equal(t, "Ticket closed", reason)
	}

	// closing again is not an error and writes no extra audit row
	view, err = f.svc.CloseTicket(f.ctx, 5, ticket.ID)
	require.NoError(t, err)
	assert.True(t, view.Closed)
	assert.Len(t, f.store.History(ticket.ID), 2)
}

func TestCloseTicket_Errors(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	ticket, err := f.store.TicketByToken(f.ctx, token)
	require.NoError(t, err)

	_, err = f.svc.CloseTicket(f.ctx, 7, ticket.ID)
	assert.True(t, errs.Is(err, errs.ErrForbidden))

	_, err = f.svc.CloseTicket(f.ctx, 5, ticket.ID+100)
	assert.True(t, errs.Is(err, errs.ErrTicketNotFound))
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	worker, _ := f.attach(t, token, 5)
	mentor, _ := f.attach(t, token, 9)

	_, err := worker.Relay(f.ctx, "first")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = mentor.Relay(f.ctx, "second")
	require.NoError(t, err)

	history, err := f.svc.History(f.ctx, 9, worker.TicketID())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].MessageText)
	assert.Equal(t, int64(5), history[0].UserID)
	assert.Equal(t, "second", history[1].MessageText)
	assert.True(t, history[1].Datetime.After(history[0].Datetime))

	_, err = f.svc.History(f.ctx, 7, worker.TicketID())
	assert.True(t, errs.Is(err, errs.ErrForbidden))
}

func TestOpenTicketLists(t *testing.T) {
	f := newFixture(t)
	first := f.createTicket(t, 5, 9)
	f.createTicket(t, 6, 9)
	f.createTicket(t, 7, 10)
	f.attach(t, first, 5)

	mentorTickets, err := f.svc.OpenTicketsForMentor(f.ctx, 9)
	require.NoError(t, err)
	require.Len(t, mentorTickets, 2)
	assert.Equal(t, int64(6), mentorTickets[0].UserID, "newest first")
	assert.Equal(t, []int64{5}, mentorTickets[1].Online)
	assert.Empty(t, mentorTickets[0].Online)

	workerTickets, err := f.svc.OpenTicketsForUser(f.ctx, 7)
	require.NoError(t, err)
	require.Len(t, workerTickets, 1)
	assert.Equal(t, int64(10), workerTickets[0].MentorID)

	none, err := f.svc.OpenTicketsForUser(f.ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestShutdown_ClosesConnections(t *testing.T) {
	f := newFixture(t)
	token := f.createTicket(t, 5, 9)
	_, peer := f.attach(t, token, 5)

	f.svc.Shutdown()

	closed, code, _ := peer.closeStatus()
	assert.True(t, closed)
	assert.Equal(t, chat.CloseGoingAway, code)
	assert.Equal(t, 0, f.registry.Len())
}
