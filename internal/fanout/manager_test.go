package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
)

// fakeStream lets tests inject stream events by hand.
type fakeStream struct {
	events chan ports.StreamEvent
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan ports.StreamEvent, 16)}
}

func (s *fakeStream) Start(ctx context.Context) error  { return nil }
func (s *fakeStream) Events() <-chan ports.StreamEvent { return s.events }
func (s *fakeStream) Close() error                     { close(s.events); return nil }
func (s *fakeStream) emit(ev ports.StreamEvent)        { s.events <- ev }

// fakeStore is a SnapshotSource backed by maps.
type fakeStore struct {
	mu      sync.Mutex
	tallies map[string]domain.Tally
	votes   map[string]*domain.VoteType
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tallies: make(map[string]domain.Tally),
		votes:   make(map[string]*domain.VoteType),
	}
}

func (s *fakeStore) GetTally(ctx context.Context, itemID string) (domain.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Tally{}, s.err
	}
	return s.tallies[itemID], nil
}

func (s *fakeStore) GetUserVote(ctx context.Context, userID uuid.UUID, itemID string) (*domain.VoteType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.votes[userID.String()+"/"+itemID], nil
}

func (s *fakeStore) setTally(itemID string, tally domain.Tally) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallies[itemID] = tally
}

type tallyDelivery struct {
	tally domain.Tally
	err   error
}

func collectTallies(buf int) (func(domain.Tally, error), chan tallyDelivery) {
	ch := make(chan tallyDelivery, buf)
	return func(tally domain.Tally, err error) {
		ch <- tallyDelivery{tally: tally, err: err}
	}, ch
}

func waitTally(t *testing.T, ch chan tallyDelivery) tallyDelivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return tallyDelivery{}
	}
}

func startManager(t *testing.T, stream ports.ChangeStream, store SnapshotSource) *Manager {
	t.Helper()
	m := NewManager(stream, store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, m.Start(ctx))
	return m
}

func TestSubscribeTally_SnapshotSeedsFirstRegistrant(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	store.setTally("tt0111161", domain.Tally{Likes: 12, Dislikes: 4})
	m := startManager(t, stream, store)

	fn, deliveries := collectTallies(4)
	unsub := m.SubscribeTally("tt0111161", fn)
	defer unsub()

	d := waitTally(t, deliveries)
	require.NoError(t, d.err)
	assert.Equal(t, domain.Tally{Likes: 12, Dislikes: 4}, d.tally)
}

func TestSubscribeTally_MultipleRegistrantsConverge(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	m := startManager(t, stream, store)

	fnA, chA := collectTallies(4)
	fnB, chB := collectTallies(4)
	unsubA := m.SubscribeTally("tt0111161", fnA)
	unsubB := m.SubscribeTally("tt0111161", fnB)
	defer unsubA()
	defer unsubB()

	// Snapshot seed first.
	waitTally(t, chA)
	waitTally(t, chB)

	stream.emit(ports.StreamEvent{Tally: &ports.TallyEvent{
		ItemID: "tt0111161",
		Tally:  domain.Tally{Likes: 7, Dislikes: 1},
	}})

	dA := waitTally(t, chA)
	dB := waitTally(t, chB)
	assert.Equal(t, dA.tally, dB.tally)
	assert.Equal(t, domain.Tally{Likes: 7, Dislikes: 1}, dA.tally)
}

func TestSubscribeTally_LateJoinerGetsLastValue(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	m := startManager(t, stream, store)

	fnA, chA := collectTallies(4)
	unsubA := m.SubscribeTally("tt0111161", fnA)
	defer unsubA()
	waitTally(t, chA)

	stream.emit(ports.StreamEvent{Tally: &ports.TallyEvent{
		ItemID: "tt0111161",
		Tally:  domain.Tally{Likes: 3},
	}})
	waitTally(t, chA)

	// B joins after the change and must still see the current value.
	fnB, chB := collectTallies(4)
	unsubB := m.SubscribeTally("tt0111161", fnB)
	defer unsubB()

	dB := waitTally(t, chB)
	require.NoError(t, dB.err)
	assert.Equal(t, domain.Tally{Likes: 3}, dB.tally)
}

func TestUnsubscribe_StopsDeliveryAndIsIdempotent(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	m := startManager(t, stream, store)

	fnA, chA := collectTallies(4)
	fnB, chB := collectTallies(4)
	unsubA := m.SubscribeTally("tt0111161", fnA)
	unsubB := m.SubscribeTally("tt0111161", fnB)
	defer unsubB()
	waitTally(t, chA)
	waitTally(t, chB)

	unsubA()
	unsubA() // second call is a no-op

	stream.emit(ports.StreamEvent{Tally: &ports.TallyEvent{
		ItemID: "tt0111161",
		Tally:  domain.Tally{Likes: 99},
	}})

	// B keeps receiving; A must not.
	dB := waitTally(t, chB)
	assert.Equal(t, domain.Tally{Likes: 99}, dB.tally)

	select {
	case d := <-chA:
		t.Fatalf("unsubscribed registrant received %+v", d)
	default:
	}
}

func TestLastUnsubscribeClosesFeed(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	m := startManager(t, stream, store)

	fn, ch := collectTallies(4)
	unsub := m.SubscribeTally("tt0111161", fn)
	waitTally(t, ch)
	unsub()

	m.mu.Lock()
	_, open := m.tallies["tt0111161"]
	m.mu.Unlock()
	assert.False(t, open)
}

func TestSubscribeUserVote_DeliversChanges(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	m := startManager(t, stream, store)
	userID := uuid.New()

	var mu sync.Mutex
	var got []*domain.VoteType
	ch := make(chan struct{}, 8)
	unsub := m.SubscribeUserVote(userID, "tt0111161", func(vote *domain.VoteType, err error) {
		assert.NoError(t, err)
		mu.Lock()
		got = append(got, vote)
		mu.Unlock()
		ch <- struct{}{}
	})
	defer unsub()

	<-ch // snapshot: no vote yet

	vote := domain.VoteLike
	stream.emit(ports.StreamEvent{UserVote: &ports.UserVoteEvent{
		UserID: userID,
		ItemID: "tt0111161",
		Vote:   &vote,
	}})
	<-ch

	stream.emit(ports.StreamEvent{UserVote: &ports.UserVoteEvent{
		UserID: userID,
		ItemID: "tt0111161",
		Vote:   nil,
	}})
	<-ch

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Nil(t, got[0])
	require.NotNil(t, got[1])
	assert.Equal(t, domain.VoteLike, *got[1])
	assert.Nil(t, got[2])
}

func TestDropUser_NotifiesNoVoteAndClosesFeeds(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	m := startManager(t, stream, store)
	userID := uuid.New()
	otherID := uuid.New()

	dropped := make(chan *domain.VoteType, 4)
	unsub := m.SubscribeUserVote(userID, "tt0111161", func(vote *domain.VoteType, err error) {
		dropped <- vote
	})
	defer unsub()

	otherCh := make(chan *domain.VoteType, 4)
	unsubOther := m.SubscribeUserVote(otherID, "tt0111161", func(vote *domain.VoteType, err error) {
		otherCh <- vote
	})
	defer unsubOther()

	<-dropped // snapshot
	<-otherCh

	m.DropUser(userID)

	select {
	case vote := <-dropped:
		assert.Nil(t, vote)
	case <-time.After(2 * time.Second):
		t.Fatal("expected drop notification")
	}

	m.mu.Lock()
	_, open := m.votes[voteKey{userID: userID, itemID: "tt0111161"}]
	_, otherOpen := m.votes[voteKey{userID: otherID, itemID: "tt0111161"}]
	m.mu.Unlock()
	assert.False(t, open)
	assert.True(t, otherOpen, "other users' feeds must survive")
}

func TestResetResyncsFromSnapshots(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	store.setTally("tt0111161", domain.Tally{Likes: 1})
	m := startManager(t, stream, store)

	fn, ch := collectTallies(8)
	unsub := m.SubscribeTally("tt0111161", fn)
	defer unsub()
	waitTally(t, ch)

	// Changes made while the stream was down only show up via the resync.
	store.setTally("tt0111161", domain.Tally{Likes: 42})
	stream.emit(ports.StreamEvent{Reset: true})

	d := waitTally(t, ch)
	require.NoError(t, d.err)
	assert.Equal(t, domain.Tally{Likes: 42}, d.tally)
}

func TestStreamErrorDeliversMarker(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	m := startManager(t, stream, store)

	fn, ch := collectTallies(4)
	unsub := m.SubscribeTally("tt0111161", fn)
	defer unsub()
	waitTally(t, ch)

	stream.emit(ports.StreamEvent{Err: domain.ErrStreamUnavailable})

	d := waitTally(t, ch)
	assert.ErrorIs(t, d.err, domain.ErrStreamUnavailable)
}

func TestStreamCloseFailsAll(t *testing.T) {
	stream := newFakeStream()
	store := newFakeStore()
	m := startManager(t, stream, store)

	fn, ch := collectTallies(4)
	unsub := m.SubscribeTally("tt0111161", fn)
	defer unsub()
	waitTally(t, ch)

	require.NoError(t, stream.Close())

	d := waitTally(t, ch)
	assert.ErrorIs(t, d.err, domain.ErrStreamClosed)
}
