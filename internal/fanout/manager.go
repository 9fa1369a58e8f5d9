// Package fanout multiplexes the store's change stream into per-key
// subscriptions: one logical feed per item tally and per (user, item) vote,
// no matter how many views are watching. Registration and deregistration are
// explicit operations; nothing is tied to an ambient lifecycle.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
	"github.com/rs/zerolog"
)

// SnapshotSource reads the current committed value of a document. Used to
// seed new feeds and to resync after a stream reconnect, so late joiners and
// survivors of a dropped connection still converge.
type SnapshotSource interface {
	GetTally(ctx context.Context, itemID string) (domain.Tally, error)
	GetUserVote(ctx context.Context, userID uuid.UUID, itemID string) (*domain.VoteType, error)
}

type voteKey struct {
	userID uuid.UUID
	itemID string
}

type tallyFeed struct {
	registrants map[uint64]func(domain.Tally, error)
	last        domain.Tally
	hasLast     bool
}

type voteFeed struct {
	registrants map[uint64]func(*domain.VoteType, error)
	last        *domain.VoteType
	hasLast     bool
}

// Manager implements ports.Subscriptions. Callbacks are invoked on the
// manager's dispatch goroutine while the registration lock is held, which is
// what makes Unsubscribe a hard cut-off: once it returns, no callback for
// that registrant can be running or pending. Callbacks must therefore not
// block and must not call back into the manager.
type Manager struct {
	stream ports.ChangeStream
	store  SnapshotSource
	log    zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	tallies map[string]*tallyFeed
	votes   map[voteKey]*voteFeed
	nextID  uint64
}

func NewManager(stream ports.ChangeStream, store SnapshotSource, log zerolog.Logger) *Manager {
	return &Manager{
		stream:  stream,
		store:   store,
		log:     log.With().Str("component", "fanout").Logger(),
		ctx:     context.Background(),
		tallies: make(map[string]*tallyFeed),
		votes:   make(map[voteKey]*voteFeed),
	}
}

// Start opens the underlying change stream and runs the dispatch loop until
// ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if err := m.stream.Start(ctx); err != nil {
		return err
	}
	go m.run(ctx)
	return nil
}

// snapshotContext is what refresh goroutines run under; guarded because a
// subscription can in principle race Start.
func (m *Manager) snapshotContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func (m *Manager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.stream.Events():
			if !ok {
				m.failAll(domain.ErrStreamClosed)
				return
			}
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev ports.StreamEvent) {
	switch {
	case ev.Tally != nil:
		m.mu.Lock()
		if f := m.tallies[ev.Tally.ItemID]; f != nil {
			f.last = ev.Tally.Tally
			f.hasLast = true
			for _, fn := range f.registrants {
				fn(f.last, nil)
			}
		}
		m.mu.Unlock()

	case ev.UserVote != nil:
		key := voteKey{userID: ev.UserVote.UserID, itemID: ev.UserVote.ItemID}
		m.mu.Lock()
		if f := m.votes[key]; f != nil {
			f.last = ev.UserVote.Vote
			f.hasLast = true
			for _, fn := range f.registrants {
				fn(f.last, nil)
			}
		}
		m.mu.Unlock()

	case ev.Reset:
		m.resyncAll()

	case ev.Err != nil:
		m.failAll(ev.Err)
	}
}

// SubscribeTally registers fn for every change of the item's tally. The first
// registrant opens the feed and triggers a snapshot read so the registrant
// converges without waiting for the next vote; later registrants get the
// feed's last known value. Never blocks; all delivery is asynchronous.
func (m *Manager) SubscribeTally(itemID string, fn func(domain.Tally, error)) ports.Unsubscribe {
	m.mu.Lock()
	f := m.tallies[itemID]
	if f == nil {
		f = &tallyFeed{registrants: make(map[uint64]func(domain.Tally, error))}
		m.tallies[itemID] = f
		go m.refreshTally(itemID, false)
	}
	id := m.nextID
	m.nextID++
	f.registrants[id] = fn
	if f.hasLast {
		go m.replayTally(itemID, id)
	}
	m.mu.Unlock()

	return m.tallyUnsubscriber(itemID, id)
}

func (m *Manager) tallyUnsubscriber(itemID string, id uint64) ports.Unsubscribe {
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		f := m.tallies[itemID]
		if f == nil {
			return
		}
		if _, ok := f.registrants[id]; !ok {
			return
		}
		delete(f.registrants, id)
		if len(f.registrants) == 0 {
			// Last registrant gone: close the feed so it holds no state and
			// receives no further routing.
			delete(m.tallies, itemID)
		}
	}
}

// SubscribeUserVote registers fn for changes of one user's vote on one item.
func (m *Manager) SubscribeUserVote(userID uuid.UUID, itemID string, fn func(*domain.VoteType, error)) ports.Unsubscribe {
	key := voteKey{userID: userID, itemID: itemID}

	m.mu.Lock()
	f := m.votes[key]
	if f == nil {
		f = &voteFeed{registrants: make(map[uint64]func(*domain.VoteType, error))}
		m.votes[key] = f
		go m.refreshUserVote(key, false)
	}
	id := m.nextID
	m.nextID++
	f.registrants[id] = fn
	if f.hasLast {
		go m.replayUserVote(key, id)
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		f := m.votes[key]
		if f == nil {
			return
		}
		if _, ok := f.registrants[id]; !ok {
			return
		}
		delete(f.registrants, id)
		if len(f.registrants) == 0 {
			delete(m.votes, key)
		}
	}
}

// DropUser closes every vote feed of a departing user and tells the
// registrants they now have no vote.
func (m *Manager) DropUser(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, f := range m.votes {
		if key.userID != userID {
			continue
		}
		for _, fn := range f.registrants {
			fn(nil, nil)
		}
		delete(m.votes, key)
	}
}

// refreshTally reads the current tally with backoff and delivers it to the
// feed. With force it overwrites a value delivered in the meantime (used
// after a stream reconnect, when cached values may be stale); otherwise a
// live notification that raced ahead of the snapshot wins.
func (m *Manager) refreshTally(itemID string, force bool) {
	ctx := m.snapshotContext()

	var tally domain.Tally
	err := backoff.Retry(func() error {
		var err error
		tally, err = m.store.GetTally(ctx, itemID)
		return err
	}, backoff.WithContext(m.snapshotBackoff(), ctx))

	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.tallies[itemID]
	if f == nil {
		return
	}
	if err != nil {
		m.log.Error().Err(err).Str("item_id", itemID).Msg("tally snapshot failed")
		for _, fn := range f.registrants {
			fn(domain.Tally{}, domain.ErrStreamUnavailable)
		}
		return
	}
	if f.hasLast && !force {
		return
	}
	f.last = tally
	f.hasLast = true
	for _, fn := range f.registrants {
		fn(f.last, nil)
	}
}

func (m *Manager) refreshUserVote(key voteKey, force bool) {
	ctx := m.snapshotContext()

	var vote *domain.VoteType
	err := backoff.Retry(func() error {
		var err error
		vote, err = m.store.GetUserVote(ctx, key.userID, key.itemID)
		return err
	}, backoff.WithContext(m.snapshotBackoff(), ctx))

	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.votes[key]
	if f == nil {
		return
	}
	if err != nil {
		m.log.Error().Err(err).Str("item_id", key.itemID).Msg("user vote snapshot failed")
		for _, fn := range f.registrants {
			fn(nil, domain.ErrStreamUnavailable)
		}
		return
	}
	if f.hasLast && !force {
		return
	}
	f.last = vote
	f.hasLast = true
	for _, fn := range f.registrants {
		fn(f.last, nil)
	}
}

// replayTally hands the feed's last known value to one late-joining
// registrant, skipping it if the registrant already unsubscribed.
func (m *Manager) replayTally(itemID string, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.tallies[itemID]
	if f == nil || !f.hasLast {
		return
	}
	if fn, ok := f.registrants[id]; ok {
		fn(f.last, nil)
	}
}

func (m *Manager) replayUserVote(key voteKey, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.votes[key]
	if f == nil || !f.hasLast {
		return
	}
	if fn, ok := f.registrants[id]; ok {
		fn(f.last, nil)
	}
}

// resyncAll re-reads every open feed after the stream reconnected, because
// notifications may have been missed while the connection was down.
func (m *Manager) resyncAll() {
	m.mu.Lock()
	tallyKeys := make([]string, 0, len(m.tallies))
	for itemID := range m.tallies {
		tallyKeys = append(tallyKeys, itemID)
	}
	voteKeys := make([]voteKey, 0, len(m.votes))
	for key := range m.votes {
		voteKeys = append(voteKeys, key)
	}
	m.mu.Unlock()

	for _, itemID := range tallyKeys {
		go m.refreshTally(itemID, true)
	}
	for _, key := range voteKeys {
		go m.refreshUserVote(key, true)
	}
}

// failAll delivers the error marker to every registrant: state is unknown,
// do not overwrite local state.
func (m *Manager) failAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.tallies {
		for _, fn := range f.registrants {
			fn(domain.Tally{}, err)
		}
	}
	for _, f := range m.votes {
		for _, fn := range f.registrants {
			fn(nil, err)
		}
	}
}

func (m *Manager) snapshotBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return b
}
