// Package projection holds the per-view read model of engagement state. A
// View applies the user's action speculatively the instant it happens and
// lets server-confirmed notifications overwrite it afterwards; there is no
// rollback path, because the next notification always carries the truth.
package projection

import (
	"sync"

	"github.com/reeltally/api/internal/core/domain"
)

// View is the projection set of one rendering view instance. Each watched
// item has one ViewProjection; projections are private to the view and
// discarded on Unwatch.
type View struct {
	mu    sync.Mutex
	items map[string]*domain.ViewProjection
}

func NewView() *View {
	return &View{
		items: make(map[string]*domain.ViewProjection),
	}
}

// Watch starts projecting an item, returning its initial (zero) state. The
// real values arrive with the first server notification.
func (v *View) Watch(itemID string) domain.ViewProjection {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p, ok := v.items[itemID]; ok {
		return *p
	}
	p := &domain.ViewProjection{}
	v.items[itemID] = p
	return *p
}

func (v *View) Unwatch(itemID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.items, itemID)
}

func (v *View) Get(itemID string) (domain.ViewProjection, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.items[itemID]
	if !ok {
		return domain.ViewProjection{}, false
	}
	return *p, true
}

// ApplyLocalVote runs the vote transition table against the current local
// projection, not against server state, so rapid repeated clicks move the
// visible counters immediately and monotonically. The projection is marked
// pending until a server notification confirms or corrects it.
func (v *View) ApplyLocalVote(itemID string, requested domain.VoteType) (domain.ViewProjection, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.items[itemID]
	if !ok {
		return domain.ViewProjection{}, false
	}

	tally, vote := domain.ApplyVote(domain.Tally{Likes: p.Likes, Dislikes: p.Dislikes}, p.MyVote, requested)
	p.Likes = tally.Likes
	p.Dislikes = tally.Dislikes
	p.MyVote = vote
	p.Pending = true
	return *p, true
}

// OnServerTally overwrites the counters with the server-confirmed value and
// clears pending. Server state always wins on arrival, whether or not a
// speculative update is outstanding; that is what makes a failed vote
// self-correct without any rollback bookkeeping.
func (v *View) OnServerTally(itemID string, tally domain.Tally) (domain.ViewProjection, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.items[itemID]
	if !ok {
		return domain.ViewProjection{}, false
	}
	p.Likes = tally.Likes
	p.Dislikes = tally.Dislikes
	p.Pending = false
	return *p, true
}

// OnServerUserVote overwrites the viewer's own vote with the server-confirmed
// value and clears pending. A nil vote means "no vote".
func (v *View) OnServerUserVote(itemID string, vote *domain.VoteType) (domain.ViewProjection, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.items[itemID]
	if !ok {
		return domain.ViewProjection{}, false
	}
	p.MyVote = vote
	p.Pending = false
	return *p, true
}
