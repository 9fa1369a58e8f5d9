package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconcileRepo struct {
	items []string

	mu        sync.Mutex
	recounted map[string]int
	inFlight  int
	peak      int
	failOn    string
}

func newFakeReconcileRepo(items []string) *fakeReconcileRepo {
	return &fakeReconcileRepo{
		items:     items,
		recounted: make(map[string]int),
	}
}

func (r *fakeReconcileRepo) ListVotedItems(ctx context.Context) ([]string, error) {
	return r.items, nil
}

func (r *fakeReconcileRepo) RecountTally(ctx context.Context, itemID string) error {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.peak {
		r.peak = r.inFlight
	}
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.inFlight--
	r.recounted[itemID]++
	fail := itemID == r.failOn
	r.mu.Unlock()

	if fail {
		return errors.New("recount failed")
	}
	return nil
}

func TestReconcileAll_RecountsEveryItem(t *testing.T) {
	items := make([]string, 100)
	for i := range items {
		items[i] = fmt.Sprintf("tt%07d", i)
	}
	repo := newFakeReconcileRepo(items)
	svc := NewReconcileService(repo)

	require.NoError(t, svc.ReconcileAll(context.Background()))

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.recounted, len(items))
	for _, id := range items {
		assert.Equal(t, 1, repo.recounted[id])
	}
}

func TestReconcileAll_BoundsConcurrency(t *testing.T) {
	items := make([]string, 200)
	for i := range items {
		items[i] = fmt.Sprintf("tt%07d", i)
	}
	repo := newFakeReconcileRepo(items)
	svc := NewReconcileService(repo)

	require.NoError(t, svc.ReconcileAll(context.Background()))

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.LessOrEqual(t, repo.peak, reconcileWorkers)
	assert.Greater(t, repo.peak, 0)
}

func TestReconcileAll_SurfacesFailure(t *testing.T) {
	repo := newFakeReconcileRepo([]string{"tt0111161", "tt0068646", "tt0137523"})
	repo.failOn = "tt0068646"
	svc := NewReconcileService(repo)

	err := svc.ReconcileAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tt0068646")
}
