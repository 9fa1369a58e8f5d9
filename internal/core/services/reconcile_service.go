package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/reeltally/api/internal/core/ports"
)

// reconcileWorkers bounds concurrent recounts so a large catalog does not
// flood the connection pool.
const reconcileWorkers = 8

type reconcileService struct {
	repo ports.ReconcileRepository
}

func NewReconcileService(repo ports.ReconcileRepository) ports.ReconcileService {
	return &reconcileService{
		repo: repo,
	}
}

// ReconcileAll recounts every item's tally from its vote records. Divergence
// can only come from partial data loss outside the transactional write path,
// so this runs as an offline job, never at request time.
func (s *reconcileService) ReconcileAll(ctx context.Context) error {
	items, err := s.repo.ListVotedItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to list voted items: %w", err)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(items))
	sem := make(chan struct{}, reconcileWorkers)

	for _, itemID := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.repo.RecountTally(ctx, id); err != nil {
				errChan <- fmt.Errorf("failed to recount tally for %s: %w", id, err)
			}
		}(itemID)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return err
		}
	}

	return nil
}
