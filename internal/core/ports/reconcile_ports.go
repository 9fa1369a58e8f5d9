package ports

import "context"

// ReconcileRepository repairs tally/vote divergence offline. The runtime
// engine never recounts; it trusts the transactional write path.
type ReconcileRepository interface {
	ListVotedItems(ctx context.Context) ([]string, error)
	RecountTally(ctx context.Context, itemID string) error
}

type ReconcileService interface {
	ReconcileAll(ctx context.Context) error
}
