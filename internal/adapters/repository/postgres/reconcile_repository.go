package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reeltally/api/internal/core/ports"
)

type reconcileRepository struct {
	db *sql.DB
}

func NewReconcileRepository(db *sql.DB) ports.ReconcileRepository {
	return &reconcileRepository{
		db: db,
	}
}

func (r *reconcileRepository) ListVotedItems(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id FROM movie_tallies
		UNION
		SELECT DISTINCT item_id FROM user_votes
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list voted items: %w", err)
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating voted items: %w", err)
	}
	return items, nil
}

// RecountTally rewrites one item's tally from its vote records in a single
// statement, covering tallies that drifted or were lost entirely.
func (r *reconcileRepository) RecountTally(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO movie_tallies (item_id, likes, dislikes, updated_at)
		SELECT $1,
		       COUNT(*) FILTER (WHERE vote = 'like'),
		       COUNT(*) FILTER (WHERE vote = 'dislike'),
		       NOW()
		FROM user_votes
		WHERE item_id = $1
		ON CONFLICT (item_id) DO UPDATE
		SET likes = EXCLUDED.likes,
		    dislikes = EXCLUDED.dislikes,
		    updated_at = NOW()
	`, itemID)
	if err != nil {
		return fmt.Errorf("failed to recount tally for %s: %w", itemID, err)
	}
	return nil
}
