package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
)

type favoriteRepository struct {
	db *sql.DB
}

func NewFavoriteRepository(db *sql.DB) ports.FavoriteRepository {
	return &favoriteRepository{
		db: db,
	}
}

// Toggle flips membership inside one transaction so two rapid clicks cannot
// race a check-then-write and end up double-inserting or double-deleting.
func (r *favoriteRepository) Toggle(ctx context.Context, userID uuid.UUID, fav domain.Favorite) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin favorite toggle: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO favorites (user_id, item_id, title, year, poster)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, item_id) DO NOTHING
	`, userID, fav.ItemID, fav.Title, fav.Year, fav.Poster)
	if err != nil {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if inserted == 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM favorites WHERE user_id = $1 AND item_id = $2`,
			userID, fav.ItemID)
		if err != nil {
			return false, fmt.Errorf("failed to remove favorite: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return inserted > 0, nil
}

func (r *favoriteRepository) Remove(ctx context.Context, userID uuid.UUID, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND item_id = $2`,
		userID, itemID)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

func (r *favoriteRepository) List(ctx context.Context, userID uuid.UUID) ([]domain.Favorite, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, title, year, poster, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var favs []domain.Favorite
	for rows.Next() {
		var f domain.Favorite
		if err := rows.Scan(&f.ItemID, &f.Title, &f.Year, &f.Poster, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favs = append(favs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorites: %w", err)
	}
	return favs, nil
}
