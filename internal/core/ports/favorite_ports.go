package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
)

type FavoriteRepository interface {
	// Toggle adds the favorite if absent and removes it if present, inside
	// one transaction. Returns true when the favorite was added.
	Toggle(ctx context.Context, userID uuid.UUID, fav domain.Favorite) (bool, error)
	Remove(ctx context.Context, userID uuid.UUID, itemID string) error
	List(ctx context.Context, userID uuid.UUID) ([]domain.Favorite, error)
}

type ToggleFavoriteInput struct {
	UserID uuid.UUID
	Fav    domain.Favorite
}

type FavoriteService interface {
	Toggle(ctx context.Context, input ToggleFavoriteInput) (bool, error)
	Remove(ctx context.Context, userID uuid.UUID, itemID string) error
	List(ctx context.Context, userID uuid.UUID) ([]domain.Favorite, error)
}
