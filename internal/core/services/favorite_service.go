package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
)

type favoriteService struct {
	repo ports.FavoriteRepository
}

func NewFavoriteService(repo ports.FavoriteRepository) ports.FavoriteService {
	return &favoriteService{
		repo: repo,
	}
}

func (s *favoriteService) Toggle(ctx context.Context, input ports.ToggleFavoriteInput) (bool, error) {
	if input.UserID == uuid.Nil {
		return false, domain.ErrNotAuthenticated
	}

	fav := input.Fav
	fav.ItemID = strings.TrimSpace(fav.ItemID)
	if fav.ItemID == "" {
		return false, domain.ErrInvalidItemID
	}
	if fav.Poster == "" {
		fav.Poster = "N/A"
	}

	added, err := s.repo.Toggle(ctx, input.UserID, fav)
	if err != nil {
		return false, fmt.Errorf("failed to toggle favorite %s: %w", fav.ItemID, err)
	}
	return added, nil
}

func (s *favoriteService) Remove(ctx context.Context, userID uuid.UUID, itemID string) error {
	if userID == uuid.Nil {
		return domain.ErrNotAuthenticated
	}
	if itemID == "" {
		return domain.ErrInvalidItemID
	}
	return s.repo.Remove(ctx, userID, itemID)
}

func (s *favoriteService) List(ctx context.Context, userID uuid.UUID) ([]domain.Favorite, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrNotAuthenticated
	}
	return s.repo.List(ctx, userID)
}
