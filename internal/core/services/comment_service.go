package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
)

type commentService struct {
	repo  ports.CommentRepository
	users ports.UserRepository
}

func NewCommentService(repo ports.CommentRepository, users ports.UserRepository) ports.CommentService {
	return &commentService{
		repo:  repo,
		users: users,
	}
}

func (s *commentService) Create(ctx context.Context, input ports.CreateCommentInput) (*domain.Comment, error) {
	if input.UserID == uuid.Nil {
		return nil, domain.ErrNotAuthenticated
	}
	if input.ItemID == "" {
		return nil, domain.ErrInvalidItemID
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domain.ErrEmptyComment
	}

	user, err := s.users.GetByID(ctx, input.UserID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve comment author: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotAuthenticated
	}

	comment := &domain.Comment{
		ID:         uuid.New(),
		ItemID:     input.ItemID,
		UserID:     input.UserID,
		AuthorName: user.Name,
		Body:       body,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to save comment: %w", err)
	}
	return comment, nil
}

func (s *commentService) Delete(ctx context.Context, userID, commentID uuid.UUID) error {
	if userID == uuid.Nil {
		return domain.ErrNotAuthenticated
	}

	comment, err := s.repo.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment == nil {
		return domain.ErrCommentNotFound
	}
	if comment.UserID != userID {
		return domain.ErrNotCommentOwner
	}

	return s.repo.Delete(ctx, commentID)
}

func (s *commentService) ListByItem(ctx context.Context, itemID string) ([]domain.Comment, error) {
	if itemID == "" {
		return nil, domain.ErrInvalidItemID
	}
	return s.repo.ListByItem(ctx, itemID)
}
