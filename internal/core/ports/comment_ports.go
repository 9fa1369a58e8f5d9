package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
)

type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByItem(ctx context.Context, itemID string) ([]domain.Comment, error)
}

type CreateCommentInput struct {
	UserID uuid.UUID
	ItemID string
	Body   string
}

type CommentService interface {
	Create(ctx context.Context, input CreateCommentInput) (*domain.Comment, error)
	Delete(ctx context.Context, userID, commentID uuid.UUID) error
	ListByItem(ctx context.Context, itemID string) ([]domain.Comment, error)
}
