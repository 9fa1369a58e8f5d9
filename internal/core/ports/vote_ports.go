package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
)

// TallyRepository is the vote record store: one tally document per item plus
// at most one vote document per (user, item). CastVote is the only write path
// and must commit the tally and the user vote atomically.
type TallyRepository interface {
	// CastVote applies the vote transition table inside a single atomic
	// transaction and returns the committed tally and vote. A missing tally
	// reads as {0,0}. When the store keeps reporting write conflicts the
	// call fails with domain.ErrVoteConflict and no partial state is left
	// committed.
	CastVote(ctx context.Context, userID uuid.UUID, itemID string, requested domain.VoteType) (domain.Tally, *domain.VoteType, error)
	GetTally(ctx context.Context, itemID string) (domain.Tally, error)
	GetUserVote(ctx context.Context, userID uuid.UUID, itemID string) (*domain.VoteType, error)
}

type CastVoteInput struct {
	UserID uuid.UUID
	ItemID string
	Vote   domain.VoteType
}

type CastVoteResult struct {
	Tally  domain.Tally     `json:"tally"`
	MyVote *domain.VoteType `json:"my_vote"`
}

type VoteService interface {
	CastVote(ctx context.Context, input CastVoteInput) (*CastVoteResult, error)
	GetTally(ctx context.Context, itemID string) (domain.Tally, error)
	GetMyVote(ctx context.Context, userID uuid.UUID, itemID string) (*domain.VoteType, error)
}
