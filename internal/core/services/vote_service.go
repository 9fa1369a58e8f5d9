package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
	"github.com/rs/zerolog"
)

type voteService struct {
	tallies ports.TallyRepository
	log     zerolog.Logger
}

func NewVoteService(tallies ports.TallyRepository, log zerolog.Logger) ports.VoteService {
	return &voteService{
		tallies: tallies,
		log:     log.With().Str("component", "votes").Logger(),
	}
}

// CastVote runs the vote transition for one user action. The caller must be
// authenticated; the transaction itself lives in the repository so the tally
// and the user vote commit together or not at all.
func (s *voteService) CastVote(ctx context.Context, input ports.CastVoteInput) (*ports.CastVoteResult, error) {
	if input.UserID == uuid.Nil {
		return nil, domain.ErrNotAuthenticated
	}
	if input.ItemID == "" {
		return nil, domain.ErrInvalidItemID
	}
	if !input.Vote.Valid() {
		return nil, domain.ErrInvalidVoteType
	}

	tally, myVote, err := s.tallies.CastVote(ctx, input.UserID, input.ItemID, input.Vote)
	if err != nil {
		return nil, fmt.Errorf("failed to cast vote on %s: %w", input.ItemID, err)
	}

	s.log.Debug().
		Str("item_id", input.ItemID).
		Str("vote", string(input.Vote)).
		Int64("likes", tally.Likes).
		Int64("dislikes", tally.Dislikes).
		Msg("vote committed")

	return &ports.CastVoteResult{Tally: tally, MyVote: myVote}, nil
}

func (s *voteService) GetTally(ctx context.Context, itemID string) (domain.Tally, error) {
	if itemID == "" {
		return domain.Tally{}, domain.ErrInvalidItemID
	}
	return s.tallies.GetTally(ctx, itemID)
}

func (s *voteService) GetMyVote(ctx context.Context, userID uuid.UUID, itemID string) (*domain.VoteType, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrNotAuthenticated
	}
	if itemID == "" {
		return nil, domain.ErrInvalidItemID
	}
	return s.tallies.GetUserVote(ctx, userID, itemID)
}
