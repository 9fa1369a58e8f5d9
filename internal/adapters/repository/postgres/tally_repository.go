package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
	"github.com/rs/zerolog"
)

// castVoteMaxAttempts bounds the retry loop for serialization conflicts.
const castVoteMaxAttempts = 5

type tallyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewTallyRepository(db *sql.DB, log zerolog.Logger) ports.TallyRepository {
	return &tallyRepository{
		db:  db,
		log: log.With().Str("component", "tally_repo").Logger(),
	}
}

// CastVote reads the tally and the caller's current vote, applies the
// transition table and writes both back inside one SERIALIZABLE transaction.
// A concurrent transaction touching the same rows makes the commit fail with
// a serialization error; the whole read-apply-write cycle is then rerun from
// a fresh read, so no increment is ever lost and no intermediate state is
// observable.
func (r *tallyRepository) CastVote(ctx context.Context, userID uuid.UUID, itemID string, requested domain.VoteType) (domain.Tally, *domain.VoteType, error) {
	var lastErr error

	for attempt := 1; attempt <= castVoteMaxAttempts; attempt++ {
		tally, vote, err := r.castVoteOnce(ctx, userID, itemID, requested)
		if err == nil {
			return tally, vote, nil
		}
		if !isSerializationFailure(err) {
			return domain.Tally{}, nil, err
		}

		lastErr = err
		r.log.Debug().
			Str("item_id", itemID).
			Int("attempt", attempt).
			Msg("vote transaction conflicted, retrying")
	}

	return domain.Tally{}, nil, fmt.Errorf("%w: %v", domain.ErrVoteConflict, lastErr)
}

func (r *tallyRepository) castVoteOnce(ctx context.Context, userID uuid.UUID, itemID string, requested domain.VoteType) (domain.Tally, *domain.VoteType, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Tally{}, nil, fmt.Errorf("failed to begin vote transaction: %w", err)
	}
	defer tx.Rollback()

	var tally domain.Tally
	err = tx.QueryRowContext(ctx,
		`SELECT likes, dislikes FROM movie_tallies WHERE item_id = $1`,
		itemID,
	).Scan(&tally.Likes, &tally.Dislikes)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Tally{}, nil, fmt.Errorf("failed to read tally: %w", err)
	}

	var current *domain.VoteType
	var voteStr string
	err = tx.QueryRowContext(ctx,
		`SELECT vote FROM user_votes WHERE user_id = $1 AND item_id = $2`,
		userID, itemID,
	).Scan(&voteStr)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Tally{}, nil, fmt.Errorf("failed to read user vote: %w", err)
	}
	if err == nil {
		t := domain.VoteType(voteStr)
		current = &t
	}

	newTally, newVote := domain.ApplyVote(tally, current, requested)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO movie_tallies (item_id, likes, dislikes)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id) DO UPDATE
		SET likes = EXCLUDED.likes,
		    dislikes = EXCLUDED.dislikes,
		    updated_at = NOW()
	`, itemID, newTally.Likes, newTally.Dislikes)
	if err != nil {
		return domain.Tally{}, nil, fmt.Errorf("failed to write tally: %w", err)
	}

	if newVote == nil {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM user_votes WHERE user_id = $1 AND item_id = $2`,
			userID, itemID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_votes (user_id, item_id, vote)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, item_id) DO UPDATE
			SET vote = EXCLUDED.vote, updated_at = NOW()
		`, userID, itemID, string(*newVote))
	}
	if err != nil {
		return domain.Tally{}, nil, fmt.Errorf("failed to write user vote: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Tally{}, nil, err
	}
	return newTally, newVote, nil
}

func (r *tallyRepository) GetTally(ctx context.Context, itemID string) (domain.Tally, error) {
	var tally domain.Tally
	err := r.db.QueryRowContext(ctx,
		`SELECT likes, dislikes FROM movie_tallies WHERE item_id = $1`,
		itemID,
	).Scan(&tally.Likes, &tally.Dislikes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No tally document yet: an item nobody voted on reads as zero.
			return domain.Tally{}, nil
		}
		return domain.Tally{}, fmt.Errorf("failed to read tally: %w", err)
	}
	return tally, nil
}

func (r *tallyRepository) GetUserVote(ctx context.Context, userID uuid.UUID, itemID string) (*domain.VoteType, error) {
	var voteStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT vote FROM user_votes WHERE user_id = $1 AND item_id = $2`,
		userID, itemID,
	).Scan(&voteStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read user vote: %w", err)
	}
	vote := domain.VoteType(voteStr)
	return &vote, nil
}

// isSerializationFailure reports whether err is a conflict worth retrying:
// serialization_failure (40001) or deadlock_detected (40P01).
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
