package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/reeltally/api/internal/core/domain"
)

// TallyEvent carries the full current tally document for one item.
type TallyEvent struct {
	ItemID string
	Tally  domain.Tally
}

// UserVoteEvent carries the full current vote of one user on one item; a nil
// Vote means the vote was retracted.
type UserVoteEvent struct {
	UserID uuid.UUID
	ItemID string
	Vote   *domain.VoteType
}

// StreamEvent is one notification from the store's change stream. Exactly one
// field is meaningful: a document change, a Reset after the underlying
// connection was re-established (events may have been missed, current values
// must be re-read), or a terminal Err once reconnection attempts are
// exhausted.
type StreamEvent struct {
	Tally    *TallyEvent
	UserVote *UserVoteEvent
	Reset    bool
	Err      error
}

// ChangeStream is the store's commit-ordered notification feed. Events for
// one document arrive in commit order; no order is guaranteed between tally
// and user-vote events.
type ChangeStream interface {
	Start(ctx context.Context) error
	Events() <-chan StreamEvent
	Close() error
}

// Unsubscribe removes a registrant. It is idempotent, and after it returns no
// further notification is delivered to that registrant.
type Unsubscribe func()

// Subscriptions fans change notifications out to every view currently
// displaying an item. Callbacks receive the full current value, or a non-nil
// error when the stream state is unknown; they must not block.
type Subscriptions interface {
	SubscribeTally(itemID string, fn func(domain.Tally, error)) Unsubscribe
	SubscribeUserVote(userID uuid.UUID, itemID string, fn func(*domain.VoteType, error)) Unsubscribe
	// DropUser closes every user-vote subscription of a departing user and
	// notifies the registrants with "no vote".
	DropUser(userID uuid.UUID)
}
