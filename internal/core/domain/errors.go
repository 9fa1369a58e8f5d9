package domain

import "errors"

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrInvalidVoteType   = errors.New("invalid vote type")
	ErrInvalidItemID     = errors.New("invalid item id")
	ErrVoteConflict      = errors.New("vote conflict: transaction retries exhausted")
	ErrStreamClosed      = errors.New("change stream closed")
	ErrStreamUnavailable = errors.New("change stream unavailable: state unknown")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrNoVote            = errors.New("user has no vote on this item")
	ErrEmptyComment      = errors.New("comment body is required")
	ErrCommentNotFound   = errors.New("comment not found")
	ErrNotCommentOwner   = errors.New("comment belongs to another user")
	ErrMovieNotFound     = errors.New("movie not found")
	ErrInternal          = errors.New("internal server error")
)
