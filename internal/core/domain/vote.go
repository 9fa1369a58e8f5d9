package domain

// VoteType is the closed set of vote directions. "No vote" is represented by
// a nil *VoteType, never by a third value.
type VoteType string

const (
	VoteLike    VoteType = "like"
	VoteDislike VoteType = "dislike"
)

func (t VoteType) Valid() bool {
	return t == VoteLike || t == VoteDislike
}

func ParseVoteType(s string) (VoteType, error) {
	t := VoteType(s)
	if !t.Valid() {
		return "", ErrInvalidVoteType
	}
	return t, nil
}

// Tally is the aggregate counter document for one item. Both counters are
// always >= 0 and, in committed store state, equal the number of current
// user votes of each type for that item.
type Tally struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// ApplyVote runs the vote transition table against a tally and the current
// vote of the acting user, returning the new tally and the new vote:
//
//   - no current vote: the requested counter is incremented
//   - same type again:  toggle off, counter decremented, vote removed
//   - other type:       switch, old counter decremented, new incremented
//
// Decrements clamp at zero. The transaction engine and the optimistic view
// projection both run exactly this function, so a speculative update and the
// eventual committed state can only differ by what other users did in
// between.
func ApplyVote(tally Tally, current *VoteType, requested VoteType) (Tally, *VoteType) {
	if current != nil && *current == requested {
		tally = decrement(tally, requested)
		return tally, nil
	}

	if current != nil {
		tally = decrement(tally, *current)
	}
	switch requested {
	case VoteLike:
		tally.Likes++
	case VoteDislike:
		tally.Dislikes++
	}

	vote := requested
	return tally, &vote
}

func decrement(tally Tally, t VoteType) Tally {
	switch t {
	case VoteLike:
		if tally.Likes > 0 {
			tally.Likes--
		}
	case VoteDislike:
		if tally.Dislikes > 0 {
			tally.Dislikes--
		}
	}
	return tally
}
