package domain

// ViewProjection is a view-local read model of one item's engagement state:
// the tally as the view currently believes it, the viewer's own vote, and
// whether a speculative local update is awaiting server confirmation.
// Projections are never persisted and never shared between views.
type ViewProjection struct {
	Likes    int64     `json:"likes"`
	Dislikes int64     `json:"dislikes"`
	MyVote   *VoteType `json:"my_vote"`
	Pending  bool      `json:"pending"`
}
