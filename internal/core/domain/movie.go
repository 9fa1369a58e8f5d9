package domain

// Movie is catalog metadata for one item, as returned by the external
// catalog. A tally may exist for an item id with no catalog metadata; the
// engagement engine never validates ids against the catalog.
type Movie struct {
	ImdbID string `json:"imdb_id"`
	Title  string `json:"title"`
	Year   string `json:"year"`
	Poster string `json:"poster"`
	Plot   string `json:"plot,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Rated  string `json:"rated,omitempty"`
}

type MovieSearchResult struct {
	Movies  []Movie `json:"movies"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	HasMore bool    `json:"has_more"`
}
