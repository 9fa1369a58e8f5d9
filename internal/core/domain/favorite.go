package domain

import "time"

// Favorite is one entry in a user's favorite set. Title, year and poster are
// denormalized from the catalog so listing favorites needs no catalog round
// trip.
type Favorite struct {
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	Year      string    `json:"year"`
	Poster    string    `json:"poster"`
	CreatedAt time.Time `json:"created_at"`
}
