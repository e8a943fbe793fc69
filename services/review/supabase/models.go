// Package supabase provides event review table access.
package supabase

import "time"

const tableReviews = "reviews"

// Rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

// Review mirrors a reviews row.
type Review struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	AuthorID  string    `json:"author_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
