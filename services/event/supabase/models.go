// Package supabase provides event, participant and announcement table access.
package supabase

import "time"

// Table names
const (
	tableEvents        = "events"
	tableParticipants  = "event_participants"
	tableAnnouncements = "announcements"
)

// Event mirrors an events row. MaxParticipants 0 means unlimited.
type Event struct {
	ID              string     `json:"id"`
	CreatorID       string     `json:"creator_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	Category        string     `json:"category,omitempty"`
	ImagePath       string     `json:"image_path,omitempty"`
	StartsAt        time.Time  `json:"starts_at"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	MaxParticipants int        `json:"max_participants"`
	CreatedAt       time.Time  `json:"created_at"`
}

// EventUpdate carries the mutable event columns; nil fields are left untouched.
type EventUpdate struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Location        *string    `json:"location,omitempty"`
	Category        *string    `json:"category,omitempty"`
	ImagePath       *string    `json:"image_path,omitempty"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	MaxParticipants *int       `json:"max_participants,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u EventUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Location == nil && u.Category == nil &&
		u.ImagePath == nil && u.StartsAt == nil && u.EndsAt == nil && u.MaxParticipants == nil
}

// Participant mirrors an event_participants row.
type Participant struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Announcement mirrors an announcements row.
type Announcement struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
