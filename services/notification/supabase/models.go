// Package supabase provides notification table access.
package supabase

import "time"

const tableNotifications = "notifications"

// Notification types
const (
	TypeMessage      = "message"
	TypeAnnouncement = "announcement"
	TypeParticipant  = "participant"
	TypeEventUpdate  = "event_update"
	TypeModeration   = "moderation"
)

// Notification mirrors a notifications row. SenderID is empty for system notifications.
type Notification struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SenderID    string    `json:"sender_id,omitempty"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ReferenceID string    `json:"reference_id,omitempty"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}
