// Package supabase provides chat, participant and message table access.
package supabase

import "time"

// Table names
const (
	tableChats        = "chats"
	tableParticipants = "chat_participants"
	tableMessages     = "messages"
)

// Chat types
const (
	TypePrivate = "private"
	TypeGroup   = "group"
)

// Chat mirrors a chats row. EventID is set for event group chats only.
type Chat struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	EventID   string    `json:"event_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Participant mirrors a chat_participants row. LastReadAt is nil until the
// participant first reads the chat.
type Participant struct {
	ChatID     string     `json:"chat_id"`
	UserID     string     `json:"user_id"`
	LastReadAt *time.Time `json:"last_read_at"`
	JoinedAt   time.Time  `json:"joined_at"`
}

// Message mirrors a messages row.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
