package supabase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/supabase/client"
)

// =============================================================================
// Repository Interface
// =============================================================================

// RepositoryInterface defines chat data access methods.
type RepositoryInterface interface {
	CreateChat(ctx context.Context, chat *Chat) error
	GetChatsByIDs(ctx context.Context, ids []string) ([]Chat, error)
	GetGroupChatByEvent(ctx context.Context, eventID string) (*Chat, error)
	FindPrivateChat(ctx context.Context, userA, userB string) (*Chat, error)

	AddParticipant(ctx context.Context, chatID, userID string) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error
	ListParticipantRows(ctx context.Context, userID string) ([]Participant, error)
	ListParticipantsForChats(ctx context.Context, chatIDs []string) ([]Participant, error)
	GetParticipant(ctx context.Context, chatID, userID string) (*Participant, error)
	UpdateLastReadAt(ctx context.Context, chatID, userID string, at time.Time) error

	InsertMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	LastMessage(ctx context.Context, chatID string) (*Message, error)
	CountUnread(ctx context.Context, chatID, userID string, after *time.Time) (int, error)
	MarkMessagesRead(ctx context.Context, chatID, userID string) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// =============================================================================
// Repository Implementation
// =============================================================================

// Repository provides chat data access over the gateway.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new chat repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

func participantKey(chatID, userID string) string {
	return chatID + "/" + userID
}

// CreateChat inserts a chat row.
func (r *Repository) CreateChat(ctx context.Context, chat *Chat) error {
	if chat == nil {
		return database.Invalidf("chat cannot be nil")
	}
	if chat.Type != TypePrivate && chat.Type != TypeGroup {
		return database.Invalidf("invalid chat type %q", chat.Type)
	}
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	return database.GenericCreate(r.base, ctx, tableChats, chat, func(rows []Chat) {
		if len(rows) > 0 {
			*chat = rows[0]
		}
	})
}

// GetChatsByIDs fetches every listed chat in batched queries.
func (r *Repository) GetChatsByIDs(ctx context.Context, ids []string) ([]Chat, error) {
	return database.GenericListIn[Chat](r.base, ctx, tableChats, "id", ids)
}

// GetGroupChatByEvent fetches the group chat linked to an event.
func (r *Repository) GetGroupChatByEvent(ctx context.Context, eventID string) (*Chat, error) {
	if eventID == "" {
		return nil, database.Invalidf("event id cannot be empty")
	}
	q := r.base.From(tableChats).Select("*").Eq("event_id", eventID).Eq("type", TypeGroup)
	return database.FetchOne[Chat](ctx, q, eventID)
}

// FindPrivateChat finds the private chat both users take part in.
func (r *Repository) FindPrivateChat(ctx context.Context, userA, userB string) (*Chat, error) {
	if userA == "" || userB == "" {
		return nil, database.Invalidf("both user ids are required")
	}
	rowsA, err := r.ListParticipantRows(ctx, userA)
	if err != nil {
		return nil, err
	}
	if len(rowsA) == 0 {
		return nil, database.NewNotFoundError(tableChats, participantKey(userA, userB))
	}
	ids := make([]string, 0, len(rowsA))
	for _, p := range rowsA {
		ids = append(ids, p.ChatID)
	}

	var shared []string
	for _, batch := range database.Batches(ids) {
		q := r.base.From(tableParticipants).Select("chat_id").Eq("user_id", userB).InStrings("chat_id", batch)
		rows, err := database.Fetch[Participant](ctx, q)
		if err != nil {
			return nil, err
		}
		for _, p := range rows {
			shared = append(shared, p.ChatID)
		}
	}

	chats, err := r.GetChatsByIDs(ctx, shared)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if chats[i].Type == TypePrivate {
			return &chats[i], nil
		}
	}
	return nil, database.NewNotFoundError(tableChats, participantKey(userA, userB))
}

// =============================================================================
// Participants
// =============================================================================

// AddParticipant inserts a participant row. A duplicate is ErrConflict.
func (r *Repository) AddParticipant(ctx context.Context, chatID, userID string) error {
	if chatID == "" || userID == "" {
		return database.Invalidf("chat id and user id are required")
	}
	p := Participant{ChatID: chatID, UserID: userID, JoinedAt: time.Now().UTC()}
	return database.GenericCreate[Participant](r.base, ctx, tableParticipants, p, nil)
}

// RemoveParticipant deletes a participant row.
func (r *Repository) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	if chatID == "" || userID == "" {
		return database.Invalidf("chat id and user id are required")
	}
	q := r.base.From(tableParticipants).Eq("chat_id", chatID).Eq("user_id", userID)
	return database.DeleteExisting(ctx, q, participantKey(chatID, userID))
}

// ListParticipantRows lists the chats a user takes part in.
func (r *Repository) ListParticipantRows(ctx context.Context, userID string) ([]Participant, error) {
	if userID == "" {
		return nil, database.Invalidf("user id cannot be empty")
	}
	return database.GenericListByField[Participant](r.base, ctx, tableParticipants, "user_id", userID)
}

// ListParticipantsForChats lists every participant of the given chats.
func (r *Repository) ListParticipantsForChats(ctx context.Context, chatIDs []string) ([]Participant, error) {
	return database.GenericListIn[Participant](r.base, ctx, tableParticipants, "chat_id", chatIDs)
}

// GetParticipant fetches one participant row.
func (r *Repository) GetParticipant(ctx context.Context, chatID, userID string) (*Participant, error) {
	if chatID == "" || userID == "" {
		return nil, database.Invalidf("chat id and user id are required")
	}
	q := r.base.From(tableParticipants).Select("*").Eq("chat_id", chatID).Eq("user_id", userID)
	return database.FetchOne[Participant](ctx, q, participantKey(chatID, userID))
}

// UpdateLastReadAt moves the participant's read marker.
func (r *Repository) UpdateLastReadAt(ctx context.Context, chatID, userID string, at time.Time) error {
	if chatID == "" || userID == "" {
		return database.Invalidf("chat id and user id are required")
	}
	q := r.base.From(tableParticipants).Eq("chat_id", chatID).Eq("user_id", userID)
	return database.UpdateExisting(ctx, q, map[string]time.Time{"last_read_at": at.UTC()}, participantKey(chatID, userID))
}

// =============================================================================
// Messages
// =============================================================================

// InsertMessage stores a message.
func (r *Repository) InsertMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return database.Invalidf("message cannot be nil")
	}
	if msg.ChatID == "" || msg.SenderID == "" {
		return database.Invalidf("chat id and sender id are required")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return database.Invalidf("message cannot be empty")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return database.GenericCreate(r.base, ctx, tableMessages, msg, func(rows []Message) {
		if len(rows) > 0 {
			*msg = rows[0]
		}
	})
}

// ListMessages returns the newest limit messages of a chat in chronological order.
func (r *Repository) ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if chatID == "" {
		return nil, database.Invalidf("chat id cannot be empty")
	}
	q := r.base.From(tableMessages).Select("*").Eq("chat_id", chatID).Order("created_at", false)
	if limit > 0 {
		q = q.Limit(limit)
	}
	msgs, err := database.Fetch[Message](ctx, q)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LastMessage fetches the newest message of a chat. An empty chat is ErrNotFound.
func (r *Repository) LastMessage(ctx context.Context, chatID string) (*Message, error) {
	if chatID == "" {
		return nil, database.Invalidf("chat id cannot be empty")
	}
	q := r.base.From(tableMessages).Select("*").Eq("chat_id", chatID).Order("created_at", false)
	return database.FetchOne[Message](ctx, q, chatID)
}

// unreadQuery selects unread messages in chatID sent by anyone but userID.
func (r *Repository) unreadQuery(chatID, userID string) *client.QueryBuilder {
	return r.base.From(tableMessages).
		Eq("chat_id", chatID).
		Neq("sender_id", userID).
		Is("is_read", false)
}

// CountUnread counts unread messages from others, limited to those created
// after the read marker when one is set.
func (r *Repository) CountUnread(ctx context.Context, chatID, userID string, after *time.Time) (int, error) {
	if chatID == "" || userID == "" {
		return 0, database.Invalidf("chat id and user id are required")
	}
	q := r.unreadQuery(chatID, userID)
	if after != nil {
		q = q.Gt("created_at", *after)
	}
	return database.Count(ctx, q)
}

// MarkMessagesRead flags every unread message from others in the chat as read.
func (r *Repository) MarkMessagesRead(ctx context.Context, chatID, userID string) error {
	if chatID == "" || userID == "" {
		return database.Invalidf("chat id and user id are required")
	}
	_, err := database.Update(ctx, r.unreadQuery(chatID, userID), map[string]bool{"is_read": true})
	return err
}
