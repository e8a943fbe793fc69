package supabase

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/social_layer/internal/database"
)

// MockRepository is an in-memory implementation of RepositoryInterface for testing.
type MockRepository struct {
	database.MockBase

	chats        map[string]*Chat
	participants map[string]map[string]*Participant
	messages     map[string][]Message
}

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		chats:        make(map[string]*Chat),
		participants: make(map[string]map[string]*Participant),
		messages:     make(map[string][]Message),
	}
}

// Ensure MockRepository implements RepositoryInterface
var _ RepositoryInterface = (*MockRepository)(nil)

// AddMessage stores msg as is, keeping the chat's messages ordered by creation time.
func (m *MockRepository) AddMessage(msg Message) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], msg)
	sort.SliceStable(m.messages[msg.ChatID], func(i, j int) bool {
		return m.messages[msg.ChatID][i].CreatedAt.Before(m.messages[msg.ChatID][j].CreatedAt)
	})
}

// Messages returns a copy of every stored message of a chat.
func (m *MockRepository) Messages(chatID string) []Message {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	return append([]Message(nil), m.messages[chatID]...)
}

func (m *MockRepository) CreateChat(ctx context.Context, chat *Chat) error {
	if err := m.CheckError("CreateChat"); err != nil {
		return err
	}
	if chat == nil || (chat.Type != TypePrivate && chat.Type != TypeGroup) {
		return database.Invalidf("invalid chat")
	}
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if _, ok := m.chats[chat.ID]; ok {
		return database.ErrConflict
	}
	cp := *chat
	m.chats[chat.ID] = &cp
	return nil
}

func (m *MockRepository) GetChatsByIDs(ctx context.Context, ids []string) ([]Chat, error) {
	if err := m.CheckError("GetChatsByIDs"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Chat
	for _, id := range database.Unique(ids) {
		if c, ok := m.chats[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MockRepository) GetGroupChatByEvent(ctx context.Context, eventID string) (*Chat, error) {
	if err := m.CheckError("GetGroupChatByEvent"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	for _, c := range m.chats {
		if c.Type == TypeGroup && c.EventID == eventID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, database.NewNotFoundError(tableChats, eventID)
}

func (m *MockRepository) FindPrivateChat(ctx context.Context, userA, userB string) (*Chat, error) {
	if err := m.CheckError("FindPrivateChat"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	for id, ps := range m.participants {
		c, ok := m.chats[id]
		if !ok || c.Type != TypePrivate {
			continue
		}
		if ps[userA] != nil && ps[userB] != nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, database.NewNotFoundError(tableChats, participantKey(userA, userB))
}

func (m *MockRepository) AddParticipant(ctx context.Context, chatID, userID string) error {
	if err := m.CheckError("AddParticipant"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.participants[chatID] == nil {
		m.participants[chatID] = make(map[string]*Participant)
	}
	if m.participants[chatID][userID] != nil {
		return database.ErrConflict
	}
	m.participants[chatID][userID] = &Participant{ChatID: chatID, UserID: userID, JoinedAt: time.Now().UTC()}
	return nil
}

func (m *MockRepository) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	if err := m.CheckError("RemoveParticipant"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.participants[chatID][userID] == nil {
		return database.NewNotFoundError(tableParticipants, participantKey(chatID, userID))
	}
	delete(m.participants[chatID], userID)
	return nil
}

func (m *MockRepository) ListParticipantRows(ctx context.Context, userID string) ([]Participant, error) {
	if err := m.CheckError("ListParticipantRows"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Participant
	for _, ps := range m.participants {
		if p := ps[userID]; p != nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (m *MockRepository) ListParticipantsForChats(ctx context.Context, chatIDs []string) ([]Participant, error) {
	if err := m.CheckError("ListParticipantsForChats"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Participant
	for _, id := range database.Unique(chatIDs) {
		for _, p := range m.participants[id] {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *MockRepository) GetParticipant(ctx context.Context, chatID, userID string) (*Participant, error) {
	if err := m.CheckError("GetParticipant"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	p := m.participants[chatID][userID]
	if p == nil {
		return nil, database.NewNotFoundError(tableParticipants, participantKey(chatID, userID))
	}
	cp := *p
	return &cp, nil
}

func (m *MockRepository) UpdateLastReadAt(ctx context.Context, chatID, userID string, at time.Time) error {
	if err := m.CheckError("UpdateLastReadAt"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	p := m.participants[chatID][userID]
	if p == nil {
		return database.NewNotFoundError(tableParticipants, participantKey(chatID, userID))
	}
	t := at.UTC()
	p.LastReadAt = &t
	return nil
}

func (m *MockRepository) InsertMessage(ctx context.Context, msg *Message) error {
	if err := m.CheckError("InsertMessage"); err != nil {
		return err
	}
	if msg == nil || msg.ChatID == "" || msg.SenderID == "" || msg.Content == "" {
		return database.Invalidf("invalid message")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.AddMessage(*msg)
	return nil
}

func (m *MockRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if err := m.CheckError("ListMessages"); err != nil {
		return nil, err
	}
	msgs := m.Messages(chatID)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *MockRepository) LastMessage(ctx context.Context, chatID string) (*Message, error) {
	if err := m.CheckError("LastMessage"); err != nil {
		return nil, err
	}
	msgs := m.Messages(chatID)
	if len(msgs) == 0 {
		return nil, database.NewNotFoundError(tableMessages, chatID)
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (m *MockRepository) CountUnread(ctx context.Context, chatID, userID string, after *time.Time) (int, error) {
	if err := m.CheckError("CountUnread"); err != nil {
		return 0, err
	}
	n := 0
	for _, msg := range m.Messages(chatID) {
		if msg.SenderID == userID || msg.IsRead {
			continue
		}
		if after != nil && !msg.CreatedAt.After(*after) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MockRepository) MarkMessagesRead(ctx context.Context, chatID, userID string) error {
	if err := m.CheckError("MarkMessagesRead"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for i := range m.messages[chatID] {
		if m.messages[chatID][i].SenderID != userID {
			m.messages[chatID][i].IsRead = true
		}
	}
	return nil
}
