// Package chat provides private and event group chats: listing with unread
// counts, read markers, sending and live message delivery.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/services/common"
	chatsupabase "github.com/R3E-Network/social_layer/services/chat/supabase"
	eventsupabase "github.com/R3E-Network/social_layer/services/event/supabase"
	"github.com/R3E-Network/social_layer/services/notification"
	notificationsupabase "github.com/R3E-Network/social_layer/services/notification/supabase"
	"github.com/R3E-Network/social_layer/services/user"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
	"github.com/R3E-Network/social_layer/supabase/client"
)

const (
	defaultConcurrency  = 8
	defaultMessageLimit = 50
	previewLength       = 80
)

// Notifier delivers notifications.
type Notifier interface {
	NotifyMany(ctx context.Context, recipients []string, msg notification.Message) error
}

// Message is the domain view of a chat message.
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
	IsRead     bool
	CreatedAt  time.Time
}

// Chat is a chat as listed for one user.
type Chat struct {
	ID      string
	Type    string
	EventID string
	// Title is the other participant's name for private chats and the event
	// title for event chats.
	Title        string
	LastMessage  *Message
	Unread       int
	Participants []string
	CreatedAt    time.Time
}

// LastActivity is the time of the newest message, or the creation time of an empty chat.
func (c *Chat) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// Config configures a Service.
type Config struct {
	Chats  chatsupabase.RepositoryInterface
	Users  usersupabase.RepositoryInterface
	Events eventsupabase.RepositoryInterface
	// Notifier and Realtime are optional.
	Notifier Notifier
	Realtime client.ChangeSubscriber
	// Concurrency bounds the per-chat lookups of ListChats.
	Concurrency  int
	MessageLimit int
	Now          func() time.Time
	Logger       *logger.Logger
}

// Service implements chat operations.
type Service struct {
	chats        chatsupabase.RepositoryInterface
	users        usersupabase.RepositoryInterface
	events       eventsupabase.RepositoryInterface
	notifier     Notifier
	realtime     client.ChangeSubscriber
	concurrency  int
	messageLimit int
	now          func() time.Time
	log          *logger.Logger
}

// New creates a chat service.
func New(cfg Config) (*Service, error) {
	if cfg.Chats == nil {
		return nil, fmt.Errorf("chat: chats repository is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("chat: users repository is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("chat: events repository is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = defaultMessageLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("chat")
	}
	return &Service{
		chats:        cfg.Chats,
		users:        cfg.Users,
		events:       cfg.Events,
		notifier:     cfg.Notifier,
		realtime:     cfg.Realtime,
		concurrency:  cfg.Concurrency,
		messageLimit: cfg.MessageLimit,
		now:          cfg.Now,
		log:          cfg.Logger,
	}, nil
}

func toMessage(m *chatsupabase.Message, names map[string]string) Message {
	return Message{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderID:   m.SenderID,
		SenderName: names[m.SenderID],
		Content:    m.Content,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
	}
}

// =============================================================================
// Listing
// =============================================================================

// ListChats returns the user's chats with titles, last message and unread
// count, most recently active first.
func (s *Service) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	own, err := s.chats.ListParticipantRows(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list participant rows: %w", err)
	}
	if len(own) == 0 {
		return []Chat{}, nil
	}
	markers := make(map[string]*time.Time, len(own))
	chatIDs := make([]string, 0, len(own))
	for _, p := range own {
		markers[p.ChatID] = p.LastReadAt
		chatIDs = append(chatIDs, p.ChatID)
	}

	rows, err := s.chats.GetChatsByIDs(ctx, chatIDs)
	if err != nil {
		return nil, fmt.Errorf("get chats: %w", err)
	}
	members, err := s.chats.ListParticipantsForChats(ctx, chatIDs)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	byChat := make(map[string][]string, len(rows))
	for _, p := range members {
		byChat[p.ChatID] = append(byChat[p.ChatID], p.UserID)
	}

	// Names cover private chat titles and last message senders.
	var memberIDs, eventIDs []string
	for _, c := range rows {
		memberIDs = append(memberIDs, byChat[c.ID]...)
		if c.EventID != "" {
			eventIDs = append(eventIDs, c.EventID)
		}
	}

	var (
		names  map[string]string
		titles = make(map[string]string)
	)
	lookups, lctx := errgroup.WithContext(ctx)
	lookups.Go(func() error {
		var err error
		names, err = user.NamesOf(lctx, s.users, memberIDs)
		return err
	})
	lookups.Go(func() error {
		if len(eventIDs) == 0 {
			return nil
		}
		events, err := s.events.GetByIDs(lctx, eventIDs)
		if err != nil {
			return fmt.Errorf("get events: %w", err)
		}
		for _, e := range events {
			titles[e.ID] = e.Title
		}
		return nil
	})
	if err := lookups.Wait(); err != nil {
		return nil, err
	}

	out := make([]Chat, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range rows {
		i := i
		row := rows[i]
		out[i] = Chat{
			ID:           row.ID,
			Type:         row.Type,
			EventID:      row.EventID,
			Title:        chatTitle(&row, userID, byChat[row.ID], names, titles),
			Participants: byChat[row.ID],
			CreatedAt:    row.CreatedAt,
		}
		g.Go(func() error {
			last, err := s.chats.LastMessage(gctx, row.ID)
			switch {
			case database.IsNotFound(err):
			case err != nil:
				return fmt.Errorf("last message of %s: %w", row.ID, err)
			default:
				m := toMessage(last, names)
				out[i].LastMessage = &m
			}
			n, err := s.chats.CountUnread(gctx, row.ID, userID, markers[row.ID])
			if err != nil {
				return fmt.Errorf("count unread of %s: %w", row.ID, err)
			}
			out[i].Unread = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortByActivity(out)
	return out, nil
}

func chatTitle(c *chatsupabase.Chat, userID string, members []string, names, eventTitles map[string]string) string {
	if c.Type == chatsupabase.TypePrivate {
		for _, id := range members {
			if id != userID && names[id] != "" {
				return names[id]
			}
		}
	}
	if t := eventTitles[c.EventID]; t != "" {
		return t
	}
	if c.Title != "" {
		return c.Title
	}
	if c.Type == chatsupabase.TypePrivate {
		return "Private chat"
	}
	return "Group chat"
}

// sortByActivity orders chats by last activity, newest first, then by id.
func sortByActivity(chats []Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		ai, aj := chats[i].LastActivity(), chats[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return chats[i].ID < chats[j].ID
	})
}

// =============================================================================
// Read state
// =============================================================================

// UnreadCount counts unread messages from others in a chat, after the user's
// read marker when one is set.
func (s *Service) UnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	p, err := s.chats.GetParticipant(ctx, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("get participant: %w", err)
	}
	n, err := s.chats.CountUnread(ctx, chatID, userID, p.LastReadAt)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkRead flags the chat's messages from others as read and moves the
// user's read marker to now.
func (s *Service) MarkRead(ctx context.Context, chatID, userID string) error {
	if err := s.chats.MarkMessagesRead(ctx, chatID, userID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	if err := s.chats.UpdateLastReadAt(ctx, chatID, userID, s.now()); err != nil {
		return fmt.Errorf("update read marker: %w", err)
	}
	return nil
}

// =============================================================================
// Membership
// =============================================================================

// OpenPrivateChat returns the private chat between a and b, creating it on first use.
func (s *Service) OpenPrivateChat(ctx context.Context, a, b string) (*chatsupabase.Chat, error) {
	if a == "" || b == "" || a == b {
		return nil, database.Invalidf("a private chat needs two different users")
	}
	existing, err := s.chats.FindPrivateChat(ctx, a, b)
	if err == nil {
		return existing, nil
	}
	if !database.IsNotFound(err) {
		return nil, fmt.Errorf("find private chat: %w", err)
	}
	if _, err := s.users.GetByID(ctx, b); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	c := &chatsupabase.Chat{Type: chatsupabase.TypePrivate}
	if err := s.chats.CreateChat(ctx, c); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	for _, id := range []string{a, b} {
		if err := s.chats.AddParticipant(ctx, c.ID, id); err != nil {
			return nil, fmt.Errorf("add participant: %w", err)
		}
	}
	s.log.WithFields(map[string]any{"chat_id": c.ID, "user_id": a}).Info("private chat created")
	return c, nil
}

// EnsureEventChat returns the event's group chat, creating it when missing.
func (s *Service) EnsureEventChat(ctx context.Context, eventID, title string) (*chatsupabase.Chat, error) {
	c, err := s.chats.GetGroupChatByEvent(ctx, eventID)
	if err == nil {
		return c, nil
	}
	if !database.IsNotFound(err) {
		return nil, fmt.Errorf("get event chat: %w", err)
	}
	c = &chatsupabase.Chat{Type: chatsupabase.TypeGroup, EventID: eventID, Title: title}
	if err := s.chats.CreateChat(ctx, c); err != nil {
		return nil, fmt.Errorf("create event chat: %w", err)
	}
	s.log.WithFields(map[string]any{"chat_id": c.ID, "event_id": eventID}).Info("event chat created")
	return c, nil
}

// JoinEventChat adds userID to the event's group chat. Joining twice is not an error.
func (s *Service) JoinEventChat(ctx context.Context, eventID, title, userID string) error {
	c, err := s.EnsureEventChat(ctx, eventID, title)
	if err != nil {
		return err
	}
	if err := s.chats.AddParticipant(ctx, c.ID, userID); err != nil && !database.IsConflict(err) {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

// LeaveEventChat removes userID from the event's group chat.
func (s *Service) LeaveEventChat(ctx context.Context, eventID, userID string) error {
	c, err := s.chats.GetGroupChatByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event chat: %w", err)
	}
	return s.LeaveChat(ctx, c.ID, userID)
}

// LeaveChat removes userID from a chat.
func (s *Service) LeaveChat(ctx context.Context, chatID, userID string) error {
	if err := s.chats.RemoveParticipant(ctx, chatID, userID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	s.log.WithFields(map[string]any{"chat_id": chatID, "user_id": userID}).Info("left chat")
	return nil
}

// =============================================================================
// Messages
// =============================================================================

func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLength {
		return content
	}
	return string(r[:previewLength-1]) + "…"
}

// SendMessage stores a message from a chat participant and notifies every
// other participant.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, database.Invalidf("message cannot be empty")
	}
	if _, err := s.chats.GetParticipant(ctx, chatID, senderID); err != nil {
		if database.IsNotFound(err) {
			return nil, common.Forbiddenf("user %s is not in chat %s", senderID, chatID)
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}

	row := &chatsupabase.Message{ChatID: chatID, SenderID: senderID, Content: content, CreatedAt: s.now().UTC()}
	if err := s.chats.InsertMessage(ctx, row); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	members, err := s.chats.ListParticipantsForChats(ctx, []string{chatID})
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	names, err := user.NamesOf(ctx, s.users, []string{senderID})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		recipients := make([]string, 0, len(members))
		for _, p := range members {
			recipients = append(recipients, p.UserID)
		}
		title := names[senderID]
		if title == "" {
			title = "New message"
		}
		err := s.notifier.NotifyMany(ctx, recipients, notification.Message{
			SenderID:    senderID,
			Type:        notificationsupabase.TypeMessage,
			Title:       title,
			Content:     preview(content),
			ReferenceID: chatID,
		})
		if err != nil {
			s.log.WithError(err).WithField("chat_id", chatID).Warn("message notification failed")
		}
	}

	m := toMessage(row, names)
	return &m, nil
}

// Messages returns the newest messages of a chat in chronological order.
func (s *Service) Messages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.chats.ListMessages(ctx, chatID, s.messageLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.SenderID)
	}
	names, err := user.NamesOf(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(rows))
	for i := range rows {
		out = append(out, toMessage(&rows[i], names))
	}
	return out, nil
}

// SubscribeMessages delivers every new message of a chat to handler, in
// arrival order. SenderName is resolved per message and cached.
func (s *Service) SubscribeMessages(ctx context.Context, chatID string, handler func(Message)) (client.Subscription, error) {
	if s.realtime == nil {
		return nil, fmt.Errorf("chat: realtime not configured")
	}
	if chatID == "" {
		return nil, database.Invalidf("chat id cannot be empty")
	}

	var mu sync.Mutex
	names := make(map[string]string)
	cfg := client.PostgresChangesConfig{
		Event:  "INSERT",
		Schema: "public",
		Table:  "messages",
		Filter: "chat_id=eq." + chatID,
	}
	return s.realtime.Subscribe(ctx, cfg, func(change *client.PostgresChange) {
		var row chatsupabase.Message
		if err := change.Decode(&row); err != nil {
			s.log.WithError(err).WithField("chat_id", chatID).Warn("discarding undecodable message change")
			return
		}
		if row.ChatID != chatID {
			return
		}
		mu.Lock()
		name, ok := names[row.SenderID]
		mu.Unlock()
		if !ok {
			resolved, err := user.NamesOf(context.Background(), s.users, []string{row.SenderID})
			if err != nil {
				s.log.WithError(err).WithField("sender_id", row.SenderID).Warn("sender name lookup failed")
			} else {
				name = resolved[row.SenderID]
				mu.Lock()
				names[row.SenderID] = name
				mu.Unlock()
			}
		}
		handler(toMessage(&row, map[string]string{row.SenderID: name}))
	})
}
