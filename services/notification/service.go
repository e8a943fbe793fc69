// Package notification provides the notification inbox, fan-out to recipients
// and the realtime feed.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/pkg/logger"
	notificationsupabase "github.com/R3E-Network/social_layer/services/notification/supabase"
	"github.com/R3E-Network/social_layer/supabase/client"
)

const defaultFeedLimit = 50

// Notification is the domain view of a notification.
type Notification struct {
	ID          string
	UserID      string
	SenderID    string
	Type        string
	Title       string
	Content     string
	ReferenceID string
	IsRead      bool
	CreatedAt   time.Time
}

func toDomain(n notificationsupabase.Notification) Notification {
	return Notification{
		ID:          n.ID,
		UserID:      n.UserID,
		SenderID:    n.SenderID,
		Type:        n.Type,
		Title:       n.Title,
		Content:     n.Content,
		ReferenceID: n.ReferenceID,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}

// Message is what other services send; the recipient is set per delivery.
type Message struct {
	SenderID    string
	Type        string
	Title       string
	Content     string
	ReferenceID string
}

// Config configures a Service.
type Config struct {
	Notifications notificationsupabase.RepositoryInterface
	// Realtime opens change subscriptions for feeds. Optional for services that only send.
	Realtime  client.ChangeSubscriber
	FeedLimit int
	Logger    *logger.Logger
}

// Service implements notification operations.
type Service struct {
	repo      notificationsupabase.RepositoryInterface
	realtime  client.ChangeSubscriber
	feedLimit int
	log       *logger.Logger
}

// New creates a notification service.
func New(cfg Config) (*Service, error) {
	if cfg.Notifications == nil {
		return nil, fmt.Errorf("notification: repository is required")
	}
	if cfg.FeedLimit <= 0 {
		cfg.FeedLimit = defaultFeedLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("notification")
	}
	return &Service{
		repo:      cfg.Notifications,
		realtime:  cfg.Realtime,
		feedLimit: cfg.FeedLimit,
		log:       cfg.Logger,
	}, nil
}

// List returns the newest notifications of a user.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]Notification, 0, len(rows))
	for _, n := range rows {
		out = append(out, toDomain(n))
	}
	return out, nil
}

// UnreadCount counts unread notifications.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks one notification as read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks the user's inbox as read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

// Delete removes a notification.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// Notify delivers msg to one recipient.
func (s *Service) Notify(ctx context.Context, recipientID string, msg Message) error {
	return s.NotifyMany(ctx, []string{recipientID}, msg)
}

// NotifyMany delivers msg to every recipient except its sender, in one insert.
func (s *Service) NotifyMany(ctx context.Context, recipients []string, msg Message) error {
	if msg.Type == "" {
		return database.Invalidf("notification type cannot be empty")
	}
	rows := make([]notificationsupabase.Notification, 0, len(recipients))
	for _, id := range database.Unique(recipients) {
		if id == msg.SenderID {
			continue
		}
		rows = append(rows, notificationsupabase.Notification{
			UserID:      id,
			SenderID:    msg.SenderID,
			Type:        msg.Type,
			Title:       msg.Title,
			Content:     msg.Content,
			ReferenceID: msg.ReferenceID,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	s.log.WithFields(map[string]any{
		"type":       msg.Type,
		"recipients": len(rows),
	}).Info("notifications sent")
	return nil
}
