package supabase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/social_layer/internal/database"
)

// RepositoryInterface defines notification data access methods.
type RepositoryInterface interface {
	Create(ctx context.Context, n *Notification) error
	CreateBatch(ctx context.Context, ns []Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, id string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// Repository provides notification data access over the gateway.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new notification repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

func prepare(n *Notification) error {
	if n.UserID == "" {
		return database.Invalidf("notification recipient cannot be empty")
	}
	if n.Type == "" {
		return database.Invalidf("notification type cannot be empty")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Create inserts one notification.
func (r *Repository) Create(ctx context.Context, n *Notification) error {
	if n == nil {
		return database.Invalidf("notification cannot be nil")
	}
	if err := prepare(n); err != nil {
		return err
	}
	return database.GenericCreate(r.base, ctx, tableNotifications, n, func(rows []Notification) {
		if len(rows) > 0 {
			*n = rows[0]
		}
	})
}

// CreateBatch inserts several notifications in one request.
func (r *Repository) CreateBatch(ctx context.Context, ns []Notification) error {
	if len(ns) == 0 {
		return nil
	}
	for i := range ns {
		if err := prepare(&ns[i]); err != nil {
			return err
		}
	}
	return database.GenericCreate[Notification](r.base, ctx, tableNotifications, ns, nil)
}

// ListByUser lists the newest notifications of a user.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if userID == "" {
		return nil, database.Invalidf("user id cannot be empty")
	}
	q := r.base.From(tableNotifications).
		Select("*").
		Eq("user_id", userID).
		Order("created_at", false)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return database.Fetch[Notification](ctx, q)
}

// MarkRead marks one notification as read.
func (r *Repository) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return database.Invalidf("notification id cannot be empty")
	}
	return database.GenericUpdate(r.base, ctx, tableNotifications, "id", id, map[string]bool{"is_read": true})
}

// MarkAllRead marks every unread notification of a user as read.
func (r *Repository) MarkAllRead(ctx context.Context, userID string) error {
	if userID == "" {
		return database.Invalidf("user id cannot be empty")
	}
	q := r.base.From(tableNotifications).Eq("user_id", userID).Is("is_read", false)
	_, err := database.Update(ctx, q, map[string]bool{"is_read": true})
	return err
}

// Delete removes a notification.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return database.Invalidf("notification id cannot be empty")
	}
	return database.GenericDelete(r.base, ctx, tableNotifications, "id", id)
}

// CountUnread counts unread notifications server-side.
func (r *Repository) CountUnread(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, database.Invalidf("user id cannot be empty")
	}
	return database.Count(ctx, r.base.From(tableNotifications).Eq("user_id", userID).Is("is_read", false))
}
