package supabase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/social_layer/internal/database"
)

// =============================================================================
// Repository Interface
// =============================================================================

// RepositoryInterface defines event data access methods.
type RepositoryInterface interface {
	Create(ctx context.Context, event *Event) error
	Update(ctx context.Context, id string, update EventUpdate) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Event, error)
	GetByIDs(ctx context.Context, ids []string) ([]Event, error)
	ListUpcoming(ctx context.Context, from time.Time, category string, limit int) ([]Event, error)
	ListByCreator(ctx context.Context, creatorID string) ([]Event, error)

	AddParticipant(ctx context.Context, eventID, userID string) error
	RemoveParticipant(ctx context.Context, eventID, userID string) error
	ListParticipants(ctx context.Context, eventID string) ([]Participant, error)
	CountParticipants(ctx context.Context, eventID string) (int, error)
	ListJoinedEventIDs(ctx context.Context, userID string) ([]string, error)

	CreateAnnouncement(ctx context.Context, a *Announcement) error
	ListAnnouncements(ctx context.Context, eventID string) ([]Announcement, error)
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// =============================================================================
// Repository Implementation
// =============================================================================

// Repository provides event data access over the gateway.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new event repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

func validateEvent(e *Event) error {
	if e == nil {
		return database.Invalidf("event cannot be nil")
	}
	if strings.TrimSpace(e.Title) == "" {
		return database.Invalidf("event title cannot be empty")
	}
	if e.CreatorID == "" {
		return database.Invalidf("event creator cannot be empty")
	}
	if e.StartsAt.IsZero() {
		return database.Invalidf("event start time is required")
	}
	if e.EndsAt != nil && e.EndsAt.Before(e.StartsAt) {
		return database.Invalidf("event cannot end before it starts")
	}
	if e.MaxParticipants < 0 {
		return database.Invalidf("max participants cannot be negative")
	}
	return nil
}

// Create inserts an event row.
func (r *Repository) Create(ctx context.Context, event *Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return database.GenericCreate(r.base, ctx, tableEvents, event, func(rows []Event) {
		if len(rows) > 0 {
			*event = rows[0]
		}
	})
}

// Update patches event columns.
func (r *Repository) Update(ctx context.Context, id string, update EventUpdate) error {
	if id == "" {
		return database.Invalidf("event id cannot be empty")
	}
	if update.Empty() {
		return database.Invalidf("update changes nothing")
	}
	if update.MaxParticipants != nil && *update.MaxParticipants < 0 {
		return database.Invalidf("max participants cannot be negative")
	}
	return database.GenericUpdate(r.base, ctx, tableEvents, "id", id, update)
}

// Delete removes an event.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return database.Invalidf("event id cannot be empty")
	}
	return database.GenericDelete(r.base, ctx, tableEvents, "id", id)
}

// GetByID fetches an event by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Event, error) {
	if id == "" {
		return nil, database.Invalidf("event id cannot be empty")
	}
	return database.GenericGetByField[Event](r.base, ctx, tableEvents, "id", id)
}

// GetByIDs fetches every listed event in batched queries.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]Event, error) {
	return database.GenericListIn[Event](r.base, ctx, tableEvents, "id", ids)
}

// ListUpcoming lists events starting at or after from, soonest first.
func (r *Repository) ListUpcoming(ctx context.Context, from time.Time, category string, limit int) ([]Event, error) {
	q := r.base.From(tableEvents).
		Select("*").
		Gte("starts_at", from).
		Order("starts_at", true)
	if category != "" {
		q = q.Eq("category", category)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return database.Fetch[Event](ctx, q)
}

// ListByCreator lists a user's own events, newest first.
func (r *Repository) ListByCreator(ctx context.Context, creatorID string) ([]Event, error) {
	if creatorID == "" {
		return nil, database.Invalidf("creator id cannot be empty")
	}
	q := r.base.From(tableEvents).Select("*").Eq("creator_id", creatorID).Order("starts_at", false)
	return database.Fetch[Event](ctx, q)
}

// =============================================================================
// Participants
// =============================================================================

// AddParticipant inserts a participant row. A duplicate is ErrConflict.
func (r *Repository) AddParticipant(ctx context.Context, eventID, userID string) error {
	if eventID == "" || userID == "" {
		return database.Invalidf("event id and user id are required")
	}
	p := Participant{EventID: eventID, UserID: userID, JoinedAt: time.Now().UTC()}
	return database.GenericCreate[Participant](r.base, ctx, tableParticipants, p, nil)
}

// RemoveParticipant deletes a participant row.
func (r *Repository) RemoveParticipant(ctx context.Context, eventID, userID string) error {
	if eventID == "" || userID == "" {
		return database.Invalidf("event id and user id are required")
	}
	q := r.base.From(tableParticipants).Eq("event_id", eventID).Eq("user_id", userID)
	return database.DeleteExisting(ctx, q, eventID+"/"+userID)
}

// ListParticipants lists an event's participants in join order.
func (r *Repository) ListParticipants(ctx context.Context, eventID string) ([]Participant, error) {
	if eventID == "" {
		return nil, database.Invalidf("event id cannot be empty")
	}
	q := r.base.From(tableParticipants).Select("*").Eq("event_id", eventID).Order("joined_at", true)
	return database.Fetch[Participant](ctx, q)
}

// CountParticipants counts an event's participants server-side.
func (r *Repository) CountParticipants(ctx context.Context, eventID string) (int, error) {
	if eventID == "" {
		return 0, database.Invalidf("event id cannot be empty")
	}
	return database.Count(ctx, r.base.From(tableParticipants).Eq("event_id", eventID))
}

// ListJoinedEventIDs lists the events a user participates in.
func (r *Repository) ListJoinedEventIDs(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, database.Invalidf("user id cannot be empty")
	}
	rows, err := database.Fetch[Participant](ctx, r.base.From(tableParticipants).Select("event_id").Eq("user_id", userID))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, p := range rows {
		ids = append(ids, p.EventID)
	}
	return ids, nil
}

// =============================================================================
// Announcements
// =============================================================================

// CreateAnnouncement inserts an announcement.
func (r *Repository) CreateAnnouncement(ctx context.Context, a *Announcement) error {
	if a == nil {
		return database.Invalidf("announcement cannot be nil")
	}
	if a.EventID == "" || a.AuthorID == "" {
		return database.Invalidf("event id and author id are required")
	}
	if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Body) == "" {
		return database.Invalidf("announcement cannot be empty")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return database.GenericCreate(r.base, ctx, tableAnnouncements, a, func(rows []Announcement) {
		if len(rows) > 0 {
			*a = rows[0]
		}
	})
}

// ListAnnouncements lists an event's announcements, newest first.
func (r *Repository) ListAnnouncements(ctx context.Context, eventID string) ([]Announcement, error) {
	if eventID == "" {
		return nil, database.Invalidf("event id cannot be empty")
	}
	q := r.base.From(tableAnnouncements).Select("*").Eq("event_id", eventID).Order("created_at", false)
	return database.Fetch[Announcement](ctx, q)
}
