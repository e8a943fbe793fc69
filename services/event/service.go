// Package event provides event management, participation and announcements.
package event

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/services/common"
	eventsupabase "github.com/R3E-Network/social_layer/services/event/supabase"
	"github.com/R3E-Network/social_layer/services/notification"
	notificationsupabase "github.com/R3E-Network/social_layer/services/notification/supabase"
	"github.com/R3E-Network/social_layer/services/user"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
	"github.com/R3E-Network/social_layer/supabase/client"
)

var (
	// ErrAlreadyParticipating is returned when joining an event twice.
	ErrAlreadyParticipating = fmt.Errorf("%w: already participating", database.ErrConflict)
	// ErrEventFull is returned when an event has reached its participant limit.
	ErrEventFull = fmt.Errorf("%w: event is full", database.ErrConflict)
)

// Chats is the part of the chat service that follows event membership.
type Chats interface {
	JoinEventChat(ctx context.Context, eventID, title, userID string) error
	LeaveEventChat(ctx context.Context, eventID, userID string) error
}

// Notifier delivers notifications.
type Notifier interface {
	NotifyMany(ctx context.Context, recipients []string, msg notification.Message) error
}

// Event is the domain view of an event.
type Event struct {
	ID              string
	CreatorID       string
	CreatorName     string
	Title           string
	Description     string
	Location        string
	Category        string
	ImagePath       string
	StartsAt        time.Time
	EndsAt          *time.Time
	MaxParticipants int
	CreatedAt       time.Time
}

// Participant is a participant with a display name.
type Participant struct {
	UserID   string
	Name     string
	JoinedAt time.Time
}

// Announcement is an announcement with its author's name.
type Announcement struct {
	ID         string
	AuthorID   string
	AuthorName string
	Title      string
	Body       string
	CreatedAt  time.Time
}

// Detail is everything the event screen shows.
type Detail struct {
	Event         Event
	Participants  []Participant
	Announcements []Announcement
	IsParticipant bool
	IsCreator     bool
}

// Full reports whether no more participants can join.
func (d *Detail) Full() bool {
	return d.Event.MaxParticipants > 0 && len(d.Participants) >= d.Event.MaxParticipants
}

// NewEvent holds the fields of an event to create.
type NewEvent struct {
	Title           string
	Description     string
	Location        string
	Category        string
	StartsAt        time.Time
	EndsAt          *time.Time
	MaxParticipants int
}

// Changes lists editable event fields; nil means unchanged.
type Changes struct {
	Title           *string
	Description     *string
	Location        *string
	Category        *string
	StartsAt        *time.Time
	EndsAt          *time.Time
	MaxParticipants *int
}

// Config configures a Service.
type Config struct {
	Events eventsupabase.RepositoryInterface
	Users  usersupabase.RepositoryInterface
	// Chats and Notifier are optional; without them joins skip the group chat
	// and nobody is notified.
	Chats        Chats
	Notifier     Notifier
	Storage      user.Storage
	ImageBucket  string
	SignedURLTTL time.Duration
	Now          func() time.Time
	Logger       *logger.Logger
}

// Service implements event operations.
type Service struct {
	events   eventsupabase.RepositoryInterface
	users    usersupabase.RepositoryInterface
	chats    Chats
	notifier Notifier
	store    user.Storage
	bucket   string
	ttl      time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// New creates an event service.
func New(cfg Config) (*Service, error) {
	if cfg.Events == nil {
		return nil, fmt.Errorf("event: events repository is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("event: users repository is required")
	}
	if cfg.ImageBucket == "" {
		cfg.ImageBucket = "events"
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("event")
	}
	return &Service{
		events:   cfg.Events,
		users:    cfg.Users,
		chats:    cfg.Chats,
		notifier: cfg.Notifier,
		store:    cfg.Storage,
		bucket:   cfg.ImageBucket,
		ttl:      cfg.SignedURLTTL,
		now:      cfg.Now,
		log:      cfg.Logger,
	}, nil
}

func toEvent(e *eventsupabase.Event, names map[string]string) Event {
	return Event{
		ID:              e.ID,
		CreatorID:       e.CreatorID,
		CreatorName:     names[e.CreatorID],
		Title:           e.Title,
		Description:     e.Description,
		Location:        e.Location,
		Category:        e.Category,
		ImagePath:       e.ImagePath,
		StartsAt:        e.StartsAt,
		EndsAt:          e.EndsAt,
		MaxParticipants: e.MaxParticipants,
		CreatedAt:       e.CreatedAt,
	}
}

// withCreators maps rows to domain events, resolving creator names in one lookup.
func (s *Service) withCreators(ctx context.Context, rows []eventsupabase.Event) ([]Event, error) {
	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.CreatorID)
	}
	names, err := user.NamesOf(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for i := range rows {
		out = append(out, toEvent(&rows[i], names))
	}
	return out, nil
}

// authorize allows the creator or an admin to manage ev.
func (s *Service) authorize(ctx context.Context, actorID string, ev *eventsupabase.Event) error {
	if actorID != "" && ev.CreatorID == actorID {
		return nil
	}
	_, err := user.RequireAdmin(ctx, s.users, actorID)
	return err
}

func (s *Service) notify(ctx context.Context, recipients []string, msg notification.Message) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}
	if err := s.notifier.NotifyMany(ctx, recipients, msg); err != nil {
		s.log.WithError(err).WithField("type", msg.Type).Warn("notification delivery failed")
	}
}

// =============================================================================
// Events
// =============================================================================

// Create stores a new event. The creator joins it and its group chat.
func (s *Service) Create(ctx context.Context, creatorID string, in NewEvent) (*Event, error) {
	row := &eventsupabase.Event{
		CreatorID:       creatorID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Location:        in.Location,
		Category:        in.Category,
		StartsAt:        in.StartsAt,
		EndsAt:          in.EndsAt,
		MaxParticipants: in.MaxParticipants,
	}
	if err := s.events.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	if err := s.events.AddParticipant(ctx, row.ID, creatorID); err != nil && !database.IsConflict(err) {
		return nil, fmt.Errorf("add creator: %w", err)
	}
	if s.chats != nil {
		if err := s.chats.JoinEventChat(ctx, row.ID, row.Title, creatorID); err != nil {
			return nil, fmt.Errorf("create event chat: %w", err)
		}
	}
	s.log.WithFields(map[string]any{"event_id": row.ID, "creator_id": creatorID}).Info("event created")

	names, err := user.NamesOf(ctx, s.users, []string{creatorID})
	if err != nil {
		return nil, err
	}
	ev := toEvent(row, names)
	return &ev, nil
}

// Update edits an event and tells its participants.
func (s *Service) Update(ctx context.Context, actorID, eventID string, c Changes) error {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if err := s.authorize(ctx, actorID, ev); err != nil {
		return err
	}
	if c.Title != nil {
		title := strings.TrimSpace(*c.Title)
		if title == "" {
			return database.Invalidf("event title cannot be empty")
		}
		c.Title = &title
	}
	upd := eventsupabase.EventUpdate{
		Title:           c.Title,
		Description:     c.Description,
		Location:        c.Location,
		Category:        c.Category,
		StartsAt:        c.StartsAt,
		EndsAt:          c.EndsAt,
		MaxParticipants: c.MaxParticipants,
	}
	if err := s.events.Update(ctx, eventID, upd); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	s.log.WithFields(map[string]any{"event_id": eventID, "actor_id": actorID}).Info("event updated")

	participants, err := s.events.ListParticipants(ctx, eventID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	recipients := make([]string, 0, len(participants))
	for _, p := range participants {
		recipients = append(recipients, p.UserID)
	}
	title := ev.Title
	if c.Title != nil {
		title = *c.Title
	}
	s.notify(ctx, recipients, notification.Message{
		SenderID:    actorID,
		Type:        notificationsupabase.TypeEventUpdate,
		Title:       title,
		Content:     "The event details have changed",
		ReferenceID: eventID,
	})
	return nil
}

// Delete removes an event. Only its creator or an admin may do so.
func (s *Service) Delete(ctx context.Context, actorID, eventID string) error {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if err := s.authorize(ctx, actorID, ev); err != nil {
		return err
	}
	if err := s.events.Delete(ctx, eventID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	s.log.WithFields(map[string]any{"event_id": eventID, "actor_id": actorID}).Info("event deleted")
	return nil
}

// Upcoming lists events that have not started yet, soonest first.
func (s *Service) Upcoming(ctx context.Context, category string, limit int) ([]Event, error) {
	rows, err := s.events.ListUpcoming(ctx, s.now().UTC(), category, limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}
	return s.withCreators(ctx, rows)
}

// Created lists the events a user created.
func (s *Service) Created(ctx context.Context, userID string) ([]Event, error) {
	rows, err := s.events.ListByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list created events: %w", err)
	}
	return s.withCreators(ctx, rows)
}

// Joined lists the events a user participates in, soonest first.
func (s *Service) Joined(ctx context.Context, userID string) ([]Event, error) {
	ids, err := s.events.ListJoinedEventIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list joined events: %w", err)
	}
	rows, err := s.events.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartsAt.Before(rows[j].StartsAt) })
	return s.withCreators(ctx, rows)
}

// Get loads the event detail as seen by viewerID.
func (s *Service) Get(ctx context.Context, viewerID, eventID string) (*Detail, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	participants, err := s.events.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	announcements, err := s.events.ListAnnouncements(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}

	ids := []string{ev.CreatorID}
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	for _, a := range announcements {
		ids = append(ids, a.AuthorID)
	}
	names, err := user.NamesOf(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}

	d := &Detail{
		Event:     toEvent(ev, names),
		IsCreator: viewerID != "" && viewerID == ev.CreatorID,
	}
	for _, p := range participants {
		d.Participants = append(d.Participants, Participant{UserID: p.UserID, Name: names[p.UserID], JoinedAt: p.JoinedAt})
		if p.UserID == viewerID {
			d.IsParticipant = true
		}
	}
	for _, a := range announcements {
		d.Announcements = append(d.Announcements, Announcement{
			ID:         a.ID,
			AuthorID:   a.AuthorID,
			AuthorName: names[a.AuthorID],
			Title:      a.Title,
			Body:       a.Body,
			CreatedAt:  a.CreatedAt,
		})
	}
	return d, nil
}

// =============================================================================
// Participation
// =============================================================================

// Join adds userID to the event and its group chat, then tells the creator.
func (s *Service) Join(ctx context.Context, eventID, userID string) error {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if ev.MaxParticipants > 0 {
		n, err := s.events.CountParticipants(ctx, eventID)
		if err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if n >= ev.MaxParticipants {
			joined, err := s.isParticipant(ctx, eventID, userID)
			if err != nil {
				return err
			}
			if joined {
				return ErrAlreadyParticipating
			}
			return ErrEventFull
		}
	}
	if err := s.events.AddParticipant(ctx, eventID, userID); err != nil {
		if database.IsConflict(err) {
			return ErrAlreadyParticipating
		}
		return fmt.Errorf("add participant: %w", err)
	}
	if s.chats != nil {
		if err := s.chats.JoinEventChat(ctx, eventID, ev.Title, userID); err != nil {
			return fmt.Errorf("join event chat: %w", err)
		}
	}
	s.log.WithFields(map[string]any{"event_id": eventID, "user_id": userID}).Info("joined event")

	s.notify(ctx, []string{ev.CreatorID}, notification.Message{
		SenderID:    userID,
		Type:        notificationsupabase.TypeParticipant,
		Title:       ev.Title,
		Content:     "A new participant joined your event",
		ReferenceID: eventID,
	})
	return nil
}

func (s *Service) isParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	participants, err := s.events.ListParticipants(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("list participants: %w", err)
	}
	for _, p := range participants {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// Leave removes userID from the event and its group chat.
func (s *Service) Leave(ctx context.Context, eventID, userID string) error {
	if err := s.events.RemoveParticipant(ctx, eventID, userID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if s.chats != nil {
		if err := s.chats.LeaveEventChat(ctx, eventID, userID); err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("leave event chat: %w", err)
		}
	}
	s.log.WithFields(map[string]any{"event_id": eventID, "user_id": userID}).Info("left event")
	return nil
}

// =============================================================================
// Announcements
// =============================================================================

// Announce posts an announcement. Only the event creator may announce; every
// other participant is notified.
func (s *Service) Announce(ctx context.Context, authorID, eventID, title, body string) (*Announcement, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if ev.CreatorID != authorID {
		return nil, common.Forbiddenf("only the creator can announce in event %s", eventID)
	}
	a := &eventsupabase.Announcement{
		EventID:  eventID,
		AuthorID: authorID,
		Title:    strings.TrimSpace(title),
		Body:     strings.TrimSpace(body),
	}
	if err := s.events.CreateAnnouncement(ctx, a); err != nil {
		return nil, fmt.Errorf("create announcement: %w", err)
	}
	s.log.WithFields(map[string]any{"event_id": eventID, "announcement_id": a.ID}).Info("announcement posted")

	participants, err := s.events.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	recipients := make([]string, 0, len(participants))
	for _, p := range participants {
		recipients = append(recipients, p.UserID)
	}
	s.notify(ctx, recipients, notification.Message{
		SenderID:    authorID,
		Type:        notificationsupabase.TypeAnnouncement,
		Title:       ev.Title,
		Content:     a.Title,
		ReferenceID: eventID,
	})

	names, err := user.NamesOf(ctx, s.users, []string{authorID})
	if err != nil {
		return nil, err
	}
	return &Announcement{
		ID:         a.ID,
		AuthorID:   a.AuthorID,
		AuthorName: names[authorID],
		Title:      a.Title,
		Body:       a.Body,
		CreatedAt:  a.CreatedAt,
	}, nil
}

// =============================================================================
// Cover image
// =============================================================================

// UploadImage stores the cover image at <bucket>/<eventID>/cover.<ext>, records
// it on the event and returns a signed URL.
func (s *Service) UploadImage(ctx context.Context, actorID, eventID string, data []byte, contentType string) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("event: storage not configured")
	}
	if len(data) == 0 {
		return "", database.Invalidf("event image is empty")
	}
	ext, err := common.ImageExtension(contentType)
	if err != nil {
		return "", err
	}
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("get event: %w", err)
	}
	if err := s.authorize(ctx, actorID, ev); err != nil {
		return "", err
	}

	path := eventID + "/cover." + ext
	if _, err := s.store.Upload(ctx, s.bucket, path, data, &client.UploadOptions{ContentType: contentType, Upsert: true}); err != nil {
		return "", fmt.Errorf("upload event image: %w", err)
	}
	if err := s.events.Update(ctx, eventID, eventsupabase.EventUpdate{ImagePath: &path}); err != nil {
		return "", fmt.Errorf("record event image: %w", err)
	}
	s.log.WithFields(map[string]any{"event_id": eventID, "path": path}).Info("event image uploaded")
	return s.store.CreateSignedURL(ctx, s.bucket, path, s.ttl)
}

// ImageURL returns a signed URL for the event image, or "" when none is set.
func (s *Service) ImageURL(ctx context.Context, eventID string) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("event: storage not configured")
	}
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("get event: %w", err)
	}
	if ev.ImagePath == "" {
		return "", nil
	}
	return s.store.CreateSignedURL(ctx, s.bucket, ev.ImagePath, s.ttl)
}
