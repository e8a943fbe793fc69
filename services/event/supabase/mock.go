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

	events        map[string]*Event
	participants  map[string][]Participant
	announcements map[string][]Announcement
}

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		events:        make(map[string]*Event),
		participants:  make(map[string][]Participant),
		announcements: make(map[string][]Announcement),
	}
}

// Ensure MockRepository implements RepositoryInterface
var _ RepositoryInterface = (*MockRepository)(nil)

func (m *MockRepository) Create(ctx context.Context, event *Event) error {
	if err := m.CheckError("Create"); err != nil {
		return err
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cp := *event
	m.events[event.ID] = &cp
	return nil
}

func (m *MockRepository) Update(ctx context.Context, id string, u EventUpdate) error {
	if err := m.CheckError("Update"); err != nil {
		return err
	}
	if u.Empty() {
		return database.Invalidf("update changes nothing")
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return database.NewNotFoundError(tableEvents, id)
	}
	if u.Title != nil {
		e.Title = *u.Title
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Location != nil {
		e.Location = *u.Location
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.ImagePath != nil {
		e.ImagePath = *u.ImagePath
	}
	if u.StartsAt != nil {
		e.StartsAt = *u.StartsAt
	}
	if u.EndsAt != nil {
		e.EndsAt = u.EndsAt
	}
	if u.MaxParticipants != nil {
		e.MaxParticipants = *u.MaxParticipants
	}
	return nil
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	if err := m.CheckError("Delete"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return database.NewNotFoundError(tableEvents, id)
	}
	delete(m.events, id)
	delete(m.participants, id)
	delete(m.announcements, id)
	return nil
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	if err := m.CheckError("GetByID"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, database.NewNotFoundError(tableEvents, id)
	}
	cp := *e
	return &cp, nil
}

func (m *MockRepository) GetByIDs(ctx context.Context, ids []string) ([]Event, error) {
	if err := m.CheckError("GetByIDs"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Event
	for _, id := range database.Unique(ids) {
		if e, ok := m.events[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MockRepository) ListUpcoming(ctx context.Context, from time.Time, category string, limit int) ([]Event, error) {
	if err := m.CheckError("ListUpcoming"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.StartsAt.Before(from) || (category != "" && e.Category != category) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepository) ListByCreator(ctx context.Context, creatorID string) ([]Event, error) {
	if err := m.CheckError("ListByCreator"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.CreatorID == creatorID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.After(out[j].StartsAt) })
	return out, nil
}

func (m *MockRepository) AddParticipant(ctx context.Context, eventID, userID string) error {
	if err := m.CheckError("AddParticipant"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, p := range m.participants[eventID] {
		if p.UserID == userID {
			return database.ErrConflict
		}
	}
	m.participants[eventID] = append(m.participants[eventID], Participant{EventID: eventID, UserID: userID, JoinedAt: time.Now().UTC()})
	return nil
}

func (m *MockRepository) RemoveParticipant(ctx context.Context, eventID, userID string) error {
	if err := m.CheckError("RemoveParticipant"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	ps := m.participants[eventID]
	for i, p := range ps {
		if p.UserID == userID {
			m.participants[eventID] = append(ps[:i:i], ps[i+1:]...)
			return nil
		}
	}
	return database.NewNotFoundError(tableParticipants, eventID+"/"+userID)
}

func (m *MockRepository) ListParticipants(ctx context.Context, eventID string) ([]Participant, error) {
	if err := m.CheckError("ListParticipants"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	return append([]Participant(nil), m.participants[eventID]...), nil
}

func (m *MockRepository) CountParticipants(ctx context.Context, eventID string) (int, error) {
	if err := m.CheckError("CountParticipants"); err != nil {
		return 0, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	return len(m.participants[eventID]), nil
}

func (m *MockRepository) ListJoinedEventIDs(ctx context.Context, userID string) ([]string, error) {
	if err := m.CheckError("ListJoinedEventIDs"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var ids []string
	for eventID, ps := range m.participants {
		for _, p := range ps {
			if p.UserID == userID {
				ids = append(ids, eventID)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockRepository) CreateAnnouncement(ctx context.Context, a *Announcement) error {
	if err := m.CheckError("CreateAnnouncement"); err != nil {
		return err
	}
	if a == nil || a.EventID == "" || a.AuthorID == "" {
		return database.Invalidf("event id and author id are required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.announcements[a.EventID] = append(m.announcements[a.EventID], *a)
	return nil
}

func (m *MockRepository) ListAnnouncements(ctx context.Context, eventID string) ([]Announcement, error) {
	if err := m.CheckError("ListAnnouncements"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	out := append([]Announcement(nil), m.announcements[eventID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
