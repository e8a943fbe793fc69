package supabase

import (
	"context"
	"sort"

	"github.com/R3E-Network/social_layer/internal/database"
)

// MockRepository is an in-memory implementation of RepositoryInterface for testing.
type MockRepository struct {
	database.MockBase

	notifications map[string]*Notification
}

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	return &MockRepository{notifications: make(map[string]*Notification)}
}

// Ensure MockRepository implements RepositoryInterface
var _ RepositoryInterface = (*MockRepository)(nil)

// All returns every stored notification.
func (m *MockRepository) All() []Notification {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	out := make([]Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MockRepository) Create(ctx context.Context, n *Notification) error {
	if err := m.CheckError("Create"); err != nil {
		return err
	}
	if n == nil {
		return database.Invalidf("notification cannot be nil")
	}
	if err := prepare(n); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MockRepository) CreateBatch(ctx context.Context, ns []Notification) error {
	if err := m.CheckError("CreateBatch"); err != nil {
		return err
	}
	for i := range ns {
		if err := prepare(&ns[i]); err != nil {
			return err
		}
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for i := range ns {
		cp := ns[i]
		m.notifications[cp.ID] = &cp
	}
	return nil
}

func (m *MockRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if err := m.CheckError("ListByUser"); err != nil {
		return nil, err
	}
	var out []Notification
	for _, n := range m.All() {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepository) MarkRead(ctx context.Context, id string) error {
	if err := m.CheckError("MarkRead"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return database.NewNotFoundError(tableNotifications, id)
	}
	n.IsRead = true
	return nil
}

func (m *MockRepository) MarkAllRead(ctx context.Context, userID string) error {
	if err := m.CheckError("MarkAllRead"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, n := range m.notifications {
		if n.UserID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	if err := m.CheckError("Delete"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if _, ok := m.notifications[id]; !ok {
		return database.NewNotFoundError(tableNotifications, id)
	}
	delete(m.notifications, id)
	return nil
}

func (m *MockRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if err := m.CheckError("CountUnread"); err != nil {
		return 0, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}
