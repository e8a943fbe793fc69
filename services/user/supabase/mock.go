package supabase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/social_layer/internal/database"
)

// MockRepository is an in-memory implementation of RepositoryInterface for testing.
type MockRepository struct {
	database.MockBase

	users     map[string]*User
	interests map[string]Interest
	links     map[string][]string
}

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		users:     make(map[string]*User),
		interests: make(map[string]Interest),
		links:     make(map[string][]string),
	}
}

// Ensure MockRepository implements RepositoryInterface
var _ RepositoryInterface = (*MockRepository)(nil)

// AddInterest seeds the interest catalogue.
func (m *MockRepository) AddInterest(i Interest) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.interests[i.ID] = i
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*User, error) {
	if err := m.CheckError("GetByID"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, database.NewNotFoundError(tableUsers, id)
	}
	cp := *u
	return &cp, nil
}

func (m *MockRepository) GetByIDs(ctx context.Context, ids []string) ([]User, error) {
	if err := m.CheckError("GetByIDs"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []User
	for _, id := range database.Unique(ids) {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *MockRepository) SearchByName(ctx context.Context, query string, limit int) ([]User, error) {
	if err := m.CheckError("SearchByName"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, database.Invalidf("search query cannot be empty")
	}
	var out []User
	for _, u := range m.users {
		if !u.IsBanned && strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepository) Create(ctx context.Context, user *User) error {
	if err := m.CheckError("Create"); err != nil {
		return err
	}
	if user == nil || strings.TrimSpace(user.Name) == "" {
		return database.Invalidf("name cannot be empty")
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := m.users[user.ID]; ok {
		return database.ErrConflict
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MockRepository) Update(ctx context.Context, id string, update UserUpdate) error {
	if err := m.CheckError("Update"); err != nil {
		return err
	}
	if update.Empty() {
		return database.Invalidf("update changes nothing")
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return database.NewNotFoundError(tableUsers, id)
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	if update.City != nil {
		u.City = *update.City
	}
	if update.AvatarPath != nil {
		u.AvatarPath = *update.AvatarPath
	}
	return nil
}

func (m *MockRepository) SetBanned(ctx context.Context, id string, banned bool) error {
	if err := m.CheckError("SetBanned"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return database.NewNotFoundError(tableUsers, id)
	}
	u.IsBanned = banned
	return nil
}

func (m *MockRepository) ListInterests(ctx context.Context) ([]Interest, error) {
	if err := m.CheckError("ListInterests"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	out := make([]Interest, 0, len(m.interests))
	for _, i := range m.interests {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockRepository) ListUserInterests(ctx context.Context, userID string) ([]Interest, error) {
	if err := m.CheckError("ListUserInterests"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Interest
	for _, id := range m.links[userID] {
		if i, ok := m.interests[id]; ok {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *MockRepository) ReplaceUserInterests(ctx context.Context, userID string, interestIDs []string) error {
	if err := m.CheckError("ReplaceUserInterests"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.links[userID] = database.Unique(interestIDs)
	return nil
}
