package supabase

import (
	"context"
	"sort"

	"github.com/R3E-Network/social_layer/internal/database"
)

// MockRepository is an in-memory implementation of RepositoryInterface for testing.
type MockRepository struct {
	database.MockBase

	reports map[string]*Report
}

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	return &MockRepository{reports: make(map[string]*Report)}
}

// Ensure MockRepository implements RepositoryInterface
var _ RepositoryInterface = (*MockRepository)(nil)

func (m *MockRepository) Create(ctx context.Context, report *Report) error {
	if err := m.CheckError("Create"); err != nil {
		return err
	}
	if err := prepare(report); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cp := *report
	m.reports[report.ID] = &cp
	return nil
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Report, error) {
	if err := m.CheckError("GetByID"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, database.NewNotFoundError(tableReports, id)
	}
	cp := *r
	return &cp, nil
}

func (m *MockRepository) ListByStatus(ctx context.Context, status string) ([]Report, error) {
	if err := m.CheckError("ListByStatus"); err != nil {
		return nil, err
	}
	if err := database.ValidateStatus(status, Statuses); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Report
	for _, r := range m.reports {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	if err := m.CheckError("UpdateStatus"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return database.NewNotFoundError(tableReports, id)
	}
	at := update.ResolvedAt
	r.Status = update.Status
	r.ResolvedBy = update.ResolvedBy
	r.ResolvedAt = &at
	return nil
}
