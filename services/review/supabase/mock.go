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

	reviews map[string]*Review
}

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	return &MockRepository{reviews: make(map[string]*Review)}
}

// Ensure MockRepository implements RepositoryInterface
var _ RepositoryInterface = (*MockRepository)(nil)

func (m *MockRepository) Create(ctx context.Context, review *Review) error {
	if err := m.CheckError("Create"); err != nil {
		return err
	}
	if err := validateReview(review); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, r := range m.reviews {
		if r.EventID == review.EventID && r.AuthorID == review.AuthorID {
			return database.ErrConflict
		}
	}
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	cp := *review
	m.reviews[review.ID] = &cp
	return nil
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Review, error) {
	if err := m.CheckError("GetByID"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, database.NewNotFoundError(tableReviews, id)
	}
	cp := *r
	return &cp, nil
}

func (m *MockRepository) GetByEventAndAuthor(ctx context.Context, eventID, authorID string) (*Review, error) {
	if err := m.CheckError("GetByEventAndAuthor"); err != nil {
		return nil, err
	}
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	for _, r := range m.reviews {
		if r.EventID == eventID && r.AuthorID == authorID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, database.NewNotFoundError(tableReviews, eventID+"/"+authorID)
}

func (m *MockRepository) list(match func(*Review) bool) []Review {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	var out []Review
	for _, r := range m.reviews {
		if match(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MockRepository) ListByEvent(ctx context.Context, eventID string) ([]Review, error) {
	if err := m.CheckError("ListByEvent"); err != nil {
		return nil, err
	}
	return m.list(func(r *Review) bool { return r.EventID == eventID }), nil
}

func (m *MockRepository) ListByAuthor(ctx context.Context, authorID string) ([]Review, error) {
	if err := m.CheckError("ListByAuthor"); err != nil {
		return nil, err
	}
	return m.list(func(r *Review) bool { return r.AuthorID == authorID }), nil
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	if err := m.CheckError("Delete"); err != nil {
		return err
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if _, ok := m.reviews[id]; !ok {
		return database.NewNotFoundError(tableReviews, id)
	}
	delete(m.reviews, id)
	return nil
}
