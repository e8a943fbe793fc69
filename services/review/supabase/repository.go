package supabase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/social_layer/internal/database"
)

// RepositoryInterface defines review data access methods.
type RepositoryInterface interface {
	Create(ctx context.Context, review *Review) error
	GetByID(ctx context.Context, id string) (*Review, error)
	GetByEventAndAuthor(ctx context.Context, eventID, authorID string) (*Review, error)
	ListByEvent(ctx context.Context, eventID string) ([]Review, error)
	ListByAuthor(ctx context.Context, authorID string) ([]Review, error)
	Delete(ctx context.Context, id string) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// Repository provides review data access over the gateway.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new review repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

func validateReview(r *Review) error {
	if r == nil {
		return database.Invalidf("review cannot be nil")
	}
	if r.EventID == "" || r.AuthorID == "" {
		return database.Invalidf("event id and author id are required")
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return database.Invalidf("rating must be between %d and %d, got %d", MinRating, MaxRating, r.Rating)
	}
	return nil
}

// Create inserts a review. A second review of the same event by the same
// author is ErrConflict.
func (r *Repository) Create(ctx context.Context, review *Review) error {
	if err := validateReview(review); err != nil {
		return err
	}
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	return database.GenericCreate(r.base, ctx, tableReviews, review, func(rows []Review) {
		if len(rows) > 0 {
			*review = rows[0]
		}
	})
}

// GetByID fetches a review by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Review, error) {
	if id == "" {
		return nil, database.Invalidf("review id cannot be empty")
	}
	return database.GenericGetByField[Review](r.base, ctx, tableReviews, "id", id)
}

// GetByEventAndAuthor fetches the author's review of an event.
func (r *Repository) GetByEventAndAuthor(ctx context.Context, eventID, authorID string) (*Review, error) {
	if eventID == "" || authorID == "" {
		return nil, database.Invalidf("event id and author id are required")
	}
	q := r.base.From(tableReviews).Select("*").Eq("event_id", eventID).Eq("author_id", authorID)
	return database.FetchOne[Review](ctx, q, eventID+"/"+authorID)
}

// ListByEvent lists an event's reviews, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID string) ([]Review, error) {
	if eventID == "" {
		return nil, database.Invalidf("event id cannot be empty")
	}
	q := r.base.From(tableReviews).Select("*").Eq("event_id", eventID).Order("created_at", false)
	return database.Fetch[Review](ctx, q)
}

// ListByAuthor lists a user's reviews, newest first.
func (r *Repository) ListByAuthor(ctx context.Context, authorID string) ([]Review, error) {
	if authorID == "" {
		return nil, database.Invalidf("author id cannot be empty")
	}
	q := r.base.From(tableReviews).Select("*").Eq("author_id", authorID).Order("created_at", false)
	return database.Fetch[Review](ctx, q)
}

// Delete removes a review.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return database.Invalidf("review id cannot be empty")
	}
	return database.GenericDelete(r.base, ctx, tableReviews, "id", id)
}
