// Package review provides event reviews and ratings.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/pkg/logger"
	eventsupabase "github.com/R3E-Network/social_layer/services/event/supabase"
	reviewsupabase "github.com/R3E-Network/social_layer/services/review/supabase"
	"github.com/R3E-Network/social_layer/services/user"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
)

// ErrAlreadyReviewed is returned when an author reviews the same event twice.
var ErrAlreadyReviewed = fmt.Errorf("%w: event already reviewed", database.ErrConflict)

// Review is a review with its author's name.
type Review struct {
	ID         string
	EventID    string
	AuthorID   string
	AuthorName string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// Summary aggregates an event's ratings.
type Summary struct {
	Average float64
	Count   int
}

// Config configures a Service.
type Config struct {
	Reviews reviewsupabase.RepositoryInterface
	Events  eventsupabase.RepositoryInterface
	Users   usersupabase.RepositoryInterface
	Logger  *logger.Logger
}

// Service implements review operations.
type Service struct {
	reviews reviewsupabase.RepositoryInterface
	events  eventsupabase.RepositoryInterface
	users   usersupabase.RepositoryInterface
	log     *logger.Logger
}

// New creates a review service.
func New(cfg Config) (*Service, error) {
	if cfg.Reviews == nil || cfg.Events == nil || cfg.Users == nil {
		return nil, fmt.Errorf("review: reviews, events and users repositories are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("review")
	}
	return &Service{reviews: cfg.Reviews, events: cfg.Events, users: cfg.Users, log: cfg.Logger}, nil
}

func (s *Service) withAuthors(ctx context.Context, rows []reviewsupabase.Review) ([]Review, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.AuthorID)
	}
	names, err := user.NamesOf(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Review, 0, len(rows))
	for _, r := range rows {
		out = append(out, Review{
			ID:         r.ID,
			EventID:    r.EventID,
			AuthorID:   r.AuthorID,
			AuthorName: names[r.AuthorID],
			Rating:     r.Rating,
			Comment:    r.Comment,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

// Create reviews an event. Each author may review an event once.
func (s *Service) Create(ctx context.Context, authorID, eventID string, rating int, comment string) (*Review, error) {
	if rating < reviewsupabase.MinRating || rating > reviewsupabase.MaxRating {
		return nil, database.Invalidf("rating must be between %d and %d", reviewsupabase.MinRating, reviewsupabase.MaxRating)
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	_, err := s.reviews.GetByEventAndAuthor(ctx, eventID, authorID)
	switch {
	case err == nil:
		return nil, ErrAlreadyReviewed
	case !database.IsNotFound(err):
		return nil, fmt.Errorf("get review: %w", err)
	}

	row := &reviewsupabase.Review{EventID: eventID, AuthorID: authorID, Rating: rating, Comment: strings.TrimSpace(comment)}
	if err := s.reviews.Create(ctx, row); err != nil {
		if database.IsConflict(err) {
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("create review: %w", err)
	}
	s.log.WithFields(map[string]any{"event_id": eventID, "author_id": authorID, "rating": rating}).Info("review created")

	out, err := s.withAuthors(ctx, []reviewsupabase.Review{*row})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// List returns an event's reviews, newest first.
func (s *Service) List(ctx context.Context, eventID string) ([]Review, error) {
	rows, err := s.reviews.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return s.withAuthors(ctx, rows)
}

// ByAuthor returns a user's reviews, newest first.
func (s *Service) ByAuthor(ctx context.Context, authorID string) ([]Review, error) {
	rows, err := s.reviews.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return s.withAuthors(ctx, rows)
}

// Average summarises an event's ratings. An event without reviews averages 0.
func (s *Service) Average(ctx context.Context, eventID string) (Summary, error) {
	rows, err := s.reviews.ListByEvent(ctx, eventID)
	if err != nil {
		return Summary{}, fmt.Errorf("list reviews: %w", err)
	}
	if len(rows) == 0 {
		return Summary{}, nil
	}
	total := 0
	for _, r := range rows {
		total += r.Rating
	}
	return Summary{Average: float64(total) / float64(len(rows)), Count: len(rows)}, nil
}

// Delete removes a review. Only its author or an admin may do so.
func (s *Service) Delete(ctx context.Context, actorID, reviewID string) error {
	r, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("get review: %w", err)
	}
	if r.AuthorID != actorID {
		if _, err := user.RequireAdmin(ctx, s.users, actorID); err != nil {
			return err
		}
	}
	if err := s.reviews.Delete(ctx, reviewID); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("delete review: %w", err)
	}
	s.log.WithFields(map[string]any{"review_id": reviewID, "actor_id": actorID}).Info("review deleted")
	return nil
}
