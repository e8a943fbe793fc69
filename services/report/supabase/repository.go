package supabase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/social_layer/internal/database"
)

// RepositoryInterface defines report data access methods.
type RepositoryInterface interface {
	Create(ctx context.Context, report *Report) error
	GetByID(ctx context.Context, id string) (*Report, error)
	ListByStatus(ctx context.Context, status string) ([]Report, error)
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// Repository provides report data access over the gateway.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new report repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

func prepare(r *Report) error {
	if r == nil {
		return database.Invalidf("report cannot be nil")
	}
	if r.ReporterID == "" || r.TargetID == "" {
		return database.Invalidf("reporter id and target id are required")
	}
	if err := database.ValidateStatus(r.TargetType, TargetTypes); err != nil {
		return err
	}
	if strings.TrimSpace(r.Reason) == "" {
		return database.Invalidf("report reason cannot be empty")
	}
	if r.Status == "" {
		r.Status = StatusOpen
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Create inserts a report.
func (r *Repository) Create(ctx context.Context, report *Report) error {
	if err := prepare(report); err != nil {
		return err
	}
	return database.GenericCreate(r.base, ctx, tableReports, report, func(rows []Report) {
		if len(rows) > 0 {
			*report = rows[0]
		}
	})
}

// GetByID fetches a report by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Report, error) {
	if id == "" {
		return nil, database.Invalidf("report id cannot be empty")
	}
	return database.GenericGetByField[Report](r.base, ctx, tableReports, "id", id)
}

// ListByStatus lists reports in a status, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, status string) ([]Report, error) {
	if err := database.ValidateStatus(status, Statuses); err != nil {
		return nil, err
	}
	q := r.base.From(tableReports).Select("*").Eq("status", status).Order("created_at", true)
	return database.Fetch[Report](ctx, q)
}

// UpdateStatus closes a report.
func (r *Repository) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	if id == "" {
		return database.Invalidf("report id cannot be empty")
	}
	if err := database.ValidateStatus(update.Status, Statuses); err != nil {
		return err
	}
	return database.GenericUpdate(r.base, ctx, tableReports, "id", id, update)
}
