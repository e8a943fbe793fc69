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

// RepositoryInterface defines user data access methods.
type RepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByIDs(ctx context.Context, ids []string) ([]User, error)
	SearchByName(ctx context.Context, query string, limit int) ([]User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, id string, update UserUpdate) error
	SetBanned(ctx context.Context, id string, banned bool) error

	ListInterests(ctx context.Context) ([]Interest, error)
	ListUserInterests(ctx context.Context, userID string) ([]Interest, error)
	ReplaceUserInterests(ctx context.Context, userID string, interestIDs []string) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// =============================================================================
// Repository Implementation
// =============================================================================

// Repository provides user data access over the gateway.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new user repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

// GetByID fetches a user by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, database.Invalidf("user id cannot be empty")
	}
	return database.GenericGetByField[User](r.base, ctx, tableUsers, "id", id)
}

// GetByIDs fetches every listed user in batched in.(...) queries.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]User, error) {
	return database.GenericListIn[User](r.base, ctx, tableUsers, "id", ids)
}

// SearchByName returns users whose name contains query, case-insensitively.
func (r *Repository) SearchByName(ctx context.Context, query string, limit int) ([]User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, database.Invalidf("search query cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "*" + strings.NewReplacer("*", "", ",", " ", "(", "", ")", "").Replace(query) + "*"
	q := r.base.From(tableUsers).
		Select("*").
		ILike("name", pattern).
		Is("is_banned", false).
		Order("name", true).
		Limit(limit)
	return database.Fetch[User](ctx, q)
}

// Create inserts a user row.
func (r *Repository) Create(ctx context.Context, user *User) error {
	if user == nil {
		return database.Invalidf("user cannot be nil")
	}
	if strings.TrimSpace(user.Name) == "" {
		return database.Invalidf("name cannot be empty")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return database.GenericCreate(r.base, ctx, tableUsers, user, func(rows []User) {
		if len(rows) > 0 {
			*user = rows[0]
		}
	})
}

// Update patches profile columns.
func (r *Repository) Update(ctx context.Context, id string, update UserUpdate) error {
	if id == "" {
		return database.Invalidf("user id cannot be empty")
	}
	if update.Empty() {
		return database.Invalidf("update changes nothing")
	}
	return database.GenericUpdate(r.base, ctx, tableUsers, "id", id, update)
}

// SetBanned flips the ban flag.
func (r *Repository) SetBanned(ctx context.Context, id string, banned bool) error {
	if id == "" {
		return database.Invalidf("user id cannot be empty")
	}
	return database.GenericUpdate(r.base, ctx, tableUsers, "id", id, map[string]bool{"is_banned": banned})
}

// =============================================================================
// Interest Operations
// =============================================================================

// ListInterests lists the interest catalogue.
func (r *Repository) ListInterests(ctx context.Context) ([]Interest, error) {
	return database.Fetch[Interest](ctx, r.base.From(tableInterests).Select("*").Order("name", true))
}

// ListUserInterests resolves a user's interests with two queries.
func (r *Repository) ListUserInterests(ctx context.Context, userID string) ([]Interest, error) {
	if userID == "" {
		return nil, database.Invalidf("user id cannot be empty")
	}
	links, err := database.GenericListByField[UserInterest](r.base, ctx, tableUserInterests, "user_id", userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.InterestID)
	}
	return database.GenericListIn[Interest](r.base, ctx, tableInterests, "id", ids)
}

// ReplaceUserInterests deletes the user's links and inserts the new set.
func (r *Repository) ReplaceUserInterests(ctx context.Context, userID string, interestIDs []string) error {
	if userID == "" {
		return database.Invalidf("user id cannot be empty")
	}
	err := database.GenericDelete(r.base, ctx, tableUserInterests, "user_id", userID)
	if err != nil && !database.IsNotFound(err) {
		return err
	}

	ids := database.Unique(interestIDs)
	if len(ids) == 0 {
		return nil
	}
	links := make([]UserInterest, 0, len(ids))
	for _, id := range ids {
		links = append(links, UserInterest{UserID: userID, InterestID: id})
	}
	return database.GenericCreate[UserInterest](r.base, ctx, tableUserInterests, links, nil)
}
