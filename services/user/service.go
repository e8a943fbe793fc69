// Package user provides profile, interest and avatar operations.
package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/services/common"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
	"github.com/R3E-Network/social_layer/supabase/client"
)

// Storage is the subset of the storage gateway the profile service needs.
type Storage interface {
	Upload(ctx context.Context, bucket, filePath string, data []byte, opts *client.UploadOptions) (string, error)
	CreateSignedURL(ctx context.Context, bucket, filePath string, ttl time.Duration) (string, error)
}

// Profile is the domain view of a user.
type Profile struct {
	ID         string
	Name       string
	Email      string
	Bio        string
	City       string
	AvatarPath string
	IsAdmin    bool
	IsBanned   bool
	Interests  []string
	CreatedAt  time.Time
}

// ProfileUpdate lists the editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name *string
	Bio  *string
	City *string
}

// Config configures a Service.
type Config struct {
	Users        usersupabase.RepositoryInterface
	Storage      Storage
	AvatarBucket string
	SignedURLTTL time.Duration
	Logger       *logger.Logger
}

// Service implements profile operations.
type Service struct {
	users  usersupabase.RepositoryInterface
	store  Storage
	bucket string
	ttl    time.Duration
	log    *logger.Logger
}

// New creates a profile service.
func New(cfg Config) (*Service, error) {
	if cfg.Users == nil {
		return nil, fmt.Errorf("user: users repository is required")
	}
	if cfg.AvatarBucket == "" {
		cfg.AvatarBucket = "avatars"
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("user")
	}
	return &Service{
		users:  cfg.Users,
		store:  cfg.Storage,
		bucket: cfg.AvatarBucket,
		ttl:    cfg.SignedURLTTL,
		log:    cfg.Logger,
	}, nil
}

func toProfile(u *usersupabase.User, interests []usersupabase.Interest) *Profile {
	p := &Profile{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Bio:        u.Bio,
		City:       u.City,
		AvatarPath: u.AvatarPath,
		IsAdmin:    u.IsAdmin(),
		IsBanned:   u.IsBanned,
		CreatedAt:  u.CreatedAt,
	}
	for _, i := range interests {
		p.Interests = append(p.Interests, i.Name)
	}
	return p
}

// Profile loads a user with interest names.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	interests, err := s.users.ListUserInterests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	return toProfile(u, interests), nil
}

// Register creates the profile row for a freshly signed-up account.
func (s *Service) Register(ctx context.Context, id, name, email string) (*Profile, error) {
	u := &usersupabase.User{ID: id, Name: strings.TrimSpace(name), Email: email, Role: usersupabase.RoleUser}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.WithField("user_id", u.ID).Info("profile registered")
	return toProfile(u, nil), nil
}

// UpdateProfile applies editable fields and returns the fresh profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*Profile, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, database.Invalidf("name cannot be empty")
		}
		upd.Name = &name
	}
	err := s.users.Update(ctx, userID, usersupabase.UserUpdate{Name: upd.Name, Bio: upd.Bio, City: upd.City})
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.log.WithField("user_id", userID).Info("profile updated")
	return s.Profile(ctx, userID)
}

// Search finds users by name.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Profile, error) {
	users, err := s.users.SearchByName(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	out := make([]Profile, 0, len(users))
	for i := range users {
		out = append(out, *toProfile(&users[i], nil))
	}
	return out, nil
}

// Interests returns the interest catalogue.
func (s *Service) Interests(ctx context.Context) ([]usersupabase.Interest, error) {
	return s.users.ListInterests(ctx)
}

// SetInterests replaces the user's interests.
func (s *Service) SetInterests(ctx context.Context, userID string, interestIDs []string) error {
	if err := s.users.ReplaceUserInterests(ctx, userID, interestIDs); err != nil {
		return fmt.Errorf("replace interests: %w", err)
	}
	return nil
}

// Names resolves display names for the given users in one batched lookup.
func (s *Service) Names(ctx context.Context, ids []string) (map[string]string, error) {
	return NamesOf(ctx, s.users, ids)
}

// NamesOf resolves display names through any user repository.
func NamesOf(ctx context.Context, users usersupabase.RepositoryInterface, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	ids = database.Unique(ids)
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	for _, u := range rows {
		names[u.ID] = u.Name
	}
	return names, nil
}

// RequireAdmin returns the acting user when they are an admin.
func RequireAdmin(ctx context.Context, users usersupabase.RepositoryInterface, actorID string) (*usersupabase.User, error) {
	u, err := users.GetByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("get actor: %w", err)
	}
	if !u.IsAdmin() {
		return nil, common.Forbiddenf("user %s is not an admin", actorID)
	}
	return u, nil
}

// =============================================================================
// Avatar
// =============================================================================

func avatarPath(userID, ext string) string {
	return userID + "/avatar." + ext
}

// UploadAvatar stores the image at avatars/<userID>/avatar.<ext>, records the path
// on the profile and returns a signed URL for it.
func (s *Service) UploadAvatar(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("user: storage not configured")
	}
	if userID == "" {
		return "", database.Invalidf("user id cannot be empty")
	}
	if len(data) == 0 {
		return "", database.Invalidf("avatar image is empty")
	}
	ext, err := common.ImageExtension(contentType)
	if err != nil {
		return "", err
	}

	path := avatarPath(userID, ext)
	if _, err := s.store.Upload(ctx, s.bucket, path, data, &client.UploadOptions{ContentType: contentType, Upsert: true}); err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	if err := s.users.Update(ctx, userID, usersupabase.UserUpdate{AvatarPath: &path}); err != nil {
		return "", fmt.Errorf("record avatar: %w", err)
	}
	s.log.WithFields(map[string]any{"user_id": userID, "path": path}).Info("avatar uploaded")

	url, err := s.store.CreateSignedURL(ctx, s.bucket, path, s.ttl)
	if err != nil {
		return "", fmt.Errorf("sign avatar url: %w", err)
	}
	return url, nil
}

// AvatarURL returns a signed URL for the user's avatar, or "" when none is set.
func (s *Service) AvatarURL(ctx context.Context, userID string) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("user: storage not configured")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if u.AvatarPath == "" {
		return "", nil
	}
	return s.store.CreateSignedURL(ctx, s.bucket, u.AvatarPath, s.ttl)
}
