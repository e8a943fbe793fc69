package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/services/common"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
	"github.com/R3E-Network/social_layer/supabase/client"
)

type fakeStorage struct {
	uploads map[string][]byte
	opts    *client.UploadOptions
	ttl     time.Duration
}

func (f *fakeStorage) Upload(_ context.Context, bucket, filePath string, data []byte, opts *client.UploadOptions) (string, error) {
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[bucket+"/"+filePath] = data
	f.opts = opts
	return bucket + "/" + filePath, nil
}

func (f *fakeStorage) CreateSignedURL(_ context.Context, bucket, filePath string, ttl time.Duration) (string, error) {
	f.ttl = ttl
	return "https://cdn.test/" + bucket + "/" + filePath + "?token=x", nil
}

func newTestService(t *testing.T) (*Service, *usersupabase.MockRepository, *fakeStorage) {
	t.Helper()
	repo := usersupabase.NewMockRepository()
	store := &fakeStorage{}
	svc, err := New(Config{
		Users:        repo,
		Storage:      store,
		SignedURLTTL: 10 * time.Minute,
		Logger:       logger.NewNop(),
	})
	require.NoError(t, err)
	return svc, repo, store
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestProfileAndInterests(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.AddInterest(usersupabase.Interest{ID: "i1", Name: "Hiking"})
	repo.AddInterest(usersupabase.Interest{ID: "i2", Name: "Chess"})

	_, err := svc.Register(ctx, "u1", "  Ada  ", "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.SetInterests(ctx, "u1", []string{"i1", "i2", "i1"}))

	p, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
	assert.False(t, p.IsAdmin)
	assert.ElementsMatch(t, []string{"Hiking", "Chess"}, p.Interests)

	catalogue, err := svc.Interests(ctx)
	require.NoError(t, err)
	assert.Len(t, catalogue, 2)
}

func TestProfile_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Profile(context.Background(), "missing")
	assert.True(t, database.IsNotFound(err))
}

func TestUpdateProfile(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "u1", Name: "Ada"}))

	city := "Oslo"
	p, err := svc.UpdateProfile(ctx, "u1", ProfileUpdate{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Oslo", p.City)

	blank := "   "
	_, err = svc.UpdateProfile(ctx, "u1", ProfileUpdate{Name: &blank})
	assert.True(t, database.IsInvalidInput(err))
}

func TestSearch(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "u1", Name: "Ada Lovelace"}))
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "u2", Name: "Alan Turing"}))
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "u3", Name: "Adam Banned", IsBanned: true}))

	got, err := svc.Search(ctx, "ada", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].ID)
}

func TestNames(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "u1", Name: "Ada"}))
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "u2", Name: "Alan"}))

	names, err := svc.Names(ctx, []string{"u1", "u2", "u1", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Ada", "u2": "Alan"}, names)
	assert.Equal(t, 1, repo.CallCount("GetByIDs"))
}

func TestRequireAdmin(t *testing.T) {
	_, repo, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "admin", Name: "Root", Role: usersupabase.RoleAdmin}))
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "u1", Name: "Ada"}))

	_, err := RequireAdmin(ctx, repo, "admin")
	assert.NoError(t, err)

	_, err = RequireAdmin(ctx, repo, "u1")
	assert.True(t, errors.Is(err, common.ErrForbidden))
}

func TestUploadAvatar(t *testing.T) {
	svc, repo, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &usersupabase.User{ID: "u1", Name: "Ada"}))

	url, err := svc.UploadAvatar(ctx, "u1", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/avatars/u1/avatar.png?token=x", url)
	assert.Equal(t, []byte("png"), store.uploads["avatars/u1/avatar.png"])
	require.NotNil(t, store.opts)
	assert.True(t, store.opts.Upsert)
	assert.Equal(t, 10*time.Minute, store.ttl)

	u, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1/avatar.png", u.AvatarPath)

	again, err := svc.AvatarURL(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, url, again)
}

func TestUploadAvatar_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UploadAvatar(ctx, "u1", nil, "image/png")
	assert.True(t, database.IsInvalidInput(err))

	_, err = svc.UploadAvatar(ctx, "u1", []byte("x"), "application/pdf")
	assert.True(t, database.IsInvalidInput(err))
}

func TestUploadAvatar_PropagatesRepositoryError(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.ErrorOnNextCall = database.ErrDatabaseError

	_, err := svc.UploadAvatar(context.Background(), "u1", []byte("x"), "image/jpeg")
	assert.ErrorIs(t, err, database.ErrDatabaseError)
}
