package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/services/common"
	eventsupabase "github.com/R3E-Network/social_layer/services/event/supabase"
	reviewsupabase "github.com/R3E-Network/social_layer/services/review/supabase"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
)

func newTestService(t *testing.T) (*Service, *reviewsupabase.MockRepository) {
	t.Helper()
	ctx := context.Background()
	reviews := reviewsupabase.NewMockRepository()
	events := eventsupabase.NewMockRepository()
	users := usersupabase.NewMockRepository()
	require.NoError(t, users.Create(ctx, &usersupabase.User{ID: "alice", Name: "Alice"}))
	require.NoError(t, users.Create(ctx, &usersupabase.User{ID: "bob", Name: "Bob"}))
	require.NoError(t, users.Create(ctx, &usersupabase.User{ID: "root", Name: "Root", Role: usersupabase.RoleAdmin}))
	require.NoError(t, events.Create(ctx, &eventsupabase.Event{ID: "e1", Title: "Quiz", CreatorID: "root", StartsAt: time.Now()}))

	svc, err := New(Config{Reviews: reviews, Events: events, Users: users, Logger: logger.NewNop()})
	require.NoError(t, err)
	return svc, reviews
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, "alice", "e1", 4, " fun ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", r.AuthorName)
	assert.Equal(t, "fun", r.Comment)

	_, err = svc.Create(ctx, "alice", "e1", 5, "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.True(t, database.IsConflict(err))

	_, err = svc.Create(ctx, "bob", "e1", 6, "")
	assert.True(t, database.IsInvalidInput(err))
	_, err = svc.Create(ctx, "bob", "e1", 0, "")
	assert.True(t, database.IsInvalidInput(err))

	_, err = svc.Create(ctx, "bob", "missing", 3, "")
	assert.True(t, database.IsNotFound(err))
}

func TestCreate_ConflictFromStore(t *testing.T) {
	svc, reviews := newTestService(t)
	ctx := context.Background()
	require.NoError(t, reviews.Create(ctx, &reviewsupabase.Review{EventID: "e1", AuthorID: "bob", Rating: 2}))

	// A lookup miss followed by a unique violation still reports ErrAlreadyReviewed.
	reviews.ErrorOnNextCall = database.NewNotFoundError("reviews", "e1/bob")
	_, err := svc.Create(ctx, "bob", "e1", 3, "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestListAndAverage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	summary, err := svc.Average(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)

	_, err = svc.Create(ctx, "alice", "e1", 5, "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", "e1", 2, "")
	require.NoError(t, err)

	summary, err = svc.Average(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 3.5, summary.Average, 1e-9)

	list, err := svc.List(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	mine, err := svc.ByAuthor(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Bob", mine[0].AuthorName)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, "alice", "e1", 5, "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "bob", r.ID), common.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, "root", r.ID))
	assert.True(t, database.IsNotFound(svc.Delete(ctx, "alice", r.ID)))
}
