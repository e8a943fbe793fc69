package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/internal/viewmodel"
	notificationsupabase "github.com/R3E-Network/social_layer/services/notification/supabase"
)

func nextEffect(t *testing.T, vm *FeedViewModel) viewmodel.Effect {
	t.Helper()
	select {
	case e := <-vm.Effects():
		return e
	case <-time.After(time.Second):
		t.Fatal("no effect emitted")
		return nil
	}
}

func TestFeedViewModel_MirrorsFeed(t *testing.T) {
	svc, repo, sub := newTestService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &notificationsupabase.Notification{ID: "n1", UserID: "u1", Type: "message", CreatedAt: t0}))

	vm := NewFeedViewModel(svc, "u1", viewmodel.Config{})
	defer vm.Close()

	vm.Start(ctx)
	state := vm.State()
	assert.True(t, state.Live)
	assert.False(t, state.Loading)
	require.Len(t, state.Items, 1)
	assert.Equal(t, 1, state.Unread)

	sub.push(t, "INSERT", notificationsupabase.Notification{ID: "n2", UserID: "u1", SenderID: "u2", Type: "message", Title: "Ping", CreatedAt: t0.Add(time.Minute)})
	assert.Equal(t, viewmodel.ShowMessage{Message: "Ping"}, nextEffect(t, vm))
	assert.Equal(t, 2, vm.State().Unread)
	assert.Equal(t, "n2", vm.State().Items[0].ID)

	vm.MarkRead(ctx, "n1")
	assert.Equal(t, 1, vm.State().Unread)

	vm.MarkAllRead(ctx)
	assert.Equal(t, 0, vm.State().Unread)
	for _, it := range vm.State().Items {
		assert.True(t, it.IsRead)
	}

	require.NoError(t, vm.Stop(ctx))
	assert.False(t, vm.State().Live)
	assert.Equal(t, 2, sub.unsubscribed)
}

func TestFeedViewModel_ReadFlagsSurviveNextInsert(t *testing.T) {
	svc, repo, sub := newTestService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &notificationsupabase.Notification{ID: "n1", UserID: "u1", Type: "message", CreatedAt: t0}))

	vm := NewFeedViewModel(svc, "u1", viewmodel.Config{})
	defer vm.Close()
	vm.Start(ctx)

	vm.MarkAllRead(ctx)
	require.Equal(t, 0, vm.State().Unread)

	sub.push(t, "INSERT", notificationsupabase.Notification{ID: "n2", UserID: "u1", SenderID: "u2", Type: "message", Title: "Hi", CreatedAt: t0.Add(time.Minute)})
	state := vm.State()
	assert.Equal(t, 1, state.Unread)
	require.Len(t, state.Items, 2)
	assert.Equal(t, "n1", state.Items[1].ID)
	assert.True(t, state.Items[1].IsRead)
	require.NoError(t, vm.Stop(ctx))
}

func TestFeedViewModel_ErrorsBecomeEffects(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	vm := NewFeedViewModel(svc, "u1", viewmodel.Config{})
	defer vm.Close()

	repo.ErrorOnNextCall = database.ErrDatabaseError
	vm.Start(ctx)
	assert.Equal(t, viewmodel.ShowError{Message: "Something went wrong. Please try again"}, nextEffect(t, vm))
	assert.False(t, vm.State().Live)

	vm.MarkRead(ctx, "missing")
	assert.Equal(t, viewmodel.ShowError{Message: "Not found"}, nextEffect(t, vm))

	// A failed start can be retried.
	vm.Start(ctx)
	assert.True(t, vm.State().Live)
	require.NoError(t, vm.Stop(ctx))
	require.NoError(t, vm.Stop(ctx))
}
