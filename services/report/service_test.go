package report

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
	"github.com/R3E-Network/social_layer/services/notification"
	reportsupabase "github.com/R3E-Network/social_layer/services/report/supabase"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
)

type fakeEvents struct {
	deleted []string
}

func (f *fakeEvents) Delete(ctx context.Context, actorID, eventID string) error {
	f.deleted = append(f.deleted, actorID+"/"+eventID)
	return nil
}

type fakeNotifier struct {
	sent []notification.Message
	to   []string
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, recipientID string, msg notification.Message) error {
	f.to = append(f.to, recipientID)
	f.sent = append(f.sent, msg)
	return f.err
}

type fixture struct {
	svc      *Service
	reports  *reportsupabase.MockRepository
	users    *usersupabase.MockRepository
	events   *fakeEvents
	notifier *fakeNotifier
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		reports:  reportsupabase.NewMockRepository(),
		users:    usersupabase.NewMockRepository(),
		events:   &fakeEvents{},
		notifier: &fakeNotifier{},
	}
	require.NoError(t, f.users.Create(ctx, &usersupabase.User{ID: "alice", Name: "Alice"}))
	require.NoError(t, f.users.Create(ctx, &usersupabase.User{ID: "bob", Name: "Bob"}))
	require.NoError(t, f.users.Create(ctx, &usersupabase.User{ID: "root", Name: "Root", Role: usersupabase.RoleAdmin}))

	svc, err := New(Config{
		Reports:  f.reports,
		Users:    f.users,
		Events:   f.events,
		Notifier: f.notifier,
		Now:      func() time.Time { return t0 },
		Logger:   logger.NewNop(),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.File(ctx, "alice", reportsupabase.TargetUser, "bob", "  spam  ")
	require.NoError(t, err)
	assert.Equal(t, reportsupabase.StatusOpen, r.Status)
	assert.Equal(t, "spam", r.Reason)
	assert.Equal(t, t0, r.CreatedAt)

	_, err = f.svc.File(ctx, "alice", reportsupabase.TargetUser, "alice", "me")
	assert.True(t, database.IsInvalidInput(err))
	_, err = f.svc.File(ctx, "alice", "chat", "c1", "spam")
	assert.True(t, database.IsInvalidInput(err))
	_, err = f.svc.File(ctx, "alice", reportsupabase.TargetEvent, "e1", " ")
	assert.True(t, database.IsInvalidInput(err))
}

func TestOpen_AdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.File(ctx, "alice", reportsupabase.TargetMessage, "m1", "rude")
	require.NoError(t, err)

	_, err = f.svc.Open(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrForbidden)

	reports, err := f.svc.Open(ctx, "root")
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestResolveAndDismiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.File(ctx, "alice", reportsupabase.TargetUser, "bob", "spam")
	require.NoError(t, err)
	b, err := f.svc.File(ctx, "bob", reportsupabase.TargetEvent, "e1", "fake")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Resolve(ctx, "bob", a.ID), common.ErrForbidden)

	require.NoError(t, f.svc.Resolve(ctx, "root", a.ID))
	require.NoError(t, f.svc.Dismiss(ctx, "root", b.ID))

	got, err := f.reports.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, reportsupabase.StatusResolved, got.Status)
	assert.Equal(t, "root", got.ResolvedBy)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, t0, *got.ResolvedAt)

	got, err = f.reports.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, reportsupabase.StatusDismissed, got.Status)

	err = f.svc.Dismiss(ctx, "root", a.ID)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.True(t, database.IsConflict(err))

	assert.True(t, database.IsNotFound(f.svc.Resolve(ctx, "root", "missing")))

	open, err := f.svc.Open(ctx, "root")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestBanUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.BanUser(ctx, "alice", "bob", true), common.ErrForbidden)
	assert.True(t, database.IsInvalidInput(f.svc.BanUser(ctx, "root", "root", true)))
	assert.Empty(t, f.notifier.sent)

	require.NoError(t, f.svc.BanUser(ctx, "root", "bob", true))
	u, err := f.users.GetByID(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, u.IsBanned)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, []string{"bob"}, f.notifier.to)
	assert.Equal(t, "moderation", f.notifier.sent[0].Type)
	assert.Equal(t, "root", f.notifier.sent[0].SenderID)

	f.notifier.err = errors.New("offline")
	require.NoError(t, f.svc.BanUser(ctx, "root", "bob", false))
	u, err = f.users.GetByID(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, u.IsBanned)
	assert.Equal(t, "Your account has been restored", f.notifier.sent[1].Title)

	assert.True(t, database.IsNotFound(f.svc.BanUser(ctx, "root", "ghost", true)))
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.DeleteEvent(ctx, "alice", "e1"), common.ErrForbidden)
	assert.Empty(t, f.events.deleted)

	require.NoError(t, f.svc.DeleteEvent(ctx, "root", "e1"))
	assert.Equal(t, []string{"root/e1"}, f.events.deleted)
}
