package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/R3E-Network/social_layer/pkg/logger"
	notificationsupabase "github.com/R3E-Network/social_layer/services/notification/supabase"
	"github.com/R3E-Network/social_layer/supabase/client"
)

// FeedConfig holds the callbacks a Feed reports through. Both may be nil.
type FeedConfig struct {
	// OnChange receives a fresh copy of the list after every merge.
	OnChange func(items []Notification)
	// OnNew receives notifications that were not in the list before.
	OnNew func(n Notification)
}

// Feed is a user's live notification list: an initial load followed by
// INSERT and UPDATE change subscriptions filtered to the user.
type Feed struct {
	repo       notificationsupabase.RepositoryInterface
	subscriber client.ChangeSubscriber
	userID     string
	limit      int
	cfg        FeedConfig
	log        *logger.Logger

	// pub serializes merge+callback so listeners see snapshots in merge order.
	pub     sync.Mutex
	mu      sync.Mutex
	items   []Notification
	subs    []client.Subscription
	started bool
	// gen changes on every Stop so a Start still subscribing can tell it was stopped.
	gen int
}

// NewFeed creates a feed for userID. It does nothing until Start.
func (s *Service) NewFeed(userID string, cfg FeedConfig) *Feed {
	return &Feed{
		repo:       s.repo,
		subscriber: s.realtime,
		userID:     userID,
		limit:      s.feedLimit,
		cfg:        cfg,
		log:        s.log,
	}
}

// Start loads the newest notifications and subscribes to changes.
func (f *Feed) Start(ctx context.Context) error {
	if f.subscriber == nil {
		return errors.New("notification: realtime not configured")
	}
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = true
	gen := f.gen
	f.mu.Unlock()

	rows, err := f.repo.ListByUser(ctx, f.userID, f.limit)
	if err != nil {
		f.reset()
		return fmt.Errorf("load notifications: %w", err)
	}
	f.pub.Lock()
	f.mu.Lock()
	f.items = f.items[:0]
	for _, row := range rows {
		if n := toDomain(row); f.accepts(n) {
			f.items = append(f.items, n)
		}
	}
	sortNewestFirst(f.items)
	snapshot := f.snapshotLocked()
	f.mu.Unlock()
	if f.cfg.OnChange != nil {
		f.cfg.OnChange(snapshot)
	}
	f.pub.Unlock()

	filter := "user_id=eq." + f.userID
	for _, event := range []string{"INSERT", "UPDATE"} {
		sub, err := f.subscriber.Subscribe(ctx, client.PostgresChangesConfig{
			Event:  event,
			Schema: "public",
			Table:  "notifications",
			Filter: filter,
		}, f.handle)
		if err != nil {
			_ = f.Stop(context.Background())
			return fmt.Errorf("subscribe notifications %s: %w", event, err)
		}
		f.mu.Lock()
		if f.gen != gen {
			f.mu.Unlock()
			return sub.Unsubscribe(context.Background())
		}
		f.subs = append(f.subs, sub)
		f.mu.Unlock()
	}
	return nil
}

// Stop unsubscribes both channels. The list is kept.
func (f *Feed) Stop(ctx context.Context) error {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.started = false
	f.gen++
	f.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Items returns a copy of the current list, newest first.
func (f *Feed) Items() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Feed) reset() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
}

func (f *Feed) handle(change *client.PostgresChange) {
	var row notificationsupabase.Notification
	if err := change.Decode(&row); err != nil {
		f.log.WithError(err).WithField("type", change.Type).Warn("discarding undecodable notification change")
		return
	}
	f.Merge(toDomain(row))
}

// accepts drops notifications addressed to someone else and ones the owner sent.
func (f *Feed) accepts(n Notification) bool {
	if n.ID == "" || n.UserID != f.userID {
		return false
	}
	return n.SenderID == "" || n.SenderID != f.userID
}

// Merge inserts n or replaces the entry with the same id, keeping the list
// sorted newest first. It reports whether the list changed.
func (f *Feed) Merge(n Notification) bool {
	if !f.accepts(n) {
		return false
	}

	f.pub.Lock()
	defer f.pub.Unlock()

	f.mu.Lock()
	added := true
	for i := range f.items {
		if f.items[i].ID == n.ID {
			f.items[i] = n
			added = false
			break
		}
	}
	if added {
		f.items = append(f.items, n)
	}
	sortNewestFirst(f.items)
	snapshot := f.snapshotLocked()
	f.mu.Unlock()

	if f.cfg.OnChange != nil {
		f.cfg.OnChange(snapshot)
	}
	if added && f.cfg.OnNew != nil {
		f.cfg.OnNew(n)
	}
	return true
}

// MarkRead flags the given notifications read in the list without waiting
// for their UPDATE changes.
func (f *Feed) MarkRead(ids ...string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	f.markRead(func(n Notification) bool { return want[n.ID] })
}

// MarkAllRead flags every notification in the list read.
func (f *Feed) MarkAllRead() {
	f.markRead(func(Notification) bool { return true })
}

func (f *Feed) markRead(match func(Notification) bool) {
	f.pub.Lock()
	defer f.pub.Unlock()

	f.mu.Lock()
	changed := false
	for i := range f.items {
		if !f.items[i].IsRead && match(f.items[i]) {
			f.items[i].IsRead = true
			changed = true
		}
	}
	snapshot := f.snapshotLocked()
	f.mu.Unlock()

	if changed && f.cfg.OnChange != nil {
		f.cfg.OnChange(snapshot)
	}
}

func (f *Feed) snapshotLocked() []Notification {
	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}

func sortNewestFirst(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
