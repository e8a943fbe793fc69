package notification

import (
	"context"
	"sync"

	"github.com/R3E-Network/social_layer/internal/viewmodel"
)

// FeedState is the notification screen state.
type FeedState struct {
	Items   []Notification
	Unread  int
	Loading bool
	Live    bool
}

// FeedViewModel mirrors a user's Feed into a view-model container.
type FeedViewModel struct {
	*viewmodel.Container[FeedState, viewmodel.Effect]

	svc    *Service
	userID string

	mu   sync.Mutex
	feed *Feed
}

// NewFeedViewModel creates the view-model for userID's notifications.
func NewFeedViewModel(svc *Service, userID string, cfg viewmodel.Config) *FeedViewModel {
	if cfg.Name == "" {
		cfg.Name = "notifications"
	}
	return &FeedViewModel{
		Container: viewmodel.New[FeedState, viewmodel.Effect](FeedState{}, cfg),
		svc:       svc,
		userID:    userID,
	}
}

func unreadOf(items []Notification) int {
	n := 0
	for _, it := range items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// Start loads the inbox and keeps it live until Stop.
func (vm *FeedViewModel) Start(ctx context.Context) {
	vm.mu.Lock()
	if vm.feed != nil {
		vm.mu.Unlock()
		return
	}
	feed := vm.svc.NewFeed(vm.userID, FeedConfig{
		OnChange: func(items []Notification) {
			vm.Update(func(s FeedState) FeedState {
				s.Items = items
				s.Unread = unreadOf(items)
				return s
			})
		},
		OnNew: func(n Notification) {
			vm.Emit(viewmodel.ShowMessage{Message: n.Title})
		},
	})
	vm.feed = feed
	vm.mu.Unlock()

	vm.Update(func(s FeedState) FeedState {
		s.Loading = true
		return s
	})
	err := feed.Start(ctx)
	vm.Update(func(s FeedState) FeedState {
		s.Loading = false
		s.Live = err == nil
		return s
	})
	if err != nil {
		vm.mu.Lock()
		vm.feed = nil
		vm.mu.Unlock()
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
	}
}

// MarkRead marks one notification read and reflects it locally without
// waiting for the UPDATE change.
func (vm *FeedViewModel) MarkRead(ctx context.Context, id string) {
	if err := vm.svc.MarkRead(ctx, id); err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
		return
	}
	vm.applyRead(func(f *Feed) { f.MarkRead(id) }, func(n Notification) bool { return n.ID == id })
}

// MarkAllRead marks the whole inbox read.
func (vm *FeedViewModel) MarkAllRead(ctx context.Context) {
	if err := vm.svc.MarkAllRead(ctx, vm.userID); err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
		return
	}
	vm.applyRead(func(f *Feed) { f.MarkAllRead() }, func(Notification) bool { return true })
}

// applyRead goes through the live feed so later merges keep the read flags.
// Without a feed the container state is patched directly.
func (vm *FeedViewModel) applyRead(viaFeed func(*Feed), match func(Notification) bool) {
	vm.mu.Lock()
	feed := vm.feed
	vm.mu.Unlock()
	if feed != nil {
		viaFeed(feed)
		return
	}
	vm.Update(func(s FeedState) FeedState {
		items := make([]Notification, len(s.Items))
		copy(items, s.Items)
		for i := range items {
			if match(items[i]) {
				items[i].IsRead = true
			}
		}
		s.Items = items
		s.Unread = unreadOf(items)
		return s
	})
}

// Stop ends the live subscription. The container stays usable.
func (vm *FeedViewModel) Stop(ctx context.Context) error {
	vm.mu.Lock()
	feed := vm.feed
	vm.feed = nil
	vm.mu.Unlock()
	if feed == nil {
		return nil
	}
	err := feed.Stop(ctx)
	vm.Update(func(s FeedState) FeedState {
		s.Live = false
		return s
	})
	return err
}
