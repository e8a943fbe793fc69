package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/social_layer/internal/viewmodel"
	"github.com/R3E-Network/social_layer/supabase/client"
)

// =============================================================================
// Chat list
// =============================================================================

// ListState is the chat list screen state.
type ListState struct {
	Chats       []Chat
	TotalUnread int
	Loading     bool
}

// ListViewModel drives the chat list of one user.
type ListViewModel struct {
	*viewmodel.Container[ListState, viewmodel.Effect]

	svc    *Service
	userID string
}

// NewListViewModel creates the chat list view-model for userID.
func NewListViewModel(svc *Service, userID string, cfg viewmodel.Config) *ListViewModel {
	if cfg.Name == "" {
		cfg.Name = "chat_list"
	}
	return &ListViewModel{
		Container: viewmodel.New[ListState, viewmodel.Effect](ListState{}, cfg),
		svc:       svc,
		userID:    userID,
	}
}

func totalUnread(chats []Chat) int {
	n := 0
	for _, c := range chats {
		n += c.Unread
	}
	return n
}

// Load refreshes the list.
func (vm *ListViewModel) Load(ctx context.Context) {
	vm.Update(func(s ListState) ListState {
		s.Loading = true
		return s
	})
	chats, err := vm.svc.ListChats(ctx, vm.userID)
	vm.Update(func(s ListState) ListState {
		s.Loading = false
		if err == nil {
			s.Chats = chats
			s.TotalUnread = totalUnread(chats)
		}
		return s
	})
	if err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
	}
}

// Open marks the chat read and navigates to it.
func (vm *ListViewModel) Open(ctx context.Context, chatID string) {
	if err := vm.svc.MarkRead(ctx, chatID, vm.userID); err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
		return
	}
	vm.Update(func(s ListState) ListState {
		chats := make([]Chat, len(s.Chats))
		copy(chats, s.Chats)
		for i := range chats {
			if chats[i].ID == chatID {
				chats[i].Unread = 0
			}
		}
		s.Chats = chats
		s.TotalUnread = totalUnread(chats)
		return s
	})
	vm.Emit(viewmodel.Navigate{Route: "/chats/" + chatID})
}

// =============================================================================
// Chat room
// =============================================================================

// RoomState is the chat room screen state.
type RoomState struct {
	ChatID   string
	Messages []Message
	Loading  bool
	Sending  bool
	Live     bool
}

// RoomViewModel drives one chat room for one user.
type RoomViewModel struct {
	*viewmodel.Container[RoomState, viewmodel.Effect]

	svc    *Service
	userID string
	chatID string

	mu  sync.Mutex
	sub client.Subscription
}

// NewRoomViewModel creates the view-model for chatID as seen by userID.
func NewRoomViewModel(svc *Service, userID, chatID string, cfg viewmodel.Config) *RoomViewModel {
	if cfg.Name == "" {
		cfg.Name = "chat_room"
	}
	return &RoomViewModel{
		Container: viewmodel.New[RoomState, viewmodel.Effect](RoomState{ChatID: chatID}, cfg),
		svc:       svc,
		userID:    userID,
		chatID:    chatID,
	}
}

// mergeMessages adds incoming messages not yet present, keeping creation order.
func mergeMessages(current []Message, incoming ...Message) []Message {
	out := make([]Message, len(current), len(current)+len(incoming))
	copy(out, current)
	for _, m := range incoming {
		dup := false
		for i := range out {
			if out[i].ID == m.ID {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func hasMessage(msgs []Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Load fetches the history, marks the chat read and starts live delivery when
// realtime is available.
func (vm *RoomViewModel) Load(ctx context.Context) {
	vm.Update(func(s RoomState) RoomState {
		s.Loading = true
		return s
	})
	msgs, err := vm.svc.Messages(ctx, vm.chatID)
	vm.Update(func(s RoomState) RoomState {
		s.Loading = false
		if err == nil {
			s.Messages = mergeMessages(nil, msgs...)
		}
		return s
	})
	if err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
		return
	}
	if err := vm.svc.MarkRead(ctx, vm.chatID, vm.userID); err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.sub != nil || vm.svc.realtime == nil {
		return
	}
	readCtx := context.WithoutCancel(ctx)
	sub, err := vm.svc.SubscribeMessages(ctx, vm.chatID, func(m Message) {
		fresh := !hasMessage(vm.State().Messages, m.ID)
		vm.Update(func(s RoomState) RoomState {
			s.Messages = mergeMessages(s.Messages, m)
			return s
		})
		// The room is on screen, so messages from others are read as they arrive.
		if fresh && m.SenderID != vm.userID {
			if err := vm.svc.MarkRead(readCtx, vm.chatID, vm.userID); err != nil {
				vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
			}
		}
	})
	if err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
		return
	}
	vm.sub = sub
	vm.Update(func(s RoomState) RoomState {
		s.Live = true
		return s
	})
}

// Send posts content to the room.
func (vm *RoomViewModel) Send(ctx context.Context, content string) {
	vm.Update(func(s RoomState) RoomState {
		s.Sending = true
		return s
	})
	m, err := vm.svc.SendMessage(ctx, vm.chatID, vm.userID, content)
	vm.Update(func(s RoomState) RoomState {
		s.Sending = false
		if err == nil {
			s.Messages = mergeMessages(s.Messages, *m)
		}
		return s
	})
	if err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
	}
}

// Stop ends live delivery.
func (vm *RoomViewModel) Stop(ctx context.Context) error {
	vm.mu.Lock()
	sub := vm.sub
	vm.sub = nil
	vm.mu.Unlock()
	if sub == nil {
		return nil
	}
	vm.Update(func(s RoomState) RoomState {
		s.Live = false
		return s
	})
	return sub.Unsubscribe(ctx)
}
