package event

import (
	"context"
	"errors"

	"github.com/R3E-Network/social_layer/internal/viewmodel"
)

// DetailState is the event screen state.
type DetailState struct {
	EventID string
	Detail  *Detail
	Loading bool
	Busy    bool
}

// DetailViewModel drives the event detail screen for one viewer.
type DetailViewModel struct {
	*viewmodel.Container[DetailState, viewmodel.Effect]

	svc      *Service
	viewerID string
}

// NewDetailViewModel creates the view-model for viewerID.
func NewDetailViewModel(svc *Service, viewerID string, cfg viewmodel.Config) *DetailViewModel {
	if cfg.Name == "" {
		cfg.Name = "event_detail"
	}
	return &DetailViewModel{
		Container: viewmodel.New[DetailState, viewmodel.Effect](DetailState{}, cfg),
		svc:       svc,
		viewerID:  viewerID,
	}
}

// joinErrorMessage phrases participation errors for the user.
func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyParticipating):
		return "You are already participating in this event"
	case errors.Is(err, ErrEventFull):
		return "This event is full"
	default:
		return viewmodel.ErrorMessage(err)
	}
}

// Load fetches the event and remembers it as the current one.
func (vm *DetailViewModel) Load(ctx context.Context, eventID string) {
	vm.Update(func(s DetailState) DetailState {
		s.EventID = eventID
		s.Loading = true
		return s
	})
	d, err := vm.svc.Get(ctx, vm.viewerID, eventID)
	vm.Update(func(s DetailState) DetailState {
		s.Loading = false
		if err == nil {
			s.Detail = d
		}
		return s
	})
	if err != nil {
		vm.Emit(viewmodel.ShowError{Message: viewmodel.ErrorMessage(err)})
	}
}

// Join joins the loaded event.
func (vm *DetailViewModel) Join(ctx context.Context) {
	vm.participate(ctx, vm.svc.Join, "You joined the event")
}

// Leave leaves the loaded event.
func (vm *DetailViewModel) Leave(ctx context.Context) {
	vm.participate(ctx, vm.svc.Leave, "You left the event")
}

func (vm *DetailViewModel) participate(ctx context.Context, op func(ctx context.Context, eventID, userID string) error, done string) {
	eventID := vm.State().EventID
	if eventID == "" {
		vm.Emit(viewmodel.ShowError{Message: "No event loaded"})
		return
	}
	vm.Update(func(s DetailState) DetailState {
		s.Busy = true
		return s
	})
	err := op(ctx, eventID, vm.viewerID)
	vm.Update(func(s DetailState) DetailState {
		s.Busy = false
		return s
	})
	if err != nil {
		vm.Emit(viewmodel.ShowError{Message: joinErrorMessage(err)})
		return
	}
	vm.Emit(viewmodel.ShowMessage{Message: done})
	vm.Load(ctx, eventID)
}
