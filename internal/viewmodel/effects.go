package viewmodel

import (
	"errors"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/services/common"
)

// Effect is a one-shot side effect for the presentation layer.
type Effect interface {
	effect()
}

// ShowError asks the presentation layer to surface an error message.
type ShowError struct {
	Message string
}

// ShowMessage asks the presentation layer to surface an informational message.
type ShowMessage struct {
	Message string
}

// Navigate asks the presentation layer to move to another route.
type Navigate struct {
	Route string
}

func (ShowError) effect()   {}
func (ShowMessage) effect() {}
func (Navigate) effect()    {}

// ErrorMessage translates an error into a user-facing sentence.
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, common.ErrForbidden):
		return "You are not allowed to do that"
	case errors.Is(err, database.ErrNotFound):
		return "Not found"
	case errors.Is(err, database.ErrInvalidInput):
		return "Please check your input"
	case errors.Is(err, database.ErrConflict):
		return "This already exists"
	default:
		return "Something went wrong. Please try again"
	}
}
