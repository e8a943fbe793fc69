package database

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/R3E-Network/social_layer/supabase/client"
)

// Error kinds returned by every repository. Callers match them with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabaseError = errors.New("database error")
)

// PostgreSQL error codes surfaced by PostgREST.
const (
	pgUniqueViolation  = "23505"
	pgNotNullViolation = "23502"
	pgForeignKey       = "23503"
	pgCheckViolation   = "23514"
	pgrstNoRows        = "PGRST116"
)

// NotFoundError identifies the missing row.
type NotFoundError struct {
	Entity string
	Key    string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, key string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key}
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// Unwrap makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsNotFound reports whether err means the row is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidInput reports whether err was raised by validation.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Invalidf builds an ErrInvalidInput error.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ValidateStatus checks status against the allowed values.
func ValidateStatus(status string, allowed []string) error {
	for _, s := range allowed {
		if status == s {
			return nil
		}
	}
	return Invalidf("status %q must be one of %s", status, strings.Join(allowed, ", "))
}

// classify turns a gateway result into nil or one of the error kinds.
func classify(resp *client.Response, err error, op string) error {
	if err == nil {
		if resp == nil {
			return fmt.Errorf("%w: %s: empty response", ErrDatabaseError, op)
		}
		if err = resp.Error(); err == nil {
			return nil
		}
	}

	var e *client.APIError
	if !errors.As(err, &e) {
		return fmt.Errorf("%w: %s: %v", ErrDatabaseError, op, err)
	}

	switch {
	case e.StatusCode == http.StatusConflict || e.Code == pgUniqueViolation:
		return fmt.Errorf("%w: %s: %w", ErrConflict, op, e)
	case e.StatusCode == http.StatusNotFound || e.Code == pgrstNoRows:
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, e)
	case e.Code == pgNotNullViolation || e.Code == pgForeignKey || e.Code == pgCheckViolation ||
		strings.HasPrefix(e.Code, "22"):
		return fmt.Errorf("%w: %s: %w", ErrInvalidInput, op, e)
	default:
		return fmt.Errorf("%w: %s: %w", ErrDatabaseError, op, e)
	}
}
