// Package prefs persists small string preferences such as the session token.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// KeyAccessToken holds the signed-in user's access token.
const KeyAccessToken = "access_token"

// ErrNotSet is returned when a preference has no value.
var ErrNotSet = errors.New("preference not set")

// Store is a named key-value preference store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend  string
	Name     string
	Dir      string
	RedisURL string
}

// Open opens the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("prefs: name is required")
	}
	switch opts.Backend {
	case "", BackendSQLite:
		return OpenSQLite(opts.Dir, opts.Name)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisURL, opts.Name)
	default:
		return nil, fmt.Errorf("prefs: unknown backend %q", opts.Backend)
	}
}

// TokenStore keeps the access token in a Store.
type TokenStore struct {
	store Store
}

// NewTokenStore wraps a store.
func NewTokenStore(store Store) *TokenStore {
	return &TokenStore{store: store}
}

// AccessToken returns the saved token, or "" when signed out.
func (t *TokenStore) AccessToken(ctx context.Context) (string, error) {
	v, err := t.store.Get(ctx, KeyAccessToken)
	if errors.Is(err, ErrNotSet) {
		return "", nil
	}
	return v, err
}

// SaveAccessToken stores the token.
func (t *TokenStore) SaveAccessToken(ctx context.Context, token string) error {
	if token == "" {
		return t.ClearAccessToken(ctx)
	}
	return t.store.Set(ctx, KeyAccessToken, token)
}

// ClearAccessToken forgets the token.
func (t *TokenStore) ClearAccessToken(ctx context.Context) error {
	return t.store.Delete(ctx, KeyAccessToken)
}
