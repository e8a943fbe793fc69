package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := OpenSQLite(dir, "social")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = os.Stat(filepath.Join(dir, "social.db"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "social.db"), store.Path())

	_, err = store.Get(ctx, "theme")
	assert.ErrorIs(t, err, ErrNotSet)

	require.NoError(t, store.Set(ctx, "theme", "dark"))
	require.NoError(t, store.Set(ctx, "theme", "light"))
	v, err := store.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	require.NoError(t, store.Delete(ctx, "theme"))
	require.NoError(t, store.Delete(ctx, "theme"))
	_, err = store.Get(ctx, "theme")
	assert.ErrorIs(t, err, ErrNotSet)
}

func TestSQLiteStore_PersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := OpenSQLite(dir, "social")
	require.NoError(t, err)
	require.NoError(t, NewTokenStore(first).SaveAccessToken(ctx, "jwt-1"))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(dir, "social")
	require.NoError(t, err)
	defer second.Close()
	token, err := NewTokenStore(second).AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", token)
}

func TestTokenStore(t *testing.T) {
	store, err := OpenSQLite(t.TempDir(), "tokens")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	tokens := NewTokenStore(store)

	token, err := tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, tokens.SaveAccessToken(ctx, "abc"))
	token, err = tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, tokens.SaveAccessToken(ctx, ""))
	token, err = tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, tokens.SaveAccessToken(ctx, "def"))
	require.NoError(t, tokens.ClearAccessToken(ctx))
	token, err = tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Options{Backend: BackendSQLite})
	assert.Error(t, err)
	_, err = Open(ctx, Options{Backend: "etcd", Name: "x"})
	assert.Error(t, err)
	_, err = Open(ctx, Options{Backend: BackendRedis, Name: "x"})
	assert.Error(t, err)
	_, err = Open(ctx, Options{Backend: BackendRedis, Name: "x", RedisURL: "http://not-redis"})
	assert.Error(t, err)

	store, err := Open(ctx, Options{Name: "default", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := OpenRedis(ctx, "redis://127.0.0.1:1/0", "social")
	assert.Error(t, err)
}

func TestRedisStore_KeyNamespace(t *testing.T) {
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "social")
	defer store.Close()
	assert.Equal(t, "social:access_token", store.key(KeyAccessToken))
}
