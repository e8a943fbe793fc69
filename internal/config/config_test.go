package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Supabase.Timeout)
	assert.True(t, cfg.Supabase.RetryEnabled)
	assert.Equal(t, 3, cfg.Supabase.MaxRetries)
	assert.Equal(t, "avatars", cfg.Storage.AvatarBucket)
	assert.Equal(t, "events", cfg.Storage.EventBucket)
	assert.Equal(t, time.Hour, cfg.Storage.SignedURLTTL)
	assert.Equal(t, "sqlite", cfg.Prefs.Backend)
	assert.Equal(t, "social_layer", cfg.Prefs.Name)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 8, cfg.ChatListConcurrency)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SUPABASE_TIMEOUT", "5s")
	t.Setenv("SUPABASE_RETRY_ENABLED", "false")
	t.Setenv("SUPABASE_RATE_LIMIT", "12.5")
	t.Setenv("PREFS_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("CHAT_LIST_CONCURRENCY", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Supabase.Timeout)
	assert.False(t, cfg.Supabase.RetryEnabled)
	assert.Equal(t, 12.5, cfg.Supabase.RateLimit)
	assert.Equal(t, "redis", cfg.PrefsOptions().Backend)
	assert.Equal(t, 2, cfg.ChatListConcurrency)

	cc := cfg.ClientConfig(nil, "jwt")
	assert.False(t, cc.EnableResilience)
	assert.Equal(t, "jwt", cc.AccessToken)
	assert.Equal(t, 5*time.Second, cc.Timeout)
	assert.Equal(t, "json", cfg.LoggerConfig("cli").Format)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SUPABASE_URL=http://localhost:54321\nSUPABASE_ANON_KEY=local\n"), 0o600))
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	os.Unsetenv("SUPABASE_URL")
	os.Unsetenv("SUPABASE_ANON_KEY")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:54321", cfg.Supabase.URL)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	os.Unsetenv("SUPABASE_URL")
	t.Setenv("SUPABASE_ANON_KEY", "anon")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Supabase:            SupabaseConfig{URL: "https://x.supabase.co", AnonKey: "k", Timeout: time.Second},
			Storage:             StorageConfig{SignedURLTTL: time.Minute},
			Prefs:               PrefsConfig{Backend: "sqlite", Name: "p"},
			Log:                 LogConfig{Format: "text"},
			ChatListConcurrency: 1,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ftp url", func(c *Config) { c.Supabase.URL = "ftp://x" }},
		{"no host", func(c *Config) { c.Supabase.URL = "https://" }},
		{"zero timeout", func(c *Config) { c.Supabase.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.Supabase.MaxRetries = -1 }},
		{"negative rate", func(c *Config) { c.Supabase.RateLimit = -1 }},
		{"zero ttl", func(c *Config) { c.Storage.SignedURLTTL = 0 }},
		{"unknown backend", func(c *Config) { c.Prefs.Backend = "etcd" }},
		{"redis without url", func(c *Config) { c.Prefs.Backend = "redis" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"zero concurrency", func(c *Config) { c.ChatListConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
