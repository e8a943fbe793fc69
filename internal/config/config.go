// Package config loads client configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/R3E-Network/social_layer/internal/prefs"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/pkg/metrics"
	"github.com/R3E-Network/social_layer/supabase/client"
)

// Config is the full client configuration.
type Config struct {
	Supabase SupabaseConfig
	Storage  StorageConfig
	Prefs    PrefsConfig
	Log      LogConfig

	ChatListConcurrency int `env:"CHAT_LIST_CONCURRENCY,default=8"`
}

// SupabaseConfig configures the gateway.
type SupabaseConfig struct {
	URL          string        `env:"SUPABASE_URL,required"`
	AnonKey      string        `env:"SUPABASE_ANON_KEY,required"`
	Timeout      time.Duration `env:"SUPABASE_TIMEOUT,default=30s"`
	RetryEnabled bool          `env:"SUPABASE_RETRY_ENABLED,default=true"`
	MaxRetries   int           `env:"SUPABASE_MAX_RETRIES,default=3"`
	RateLimit    float64       `env:"SUPABASE_RATE_LIMIT,default=0"`
}

// StorageConfig names the file buckets.
type StorageConfig struct {
	AvatarBucket string        `env:"STORAGE_AVATAR_BUCKET,default=avatars"`
	EventBucket  string        `env:"STORAGE_EVENT_BUCKET,default=events"`
	SignedURLTTL time.Duration `env:"STORAGE_SIGNED_URL_TTL,default=1h"`
}

// PrefsConfig selects the local preference store.
type PrefsConfig struct {
	Backend  string `env:"PREFS_BACKEND,default=sqlite"`
	Name     string `env:"PREFS_NAME,default=social_layer"`
	Dir      string `env:"PREFS_DIR,default=."`
	RedisURL string `env:"REDIS_URL"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

// Load reads envFile (".env" when empty, ignored if missing) and decodes the environment.
func Load(envFile string) (*Config, error) {
	path := envFile
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if envFile != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envdecode cannot.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Supabase.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SUPABASE_URL must be an http(s) URL, got %q", c.Supabase.URL)
	}
	if c.Supabase.AnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	if c.Supabase.Timeout <= 0 {
		return fmt.Errorf("SUPABASE_TIMEOUT must be positive")
	}
	if c.Supabase.MaxRetries < 0 {
		return fmt.Errorf("SUPABASE_MAX_RETRIES cannot be negative")
	}
	if c.Supabase.RateLimit < 0 {
		return fmt.Errorf("SUPABASE_RATE_LIMIT cannot be negative")
	}
	if c.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("STORAGE_SIGNED_URL_TTL must be positive")
	}
	switch c.Prefs.Backend {
	case prefs.BackendSQLite:
	case prefs.BackendRedis:
		if c.Prefs.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis prefs backend")
		}
	default:
		return fmt.Errorf("PREFS_BACKEND must be %s or %s, got %q", prefs.BackendSQLite, prefs.BackendRedis, c.Prefs.Backend)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	if c.ChatListConcurrency <= 0 {
		return fmt.Errorf("CHAT_LIST_CONCURRENCY must be positive")
	}
	return nil
}

// ClientConfig builds the gateway client configuration.
func (c *Config) ClientConfig(m *metrics.Metrics, accessToken string) client.EnhancedConfig {
	retry := client.DefaultRetryPolicy()
	retry.MaxRetries = c.Supabase.MaxRetries
	return client.EnhancedConfig{
		Config: client.Config{
			URL:         c.Supabase.URL,
			APIKey:      c.Supabase.AnonKey,
			AccessToken: accessToken,
			Timeout:     c.Supabase.Timeout,
			Metrics:     m,
		},
		Retry:            retry,
		Breaker:          client.DefaultBreakerConfig(),
		RateLimit:        c.Supabase.RateLimit,
		EnableResilience: c.Supabase.RetryEnabled,
	}
}

// RealtimeConfig builds the realtime client configuration.
func (c *Config) RealtimeConfig(m *metrics.Metrics, log *logger.Logger, accessToken string) client.RealtimeConfig {
	return client.RealtimeConfig{
		URL:         c.Supabase.URL,
		APIKey:      c.Supabase.AnonKey,
		AccessToken: accessToken,
		Metrics:     m,
		Logger:      log,
	}
}

// LoggerConfig builds a logger configuration for a component.
func (c *Config) LoggerConfig(name string) logger.Config {
	return logger.Config{Name: name, Level: c.Log.Level, Format: c.Log.Format}
}

// PrefsOptions builds the preference store options.
func (c *Config) PrefsOptions() prefs.Options {
	return prefs.Options{
		Backend:  c.Prefs.Backend,
		Name:     c.Prefs.Name,
		Dir:      c.Prefs.Dir,
		RedisURL: c.Prefs.RedisURL,
	}
}
