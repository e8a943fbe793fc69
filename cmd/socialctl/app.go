package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/R3E-Network/social_layer/internal/cli"
	"github.com/R3E-Network/social_layer/internal/config"
	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/internal/prefs"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/pkg/metrics"
	"github.com/R3E-Network/social_layer/services/chat"
	chatsupabase "github.com/R3E-Network/social_layer/services/chat/supabase"
	"github.com/R3E-Network/social_layer/services/event"
	eventsupabase "github.com/R3E-Network/social_layer/services/event/supabase"
	"github.com/R3E-Network/social_layer/services/notification"
	notificationsupabase "github.com/R3E-Network/social_layer/services/notification/supabase"
	reportsvc "github.com/R3E-Network/social_layer/services/report"
	reportsupabase "github.com/R3E-Network/social_layer/services/report/supabase"
	"github.com/R3E-Network/social_layer/services/review"
	reviewsupabase "github.com/R3E-Network/social_layer/services/review/supabase"
	"github.com/R3E-Network/social_layer/services/user"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
	"github.com/R3E-Network/social_layer/supabase/client"
)

var errNotLoggedIn = errors.New("not logged in, run socialctl login first")

// app holds the wired client stack for one invocation.
type app struct {
	cfg     *config.Config
	out     *cli.Printer
	errOut  *cli.Printer
	stdout  io.Writer
	stderr  io.Writer
	log     *logger.Logger
	metrics *metrics.Metrics

	client   *client.Client
	realtime *client.RealtimeClient
	store    prefs.Store
	tokens   *prefs.TokenStore

	userRepo      usersupabase.RepositoryInterface
	users         *user.Service
	notifications *notification.Service
	chats         *chat.Service
	events        *event.Service
	reviews       *review.Service
	reports       *reportsvc.Service
}

func newApp(ctx context.Context, cfg *config.Config, out *cli.Printer, stderr io.Writer) (*app, error) {
	logCfg := cfg.LoggerConfig("socialctl")
	logCfg.Output = stderr
	log := logger.New(logCfg)
	m := metrics.New("social")

	store, err := prefs.Open(ctx, cfg.PrefsOptions())
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	tokens := prefs.NewTokenStore(store)
	token, err := tokens.AccessToken(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("read access token: %w", err)
	}

	c, err := client.NewEnhanced(cfg.ClientConfig(m, token))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create gateway client: %w", err)
	}
	rt, err := client.NewRealtimeClient(cfg.RealtimeConfig(m, log.Named("realtime"), token))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create realtime client: %w", err)
	}

	a := &app{
		cfg:      cfg,
		out:      out,
		stderr:   stderr,
		log:      log,
		metrics:  m,
		client:   c,
		realtime: rt,
		store:    store,
		tokens:   tokens,
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	base := database.NewRepository(a.client)
	a.userRepo = usersupabase.NewRepository(base)
	eventRepo := eventsupabase.NewRepository(base)
	storage := a.client.Storage()

	var err error
	if a.users, err = user.New(user.Config{
		Users:        a.userRepo,
		Storage:      storage,
		AvatarBucket: a.cfg.Storage.AvatarBucket,
		SignedURLTTL: a.cfg.Storage.SignedURLTTL,
		Logger:       a.log.Named("user"),
	}); err != nil {
		return err
	}
	if a.notifications, err = notification.New(notification.Config{
		Notifications: notificationsupabase.NewRepository(base),
		Realtime:      a.realtime,
		Logger:        a.log.Named("notification"),
	}); err != nil {
		return err
	}
	if a.chats, err = chat.New(chat.Config{
		Chats:       chatsupabase.NewRepository(base),
		Users:       a.userRepo,
		Events:      eventRepo,
		Notifier:    a.notifications,
		Realtime:    a.realtime,
		Concurrency: a.cfg.ChatListConcurrency,
		Logger:      a.log.Named("chat"),
	}); err != nil {
		return err
	}
	if a.events, err = event.New(event.Config{
		Events:       eventRepo,
		Users:        a.userRepo,
		Chats:        a.chats,
		Notifier:     a.notifications,
		Storage:      storage,
		ImageBucket:  a.cfg.Storage.EventBucket,
		SignedURLTTL: a.cfg.Storage.SignedURLTTL,
		Logger:       a.log.Named("event"),
	}); err != nil {
		return err
	}
	if a.reviews, err = review.New(review.Config{
		Reviews: reviewsupabase.NewRepository(base),
		Events:  eventRepo,
		Users:   a.userRepo,
		Logger:  a.log.Named("review"),
	}); err != nil {
		return err
	}
	a.reports, err = reportsvc.New(reportsvc.Config{
		Reports:  reportsupabase.NewRepository(base),
		Users:    a.userRepo,
		Events:   a.events,
		Notifier: a.notifications,
		Logger:   a.log.Named("report"),
	})
	return err
}

// session returns a context carrying the saved token and the signed-in user id.
func (a *app) session(ctx context.Context) (context.Context, string, error) {
	token, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read access token: %w", err)
	}
	if token == "" {
		return nil, "", errNotLoggedIn
	}
	u, err := a.client.Auth().GetUser(ctx, token)
	if err != nil {
		return nil, "", fmt.Errorf("resolve session: %w", err)
	}
	a.realtime.SetAccessToken(token)
	ctx = client.WithAccessToken(ctx, token)
	ctx = client.WithRequestID(ctx, client.GenerateRequestID())
	return ctx, u.ID, nil
}

func (a *app) Close() {
	if err := a.realtime.Disconnect(); err != nil {
		a.log.WithError(err).Debug("realtime disconnect")
	}
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("close preferences")
	}
}
