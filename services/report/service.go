// Package report provides admin moderation: user reports, bans and event removal.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/services/notification"
	notificationsupabase "github.com/R3E-Network/social_layer/services/notification/supabase"
	reportsupabase "github.com/R3E-Network/social_layer/services/report/supabase"
	"github.com/R3E-Network/social_layer/services/user"
	usersupabase "github.com/R3E-Network/social_layer/services/user/supabase"
)

// ErrNotOpen is returned when resolving or dismissing a closed report.
var ErrNotOpen = fmt.Errorf("%w: report is not open", database.ErrConflict)

// Events deletes events on behalf of an actor.
type Events interface {
	Delete(ctx context.Context, actorID, eventID string) error
}

// Notifier delivers moderation notices.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, msg notification.Message) error
}

// Config configures a Service.
type Config struct {
	Reports  reportsupabase.RepositoryInterface
	Users    usersupabase.RepositoryInterface
	Events   Events
	Notifier Notifier
	Now      func() time.Time
	Logger   *logger.Logger
}

// Service implements moderation operations.
type Service struct {
	reports  reportsupabase.RepositoryInterface
	users    usersupabase.RepositoryInterface
	events   Events
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
}

// New creates a moderation service.
func New(cfg Config) (*Service, error) {
	if cfg.Reports == nil || cfg.Users == nil {
		return nil, fmt.Errorf("report: reports and users repositories are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("report")
	}
	return &Service{
		reports:  cfg.Reports,
		users:    cfg.Users,
		events:   cfg.Events,
		notifier: cfg.Notifier,
		now:      cfg.Now,
		log:      cfg.Logger,
	}, nil
}

// File records a report against a user, event or message.
func (s *Service) File(ctx context.Context, reporterID, targetType, targetID, reason string) (*reportsupabase.Report, error) {
	if targetType == reportsupabase.TargetUser && targetID == reporterID {
		return nil, database.Invalidf("cannot report yourself")
	}
	r := &reportsupabase.Report{
		ReporterID: reporterID,
		TargetType: targetType,
		TargetID:   targetID,
		Reason:     strings.TrimSpace(reason),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.reports.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	s.log.WithFields(map[string]any{
		"report_id":   r.ID,
		"target_type": targetType,
		"target_id":   targetID,
	}).Info("report filed")
	return r, nil
}

// Open lists open reports, oldest first.
func (s *Service) Open(ctx context.Context, actorID string) ([]reportsupabase.Report, error) {
	if _, err := user.RequireAdmin(ctx, s.users, actorID); err != nil {
		return nil, err
	}
	reports, err := s.reports.ListByStatus(ctx, reportsupabase.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// Resolve closes an open report as acted upon.
func (s *Service) Resolve(ctx context.Context, actorID, reportID string) error {
	return s.close(ctx, actorID, reportID, reportsupabase.StatusResolved)
}

// Dismiss closes an open report without action.
func (s *Service) Dismiss(ctx context.Context, actorID, reportID string) error {
	return s.close(ctx, actorID, reportID, reportsupabase.StatusDismissed)
}

func (s *Service) close(ctx context.Context, actorID, reportID, status string) error {
	if _, err := user.RequireAdmin(ctx, s.users, actorID); err != nil {
		return err
	}
	r, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("get report: %w", err)
	}
	if r.Status != reportsupabase.StatusOpen {
		return ErrNotOpen
	}
	update := reportsupabase.StatusUpdate{Status: status, ResolvedBy: actorID, ResolvedAt: s.now().UTC()}
	if err := s.reports.UpdateStatus(ctx, reportID, update); err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	s.log.WithFields(map[string]any{"report_id": reportID, "status": status, "actor_id": actorID}).Info("report closed")
	return nil
}

// BanUser bans or unbans a user and tells them about it.
func (s *Service) BanUser(ctx context.Context, actorID, userID string, banned bool) error {
	if _, err := user.RequireAdmin(ctx, s.users, actorID); err != nil {
		return err
	}
	if actorID == userID {
		return database.Invalidf("cannot ban yourself")
	}
	if err := s.users.SetBanned(ctx, userID, banned); err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	s.log.WithFields(map[string]any{"user_id": userID, "banned": banned, "actor_id": actorID}).Info("ban updated")

	if s.notifier == nil {
		return nil
	}
	msg := notification.Message{
		SenderID: actorID,
		Type:     notificationsupabase.TypeModeration,
		Title:    "Your account has been restricted",
		Content:  "An administrator has suspended your account.",
	}
	if !banned {
		msg.Title = "Your account has been restored"
		msg.Content = "An administrator has lifted the suspension on your account."
	}
	if err := s.notifier.Notify(ctx, userID, msg); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("moderation notice not delivered")
	}
	return nil
}

// DeleteEvent removes an event as an admin.
func (s *Service) DeleteEvent(ctx context.Context, actorID, eventID string) error {
	if s.events == nil {
		return fmt.Errorf("report: events service is not configured")
	}
	if _, err := user.RequireAdmin(ctx, s.users, actorID); err != nil {
		return err
	}
	return s.events.Delete(ctx, actorID, eventID)
}
