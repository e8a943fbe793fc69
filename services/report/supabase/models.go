// Package supabase provides moderation report table access.
package supabase

import "time"

const tableReports = "reports"

// Target types
const (
	TargetUser    = "user"
	TargetEvent   = "event"
	TargetMessage = "message"
)

// Statuses
const (
	StatusOpen      = "open"
	StatusResolved  = "resolved"
	StatusDismissed = "dismissed"
)

// TargetTypes lists the reportable target types.
var TargetTypes = []string{TargetUser, TargetEvent, TargetMessage}

// Statuses lists every report status.
var Statuses = []string{StatusOpen, StatusResolved, StatusDismissed}

// Report mirrors a reports row.
type Report struct {
	ID         string     `json:"id"`
	ReporterID string     `json:"reporter_id"`
	TargetType string     `json:"target_type"`
	TargetID   string     `json:"target_id"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// StatusUpdate closes a report.
type StatusUpdate struct {
	Status     string    `json:"status"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
}
