package domain

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Source string

const (
	SourcePortal   Source = "portal_logs"
	SourceApp      Source = "app_log"
	SourceWaypoint Source = "waypoint_logs"
)

// Sources lists every log table, in display order.
func Sources() []Source {
	return []Source{SourcePortal, SourceApp, SourceWaypoint}
}

func ParseSource(value string) (Source, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, source := range Sources() {
		if string(source) == value {
			return source, true
		}
	}
	return "", false
}

// Entry is one row of the unified activity log.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	Source      Source    `json:"log_source"`
	UserID      *int64    `json:"user_id,omitempty"`
	UserName    string    `json:"user_name"`
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	CompanyName string    `json:"company_name,omitempty"`
	PartnerName string    `json:"partner_name,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	WaypointID  string    `json:"waypoint_id,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// Query is the repository filter. Start is inclusive and End exclusive.
type Query struct {
	Start     time.Time
	End       time.Time
	UserID    *int64
	CompanyID *int64
	PartnerID *int64
	Limit     int
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type WaypointRank struct {
	WaypointID   string `json:"waypoint_id"`
	WaypointName string `json:"waypoint_name"`
	ActionsToday int    `json:"actions_today"`
}

type SessionActivity struct {
	SessionID string
	At        time.Time
}

type Repository interface {
	ListEntries(ctx context.Context, db *gorm.DB, source Source, q Query) ([]Entry, error)
	ListUsers(ctx context.Context, db *gorm.DB) ([]User, error)
	TopWaypoints(ctx context.Context, db *gorm.DB, start, end time.Time, limit int) ([]WaypointRank, error)
	SessionActivity(ctx context.Context, db *gorm.DB, start, end time.Time) ([]SessionActivity, error)
}
