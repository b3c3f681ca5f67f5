package domain

import (
	"context"
	"errors"
	"time"
)

// UnifiedLogsRequest filters the unified log view. Dates are whole days, both inclusive.
// A nil Source reads every log table.
type UnifiedLogsRequest struct {
	StartDate *time.Time
	EndDate   *time.Time
	UserID    *int64
	CompanyID *int64
	PartnerID *int64
	Source    *Source
	Limit     int
}

type NamedOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type FilterOptions struct {
	Users     []User        `json:"users"`
	Companies []NamedOption `json:"companies"`
	Partners  []NamedOption `json:"partners"`
	LogTypes  []Source      `json:"log_types"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"activity_count"`
}

type Summary struct {
	TotalLogs   int            `json:"total_logs"`
	UniqueUsers int            `json:"unique_users"`
	BySource    map[Source]int `json:"by_source"`
	Timeline    []DailyCount   `json:"timeline"`
}

type SessionRank struct {
	SessionID     string    `json:"session_id"`
	ActivityCount int       `json:"activity_count"`
	FirstActivity time.Time `json:"first_activity"`
	LastActivity  time.Time `json:"last_activity"`
}

type TopToday struct {
	Waypoints []WaypointRank `json:"waypoints"`
	Sessions  []SessionRank  `json:"sessions"`
}

type Service interface {
	UnifiedLogs(ctx context.Context, req UnifiedLogsRequest) ([]Entry, error)
	Filters(ctx context.Context) (FilterOptions, error)
	Summary(ctx context.Context, req UnifiedLogsRequest) (Summary, error)
	TopWaypointsToday(ctx context.Context) ([]WaypointRank, error)
	TopSessionsToday(ctx context.Context) ([]SessionRank, error)
}

var (
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrInvalidLogType   = errors.New("invalid_log_type")
)
