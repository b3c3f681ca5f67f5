package activity

import (
	"fmt"
	"time"

	"github.com/smallbiznis/licenseboard/internal/config"
)

// ActiveUserSource defines which activity events make a user active.
type ActiveUserSource interface {
	Name() string
	// ActiveUsersQuery selects a user_id column of users with a qualifying event since the given time.
	ActiveUsersQuery(since time.Time) (string, []any)
}

// SessionLogSource treats deploying or collecting a logger session as activity.
type SessionLogSource struct{}

func (SessionLogSource) Name() string { return config.ActivitySourceSessionLogs }

func (SessionLogSource) ActiveUsersQuery(since time.Time) (string, []any) {
	return `SELECT deployed_by AS user_id FROM logger_sessions
		WHERE deployed_by IS NOT NULL AND created >= ?
		UNION
		SELECT collected_by AS user_id FROM logger_sessions
		WHERE collected_by IS NOT NULL AND last_update >= ?`, []any{since, since}
}

// AppLogSource treats any app or portal log entry as activity.
type AppLogSource struct{}

func (AppLogSource) Name() string { return config.ActivitySourceAppLog }

func (AppLogSource) ActiveUsersQuery(since time.Time) (string, []any) {
	return `SELECT user_id FROM app_log
		WHERE user_id IS NOT NULL AND created_at >= ?
		UNION
		SELECT user_id FROM portal_logs
		WHERE user_id IS NOT NULL AND created_at >= ?`, []any{since, since}
}

// SourceFor maps a configured source name to its strategy.
func SourceFor(name string) (ActiveUserSource, error) {
	switch name {
	case config.ActivitySourceSessionLogs:
		return SessionLogSource{}, nil
	case config.ActivitySourceAppLog:
		return AppLogSource{}, nil
	default:
		return nil, fmt.Errorf("unknown activity source %q", name)
	}
}
