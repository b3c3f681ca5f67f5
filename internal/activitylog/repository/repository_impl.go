package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/licenseboard/internal/activitylog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type entryRow struct {
	LoggedAt    time.Time      `gorm:"column:logged_at"`
	UserID      sql.NullInt64  `gorm:"column:user_id"`
	FirstName   sql.NullString `gorm:"column:first_name"`
	LastName    sql.NullString `gorm:"column:last_name"`
	Email       sql.NullString `gorm:"column:email"`
	Action      string         `gorm:"column:action"`
	Status      string         `gorm:"column:status"`
	CompanyName sql.NullString `gorm:"column:company_name"`
	PartnerName sql.NullString `gorm:"column:partner_name"`
	SessionID   sql.NullString `gorm:"column:session_id"`
	WaypointID  sql.NullString `gorm:"column:waypoint_id"`
	Notes       sql.NullString `gorm:"column:notes"`
}

// extraColumns are the per-table columns beyond the shared shape.
var extraColumns = map[domain.Source]string{
	domain.SourcePortal:   "NULL AS session_id, NULL AS waypoint_id",
	domain.SourceApp:      "l.session_id AS session_id, NULL AS waypoint_id",
	domain.SourceWaypoint: "NULL AS session_id, l.waypoint_id AS waypoint_id",
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, source domain.Source, q domain.Query) ([]domain.Entry, error) {
	extra, ok := extraColumns[source]
	if !ok {
		return nil, fmt.Errorf("unknown log source %q", source)
	}

	var b strings.Builder
	b.WriteString(`SELECT l.created_at AS logged_at, l.user_id, u.first_name, u.last_name, u.email,
		l.action, l.status, c.company_name, p.partner_name, l.notes, `)
	b.WriteString(extra)
	b.WriteString(`
	FROM ` + string(source) + ` l
	LEFT JOIN users_portal u ON u.id = l.user_id
	LEFT JOIN companies c ON c.id = u.company_id
	LEFT JOIN partners p ON p.id = COALESCE(u.partner_id, c.partner_id)
	WHERE l.created_at >= ? AND l.created_at < ?`)
	args := []any{q.Start.UTC(), q.End.UTC()}

	if q.UserID != nil {
		b.WriteString(" AND l.user_id = ?")
		args = append(args, *q.UserID)
	}
	if q.CompanyID != nil {
		b.WriteString(" AND u.company_id = ?")
		args = append(args, *q.CompanyID)
	}
	if q.PartnerID != nil {
		b.WriteString(" AND COALESCE(u.partner_id, c.partner_id) = ?")
		args = append(args, *q.PartnerID)
	}
	b.WriteString(" ORDER BY l.created_at DESC, l.id DESC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	var rows []entryRow
	if err := db.WithContext(ctx).Raw(b.String(), args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]domain.Entry, 0, len(rows))
	for _, row := range rows {
		entry := domain.Entry{
			Timestamp:   row.LoggedAt.UTC(),
			Source:      source,
			UserName:    displayName(row),
			Action:      row.Action,
			Status:      row.Status,
			CompanyName: row.CompanyName.String,
			PartnerName: row.PartnerName.String,
			SessionID:   row.SessionID.String,
			WaypointID:  row.WaypointID.String,
			Notes:       row.Notes.String,
		}
		if row.UserID.Valid {
			id := row.UserID.Int64
			entry.UserID = &id
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *repo) ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var rows []struct {
		ID        int64
		FirstName string
		LastName  string
		Email     string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, first_name, last_name, email
		FROM users_portal
		WHERE active = ?
		ORDER BY first_name ASC, last_name ASC, id ASC`,
		true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, domain.User{
			ID:    row.ID,
			Name:  fullName(row.FirstName, row.LastName, row.Email, row.ID),
			Email: row.Email,
		})
	}
	return users, nil
}

func (r *repo) TopWaypoints(ctx context.Context, db *gorm.DB, start, end time.Time, limit int) ([]domain.WaypointRank, error) {
	var rows []domain.WaypointRank
	err := db.WithContext(ctx).Raw(
		`SELECT waypoint_id, MAX(waypoint_name) AS waypoint_name, COUNT(*) AS actions_today
		FROM waypoint_logs
		WHERE created_at >= ? AND created_at < ?
		GROUP BY waypoint_id
		ORDER BY actions_today DESC, waypoint_id ASC
		LIMIT ?`,
		start.UTC(), end.UTC(), limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) SessionActivity(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.SessionActivity, error) {
	var rows []struct {
		SessionID string    `gorm:"column:session_id"`
		CreatedAt time.Time `gorm:"column:created_at"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT session_id, created_at
		FROM app_log
		WHERE created_at >= ? AND created_at < ?
			AND session_id IS NOT NULL AND session_id <> ''`,
		start.UTC(), end.UTC(),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.SessionActivity, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.SessionActivity{SessionID: row.SessionID, At: row.CreatedAt.UTC()})
	}
	return out, nil
}

func displayName(row entryRow) string {
	if !row.UserID.Valid {
		return ""
	}
	return fullName(row.FirstName.String, row.LastName.String, row.Email.String, row.UserID.Int64)
}

func fullName(first, last, email string, id int64) string {
	if name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last)); name != "" {
		return name
	}
	if email = strings.TrimSpace(email); email != "" {
		return email
	}
	return fmt.Sprintf("user %d", id)
}
