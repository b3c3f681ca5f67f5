package activity

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/entity"
	"github.com/smallbiznis/licenseboard/internal/migration"
	"github.com/smallbiznis/licenseboard/pkg/db"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	acme   = entity.Key{Name: "Acme", Type: entity.TypeCompany}
	globex = entity.Key{Name: "Globex", Type: entity.TypeCompany}
	beta   = entity.Key{Name: "Beta", Type: entity.TypePartner}
)

func seedActivity(t *testing.T, now time.Time) *gorm.DB {
	t.Helper()
	conn := db.NewTest(t)
	require.NoError(t, migration.ApplySQLite(conn))

	days := func(n int) time.Time { return now.Add(-time.Duration(n) * 24 * time.Hour) }
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO partners (id, partner_name, active) VALUES (1, 'Beta', 1)`, nil},
		{`INSERT INTO companies (id, company_name, partner_id, active) VALUES (10, 'Acme', NULL, 1), (11, 'Globex', 1, 1)`, nil},
		{`INSERT INTO users_portal (id, company_id, partner_id, email, active) VALUES
			(100, 10, NULL, 'a@acme.test', 1),
			(101, 10, NULL, 'b@acme.test', 1),
			(102, 11, NULL, 'c@globex.test', 1),
			(103, NULL, 1, 'd@beta.test', 1),
			(104, 10, NULL, 'e@acme.test', 0)`, nil},
		{`INSERT INTO logger_sessions (relay_id, deployed_by, collected_by, created, last_update) VALUES (?, ?, ?, ?, ?)`,
			[]any{"R1", 100, nil, days(2), nil}},
		{`INSERT INTO logger_sessions (relay_id, deployed_by, collected_by, created, last_update) VALUES (?, ?, ?, ?, ?)`,
			[]any{"R1", 101, nil, days(3), nil}},
		{`INSERT INTO logger_sessions (relay_id, deployed_by, collected_by, created, last_update) VALUES (?, ?, ?, ?, ?)`,
			[]any{"R2", nil, 102, days(30), days(1)}},
		{`INSERT INTO logger_sessions (relay_id, deployed_by, collected_by, created, last_update) VALUES (?, ?, ?, ?, ?)`,
			[]any{"R3", 101, nil, days(20), nil}},
		{`INSERT INTO app_log (user_id, action, status, created_at) VALUES (?, 'login', 'ok', ?)`, []any{103, days(1)}},
		{`INSERT INTO app_log (user_id, action, status, created_at) VALUES (?, 'login', 'ok', ?)`, []any{100, days(20)}},
		{`INSERT INTO portal_logs (user_id, action, status, created_at) VALUES (?, 'view', 'ok', ?)`, []any{101, days(5)}},
	}
	for _, stmt := range stmts {
		require.NoError(t, conn.Exec(stmt.sql, stmt.args...).Error)
	}
	return conn
}

func newTestSet(t *testing.T, conn *gorm.DB, source string) Set {
	t.Helper()
	cfg := config.DefaultDashboardConfig()
	cfg.ActivitySource = source
	return NewSet(Params{
		DB:        conn,
		Log:       zaptest.NewLogger(t),
		Dashboard: config.NewStaticDashboardConfigHolder(cfg),
	})
}

func TestPortalUserCounter(t *testing.T) {
	now := clock.NewFakeClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)).Now()
	set := newTestSet(t, seedActivity(t, now), config.ActivitySourceSessionLogs)

	counts := set.PortalUsers.Aggregate(context.Background(), now, AdminScope())
	assert.Equal(t, Counts{acme: 3, globex: 1, beta: 2}, counts)
}

func TestActiveUserCounterSessionLogs(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	set := newTestSet(t, seedActivity(t, now), config.ActivitySourceSessionLogs)

	counts := set.ActiveUsers.Aggregate(context.Background(), now, AdminScope())
	assert.Equal(t, Counts{acme: 2, globex: 1, beta: 1}, counts)
}

func TestActiveUserCounterAppLog(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	set := newTestSet(t, seedActivity(t, now), config.ActivitySourceAppLog)

	counts := set.ActiveUsers.Aggregate(context.Background(), now, AdminScope())
	assert.Equal(t, Counts{acme: 1, beta: 1}, counts)
}

func TestActiveUserWindowFollowsNow(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	set := newTestSet(t, seedActivity(t, fake.Now()), config.ActivitySourceSessionLogs)

	fake.Advance(30 * 24 * time.Hour)
	counts := set.ActiveUsers.Aggregate(context.Background(), fake.Now(), AdminScope())
	assert.Empty(t, counts)
}

func TestActiveRelayDeviceCounterScopes(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	set := newTestSet(t, seedActivity(t, now), config.ActivitySourceSessionLogs)
	ctx := context.Background()

	assert.Equal(t, Counts{acme: 1, globex: 1, beta: 1}, set.ActiveRelayDevices.Aggregate(ctx, now, AdminScope()))
	assert.Equal(t, Counts{acme: 1}, set.ActiveRelayDevices.Aggregate(ctx, now, CompanyScope(10)))
	assert.Equal(t, Counts{globex: 1, beta: 1}, set.ActiveRelayDevices.Aggregate(ctx, now, PartnerScope(1)))
	assert.Empty(t, set.ActiveRelayDevices.Aggregate(ctx, now, RoleScope{Role: ScopeCompany}))
}

func TestPortalUserCounterPartnerScopeIncludesChildCompanies(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	set := newTestSet(t, seedActivity(t, now), config.ActivitySourceSessionLogs)

	counts := set.PortalUsers.Aggregate(context.Background(), now, PartnerScope(1))
	assert.Equal(t, Counts{globex: 1, beta: 2}, counts)
}

func TestAggregatorDegradesToEmptyAndTripsBreaker(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	for i := 0; i < breakerFailureThreshold; i++ {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("table logger_sessions doesn't exist"))
	}

	set := newTestSet(t, conn, config.ActivitySourceSessionLogs)
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < breakerFailureThreshold; i++ {
		counts := set.ActiveRelayDevices.Aggregate(context.Background(), now, AdminScope())
		assert.NotNil(t, counts)
		assert.Empty(t, counts)
	}
	assert.Equal(t, gobreaker.StateOpen, set.ActiveRelayDevices.breaker.State())

	counts := set.ActiveRelayDevices.Aggregate(context.Background(), now, AdminScope())
	assert.Empty(t, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollupCountsItemOncePerOwner(t *testing.T) {
	rows := []attribution{
		{ItemID: "R1", CompanyName: nullString("Acme")},
		{ItemID: "R1", CompanyName: nullString("Acme")},
		{ItemID: "R2", CompanyName: nullString("Globex"), PartnerName: nullString("Beta")},
		{ItemID: "R3", PartnerName: nullString("Beta")},
	}
	assert.Equal(t, Counts{acme: 1, globex: 1, beta: 2}, rollup(rows))
}

func TestSourceFor(t *testing.T) {
	src, err := SourceFor(config.ActivitySourceAppLog)
	require.NoError(t, err)
	assert.Equal(t, config.ActivitySourceAppLog, src.Name())

	_, err = SourceFor("kafka")
	assert.Error(t, err)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}
