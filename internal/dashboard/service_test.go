package dashboard

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/smallbiznis/licenseboard/internal/activity"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/config"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
	"github.com/smallbiznis/licenseboard/internal/migration"
	"github.com/smallbiznis/licenseboard/internal/providers/pdf"
	"github.com/smallbiznis/licenseboard/internal/reference"
	"github.com/smallbiznis/licenseboard/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type stubLicenses struct {
	licensedomain.Service
	items    []licensedomain.License
	requests []licensedomain.ListLicenseRequest
}

func (s *stubLicenses) List(_ context.Context, req licensedomain.ListLicenseRequest) ([]licensedomain.License, error) {
	s.requests = append(s.requests, req)
	return s.items, nil
}

type recordingSink struct {
	seen []Dashboard
}

func (s *recordingSink) Observe(_ context.Context, d Dashboard) {
	s.seen = append(s.seen, d)
}

func seedDashboardDB(t *testing.T, now time.Time) *gorm.DB {
	t.Helper()
	conn := db.NewTest(t)
	require.NoError(t, migration.ApplySQLite(conn))

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO partners (id, partner_name, active) VALUES (1, 'Beta', 1)`, nil},
		{`INSERT INTO companies (id, company_name, partner_id, active) VALUES (10, 'Acme', NULL, 1), (11, 'Globex', 1, 1)`, nil},
		{`INSERT INTO users_portal (id, company_id, partner_id, email, active) VALUES
			(100, 10, NULL, 'a@acme.test', 1),
			(101, 10, NULL, 'b@acme.test', 1),
			(102, 11, NULL, 'c@globex.test', 1)`, nil},
		{`INSERT INTO logger_sessions (relay_id, deployed_by, collected_by, created, last_update) VALUES (?, ?, ?, ?, ?)`,
			[]any{"R1", 100, nil, now.Add(-48 * time.Hour), nil}},
		{`INSERT INTO logger_sessions (relay_id, deployed_by, collected_by, created, last_update) VALUES (?, ?, ?, ?, ?)`,
			[]any{"R2", 101, nil, now.Add(-72 * time.Hour), nil}},
	}
	for _, stmt := range stmts {
		require.NoError(t, conn.Exec(stmt.sql, stmt.args...).Error)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, now time.Time, licenses *stubLicenses, sink KPISink) *Service {
	t.Helper()
	holder := config.NewStaticDashboardConfigHolder(config.DefaultDashboardConfig())
	log := zaptest.NewLogger(t)
	return NewService(Params{
		Log:       log,
		Clock:     clock.NewFakeClock(now),
		Dashboard: holder,
		Licenses:  licenses,
		Reference: reference.NewRepository(conn),
		Activity:  activity.NewSet(activity.Params{DB: conn, Log: log, Dashboard: holder}),
		PDF:       pdf.New(),
		Sink:      sink,
	})
}

func scopedLicense(id int64, companyID, partnerID int64, company, partner, code string, count int) licensedomain.License {
	item := license(id, company, partner, code, count, "10", "USD")
	item.CompanyID, item.PartnerID = nil, nil
	if companyID != 0 {
		item.CompanyID = ptr(companyID)
	}
	if partnerID != 0 {
		item.PartnerID = ptr(partnerID)
	}
	return item
}

func TestRenderMergesLiveActivity(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	conn := seedDashboardDB(t, now)
	licenses := &stubLicenses{items: []licensedomain.License{
		scopedLicense(1, 10, 0, "Acme", "", "REL", 4),
		scopedLicense(2, 11, 0, "Globex", "", "SUB", 10),
		scopedLicense(3, 0, 0, "", "", "SUB", 1),
	}}
	sink := &recordingSink{}
	svc := newTestService(t, conn, now, licenses, sink)

	view := DefaultViewState()
	view.Mode = ModeRelay
	got, err := svc.Render(context.Background(), view, activity.AdminScope())
	require.NoError(t, err)

	require.Len(t, got.Rows, 1)
	row := got.Rows[0]
	assert.Equal(t, "Acme", row.Entity.Name)
	assert.Equal(t, 2, row.PortalUserCount)
	assert.Equal(t, 2, row.ActiveRelayDeviceCount)
	assert.Equal(t, 50.0, row.ActiveUtilizationPct)
	require.Len(t, got.Excluded, 1)
	assert.Equal(t, "admin", got.Scope)
	require.Len(t, sink.seen, 1)

	require.Len(t, licenses.requests, 1)
	from := licenses.requests[0].StartFrom
	require.NotNil(t, from)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *from)
	assert.Nil(t, licenses.requests[0].StartTo)
}

func TestAggregateKeepsSetOrder(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	conn := seedDashboardDB(t, now)
	svc := newTestService(t, conn, now, &stubLicenses{}, nil)

	for i := 0; i < 5; i++ {
		results := svc.aggregate(context.Background(), now, activity.AdminScope())
		require.Len(t, results, 3)
		assert.Equal(t, activity.KindPortalUsers, results[0].Kind)
		assert.Equal(t, activity.KindActiveUsers, results[1].Kind)
		assert.Equal(t, activity.KindActiveRelayDevices, results[2].Kind)
	}
}

func TestRenderRejectsInvertedRange(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, seedDashboardDB(t, now), now, &stubLicenses{}, nil)

	view := DefaultViewState()
	view.StartDate = ptr(date("2025-03-01"))
	view.EndDate = ptr(date("2025-02-01"))
	_, err := svc.Render(context.Background(), view, activity.AdminScope())
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestRenderLoadsRequestedCalendarDays(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	conn := seedDashboardDB(t, now)
	licenses := &stubLicenses{items: []licensedomain.License{scopedLicense(1, 10, 0, "Acme", "", "SUB", 4)}}
	licenses.items[0].StartDate = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	svc := newTestService(t, conn, now, licenses, nil)

	tz := time.FixedZone("UTC+2", 2*60*60)
	view := DefaultViewState()
	view.StartDate = ptr(time.Date(2025, 3, 1, 0, 30, 0, 0, tz))
	view.EndDate = ptr(time.Date(2025, 3, 15, 0, 30, 0, 0, tz))

	got, err := svc.Render(context.Background(), view, activity.AdminScope())
	require.NoError(t, err)
	assert.Len(t, got.Rows, 1)

	require.Len(t, licenses.requests, 1)
	req := licenses.requests[0]
	require.NotNil(t, req.StartFrom)
	require.NotNil(t, req.StartTo)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *req.StartFrom)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), *req.StartTo)
}

func TestRenderScopesLicenses(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	conn := seedDashboardDB(t, now)
	licenses := &stubLicenses{items: []licensedomain.License{
		scopedLicense(1, 10, 0, "Acme", "", "SUB", 4),
		scopedLicense(2, 11, 0, "Globex", "", "SUB", 10),
		scopedLicense(3, 0, 1, "", "Beta", "SUB", 10),
	}}
	svc := newTestService(t, conn, now, licenses, nil)

	got, err := svc.Render(context.Background(), DefaultViewState(), activity.CompanyScope(10))
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "Acme", got.Rows[0].Entity.Name)

	got, err = svc.Render(context.Background(), DefaultViewState(), activity.PartnerScope(1))
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "Globex", got.Rows[0].Entity.Name)
	assert.Equal(t, 1, got.Rows[0].PortalUserCount)
	assert.Equal(t, "Beta", got.Rows[1].Entity.Name)
	assert.Equal(t, 1, got.Rows[1].PortalUserCount)

	got, err = svc.Render(context.Background(), DefaultViewState(), activity.RoleScope{Role: activity.ScopeCompany})
	require.NoError(t, err)
	assert.Empty(t, got.Rows)
}

func TestFilterOptionsFollowMode(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	licenses := &stubLicenses{items: []licensedomain.License{
		scopedLicense(1, 10, 0, "Acme", "", "REL", 4),
		scopedLicense(2, 11, 0, "Globex", "", "SUB", 10),
	}}
	svc := newTestService(t, seedDashboardDB(t, now), now, licenses, nil)

	options, err := svc.FilterOptions(context.Background(), ModeUser, activity.AdminScope())
	require.NoError(t, err)
	assert.Equal(t, []string{"Globex (Company)"}, options.Entities)
	assert.Equal(t, []string{"SUB"}, options.ProductCodes)
	assert.Equal(t, []string{"Active"}, options.Statuses)
	assert.Equal(t, []string{"USD"}, options.Currencies)
}

func TestLicensesReturnsFilteredRecords(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	licenses := &stubLicenses{items: []licensedomain.License{
		scopedLicense(1, 10, 0, "Acme", "", "REL", 4),
		scopedLicense(2, 11, 0, "Globex", "", "SUB", 10),
	}}
	svc := newTestService(t, seedDashboardDB(t, now), now, licenses, nil)

	view := DefaultViewState()
	view.Mode = ModeRelay
	got, err := svc.Licenses(context.Background(), view, activity.AdminScope())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].CompanyName)
}

func TestReportRendersPDF(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	licenses := &stubLicenses{items: []licensedomain.License{
		scopedLicense(1, 10, 0, "Acme", "", "REL", 4),
	}}
	svc := newTestService(t, seedDashboardDB(t, now), now, licenses, nil)

	view := DefaultViewState()
	view.Mode = ModeRelay
	report, err := svc.Report(context.Background(), view, activity.AdminScope())
	require.NoError(t, err)
	assert.Equal(t, "relay-license-utilization-report-2025-03-15.pdf", report.Filename)

	body, err := io.ReadAll(report.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
}
