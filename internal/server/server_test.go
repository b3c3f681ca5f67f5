package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licenseboard/internal/activity"
	"github.com/smallbiznis/licenseboard/internal/auth/session"
	"github.com/smallbiznis/licenseboard/internal/authorization"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	engine     *gin.Engine
	auth       *fakeAuthService
	dashboards *fakeDashboards
	licenses   *fakeLicenses
	logs       *fakeActivityLogs
	audit      *recordingAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	sessions, err := session.NewManager(config.Config{AuthSecret: "test-secret"}, log)
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(nil)
	require.NoError(t, err)

	env := &testEnv{
		engine:     gin.New(),
		auth:       newFakeAuthService(),
		dashboards: &fakeDashboards{},
		licenses:   newFakeLicenses(),
		logs:       &fakeActivityLogs{},
		audit:      &recordingAudit{},
	}
	env.engine.Use(ErrorHandlingMiddleware())
	env.dashboards.licenses = []licensedomain.License{env.licenses.stored["1"]}

	NewServer(ServerParams{
		Gin:          env.engine,
		DashboardCfg: config.NewStaticDashboardConfigHolder(config.DefaultDashboardConfig()),
		Clock:        clock.NewFakeClock(testNow),
		Authsvc:      env.auth,
		Sessions:     sessions,
		AuthzSvc:     authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		AuditSvc:     env.audit,
		Licenses:     env.licenses,
		Dashboards:   env.dashboards,
		Refrepo:      fakeReference{},
		ActivityLogs: env.logs,
	})
	return env
}

func (e *testEnv) do(method, target, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(target, token string) *httptest.ResponseRecorder {
	return e.do(http.MethodGet, target, token, nil, "")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestAPIRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	rec = env.get("/api/dashboard", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardParsesViewState(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/dashboard?mode=relay&entity=Acme,Globex&status=&start=2025-01-01", "viewer-token")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := env.dashboards.lastView
	assert.Equal(t, dashboard.ModeRelay, view.Mode)
	assert.Equal(t, []string{"Acme", "Globex"}, view.Entities.Values)
	assert.False(t, view.Statuses.All)
	assert.Empty(t, view.Statuses.Values)
	assert.True(t, view.Currencies.All)
	require.NotNil(t, view.StartDate)
	assert.Equal(t, "2025-01-01", view.StartDate.Format(dateOnlyLayout))
	assert.Nil(t, view.EndDate)
	assert.Equal(t, activity.AdminScope(), env.dashboards.lastScope)
}

func TestDashboardRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/dashboard?mode=bogus", "viewer-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_mode", decodeError(t, rec).Errors[0].Code)

	rec = env.get("/api/dashboard?start=2025-03-01&end=2025-02-01", "viewer-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date_range", decodeError(t, rec).Errors[0].Code)

	rec = env.get("/api/dashboard?start=yesterday", "viewer-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_start", decodeError(t, rec).Errors[0].Code)
}

func TestCompanyViewerIsScoped(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/dashboard/filters?mode=user", "acme-token")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.dashboards.lastScope.CompanyID)
	assert.Equal(t, activity.ScopeCompany, env.dashboards.lastScope.Role)
	assert.Equal(t, int64(10), *env.dashboards.lastScope.CompanyID)

	assert.Equal(t, http.StatusOK, env.get("/api/licenses/1", "acme-token").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/api/licenses/2", "acme-token").Code)
	assert.Equal(t, http.StatusOK, env.get("/api/licenses/2", "viewer-token").Code)

	rec = env.get("/api/reference/companies", "acme-token")
	require.Equal(t, http.StatusOK, rec.Code)
	var companies struct {
		Data []struct{ ID int64 } `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &companies))
	require.Len(t, companies.Data, 1)
	assert.Equal(t, int64(10), companies.Data[0].ID)
}

func TestViewerCannotMutateLicenses(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"company_id":10,"product_code":"REL","start_date":"2025-01-01","end_date":"2025-12-31","number_of_licenses":5,"cost_per_license":"10","currency":"USD","status":"Active"}`)

	rec := env.do(http.MethodPost, "/api/licenses", "viewer-token", body, "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/api/licenses/1", "viewer-token", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.licenses.deleted)
}

func TestAdminLicenseLifecycle(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"company_id":10,"product_code":"REL","number_of_licenses":5,"cost_per_license":"10","currency":"USD","status":"Active"}`)

	rec := env.do(http.MethodPost, "/api/licenses", "admin-token", body, "application/json")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/licenses", "admin-token", []byte(`{"product_code":"REL"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "owner", decodeError(t, rec).Errors[0].Field)

	env.licenses.updateErr = licensedomain.ErrConflict
	rec = env.do(http.MethodPatch, "/api/licenses/1", "admin-token", []byte(`{"number_of_licenses":6}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodDelete, "/api/licenses/1", "admin-token", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"1"}, env.licenses.deleted)

	rec = env.do(http.MethodDelete, "/api/licenses/99", "admin-token", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportLicenses(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "licenses.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("company,product_code\nAcme,REL\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rec := env.do(http.MethodPost, "/api/licenses/import", "admin-token", buf.Bytes(), writer.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, env.licenses.imported, "Acme,REL")

	rec = env.do(http.MethodPost, "/api/licenses/import", "admin-token", nil, "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file", decodeError(t, rec).Errors[0].Field)
}

func TestExportLicensesCSV(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/licenses/export.csv?mode=relay", "viewer-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "licenses-2025-03-15.csv")
	assert.Contains(t, rec.Body.String(), "1,Acme")
	assert.True(t, env.audit.has("license.exported"))
}

func TestLicenseReport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/reports/licenses.pdf", "viewer-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
	assert.True(t, env.audit.has("report.exported"))

	env.dashboards.reportErr = dashboard.ErrReportUnavailable
	rec = env.get("/api/reports/licenses.pdf", "viewer-token")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestActivityLogsForceScope(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/logs?company_id=11&log_type=app_log&limit=20", "acme-token")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, env.logs.lastReq.CompanyID)
	assert.Equal(t, int64(10), *env.logs.lastReq.CompanyID)
	require.NotNil(t, env.logs.lastReq.Source)
	assert.Equal(t, 20, env.logs.lastReq.Limit)

	rec = env.get("/api/logs?log_type=syslog", "viewer-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_log_type", decodeError(t, rec).Errors[0].Code)

	rec = env.get("/api/logs/filters", "acme-token")
	require.Equal(t, http.StatusOK, rec.Code)
	var filters struct {
		Data struct {
			Users     []any `json:"users"`
			Companies []any `json:"companies"`
			Partners  []any `json:"partners"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filters))
	assert.Empty(t, filters.Data.Users)
	assert.Len(t, filters.Data.Companies, 1)
	assert.Empty(t, filters.Data.Partners)
}

func TestAuditLogsAreAdminOnly(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusForbidden, env.get("/api/audit-logs", "viewer-token").Code)
	assert.Equal(t, http.StatusOK, env.get("/api/audit-logs", "admin-token").Code)
	assert.Equal(t, http.StatusBadRequest, env.get("/api/audit-logs?start_at=nope", "admin-token").Code)
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/auth/login", "", []byte(`{"username":"admin","password":"wrong"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, env.audit.has("auth.login_failed"))

	rec = env.do(http.MethodPost, "/auth/login", "", []byte(`{"username":"admin","password":"admin123"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := rec.Result().Cookies()
	require.NotEmpty(t, cookie)
	assert.Equal(t, session.DefaultCookieName, cookie[0].Name)
	assert.True(t, cookie[0].HttpOnly)

	rec = env.get("/auth/me", cookie[0].Value)
	require.Equal(t, http.StatusOK, rec.Code)
	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "Administrator", me.DisplayName)
	assert.True(t, me.CanEdit)

	rec = env.do(http.MethodPost, "/auth/logout", cookie[0].Value, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
