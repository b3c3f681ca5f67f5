package server

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/licenseboard/internal/activity"
	activitylogdomain "github.com/smallbiznis/licenseboard/internal/activitylog/domain"
	auditdomain "github.com/smallbiznis/licenseboard/internal/audit/domain"
	authdomain "github.com/smallbiznis/licenseboard/internal/auth/domain"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
	referencedomain "github.com/smallbiznis/licenseboard/internal/reference/domain"
)

var testNow = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

type fakeAuthService struct {
	principals map[string]authdomain.Principal
	loginCalls int
}

func newFakeAuthService() *fakeAuthService {
	admin := authdomain.Principal{
		Username:    "admin",
		DisplayName: "Administrator",
		Role:        authdomain.RoleAdmin,
		Permissions: authdomain.RolePermissions[authdomain.RoleAdmin],
		ExpiresAt:   testNow.Add(8 * time.Hour),
	}
	viewer := authdomain.Principal{
		Username:    "viewer",
		DisplayName: "Viewer",
		Role:        authdomain.RoleViewer,
		Permissions: authdomain.RolePermissions[authdomain.RoleViewer],
		ExpiresAt:   testNow.Add(8 * time.Hour),
	}
	acme := viewer
	acme.Username = "acme"
	acme.CompanyID = int64Ptr(10)

	return &fakeAuthService{principals: map[string]authdomain.Principal{
		"admin-token":  admin,
		"viewer-token": viewer,
		"acme-token":   acme,
	}}
}

func (f *fakeAuthService) Login(_ context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	f.loginCalls++
	if req.Username != "admin" || req.Password != "admin123" {
		return nil, authdomain.ErrInvalidCredentials
	}
	return &authdomain.LoginResult{
		Principal: f.principals["admin-token"],
		RawToken:  "admin-token",
		ExpiresAt: testNow.Add(8 * time.Hour),
	}, nil
}

func (f *fakeAuthService) Logout(context.Context, string) error { return nil }

func (f *fakeAuthService) Authenticate(_ context.Context, rawToken string) (*authdomain.Principal, error) {
	principal, ok := f.principals[rawToken]
	if !ok {
		return nil, authdomain.ErrInvalidSession
	}
	return &principal, nil
}

func (f *fakeAuthService) CurrentUser(ctx context.Context) (*authdomain.Principal, error) {
	principal, ok := authdomain.PrincipalFromContext(ctx)
	if !ok {
		return nil, authdomain.ErrUnauthenticated
	}
	return &principal, nil
}

type fakeDashboards struct {
	mu        sync.Mutex
	lastView  dashboard.ViewState
	lastScope activity.RoleScope
	licenses  []licensedomain.License
	reportErr error
}

func (f *fakeDashboards) record(view dashboard.ViewState, scope activity.RoleScope) {
	f.mu.Lock()
	f.lastView, f.lastScope = view, scope
	f.mu.Unlock()
}

func (f *fakeDashboards) Render(_ context.Context, view dashboard.ViewState, scope activity.RoleScope) (dashboard.Dashboard, error) {
	f.record(view, scope)
	return dashboard.Dashboard{GeneratedAt: testNow, Scope: scope.String(), View: view}, nil
}

func (f *fakeDashboards) Licenses(_ context.Context, view dashboard.ViewState, scope activity.RoleScope) ([]licensedomain.License, error) {
	f.record(view, scope)
	return f.licenses, nil
}

func (f *fakeDashboards) FilterOptions(_ context.Context, mode dashboard.Mode, scope activity.RoleScope) (dashboard.FilterOptions, error) {
	f.record(dashboard.ViewState{Mode: mode}, scope)
	return dashboard.FilterOptions{Entities: []string{"Acme"}}, nil
}

func (f *fakeDashboards) Report(_ context.Context, view dashboard.ViewState, scope activity.RoleScope) (dashboard.Report, error) {
	f.record(view, scope)
	if f.reportErr != nil {
		return dashboard.Report{}, f.reportErr
	}
	return dashboard.Report{Filename: "license-utilization-report-2025-03-15.pdf", Body: strings.NewReader("%PDF-1.4")}, nil
}

type fakeLicenses struct {
	licensedomain.Service

	stored    map[string]licensedomain.License
	updateErr error
	imported  string
	deleted   []string
}

func newFakeLicenses() *fakeLicenses {
	return &fakeLicenses{stored: map[string]licensedomain.License{
		"1": {ID: snowflake.ID(1), CompanyID: int64Ptr(10), CompanyName: "Acme", ProductCode: "REL", NumberOfLicenses: 4, CostPerLicense: decimal.NewFromInt(10), Currency: "USD", Status: licensedomain.StatusActive},
		"2": {ID: snowflake.ID(2), CompanyID: int64Ptr(11), CompanyName: "Globex", ProductCode: "SUB", NumberOfLicenses: 2, CostPerLicense: decimal.NewFromInt(5), Currency: "EUR", Status: licensedomain.StatusActive},
	}}
}

func (f *fakeLicenses) Get(_ context.Context, id string) (licensedomain.License, error) {
	license, ok := f.stored[id]
	if !ok {
		return licensedomain.License{}, licensedomain.ErrNotFound
	}
	return license, nil
}

func (f *fakeLicenses) Create(_ context.Context, req licensedomain.CreateLicenseRequest) (licensedomain.License, error) {
	if (req.CompanyID == nil) == (req.PartnerID == nil) {
		return licensedomain.License{}, licensedomain.ErrInvalidOwner
	}
	return licensedomain.License{ID: snowflake.ID(3), CompanyID: req.CompanyID, PartnerID: req.PartnerID, ProductCode: req.ProductCode}, nil
}

func (f *fakeLicenses) Update(_ context.Context, id string, _ licensedomain.UpdateLicenseRequest) (licensedomain.License, error) {
	if f.updateErr != nil {
		return licensedomain.License{}, f.updateErr
	}
	return f.Get(context.Background(), id)
}

func (f *fakeLicenses) Delete(_ context.Context, id string) error {
	if _, ok := f.stored[id]; !ok {
		return licensedomain.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeLicenses) Import(_ context.Context, r io.Reader) (licensedomain.ImportResult, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return licensedomain.ImportResult{}, err
	}
	f.imported = string(body)
	return licensedomain.ImportResult{BatchID: "batch-1", SuccessCount: 1}, nil
}

func (f *fakeLicenses) ExportCSV(_ context.Context, w io.Writer, licenses []licensedomain.License) error {
	if _, err := io.WriteString(w, "license_id,company\n"); err != nil {
		return err
	}
	for _, license := range licenses {
		if _, err := io.WriteString(w, license.ID.String()+","+license.CompanyName+"\n"); err != nil {
			return err
		}
	}
	return nil
}

type fakeReference struct {
	referencedomain.Repository
}

func (fakeReference) ListActiveCompanies(context.Context) ([]referencedomain.Company, error) {
	return []referencedomain.Company{
		{ID: 10, Name: "Acme"},
		{ID: 11, Name: "Globex", PartnerID: int64Ptr(1)},
	}, nil
}

func (fakeReference) ListActivePartners(context.Context) ([]referencedomain.Partner, error) {
	return []referencedomain.Partner{{ID: 1, Name: "Beta"}}, nil
}

func (fakeReference) GetCompany(_ context.Context, id int64) (*referencedomain.Company, error) {
	if id == 11 {
		return &referencedomain.Company{ID: 11, Name: "Globex", PartnerID: int64Ptr(1)}, nil
	}
	return &referencedomain.Company{ID: id}, nil
}

type fakeActivityLogs struct {
	activitylogdomain.Service
	lastReq activitylogdomain.UnifiedLogsRequest
}

func (f *fakeActivityLogs) UnifiedLogs(_ context.Context, req activitylogdomain.UnifiedLogsRequest) ([]activitylogdomain.Entry, error) {
	f.lastReq = req
	return []activitylogdomain.Entry{}, nil
}

func (f *fakeActivityLogs) Filters(context.Context) (activitylogdomain.FilterOptions, error) {
	return activitylogdomain.FilterOptions{
		Users:     []activitylogdomain.User{{ID: 100, Name: "Ada"}},
		Companies: []activitylogdomain.NamedOption{{ID: 10, Name: "Acme"}, {ID: 11, Name: "Globex"}},
		Partners:  []activitylogdomain.NamedOption{{ID: 1, Name: "Beta"}},
		LogTypes:  activitylogdomain.Sources(),
	}, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) AuditLog(_ context.Context, action string, _ string, _ *string, _ map[string]any) error {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	r.mu.Unlock()
	return nil
}

func (r *recordingAudit) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{}}, nil
}

func (r *recordingAudit) has(action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, candidate := range r.actions {
		if candidate == action {
			return true
		}
	}
	return false
}
