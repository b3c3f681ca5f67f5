package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licenseboard/internal/activity"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
)

// DashboardService is the slice of the dashboard pipeline the HTTP layer drives.
type DashboardService interface {
	Render(ctx context.Context, view dashboard.ViewState, scope activity.RoleScope) (dashboard.Dashboard, error)
	Licenses(ctx context.Context, view dashboard.ViewState, scope activity.RoleScope) ([]licensedomain.License, error)
	FilterOptions(ctx context.Context, mode dashboard.Mode, scope activity.RoleScope) (dashboard.FilterOptions, error)
	Report(ctx context.Context, view dashboard.ViewState, scope activity.RoleScope) (dashboard.Report, error)
}

func (s *Server) GetDashboard(c *gin.Context) {
	view, err := parseViewState(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.dashboards.Render(c.Request.Context(), view, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetDashboardFilters(c *gin.Context) {
	mode, err := dashboard.ParseMode(c.Query("mode"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	options, err := s.dashboards.FilterOptions(c.Request.Context(), mode, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": options})
}

func (s *Server) DownloadLicenseReport(c *gin.Context) {
	view, err := parseViewState(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.dashboards.Report(c.Request.Context(), view, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(report.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditExport(c, "report.exported", "report", map[string]any{
		"mode":     string(view.Mode),
		"filename": report.Filename,
	})

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(report.Filename))
	c.Data(http.StatusOK, "application/pdf", body)
}

func (s *Server) auditExport(c *gin.Context, action, targetType string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(c.Request.Context(), action, targetType, nil, metadata)
}
