package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	activitylogdomain "github.com/smallbiznis/licenseboard/internal/activitylog/domain"
	auditdomain "github.com/smallbiznis/licenseboard/internal/audit/domain"
	authdomain "github.com/smallbiznis/licenseboard/internal/auth/domain"
	"github.com/smallbiznis/licenseboard/internal/auth/session"
	"github.com/smallbiznis/licenseboard/internal/authorization"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
	"github.com/smallbiznis/licenseboard/internal/observability"
	obsmiddleware "github.com/smallbiznis/licenseboard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/licenseboard/internal/observability/metrics"
	obstracing "github.com/smallbiznis/licenseboard/internal/observability/tracing"
	referencedomain "github.com/smallbiznis/licenseboard/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const timeLayout = time.RFC3339

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(func(svc *dashboard.Service) DashboardService { return svc }),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics
	KPIRegistry *prometheus.Registry `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware())

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	if p.KPIRegistry != nil {
		gatherers = append(gatherers, p.KPIRegistry)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	dashboardCfg *config.DashboardConfigHolder
	clock        clock.Clock
	authsvc      authdomain.Service
	sessions     *session.Manager
	authzSvc     authorization.Service
	auditSvc     auditdomain.Service
	licenses     licensedomain.Service
	dashboards   DashboardService
	refrepo      referencedomain.Repository
	activityLogs activitylogdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DashboardCfg *config.DashboardConfigHolder
	Clock        clock.Clock
	Authsvc      authdomain.Service
	Sessions     *session.Manager
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	Licenses     licensedomain.Service
	Dashboards   DashboardService
	Refrepo      referencedomain.Repository
	ActivityLogs activitylogdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		dashboardCfg: p.DashboardCfg,
		clock:        p.Clock,
		authsvc:      p.Authsvc,
		sessions:     p.Sessions,
		authzSvc:     p.AuthzSvc,
		auditSvc:     p.AuditSvc,
		licenses:     p.Licenses,
		dashboards:   p.Dashboards,
		refrepo:      p.Refrepo,
		activityLogs: p.ActivityLogs,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Dashboard --------
	api.GET("/dashboard", s.authorize(authorization.ObjectDashboard, authorization.ActionView), s.GetDashboard)
	api.GET("/dashboard/filters", s.authorize(authorization.ObjectDashboard, authorization.ActionView), s.GetDashboardFilters)

	// -------- Licenses --------
	api.GET("/licenses", s.authorize(authorization.ObjectLicense, authorization.ActionView), s.ListLicenses)
	api.GET("/licenses/export.csv", s.authorize(authorization.ObjectLicense, authorization.ActionExport), s.ExportLicensesCSV)
	api.POST("/licenses/import", s.authorize(authorization.ObjectLicense, authorization.ActionImport), s.ImportLicenses)
	api.GET("/licenses/:id", s.authorize(authorization.ObjectLicense, authorization.ActionView), s.GetLicense)
	api.POST("/licenses", s.authorize(authorization.ObjectLicense, authorization.ActionCreate), s.CreateLicense)
	api.PATCH("/licenses/:id", s.authorize(authorization.ObjectLicense, authorization.ActionUpdate), s.UpdateLicense)
	api.DELETE("/licenses/:id", s.authorize(authorization.ObjectLicense, authorization.ActionDelete), s.DeleteLicense)

	// -------- Reports --------
	api.GET("/reports/licenses.pdf", s.authorize(authorization.ObjectReport, authorization.ActionExport), s.DownloadLicenseReport)

	// -------- Reference --------
	reference := api.Group("/reference", s.authorize(authorization.ObjectReference, authorization.ActionView))
	{
		reference.GET("/companies", s.ListCompanies)
		reference.GET("/partners", s.ListPartners)
		reference.GET("/product-codes", s.ListProductCodes)
		reference.GET("/currencies", s.ListCurrencies)
	}

	// -------- Activity logs --------
	logs := api.Group("/logs", s.authorize(authorization.ObjectActivityLog, authorization.ActionView))
	{
		logs.GET("", s.ListActivityLogs)
		logs.GET("/filters", s.GetActivityLogFilters)
		logs.GET("/summary", s.GetActivityLogSummary)
		logs.GET("/top", s.GetActivityLogTopToday)
	}

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}
