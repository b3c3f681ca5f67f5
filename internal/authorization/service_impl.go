package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/licenseboard/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer persists policies through gorm-adapter when db is set and keeps them in
// memory otherwise. The built-in policies are always (re)seeded.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if db != nil {
		adapter, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, err
		}
		if enforcer, err = casbin.NewSyncedEnforcer(m, adapter); err != nil {
			return nil, err
		}
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	} else if enforcer, err = casbin.NewSyncedEnforcer(m); err != nil {
		return nil, err
	}

	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject string, role string, object string, action string) error {
	subject = strings.TrimSpace(subject)
	role = strings.ToLower(strings.TrimSpace(role))
	if subject == "" || role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if err := s.ensureGrouping(subject, roleName(role)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, subject, role, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping binds subject to exactly one role, replacing a stale binding.
func (s *ServiceImpl) ensureGrouping(subject string, role string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == role {
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, subject string, role string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := fmt.Sprintf("%s.%s", object, action)
	if err := s.auditSvc.AuditLog(ctx, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"role":    role,
		"subject": subject,
	}); err != nil {
		s.log.Warn("failed to audit denied request", zap.Error(err))
	}
}

func roleName(role string) string {
	return "role:" + role
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer permissions (view, export)
		{"role:viewer", ObjectDashboard, ActionView},
		{"role:viewer", ObjectLicense, ActionView},
		{"role:viewer", ObjectReference, ActionView},
		{"role:viewer", ObjectActivityLog, ActionView},
		{"role:viewer", ObjectLicense, ActionExport},
		{"role:viewer", ObjectReport, ActionExport},

		// Admin permissions (view, edit, delete, export)
		{"role:admin", ObjectDashboard, ActionView},
		{"role:admin", ObjectLicense, ActionView},
		{"role:admin", ObjectReference, ActionView},
		{"role:admin", ObjectActivityLog, ActionView},
		{"role:admin", ObjectAuditLog, ActionView},
		{"role:admin", ObjectLicense, ActionCreate},
		{"role:admin", ObjectLicense, ActionUpdate},
		{"role:admin", ObjectLicense, ActionImport},
		{"role:admin", ObjectLicense, ActionDelete},
		{"role:admin", ObjectLicense, ActionExport},
		{"role:admin", ObjectReport, ActionExport},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
