// Package domain contains core types for the auth gate.
package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

type Permission string

const (
	PermissionView   Permission = "view"
	PermissionEdit   Permission = "edit"
	PermissionDelete Permission = "delete"
	PermissionExport Permission = "export"
)

// RolePermissions is the permission set granted to each role.
var RolePermissions = map[Role][]Permission{
	RoleAdmin:  {PermissionView, PermissionEdit, PermissionDelete, PermissionExport},
	RoleViewer: {PermissionView, PermissionExport},
}

// Account is an env-configured login.
type Account struct {
	Username     string
	DisplayName  string
	Role         Role
	PasswordHash string
	CompanyID    *int64
	PartnerID    *int64
}

// Principal is the authenticated caller.
type Principal struct {
	Username    string       `json:"username"`
	DisplayName string       `json:"display_name"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	CompanyID   *int64       `json:"company_id,omitempty"`
	PartnerID   *int64       `json:"partner_id,omitempty"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

func (p Principal) Has(permission Permission) bool {
	for _, granted := range p.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}

func (p Principal) CanEdit() bool {
	return p.Has(PermissionEdit)
}

// Subject is the casbin subject of the principal.
func (p Principal) Subject() string {
	return "user:" + p.Username
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalKey{}).(Principal)
	return principal, ok
}
