package authorization

import (
	"context"
	"errors"
)

const (
	ObjectDashboard   = "dashboard"
	ObjectLicense     = "license"
	ObjectReport      = "report"
	ObjectReference   = "reference"
	ObjectActivityLog = "activity_log"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionImport = "import"
	ActionExport = "export"
)

type Service interface {
	// Authorize checks whether subject, holding role, may perform action on object.
	Authorize(ctx context.Context, subject string, role string, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
