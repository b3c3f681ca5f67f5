package authorization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(nil)
	require.NoError(t, err)
	return NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
}

func TestAdminMayMutateLicenses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, action := range []string{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionImport, ActionExport} {
		assert.NoError(t, svc.Authorize(ctx, "user:admin", "admin", ObjectLicense, action), action)
	}
	assert.NoError(t, svc.Authorize(ctx, "user:admin", "admin", ObjectAuditLog, ActionView))
}

func TestViewerIsReadOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, "user:viewer", "viewer", ObjectDashboard, ActionView))
	assert.NoError(t, svc.Authorize(ctx, "user:viewer", "viewer", ObjectReport, ActionExport))
	assert.NoError(t, svc.Authorize(ctx, "user:viewer", "viewer", ObjectLicense, ActionExport))

	for _, action := range []string{ActionCreate, ActionUpdate, ActionDelete, ActionImport} {
		assert.ErrorIs(t, svc.Authorize(ctx, "user:viewer", "viewer", ObjectLicense, action), ErrForbidden, action)
	}
	assert.ErrorIs(t, svc.Authorize(ctx, "user:viewer", "viewer", ObjectAuditLog, ActionView), ErrForbidden)
}

func TestRoleChangeReplacesBinding(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "user:sam", "admin", ObjectLicense, ActionDelete))
	assert.ErrorIs(t, svc.Authorize(ctx, "user:sam", "viewer", ObjectLicense, ActionDelete), ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", "admin", ObjectLicense, ActionView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:admin", "", ObjectLicense, ActionView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:admin", "admin", "", ActionView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:admin", "admin", ObjectLicense, " "), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:admin", "root", ObjectLicense, ActionView), ErrForbidden)
}
