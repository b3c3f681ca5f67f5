package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/licenseboard/internal/audit/domain"
	"github.com/smallbiznis/licenseboard/internal/audit/repository"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/migration"
	obscontext "github.com/smallbiznis/licenseboard/internal/observability/context"
	"github.com/smallbiznis/licenseboard/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()

	conn := db.NewTest(t)
	require.NoError(t, migration.ApplySQLite(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, fake
}

func TestAuditLogRecordsActorAndMasksSecrets(t *testing.T) {
	svc, _ := newTestService(t)

	ctx := obscontext.WithActor(context.Background(), "admin", "admin")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	target := "123"

	require.NoError(t, svc.AuditLog(ctx, "license.update", "license", &target, map[string]any{
		"currency": "EUR",
		"password": "should-not-leak",
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorRole)
	assert.Equal(t, "admin", entry.ActorID)
	assert.Equal(t, "license", entry.TargetType)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "123", *entry.TargetID)
	assert.Equal(t, "EUR", entry.Metadata["currency"])
	assert.Equal(t, "****", entry.Metadata["password"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.AuditLog(context.Background(), "license.import", "license", nil, nil))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "system", resp.AuditLogs[0].ActorRole)
	assert.Nil(t, resp.AuditLogs[0].TargetID)
}

func TestAuditLogRejectsBlankAction(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.AuditLog(context.Background(), "  ", "license", nil, nil), auditdomain.ErrInvalidAction)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, "license.create", "license", nil, map[string]any{"n": i}))
		fake.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	assert.False(t, first.HasMore)

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	page, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	assert.True(t, page.HasMore)
	assert.True(t, page.AuditLogs[0].CreatedAt.After(page.AuditLogs[1].CreatedAt))

	req.PageToken = page.NextPageToken
	next, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, next.AuditLogs, 1)
	assert.False(t, next.HasMore)
}

func TestListRejectsInvalidInputs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := auditdomain.ListAuditLogRequest{}
	req.PageToken = "not-a-token"
	_, err := svc.List(ctx, req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
