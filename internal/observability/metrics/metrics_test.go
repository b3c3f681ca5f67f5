package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("metric_kind", "active_user_count"),
		attribute.String("entity_name", "Acme"),
		attribute.String("reason", "query_failed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "metric_kind" && attrs[1].Key != "metric_kind" {
		t.Fatalf("expected metric_kind to be retained")
	}
	if attrs[0].Key != "reason" && attrs[1].Key != "reason" {
		t.Fatalf("expected reason to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordDashboardRender(ctx, "relay")
	m.RecordAggregatorDegraded(ctx, "portal_user_count", "query_failed")
	m.RecordAggregatorDuration(ctx, "portal_user_count", time.Millisecond)
	m.RecordLicenseMutation(ctx, "create", "ok")
	m.RecordImportRows(ctx, "ok", 3)
	m.RecordLicenseCache(ctx, "hit")
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "licenseboard"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordDashboardRender(context.Background(), "all")
}
