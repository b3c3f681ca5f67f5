package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	dashboardRenders      metric.Int64Counter
	aggregatorDegraded    metric.Int64Counter
	licenseMutations      metric.Int64Counter
	importRows            metric.Int64Counter
	licenseCacheLookups   metric.Int64Counter
	aggregatorDurationsMs metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "licenseboard"
	}
	meter := provider.Meter(name)

	dashboardRenders, err := meter.Int64Counter("licenseboard_dashboard_renders_total")
	if err != nil {
		return nil, err
	}
	aggregatorDegraded, err := meter.Int64Counter("licenseboard_aggregator_degraded_total")
	if err != nil {
		return nil, err
	}
	licenseMutations, err := meter.Int64Counter("licenseboard_license_mutations_total")
	if err != nil {
		return nil, err
	}
	importRows, err := meter.Int64Counter("licenseboard_import_rows_total")
	if err != nil {
		return nil, err
	}
	licenseCacheLookups, err := meter.Int64Counter("licenseboard_license_cache_lookups_total")
	if err != nil {
		return nil, err
	}
	aggregatorDurations, err := meter.Float64Histogram("licenseboard_aggregator_duration_ms")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		dashboardRenders:      dashboardRenders,
		aggregatorDegraded:    aggregatorDegraded,
		licenseMutations:      licenseMutations,
		importRows:            importRows,
		licenseCacheLookups:   licenseCacheLookups,
		aggregatorDurationsMs: aggregatorDurations,
	}, nil
}

// RecordDashboardRender increments render counts per dashboard mode.
func (m *Metrics) RecordDashboardRender(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("mode", strings.TrimSpace(mode)))
	m.dashboardRenders.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAggregatorDegraded counts aggregator runs that fell back to an empty result.
func (m *Metrics) RecordAggregatorDegraded(ctx context.Context, metricKind, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("metric_kind", strings.TrimSpace(metricKind)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.aggregatorDegraded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAggregatorDuration observes how long an aggregator query took.
func (m *Metrics) RecordAggregatorDuration(ctx context.Context, metricKind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("metric_kind", strings.TrimSpace(metricKind)))
	m.aggregatorDurationsMs.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(attrs...))
}

// RecordLicenseMutation increments license create/update/delete counts.
func (m *Metrics) RecordLicenseMutation(ctx context.Context, action, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.licenseMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordImportRows adds bulk import row outcomes.
func (m *Metrics) RecordImportRows(ctx context.Context, result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.importRows.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordLicenseCache counts snapshot cache hits and misses.
func (m *Metrics) RecordLicenseCache(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.licenseCacheLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"mode":        {},
	"metric_kind": {},
	"action":      {},
	"result":      {},
	"reason":      {},
	"route":       {},
	"method":      {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
