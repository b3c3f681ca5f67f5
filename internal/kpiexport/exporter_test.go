package kpiexport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushes int
	done   chan struct{}
}

func (p *recordingPusher) Push(context.Context, prometheus.Gatherer) error {
	p.mu.Lock()
	p.pushes++
	p.mu.Unlock()
	select {
	case p.done <- struct{}{}:
	default:
	}
	return nil
}

func sampleDashboard() dashboard.Dashboard {
	return dashboard.Dashboard{
		GeneratedAt: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
		Scope:       "admin",
		View:        dashboard.ViewState{Mode: dashboard.ModeRelay},
		KPIs: dashboard.KPIs{
			LicenseRecords:         3,
			ActiveLicenseRecords:   2,
			NumberOfLicenses:       10,
			ActiveLicenses:         4,
			Entities:               2,
			ActiveRelayDeviceCount: 2,
			ActiveUtilizationPct:   50,
			TotalUtilizationPct:    20,
		},
		Currencies: []dashboard.CurrencyRollup{
			{Currency: "USD", TotalRevenue: decimal.RequireFromString("1200.50")},
			{Currency: "EUR", TotalRevenue: decimal.NewFromInt(300)},
		},
	}
}

func TestObserveSetsGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	exp := New(Params{Log: zaptest.NewLogger(t), Registry: registry})

	exp.Observe(context.Background(), sampleDashboard())

	labels := prometheus.Labels{"mode": "relay", "scope": "admin"}
	assert.Equal(t, 10.0, testutil.ToFloat64(exp.gauges.licenses.With(labels)))
	assert.Equal(t, 4.0, testutil.ToFloat64(exp.gauges.activeLicenses.With(labels)))
	assert.Equal(t, 50.0, testutil.ToFloat64(exp.gauges.activeUtilization.With(labels)))
	assert.Equal(t, 1200.5, testutil.ToFloat64(exp.gauges.revenue.With(prometheus.Labels{"mode": "relay", "scope": "admin", "currency": "USD"})))
	assert.Equal(t, 2, testutil.CollectAndCount(exp.gauges.revenue))
}

func TestObserveDropsStaleCurrencies(t *testing.T) {
	registry := prometheus.NewRegistry()
	exp := New(Params{Log: zaptest.NewLogger(t), Registry: registry})

	exp.Observe(context.Background(), sampleDashboard())
	next := sampleDashboard()
	next.Currencies = next.Currencies[:1]
	exp.Observe(context.Background(), next)

	assert.Equal(t, 1, testutil.CollectAndCount(exp.gauges.revenue))
}

func TestRunPushesAfterObserve(t *testing.T) {
	pusher := &recordingPusher{done: make(chan struct{}, 1)}
	exp := New(Params{Log: zaptest.NewLogger(t), Registry: prometheus.NewRegistry(), Pusher: pusher})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go exp.Run(ctx)

	exp.Observe(ctx, sampleDashboard())

	select {
	case <-pusher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("push was not triggered")
	}
}

func TestRemoteWritePusherEncodesSeries(t *testing.T) {
	var (
		got     prompb.WriteRequest
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	exp := New(Params{Log: zaptest.NewLogger(t), Registry: registry})
	exp.Observe(context.Background(), sampleDashboard())

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	require.NoError(t, pusher.Push(context.Background(), registry))

	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))

	names := map[string]bool{}
	for _, ts := range got.Timeseries {
		for _, l := range ts.Labels {
			if l.Name == "__name__" {
				names[l.Value] = true
			}
		}
	}
	assert.True(t, names["licenseboard_kpi_licenses"])
	assert.True(t, names["licenseboard_kpi_revenue"])
}

func TestRemoteWritePusherReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	New(Params{Registry: registry}).Observe(context.Background(), sampleDashboard())

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPushgatewayPusherUsesJobPath(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	New(Params{Registry: registry}).Observe(context.Background(), sampleDashboard())

	pusher := NewPushgatewayPusher(srv.URL, "licenseboard", map[string]string{"environment": "test"})
	require.NoError(t, pusher.Push(context.Background(), registry))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/licenseboard/environment/test", path)
}

func TestNewPusherHonoursConfig(t *testing.T) {
	log := zaptest.NewLogger(t)

	assert.Nil(t, NewPusher(config.Config{}, log))

	cfg := config.Config{KPIPush: config.KPIPushConfig{Enabled: true, Exporter: ExporterPushgateway}}
	assert.Nil(t, NewPusher(cfg, log))

	cfg.KPIPush.Endpoint = "http://pushgateway:9091"
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, log))

	cfg.KPIPush.Exporter = ExporterRemoteWrite
	cfg.KPIPush.Endpoint = "not a url"
	assert.Nil(t, NewPusher(cfg, log))

	cfg.KPIPush.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, log))

	_, err := buildPusher(cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
