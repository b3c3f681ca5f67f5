package kpiexport

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Registry *prometheus.Registry
	Pusher   Pusher `optional:"true"`
}

// Exporter mirrors every rendered dashboard into KPI gauges and hands pushes to a
// background worker. Observe never waits on the network.
type Exporter struct {
	log      *zap.Logger
	registry *prometheus.Registry
	gauges   *gauges
	pusher   Pusher
	pending  chan struct{}
}

func New(p Params) *Exporter {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{
		log:      log.Named("kpiexport"),
		registry: p.Registry,
		gauges:   newGauges(p.Registry),
		pusher:   p.Pusher,
		pending:  make(chan struct{}, 1),
	}
}

// Observe implements dashboard.KPISink.
func (e *Exporter) Observe(_ context.Context, d dashboard.Dashboard) {
	if e == nil {
		return
	}
	mode := string(d.View.Mode)
	if mode == "" {
		mode = string(dashboard.ModeAll)
	}
	scope := strings.TrimSpace(d.Scope)
	if scope == "" {
		scope = "admin"
	}
	labels := prometheus.Labels{"mode": mode, "scope": scope}
	k := d.KPIs

	e.gauges.licenseRecords.With(labels).Set(float64(k.LicenseRecords))
	e.gauges.activeLicenseRecords.With(labels).Set(float64(k.ActiveLicenseRecords))
	e.gauges.licenses.With(labels).Set(float64(k.NumberOfLicenses))
	e.gauges.activeLicenses.With(labels).Set(float64(k.ActiveLicenses))
	e.gauges.entities.With(labels).Set(float64(k.Entities))
	e.gauges.portalUsers.With(labels).Set(float64(k.PortalUserCount))
	e.gauges.activeUsers.With(labels).Set(float64(k.ActiveUserCount))
	e.gauges.activeRelayDevices.With(labels).Set(float64(k.ActiveRelayDeviceCount))
	e.gauges.activeUtilization.With(labels).Set(k.ActiveUtilizationPct)
	e.gauges.totalUtilization.With(labels).Set(k.TotalUtilizationPct)

	// Currencies that dropped out of the view must not keep their last value.
	e.gauges.revenue.DeletePartialMatch(labels)
	for _, c := range d.Currencies {
		amount, _ := c.TotalRevenue.Float64()
		e.gauges.revenue.With(prometheus.Labels{"mode": mode, "scope": scope, "currency": c.Currency}).Set(amount)
	}
	if !d.GeneratedAt.IsZero() {
		e.gauges.lastObserved.With(labels).Set(float64(d.GeneratedAt.Unix()))
	}

	if e.pusher == nil {
		return
	}
	select {
	case e.pending <- struct{}{}:
	default:
	}
}

// Run pushes after each burst of observations until ctx is done.
func (e *Exporter) Run(ctx context.Context) {
	if e == nil || e.pusher == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.pending:
			e.push(ctx)
		}
	}
}

func (e *Exporter) push(ctx context.Context) {
	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	if err := e.pusher.Push(pushCtx, e.registry); err != nil {
		e.log.Warn("kpi push failed", zap.Error(err))
		return
	}
	e.log.Debug("kpis pushed")
}
