package kpiexport

import "github.com/prometheus/client_golang/prometheus"

const namespace = "licenseboard"

var viewLabels = []string{"mode", "scope"}

type gauges struct {
	licenseRecords       *prometheus.GaugeVec
	activeLicenseRecords *prometheus.GaugeVec
	licenses             *prometheus.GaugeVec
	activeLicenses       *prometheus.GaugeVec
	entities             *prometheus.GaugeVec
	portalUsers          *prometheus.GaugeVec
	activeUsers          *prometheus.GaugeVec
	activeRelayDevices   *prometheus.GaugeVec
	activeUtilization    *prometheus.GaugeVec
	totalUtilization     *prometheus.GaugeVec
	revenue              *prometheus.GaugeVec
	lastObserved         *prometheus.GaugeVec
}

// NewRegistry holds only KPI gauges so pushes never carry process or pool metrics.
// /metrics serves it alongside the default registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func newGauges(registerer prometheus.Registerer) *gauges {
	vec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kpi",
			Name:      name,
			Help:      help,
		}, labels)
		registerer.MustRegister(g)
		return g
	}

	return &gauges{
		licenseRecords:       vec("license_records", "License records in the last rendered view.", viewLabels...),
		activeLicenseRecords: vec("active_license_records", "Active license records in the last rendered view.", viewLabels...),
		licenses:             vec("licenses", "Sum of number_of_licenses.", viewLabels...),
		activeLicenses:       vec("active_licenses", "Sum of number_of_licenses over active records.", viewLabels...),
		entities:             vec("entities", "Distinct owning entities.", viewLabels...),
		portalUsers:          vec("portal_users", "Portal users across distinct owners.", viewLabels...),
		activeUsers:          vec("active_users", "Users active in the trailing window.", viewLabels...),
		activeRelayDevices:   vec("active_relay_devices", "Relay devices active in the trailing window.", viewLabels...),
		activeUtilization:    vec("active_utilization_percent", "Active users or devices over active licenses.", viewLabels...),
		totalUtilization:     vec("total_utilization_percent", "Active users or devices over all licenses.", viewLabels...),
		revenue:              vec("revenue", "Total license revenue per currency.", "mode", "scope", "currency"),
		lastObserved:         vec("last_observed_timestamp_seconds", "Generation time of the last rendered view.", viewLabels...),
	}
}
