package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the audit engine
var (
	AuditRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_runs_total",
			Help: "Total number of audit runs by outcome",
		},
		[]string{"status"},
	)

	AuditFlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_flags_total",
			Help: "Total number of flag reasons raised",
		},
		[]string{"reason"},
	)

	AuditResolutionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_resolutions_total",
			Help: "Total number of flagged audits resolved by a reviewer",
		},
	)

	BackfillShipmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backfill_shipments_total",
			Help: "Shipments considered by backfill, by result (created, skipped)",
		},
		[]string{"result"},
	)

	OrderFetchPagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_fetch_pages_total",
			Help: "Total number of order history pages fetched",
		},
	)

	OrderFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "order_fetch_duration_seconds",
			Help:    "Duration of a complete order history fetch",
			Buckets: prometheus.DefBuckets,
		},
	)

	HostInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_host_info",
			Help: "Static information about the host running the service",
		},
		[]string{"service", "hostname", "os", "arch", "go_version", "container"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry. Safe to call repeatedly.
func Register(service string) {
	registerOnce.Do(func() {
		prometheus.MustRegister(AuditRunsTotal)
		prometheus.MustRegister(AuditFlagsTotal)
		prometheus.MustRegister(AuditResolutionsTotal)
		prometheus.MustRegister(BackfillShipmentsTotal)
		prometheus.MustRegister(OrderFetchPagesTotal)
		prometheus.MustRegister(OrderFetchDuration)
		prometheus.MustRegister(HostInfo)

		info := CaptureSystemInfo()
		HostInfo.WithLabelValues(service, info.Hostname, info.OS, info.Arch, info.GoVersion, info.ContainerRuntime).Set(1)
	})
}
