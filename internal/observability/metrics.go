package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	ledgerRequestsTotal  *prometheus.CounterVec
	ledgerLatencySeconds *prometheus.HistogramVec
	ledgerErrorsTotal    *prometheus.CounterVec

	ledgerOperationsTotal *prometheus.CounterVec
	ledgerRosterSize      prometheus.Gauge
	ledgerPendingTC       prometheus.Gauge
	ledgerEventsTotal     *prometheus.CounterVec
	ledgerSubscribers     prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the ledger API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		ledgerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of ledger API requests served.",
		}, []string{"method", "route", "status"})

		ledgerLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_latency_seconds",
			Help:    "Latency distribution for ledger API requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "route"})

		ledgerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_errors_total",
			Help: "Total number of error responses returned by ledger endpoints.",
		}, []string{"method", "route", "status"})

		ledgerOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome.",
		}, []string{"operation", "outcome"})

		ledgerRosterSize = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_roster_size",
			Help: "Number of students currently on the roster.",
		})

		ledgerPendingTC = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_pending_tc",
			Help: "Issued transfer certificates not yet written to the archive.",
		})

		ledgerEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Ledger events published by type.",
		}, []string{"type"})

		ledgerSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_event_subscribers",
			Help: "Active ledger event feed subscribers.",
		})

		prometheus.MustRegister(
			ledgerRequestsTotal, ledgerLatencySeconds, ledgerErrorsTotal,
			ledgerOperationsTotal, ledgerRosterSize, ledgerPendingTC,
			ledgerEventsTotal, ledgerSubscribers,
		)
	})
}

// LedgerRequests exposes the counter for API requests.
func LedgerRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return ledgerRequestsTotal
}

// LedgerLatency exposes the latency histogram for API requests.
func LedgerLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return ledgerLatencySeconds
}

// LedgerErrors exposes the counter for API error responses.
func LedgerErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return ledgerErrorsTotal
}

// LedgerOperations exposes the operation outcome counter.
func LedgerOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return ledgerOperationsTotal
}

// LedgerRosterSize exposes the roster size gauge.
func LedgerRosterSize() prometheus.Gauge {
	RegisterMetrics()
	return ledgerRosterSize
}

// LedgerPendingTC exposes the pending reconciliation gauge.
func LedgerPendingTC() prometheus.Gauge {
	RegisterMetrics()
	return ledgerPendingTC
}

// LedgerEventsPublished exposes the published event counter.
func LedgerEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return ledgerEventsTotal
}

// LedgerSubscribers exposes the event subscriber gauge.
func LedgerSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return ledgerSubscribers
}
