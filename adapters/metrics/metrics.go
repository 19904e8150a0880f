// Package metrics provides Prometheus metrics collection for the Biblioteca gate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

const namespace = "biblioteca"

// Collector holds all Prometheus metrics for the gate.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Admission metrics
	AdmissionDecisions *prometheus.CounterVec
	AdmissionErrors    prometheus.Counter

	// Catalog upstream metrics
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec

	// Billing metrics
	InvoiceRuns        *prometheus.CounterVec
	InvoicesIssued     prometheus.Counter
	InvoicedAmount     prometheus.Counter
	DelinquentFlagged  prometheus.Counter
	Payments           *prometheus.CounterVec
	JobFailures        *prometheus.CounterVec
	LastInvoicedPeriod prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),

		AdmissionDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_decisions_total",
				Help:      "API key admission decisions by outcome",
			},
			[]string{"outcome"},
		),
		AdmissionErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_errors_total",
				Help:      "Admission checks that failed on a store error",
			},
		),

		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "catalog_duration_seconds",
				Help:      "Catalog upstream request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "status"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total number of catalog upstream errors",
			},
			[]string{"type"},
		),

		InvoiceRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoice_runs_total",
				Help:      "Invoice generator runs by result",
			},
			[]string{"result"},
		),
		InvoicesIssued: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoices_issued_total",
				Help:      "Total number of invoices issued",
			},
		),
		InvoicedAmount: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoiced_amount_total",
				Help:      "Sum of issued invoice amounts",
			},
		),
		DelinquentFlagged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delinquent_flagged_total",
				Help:      "Accounts flagged delinquent by evaluator runs",
			},
		),
		Payments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Invoice payments by result",
			},
			[]string{"result"},
		),
		JobFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "billing_job_failures_total",
				Help:      "Failed billing scheduler jobs",
			},
			[]string{"job"},
		),
		LastInvoicedPeriod: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_invoiced_period_timestamp",
				Help:      "Unix timestamp of the start of the last emitted billing period",
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// AdmissionDecision counts one admission outcome.
func (c *Collector) AdmissionDecision(outcome string) {
	c.AdmissionDecisions.WithLabelValues(outcome).Inc()
}

// InvoiceRun implements ports.BillingObserver.
func (c *Collector) InvoiceRun(result billing.RunResult) {
	if result.Skipped {
		c.InvoiceRuns.WithLabelValues("skipped").Inc()
		return
	}
	c.InvoiceRuns.WithLabelValues("emitted").Inc()
	c.InvoicesIssued.Add(float64(len(result.Invoices)))
	c.InvoicedAmount.Add(result.Total.InexactFloat64())
	c.LastInvoicedPeriod.Set(float64(result.Period.Start().Unix()))
}

// DelinquencyRun implements ports.BillingObserver.
func (c *Collector) DelinquencyRun(flagged int) {
	c.DelinquentFlagged.Add(float64(flagged))
}

// Payment implements ports.BillingObserver.
func (c *Collector) Payment(result billing.PaymentResult) {
	switch {
	case result.AlreadySettled:
		c.Payments.WithLabelValues("already_settled").Inc()
	case result.DelinquencyCleared:
		c.Payments.WithLabelValues("cleared").Inc()
	default:
		c.Payments.WithLabelValues("paid").Inc()
	}
}

// JobFailed implements ports.BillingObserver.
func (c *Collector) JobFailed(job string) {
	c.JobFailures.WithLabelValues(job).Inc()
}

// ConfigReloaded records a successful reload.
func (c *Collector) ConfigReloaded(at time.Time) {
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// StatusClass buckets an HTTP status into 2xx..5xx to keep label cardinality low.
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var _ ports.BillingObserver = (*Collector)(nil)
