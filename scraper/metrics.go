package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the resolver.
type Metrics struct {
	Registry            *prometheus.Registry
	AddressesTotal      *prometheus.CounterVec
	NavigationsTotal    *prometheus.CounterVec
	ResolveDuration     prometheus.Histogram
	RecordsEmittedTotal prometheus.Counter
	RetriesTotal        prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
	SkipsTotal          *prometheus.CounterVec
	FieldsMissingTotal  *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	addresses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_addresses_total",
			Help: "Addresses processed by outcome.",
		},
		[]string{"outcome"},
	)
	navigations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_navigations_total",
			Help: "Page navigations issued by the resolver.",
		},
		[]string{"page"},
	)
	resolveDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resolver_resolve_duration_seconds",
			Help:    "Time spent resolving one address.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_records_emitted_total",
			Help: "Records handed to the output pipeline.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_retries_total",
			Help: "Navigation retries scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_errors_total",
			Help: "Failed addresses by error type.",
		},
		[]string{"error_type"},
	)
	skips := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_skips_total",
			Help: "Addresses abandoned because a structural element was missing.",
		},
		[]string{"stage"},
	)
	fieldsMissing := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_fields_missing_total",
			Help: "Best-effort fields left empty.",
		},
		[]string{"field"},
	)
	sessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "resolver_sessions_active",
			Help: "Browser sessions currently open.",
		},
	)

	registry.MustRegister(addresses, navigations, resolveDuration, records, retries, errorsTotal, skips, fieldsMissing, sessions)

	return &Metrics{
		Registry:            registry,
		AddressesTotal:      addresses,
		NavigationsTotal:    navigations,
		ResolveDuration:     resolveDuration,
		RecordsEmittedTotal: records,
		RetriesTotal:        retries,
		ErrorsTotal:         errorsTotal,
		SkipsTotal:          skips,
		FieldsMissingTotal:  fieldsMissing,
		SessionsActive:      sessions,
	}
}

// IncAddress counts one address with its outcome.
func (m *Metrics) IncAddress(outcome string) {
	if m == nil {
		return
	}
	m.AddressesTotal.WithLabelValues(outcome).Inc()
}

// IncAddressBy counts n addresses with the same outcome.
func (m *Metrics) IncAddressBy(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AddressesTotal.WithLabelValues(outcome).Add(float64(n))
}

// IncNavigation counts a navigation to page.
func (m *Metrics) IncNavigation(page string) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(page).Inc()
}

// ObserveDuration records how long one resolution took.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(d.Seconds())
}

// IncRecords increments the emitted records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsEmittedTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncSkip counts a terminal skip at stage.
func (m *Metrics) IncSkip(stage string) {
	if m == nil {
		return
	}
	m.SkipsTotal.WithLabelValues(stage).Inc()
}

// IncFieldMissing counts a best-effort field that stayed empty.
func (m *Metrics) IncFieldMissing(field string) {
	if m == nil {
		return
	}
	m.FieldsMissingTotal.WithLabelValues(field).Inc()
}

// SessionOpened tracks a newly opened browser session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionClosed tracks a released browser session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}
