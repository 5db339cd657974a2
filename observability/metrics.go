package observability

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BankMetrics captures ledger call outcomes and settlement activity.
type BankMetrics struct {
	calls        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	keeps        *prometheus.CounterVec
	flows        *prometheus.CounterVec
	capacity     *prometheus.GaugeVec
	debt         prometheus.Gauge
}

var (
	bankMetricsOnce sync.Once
	bankRegistry    *BankMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetrics
)

// Bank returns the lazily-initialised bank metrics registry.
func Bank() *BankMetrics {
	bankMetricsOnce.Do(func() {
		bankRegistry = &BankMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpbank",
				Subsystem: "bank",
				Name:      "calls_total",
				Help:      "Count of bank calls segmented by operation and error kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cdpbank",
				Subsystem: "bank",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution of bank calls including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpbank",
				Subsystem: "vow",
				Name:      "liquidations_total",
				Help:      "Count of completed liquidations by collateral class.",
			}, []string{"ilk"}),
			keeps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpbank",
				Subsystem: "vow",
				Name:      "keeps_total",
				Help:      "Count of reconciliation calls by action taken.",
			}, []string{"action"}),
			flows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpbank",
				Subsystem: "flow",
				Name:      "records_total",
				Help:      "Count of gateway records by asset sold and phase.",
			}, []string{"asset", "phase"}),
			capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "cdpbank",
				Subsystem: "flow",
				Name:      "ramp_capacity",
				Help:      "Last observed ramp capacity in whole units of the asset sold.",
			}, []string{"consumer", "asset"}),
			debt: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cdpbank",
				Subsystem: "vat",
				Name:      "debt",
				Help:      "Total system debt in whole stable units.",
			}),
		}
		prometheus.MustRegister(
			bankRegistry.calls,
			bankRegistry.latency,
			bankRegistry.liquidations,
			bankRegistry.keeps,
			bankRegistry.flows,
			bankRegistry.capacity,
			bankRegistry.debt,
		)
	})
	return bankRegistry
}

// Kinds maps failure sentinels to stable outcome labels. The first match
// wins. Unmatched errors are labelled "error".
type Kinds []Kind

// Kind pairs a sentinel error with its label.
type Kind struct {
	Err   error
	Label string
}

// Label returns the outcome label for err.
func (k Kinds) Label(err error) string {
	if err == nil {
		return "success"
	}
	for _, kind := range k {
		if errors.Is(err, kind.Err) {
			return kind.Label
		}
	}
	return "error"
}

// Observe records one bank call.
func (m *BankMetrics) Observe(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *BankMetrics) RecordLiquidation(ilk string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(strings.ToLower(ilk)).Inc()
}

func (m *BankMetrics) RecordKeep(action string) {
	if m == nil {
		return
	}
	m.keeps.WithLabelValues(action).Inc()
}

// RecordFlow counts a gateway record transition; phase is "pending" or
// "settled".
func (m *BankMetrics) RecordFlow(asset, phase string) {
	if m == nil {
		return
	}
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		asset = "UNKNOWN"
	}
	m.flows.WithLabelValues(asset, phase).Inc()
}

func (m *BankMetrics) SetCapacity(consumer, asset string, units float64) {
	if m == nil {
		return
	}
	m.capacity.WithLabelValues(consumer, strings.ToUpper(asset)).Set(units)
}

func (m *BankMetrics) SetDebt(units float64) {
	if m == nil {
		return
	}
	m.debt.Set(units)
}

// HTTPMetrics tracks the daemon's API surface.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// HTTP returns the lazily-initialised API metrics registry.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpbank",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and status class.",
			}, []string{"route", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cdpbank",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpbank",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records the outcome of an API request. status is the HTTP status
// written to the client.
func (m *HTTPMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit".
func (m *HTTPMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}
