// Package metrics provides Prometheus metrics for the tracker.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dog_tracker"

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// API metrics
	APIRequests       *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	Retries           *prometheus.CounterVec
	AddressFetches    *prometheus.CounterVec

	// Poll metrics
	PollRuns           *prometheus.CounterVec
	PollDuration       prometheus.Histogram
	PollsSkipped       prometheus.Counter
	DegradedUsers      prometheus.Gauge
	LastSuccessfulPoll prometheus.Gauge

	// Holdings
	TotalBalance      prometheus.Gauge
	TotalPoolHoldings prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of OKX API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		APIRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "OKX API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "failed_attempts_total",
			Help:      "Total number of failed attempts by operation",
		}, []string{"operation"}),
		AddressFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "addresses_total",
			Help:      "Total number of address balance fetches by outcome",
		}, []string{"outcome"}),

		PollRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "runs_total",
			Help:      "Total number of poll runs by outcome",
		}, []string{"outcome"}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Duration of a full poll run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		PollsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "skipped_total",
			Help:      "Poll requests skipped because a run was in progress",
		}),
		DegradedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "degraded_users",
			Help:      "Users with at least one failed address in the last run",
		}),
		LastSuccessfulPoll: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed poll",
		}),

		TotalBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "wallet_balance",
			Help:      "Sum of tracked token balances across all users",
		}),
		TotalPoolHoldings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "pool_holdings",
			Help:      "Sum of implied pool holdings across all users",
		}),
	}
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one API request
func (m *Metrics) ObserveRequest(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.APIRequestLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveRetry records a failed attempt of operation
func (m *Metrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(operation).Inc()
}

// ObserveAddressFetch records the outcome of a full address fetch
func (m *Metrics) ObserveAddressFetch(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.AddressFetches.WithLabelValues("success").Inc()
	} else {
		m.AddressFetches.WithLabelValues("failed").Inc()
	}
}

// ObservePoll records a finished poll run
func (m *Metrics) ObservePoll(d time.Duration, degradedUsers int, totalBalance, totalPool float64, err error) {
	if m == nil {
		return
	}
	m.PollRuns.WithLabelValues(outcome(err)).Inc()
	m.PollDuration.Observe(d.Seconds())
	if err != nil {
		return
	}
	m.DegradedUsers.Set(float64(degradedUsers))
	m.TotalBalance.Set(totalBalance)
	m.TotalPoolHoldings.Set(totalPool)
	m.LastSuccessfulPoll.SetToCurrentTime()
}

// ObserveSkip records a poll request skipped by the run guard
func (m *Metrics) ObserveSkip() {
	if m == nil {
		return
	}
	m.PollsSkipped.Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
