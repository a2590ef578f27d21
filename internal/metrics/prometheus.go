// Package metrics exposes the settlement pipeline measurements to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fintrust"

// Collector implements settlement.MetricsCollector on a private registry.
type Collector struct {
	registry      *prometheus.Registry
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	riskScore     prometheus.Histogram
	ledgerCalls   *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_outcomes_total",
			Help:      "Settlement attempts by terminal outcome",
		}, []string{"status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Time spent per pipeline stage",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		riskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of fraud scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		ledgerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_calls_total",
			Help:      "Ledger calls by operation and result",
		}, []string{"op", "result"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

func (c *Collector) RecordOutcome(outcome string) {
	c.outcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordStageDuration(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) RecordRiskScore(score float64) {
	c.riskScore.Observe(score)
}

func (c *Collector) RecordLedgerCall(op, result string) {
	c.ledgerCalls.WithLabelValues(op, result).Inc()
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency and count by route pattern.
func (c *Collector) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()

		status := ctx.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		labels := []string{ctx.Method(), ctx.Route().Path, strconv.Itoa(status)}
		c.httpDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		c.httpRequests.WithLabelValues(labels...).Inc()
		return err
	}
}
