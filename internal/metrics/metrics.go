package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"crm-dialer/internal/calls"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	deliveries   *prometheus.CounterVec
	links        prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_dialer_webhook_deliveries_total",
			Help: "Provider webhook deliveries folded into call records, by kind and outcome (applied or parked)",
		}, []string{"kind", "outcome"}),
		links: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_dialer_provider_links_total",
			Help: "Call records linked to a provider call id",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_dialer_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm_dialer_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.deliveries,
		m.links,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests per matched route. Unmatched paths share one
// label so scanners cannot blow up cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Activity returns a calls.ActivityLog that counts every entry and then hands
// it to next (which may be nil).
func (m *Metrics) Activity(next calls.ActivityLog) calls.ActivityLog {
	return activityCounter{m: m, next: next}
}

type activityCounter struct {
	m    *Metrics
	next calls.ActivityLog
}

func (a activityCounter) RecordActivity(ctx context.Context, act calls.Activity) error {
	if act.Outcome == calls.OutcomeLinked {
		a.m.links.Inc()
	} else {
		a.m.deliveries.WithLabelValues(act.Kind, string(act.Outcome)).Inc()
	}
	if a.next == nil {
		return nil
	}
	return a.next.RecordActivity(ctx, act)
}
