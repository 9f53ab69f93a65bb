// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors.
type Metrics struct {
	Checkins        *prometheus.CounterVec
	TokensIssued    prometheus.Counter
	TokensRevoked   prometheus.Counter
	CheckinDistance prometheus.Histogram
	HTTPRequests    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Checkins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "checkins_total",
			Help:      "Check-in submissions by outcome.",
		}, []string{"outcome"}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "tokens_issued_total",
			Help:      "Attendance tokens issued.",
		}),
		TokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "tokens_revoked_total",
			Help:      "Attendance tokens revoked explicitly.",
		}),
		CheckinDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smartattend",
			Name:      "checkin_distance_meters",
			Help:      "Distance from the fence center of accepted check-ins.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "smartattend",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.Checkins, m.TokensIssued, m.TokensRevoked, m.CheckinDistance, m.HTTPRequests)
	return m
}

// Checkin counts one submission under outcome, observing distance for
// accepted ones.
func (m *Metrics) Checkin(outcome string, distance float64) {
	if m == nil {
		return
	}
	m.Checkins.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.CheckinDistance.Observe(distance)
	}
}

// GinMiddleware records request latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
