package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	upstreamTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	conversations    *prometheus.CounterVec
	links            *prometheus.CounterVec
	accessDenied     prometheus.Counter
}

// NewPrometheusRecorder creates a recorder whose metrics are registered on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		upstreamTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradelink_upstream_requests_total",
				Help: "Total number of data-access calls by operation and status",
			},
			[]string{"op", "status", "code"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradelink_upstream_duration_seconds",
				Help:    "Duration of data-access calls in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40},
			},
			[]string{"op"},
		),
		conversations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradelink_conversations_total",
				Help: "Total number of conversations by outcome",
			},
			[]string{"outcome"},
		),
		links: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradelink_links_generated_total",
				Help: "Total number of cart links delivered by policy",
			},
			[]string{"policy"},
		),
		accessDenied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tradelink_access_denied_total",
				Help: "Total number of events rejected by the access guard",
			},
		),
	}
}

// ObserveUpstream records one data-access call.
func (p *PrometheusRecorder) ObserveUpstream(op, code string, duration time.Duration) {
	status := "success"
	if code != "" {
		status = "error"
	}
	p.upstreamTotal.WithLabelValues(op, status, code).Inc()
	p.upstreamDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// IncConversation counts a conversation outcome.
func (p *PrometheusRecorder) IncConversation(outcome string) {
	p.conversations.WithLabelValues(outcome).Inc()
}

// IncLinks counts delivered links.
func (p *PrometheusRecorder) IncLinks(policy string, n int) {
	if n <= 0 {
		return
	}
	p.links.WithLabelValues(policy).Add(float64(n))
}

// IncAccessDenied counts a rejected event.
func (p *PrometheusRecorder) IncAccessDenied() {
	p.accessDenied.Inc()
}
