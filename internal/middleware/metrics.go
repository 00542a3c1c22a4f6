package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics は自動登録のPrometheusメトリクス。
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	gatherer prometheus.Gatherer
}

// NewMetrics はメトリクスを reg に登録して返す。
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoenroll",
			Subsystem: "enrollment",
			Name:      "requests_total",
			Help:      "Number of autoenrollment requests by command and result.",
		}, []string{"command", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autoenroll",
			Subsystem: "enrollment",
			Name:      "request_duration_seconds",
			Help:      "Duration of autoenrollment requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		gatherer: reg,
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

// ObserveEnrollment は1件の要求結果と所要時間を記録する。
func (m *Metrics) ObserveEnrollment(command, result string, started time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command, result).Inc()
	m.latency.WithLabelValues(command).Observe(time.Since(started).Seconds())
}

// Handler は /metrics 用のハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
