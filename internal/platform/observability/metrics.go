package observability

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はサーバ側の出欠同期メトリクス
type Metrics struct {
	Ingest      *prometheus.CounterVec
	IngestTime  *prometheus.HistogramVec
	Transitions *prometheus.CounterVec
	HTTP        *prometheus.CounterVec

	reg *prometheus.Registry
}

// NewMetrics はプロセスごとに独立した Registry を使う
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Ingest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "ingest_total",
			Help:      "Attendance submit/edit requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		IngestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "ingest_seconds",
			Help:      "Latency of the ingestion transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "session_transitions_total",
			Help:      "Session lock state transitions.",
		}, []string{"action"}),
		HTTP: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		reg: reg,
	}
	reg.MustRegister(m.Ingest, m.IngestTime, m.Transitions, m.HTTP)
	reg.MustRegister(prometheus.NewGoCollector())
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler は /metrics 用
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// OutboxMetrics はクライアント(outboxctl run)側
type OutboxMetrics struct {
	Deliveries *prometheus.CounterVec
	Queued     *prometheus.GaugeVec

	reg *prometheus.Registry
}

func NewOutboxMetrics() *OutboxMetrics {
	reg := prometheus.NewRegistry()
	m := &OutboxMetrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbox",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by result (synced, failed, offline).",
		}, []string{"result"}),
		Queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "outbox",
			Name:      "events",
			Help:      "Events in the local outbox by status.",
		}, []string{"status"}),
		reg: reg,
	}
	reg.MustRegister(m.Deliveries, m.Queued)
	return m
}

func (m *OutboxMetrics) Registry() *prometheus.Registry { return m.reg }
