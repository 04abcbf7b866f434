package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇聚同步管线的 Prometheus 指标。
type Metrics struct {
	syncRuns      *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	messagesTotal *prometheus.CounterVec
	activeSyncs   prometheus.Gauge
}

// NewMetrics 注册并返回指标集合。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		syncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Number of account sync runs by result.",
		}, []string{"result"}),
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "helpdesk",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of account sync runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Number of ingested messages by outcome.",
		}, []string{"outcome"}),
		activeSyncs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "helpdesk",
			Subsystem: "sync",
			Name:      "active",
			Help:      "Number of account syncs currently in flight.",
		}),
	}
}

// SyncStarted 标记一次同步开始，返回完成回调。
func (m *Metrics) SyncStarted() func(result string) {
	if m == nil {
		return func(string) {}
	}
	m.activeSyncs.Inc()
	start := time.Now()
	return func(result string) {
		m.activeSyncs.Dec()
		m.syncDuration.Observe(time.Since(start).Seconds())
		m.syncRuns.WithLabelValues(result).Inc()
	}
}

// MessageProcessed 记录单封邮件的处理结局。
func (m *Metrics) MessageProcessed(outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(outcome).Inc()
}
