package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 钱包核心指标
type Metrics struct {
	LedgerEntries     *prometheus.CounterVec
	OperationTotal    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ReconcileMismatch prometheus.Gauge
	OutboxPublished   *prometheus.CounterVec
}

// New 创建并注册指标；reg 为 nil 时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		LedgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "ledger_entries_total",
			Help:      "Ledger entries appended, by ledger and entry type.",
		}, []string{"ledger", "type"}),
		OperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "operations_total",
			Help:      "Wallet operations by operation name and result code.",
		}, []string{"operation", "code"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wallet",
			Name:      "operation_duration_seconds",
			Help:      "Latency of wallet operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ReconcileMismatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wallet",
			Name:      "reconcile_mismatched_accounts",
			Help:      "Accounts whose cached balance diverged from the ledger in the last reconcile pass.",
		}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "outbox_messages_total",
			Help:      "Outbox messages handled by the sender, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.LedgerEntries, m.OperationTotal, m.OperationDuration, m.ReconcileMismatch, m.OutboxPublished)
	return m
}

// Observe 记录一次业务操作的耗时与结果，m 为 nil 时不做任何事
func (m *Metrics) Observe(operation, code string, started time.Time) {
	if m == nil {
		return
	}
	m.OperationTotal.WithLabelValues(operation, code).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) EntryAppended(ledger, entryType string) {
	if m == nil {
		return
	}
	m.LedgerEntries.WithLabelValues(ledger, entryType).Inc()
}

func (m *Metrics) SetReconcileMismatch(n int) {
	if m == nil {
		return
	}
	m.ReconcileMismatch.Set(float64(n))
}

func (m *Metrics) OutboxResult(result string) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(result).Inc()
}
