package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EnvelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpmonfilter_envelopes_total",
			Help: "Envelopes read from upstream, by outcome.",
		},
		[]string{"outcome"}, // matched, discarded
	)

	UpstreamConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpmonfilter_upstream_connected",
			Help: "Whether the upstream BGP monitor connection is up (0/1).",
		},
	)

	UpstreamReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bgpmonfilter_upstream_reconnects_total",
			Help: "Upstream connect attempts after the initial connection.",
		},
	)

	SubscribersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpmonfilter_subscribers_connected",
			Help: "Currently connected subscribers.",
		},
	)

	SubscriberDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpmonfilter_subscriber_drops_total",
			Help: "Envelopes dropped because a subscriber's queue was full.",
		},
		[]string{"subscriber_id"},
	)

	OutputFileErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bgpmonfilter_output_file_errors_total",
			Help: "Non-fatal errors writing to the output file.",
		},
	)

	RuleCountByKind = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpmonfilter_rule_count",
			Help: "Compiled rule counts by kind, after the last successful load.",
		},
		[]string{"kind"}, // v4, v6, as, host
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpmonfilter_db_write_duration_seconds",
			Help:    "Audit DB write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	AuditRowsInsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bgpmonfilter_audit_rows_inserted_total",
			Help: "Audit rows inserted (after dedup).",
		},
	)

	AuditDedupConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bgpmonfilter_audit_dedup_conflicts_total",
			Help: "Audit inserts skipped by ON CONFLICT DO NOTHING.",
		},
	)

	AuditBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bgpmonfilter_audit_batch_size",
			Help:    "Batch sizes flushed to the audit DB.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000},
		},
	)

	KafkaProduceErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bgpmonfilter_kafka_produce_errors_total",
			Help: "Kafka sink produce failures.",
		},
	)
)

var registerOnce sync.Once

// Register registers every collector above with the default registry.
// Idempotent: later calls are a no-op, so main and tests can both call it
// freely.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EnvelopesTotal,
			UpstreamConnected,
			UpstreamReconnectsTotal,
			SubscribersConnected,
			SubscriberDropsTotal,
			OutputFileErrorsTotal,
			RuleCountByKind,
			DBWriteDuration,
			AuditRowsInsertedTotal,
			AuditDedupConflictsTotal,
			AuditBatchSize,
			KafkaProduceErrorsTotal,
		)
	})
}
