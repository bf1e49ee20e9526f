package consumer

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics supplement the distillation: spec.md leaves operability out of
// scope, but an operator needs a way to watch invariant 1
// (committed ≤ acked ≤ current) and commit-policy coverage without reading
// logs. The gauges and the batch-size histogram are labeled by
// (group, topic, partition), matching the teacher's adminhttp surface, which
// exposed the same triple via offsetmgr/offsettrac; the commit and offset
// reset counters are process-wide, labeled only by result and reason.
var (
	currentOffsetGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gruntle_consumer_current_offset",
		Help: "Next offset the partition consumer will request from the broker.",
	}, []string{"group", "topic", "partition"})

	ackedOffsetGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gruntle_consumer_acked_offset",
		Help: "Highest offset + 1 considered delivered and eligible for commit.",
	}, []string{"group", "topic", "partition"})

	committedOffsetGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gruntle_consumer_committed_offset",
		Help: "Highest offset + 1 known durable at the broker.",
	}, []string{"group", "topic", "partition"})

	demandGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gruntle_consumer_demand",
		Help: "Outstanding downstream demand, in records.",
	}, []string{"group", "topic", "partition"})

	fetchBatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gruntle_consumer_fetch_batch_size",
		Help:    "Records returned per Fetch Loop step.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"group", "topic", "partition"})

	commitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gruntle_consumer_commits_total",
		Help: "Commit Policy outcomes.",
	}, []string{"result"})

	offsetResetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gruntle_consumer_offset_resets_total",
		Help: "Offset Reset invocations by resolved reset target.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		currentOffsetGauge,
		ackedOffsetGauge,
		committedOffsetGauge,
		demandGauge,
		fetchBatchSize,
		commitsTotal,
		offsetResetsTotal,
	)
}

// updateMetrics refreshes the per-partition gauges. Called from the single
// writer goroutine after any state-changing event, so reads of pc.tracker
// here are never concurrent with a mutation.
func (pc *PartitionConsumer) updateMetrics() {
	part := strconv.Itoa(int(pc.partition))
	currentOffsetGauge.WithLabelValues(pc.group, pc.topic, part).Set(float64(pc.tracker.current))
	ackedOffsetGauge.WithLabelValues(pc.group, pc.topic, part).Set(float64(pc.tracker.acked))
	committedOffsetGauge.WithLabelValues(pc.group, pc.topic, part).Set(float64(pc.tracker.committed))
	demandGauge.WithLabelValues(pc.group, pc.topic, part).Set(float64(pc.tracker.demand))
}
