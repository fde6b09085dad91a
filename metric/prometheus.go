// Package metric exports writer and compaction events as Prometheus metrics.
//
//	reg := prometheus.NewRegistry()
//	pc := metric.NewPrometheusCollector("")
//	pc.MustRegister(reg)
//	wdb, _ := shardex.OpenWritable(ctx, dir, shardex.CreateOrOpen,
//	    shardex.WithMetricsCollector(pc))
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/shardex/engine"
)

// DefaultNamespace prefixes every metric name unless overridden.
const DefaultNamespace = "shardex"

var _ engine.MetricsObserver = (*PrometheusCollector)(nil)

// PrometheusCollector implements engine.MetricsObserver on Prometheus
// vectors. It is safe for concurrent use.
type PrometheusCollector struct {
	flushDuration      *prometheus.HistogramVec
	flushOps           prometheus.Counter
	transactions       *prometheus.CounterVec
	compactionDuration *prometheus.HistogramVec
	compactionInputs   prometheus.Counter
	queueDepth         *prometheus.GaugeVec
	throughput         *prometheus.CounterVec
}

// NewPrometheusCollector creates unregistered metrics under namespace, or
// DefaultNamespace when empty.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &PrometheusCollector{
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of batch commits",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"status"}),
		flushOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushed_ops_total",
			Help:      "Operations applied by successful flushes",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transaction events",
		}, []string{"event", "status"}),
		compactionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compaction_duration_seconds",
			Help:      "Duration of segment compactions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		compactionInputs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compacted_segments_total",
			Help:      "Segments merged by successful compactions",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Depth of pending queues",
		}, []string{"queue"}),
		throughput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes processed",
		}, []string{"kind"}),
	}
}

// Collectors returns every metric of c.
func (c *PrometheusCollector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.flushDuration,
		c.flushOps,
		c.transactions,
		c.compactionDuration,
		c.compactionInputs,
		c.queueDepth,
		c.throughput,
	}
}

// Register registers c with reg.
func (c *PrometheusCollector) Register(reg prometheus.Registerer) error {
	for _, col := range c.Collectors() {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is Register that panics on error.
func (c *PrometheusCollector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.Collectors()...)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *PrometheusCollector) OnFlush(d time.Duration, ops int, err error) {
	c.flushDuration.WithLabelValues(status(err)).Observe(d.Seconds())
	if err == nil {
		c.flushOps.Add(float64(ops))
	}
}

func (c *PrometheusCollector) OnTransaction(event string, err error) {
	c.transactions.WithLabelValues(event, status(err)).Inc()
}

func (c *PrometheusCollector) OnCompaction(d time.Duration, inputSegments int, _ int, err error) {
	c.compactionDuration.WithLabelValues(status(err)).Observe(d.Seconds())
	if err == nil {
		c.compactionInputs.Add(float64(inputSegments))
	}
}

func (c *PrometheusCollector) OnQueueDepth(name string, depth int) {
	c.queueDepth.WithLabelValues(name).Set(float64(depth))
}

func (c *PrometheusCollector) OnThroughput(name string, bytes int64) {
	if bytes > 0 {
		c.throughput.WithLabelValues(name).Add(float64(bytes))
	}
}
