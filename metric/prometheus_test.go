package metric

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardex/engine"
	"github.com/hupe1980/shardex/testutil"
)

func TestPrometheusCollector_Events(t *testing.T) {
	c := NewPrometheusCollector("")

	c.OnFlush(10*time.Millisecond, 4, nil)
	c.OnFlush(time.Millisecond, 2, errors.New("boom"))
	c.OnTransaction("begin", nil)
	c.OnTransaction("commit", errors.New("boom"))
	c.OnCompaction(time.Second, 3, 100, nil)
	c.OnQueueDepth("pending_ops", 7)
	c.OnThroughput("flush_bytes", 512)
	c.OnThroughput("flush_bytes", 0)

	assert.InDelta(t, 4, promtest.ToFloat64(c.flushOps), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.transactions.WithLabelValues("begin", "success")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.transactions.WithLabelValues("commit", "error")), 0)
	assert.InDelta(t, 3, promtest.ToFloat64(c.compactionInputs), 0)
	assert.InDelta(t, 7, promtest.ToFloat64(c.queueDepth.WithLabelValues("pending_ops")), 0)
	assert.InDelta(t, 512, promtest.ToFloat64(c.throughput.WithLabelValues("flush_bytes")), 0)
	assert.Equal(t, 2, promtest.CollectAndCount(c.flushDuration))
}

func TestPrometheusCollector_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector("test")
	require.NoError(t, c.Register(reg))

	// A second collector with the same namespace collides.
	assert.Error(t, NewPrometheusCollector("test").Register(reg))

	c.OnTransaction("begin", nil)
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_transactions_total")
}

func TestPrometheusCollector_Writer(t *testing.T) {
	ctx := context.Background()
	c := NewPrometheusCollector("")
	w, err := engine.NewWriter(testutil.NewStubShard("a"), engine.Config{Metrics: c})
	require.NoError(t, err)

	_, err = w.AddDocument(ctx, testutil.Doc("x"))
	require.NoError(t, err)
	assert.InDelta(t, 1, promtest.ToFloat64(c.queueDepth.WithLabelValues("pending_ops")), 0)

	require.NoError(t, w.Flush(ctx))
	assert.InDelta(t, 1, promtest.ToFloat64(c.flushOps), 0)
	assert.InDelta(t, 0, promtest.ToFloat64(c.queueDepth.WithLabelValues("pending_ops")), 0)
	require.NoError(t, w.Close(ctx))
}
