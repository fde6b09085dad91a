package resource

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_PendingBudget(t *testing.T) {
	c := NewController(Config{PendingBytes: 100})
	assert.Equal(t, int64(100), c.PendingLimit())

	require.True(t, c.Reserve(50))
	require.True(t, c.Reserve(40))
	assert.Equal(t, int64(90), c.Pending())

	assert.False(t, c.Reserve(20))
	assert.Equal(t, int64(90), c.Pending(), "a refused reservation holds nothing")

	c.Release(50)
	assert.Equal(t, int64(40), c.Pending())
	require.True(t, c.Reserve(20))
	assert.Equal(t, int64(60), c.Pending())

	assert.True(t, c.Reserve(0))
	c.Release(-5)
	assert.Equal(t, int64(60), c.Pending())
}

func TestController_UnlimitedPending(t *testing.T) {
	c := NewController(Config{})

	require.True(t, c.Reserve(1<<40))
	assert.Equal(t, int64(1<<40), c.Pending())
	assert.Zero(t, c.PendingLimit())

	c.Release(1 << 39)
	assert.Equal(t, int64(1<<39), c.Pending())
}

func TestController_Compactions(t *testing.T) {
	c := NewController(Config{Compactions: 2})

	done1, ok := c.StartCompaction()
	require.True(t, ok)
	done2, ok := c.StartCompaction()
	require.True(t, ok)
	assert.Equal(t, int64(2), c.Compacting())

	_, ok = c.StartCompaction()
	assert.False(t, ok)

	done1()
	done1()
	assert.Equal(t, int64(1), c.Compacting())

	done3, ok := c.StartCompaction()
	require.True(t, ok)
	done2()
	done3()
	assert.Zero(t, c.Compacting())
}

func TestController_DefaultsToOneCompaction(t *testing.T) {
	c := NewController(Config{})
	done, ok := c.StartCompaction()
	require.True(t, ok)
	_, ok = c.StartCompaction()
	assert.False(t, ok)
	done()
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	assert.True(t, c.Reserve(1<<40))
	c.Release(10)
	assert.Zero(t, c.Pending())
	assert.Zero(t, c.PendingLimit())

	done, ok := c.StartCompaction()
	require.True(t, ok)
	done()
	assert.Zero(t, c.Compacting())

	require.NoError(t, c.Throttle(context.Background(), 1<<20))

	var buf bytes.Buffer
	assert.Same(t, &buf, c.Writer(context.Background(), &buf))
}

func TestController_ThrottleAboveBurst(t *testing.T) {
	c := NewController(Config{WriteBytesPerSec: 1 << 20})

	// A single request above the burst must not fail outright.
	require.NoError(t, c.Throttle(context.Background(), 1<<20+10))
}

func TestController_Writer(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{WriteBytesPerSec: 1 << 20})

	var buf bytes.Buffer
	n, err := c.Writer(ctx, &buf).Write([]byte("segment"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "segment", buf.String())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	slow := NewController(Config{WriteBytesPerSec: 1})
	_, err = slow.Writer(cancelled, io.Discard).Write([]byte("xx"))
	assert.Error(t, err)
}
