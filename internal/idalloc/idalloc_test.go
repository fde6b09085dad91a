package idalloc

import (
	"testing"

	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_Sequential(t *testing.T) {
	a := New(0)
	for want := model.DocID(1); want <= 5; want++ {
		got, err := a.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, uint64(6), a.Peek())
}

func TestAllocator_Observe(t *testing.T) {
	a := New(1)
	a.Observe(10)
	did, err := a.Next()
	require.NoError(t, err)
	assert.Equal(t, model.DocID(11), did)

	// lower ids never move the counter back
	a.Observe(3)
	did, err = a.Next()
	require.NoError(t, err)
	assert.Equal(t, model.DocID(12), did)
}

func TestAllocator_Exhausted(t *testing.T) {
	a := New(1)
	a.Observe(model.MaxDocID)

	_, err := a.Next()
	assert.ErrorIs(t, err, shard.ErrResourceExhausted)

	// stays exhausted, no wraparound
	_, err = a.Next()
	assert.ErrorIs(t, err, shard.ErrResourceExhausted)

	a.Reset(7)
	did, err := a.Next()
	require.NoError(t, err)
	assert.Equal(t, model.DocID(7), did)
}
