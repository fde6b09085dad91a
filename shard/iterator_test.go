package shard

import (
	"errors"
	"testing"

	"github.com/hupe1980/shardex/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceIterator(t *testing.T) {
	it := NewSliceIterator([]Posting{{DocID: 1, WDF: 2}, {DocID: 4, WDF: 1}})
	got, err := Collect[Posting](it)
	require.NoError(t, err)
	assert.Equal(t, []Posting{{DocID: 1, WDF: 2}, {DocID: 4, WDF: 1}}, got)

	_, ok := it.Next()
	assert.False(t, ok)
}

func TestFuncIterator_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	n := 0
	closed := false
	it := NewFuncIterator(func() (model.DocID, bool, error) {
		n++
		if n == 3 {
			return 0, false, boom
		}
		return model.DocID(n), true, nil
	}, func() error {
		closed = true
		return nil
	})

	got, err := Collect[model.DocID](it)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []model.DocID{1, 2}, got)
	assert.True(t, closed)

	_, ok := it.Next()
	assert.False(t, ok)
	assert.Equal(t, 3, n)
}

func TestAll(t *testing.T) {
	var terms []string
	for e, err := range All[TermEntry](NewSliceIterator([]TermEntry{{Term: "a"}, {Term: "b"}})) {
		require.NoError(t, err)
		terms = append(terms, e.Term)
	}
	assert.Equal(t, []string{"a", "b"}, terms)

	var gotErr error
	for _, err := range All[string](ErrIterator[string](ErrUnimplemented)) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, ErrUnimplemented)
}
