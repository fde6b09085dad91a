package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_Terms(t *testing.T) {
	doc := NewDocument()
	require.NoError(t, doc.AddTerm("cat", 2))
	require.NoError(t, doc.AddPosting("dog", 7, 1))
	require.NoError(t, doc.AddPosting("dog", 3, 1))
	require.NoError(t, doc.AddPosting("dog", 3, 0))

	assert.ErrorIs(t, doc.AddTerm("", 1), ErrEmptyTerm)
	assert.Equal(t, []string{"cat", "dog"}, doc.TermList())
	assert.Equal(t, uint64(4), doc.Length())
	assert.Equal(t, []uint32{3, 7}, doc.Term("dog").Positions)
	assert.True(t, doc.HasPositions())

	doc.RemoveTerm("dog")
	assert.False(t, doc.HasTerm("dog"))
	assert.False(t, doc.HasPositions())
}

func TestDocument_Values(t *testing.T) {
	doc := NewDocument().WithValue(1, []byte("b"))
	assert.Equal(t, []byte("b"), doc.Value(1))

	doc.SetValue(1, nil)
	assert.Nil(t, doc.Value(1))
	assert.Empty(t, doc.Values)
}

func TestDocument_CloneIsDeep(t *testing.T) {
	doc := NewDocument().
		WithData([]byte("body")).
		WithPosting("a", 1).
		WithValue(0, []byte("v"))

	c := doc.Clone()
	c.Data[0] = 'B'
	c.Terms["a"].Positions[0] = 9
	c.Values[0][0] = 'x'

	assert.Equal(t, []byte("body"), doc.Data)
	assert.Equal(t, []uint32{1}, doc.Term("a").Positions)
	assert.Equal(t, []byte("v"), doc.Value(0))
}
