package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleLengthMismatch(t *testing.T) {
	_, err := NewSample("s1", []float64{1, 2}, []float64{1}, []float64{1, 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestNewSampleInvalidUTF8(t *testing.T) {
	_, err := NewSample(string([]byte{0xff, 0xfe}), []float64{1}, []float64{1}, []float64{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestSampleMetadataKeysDisjoint(t *testing.T) {
	s, err := NewSample("s1", []float64{0, 1, 2}, []float64{0, 1, 0}, []float64{1, 1, 1})
	require.NoError(t, err)

	flow := FlowMetadataFromSample(s)
	flow.Meta.Unprocessed[1] = 1.0
	idx, ok := flow.SelectHighestPeak()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, stillUnprocessed := flow.Meta.Unprocessed[idx]
	assert.False(t, stillUnprocessed)
	require.NotNil(t, flow.Meta.Current)
	assert.Equal(t, idx, *flow.Meta.Current)

	flow.MarkCurrentProcessed(1.0)
	assert.Nil(t, flow.Meta.Current)
	assert.Contains(t, flow.Meta.Processed, idx)
}

func TestSampleCloneIsDeep(t *testing.T) {
	s, err := NewSample("s1", []float64{0, 1}, []float64{0, 1}, []float64{1, 1})
	require.NoError(t, err)

	clone := s.Clone()
	clone.Y[0] = 99
	assert.NotEqual(t, s.Y[0], clone.Y[0])
}
