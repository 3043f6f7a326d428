package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenario 5: expected count 3, checkpoint at stage 5, two samples added.
func TestRegroupCheckpointBarrier(t *testing.T) {
	pool := NewRegroupPool()
	pool.AddCheckpoint(5)
	pool.SetExpectedCount(3)

	pool.Add(&Sample{Id: "a", StageNum: 5})
	pool.Add(&Sample{Id: "b", StageNum: 5})

	_, ok := pool.CollectCheckpoint(5)
	assert.False(t, ok)

	pool.Add(&Sample{Id: "c", StageNum: 5})
	samples, ok := pool.CollectCheckpoint(5)
	require.True(t, ok)
	assert.Len(t, samples, 3)
}

func TestRegroupCollectAtStageNonCheckpointAlwaysDrains(t *testing.T) {
	pool := NewRegroupPool()
	pool.Add(&Sample{Id: "a", StageNum: 2})

	samples, ok := pool.CollectAtStage(2)
	require.True(t, ok)
	assert.Len(t, samples, 1)
	assert.Equal(t, 0, pool.CountAtStage(2))
}

// after regroup(k, inf), no sample with stage_num >= k remains in the pool.
func TestRegroupOnDemandIgnoresCheckpoints(t *testing.T) {
	pool := NewRegroupPool()
	pool.AddCheckpoint(5)
	pool.SetExpectedCount(100) // never reachable
	pool.Add(&Sample{Id: "a", StageNum: 5})
	pool.Add(&Sample{Id: "b", StageNum: 7})
	pool.Add(&Sample{Id: "c", StageNum: 1})

	out := pool.Regroup(5)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, pool.CountAtStage(1))
	assert.Equal(t, 0, pool.CountAtStage(5))
	assert.Equal(t, 0, pool.CountAtStage(7))
}

func TestRegroupResetPreservesCheckpoints(t *testing.T) {
	pool := NewRegroupPool()
	pool.AddCheckpoint(5)
	pool.SetExpectedCount(2)
	pool.Add(&Sample{Id: "a", StageNum: 5})

	pool.Reset()
	assert.Equal(t, 0, pool.TotalCount())
	assert.True(t, pool.IsCheckpoint(5))

	pool.Add(&Sample{Id: "b", StageNum: 5})
	_, ok := pool.CollectCheckpoint(5)
	assert.False(t, ok, "expected count was cleared by Reset")
}

func TestRegroupStagesWithSamplesSortedAscending(t *testing.T) {
	pool := NewRegroupPool()
	pool.Add(&Sample{Id: "a", StageNum: 9})
	pool.Add(&Sample{Id: "b", StageNum: 1})
	pool.Add(&Sample{Id: "c", StageNum: 5})

	assert.Equal(t, []uint32{1, 5, 9}, pool.StagesWithSamples())
}
