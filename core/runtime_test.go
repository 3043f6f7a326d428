package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a terminal-on-first-invocation stage, for exercising Runtime plumbing
// without depending on the stages package.
type terminalStage struct{}

func (terminalStage) Id() StageId  { return StageFindPeak }
func (terminalStage) Name() string { return "FindPeak" }
func (terminalStage) Process(sample *Sample, meta FlowMetadata) StageResult {
	sample.StageNum++
	return StageResult{Sample: sample, Meta: meta}
}

func newTestRuntime() *Runtime {
	registry := NewStageRegistry()
	registry.Register(terminalStage{})
	return NewRuntime(registry, RuntimeConfig{WorkerCount: 2})
}

func TestRunSyncDrainsToCompleted(t *testing.T) {
	rt := newTestRuntime()
	s, err := NewSample("s1", []float64{0, 1, 2}, []float64{0, 0, 0}, []float64{1, 1, 1})
	require.NoError(t, err)
	rt.AddSample(s)

	require.NoError(t, rt.RunSync())
	assert.Equal(t, 1, rt.CompletedCount())
	assert.Equal(t, 0, rt.PendingCount())
}

func TestRunAsyncInvokesCallbacksOnce(t *testing.T) {
	rt := newTestRuntime()
	for i := 0; i < 5; i++ {
		s, err := NewSample("s", []float64{0}, []float64{0}, []float64{1})
		require.NoError(t, err)
		rt.AddSample(s)
	}

	completeCh := make(chan Status, 1)
	var sampleCount int
	var progressCalls int
	done := make(chan struct{})

	rt.RunAsync(
		func(status Status) { completeCh <- status; close(done) },
		func(stage uint32, completed, total int) { progressCalls++ },
		func(sample *Sample) { sampleCount++ },
	)

	<-done
	status := <-completeCh
	assert.Equal(t, StatusOk, status)
	assert.Equal(t, 5, sampleCount)
	assert.Equal(t, 5, progressCalls)
}

func TestRegroupTruncationReturnsOverflowToCompleted(t *testing.T) {
	rt := newTestRuntime()
	rt.pool.Add(&Sample{Id: "a", StageNum: 5})
	rt.pool.Add(&Sample{Id: "b", StageNum: 5})
	rt.pool.Add(&Sample{Id: "c", StageNum: 5})

	out := rt.Regroup(5, 2)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, rt.CompletedCount(), "overflow sample should land in completed, not back in the pool")
}

func TestResetClearsEverything(t *testing.T) {
	rt := newTestRuntime()
	s, err := NewSample("s1", []float64{0}, []float64{0}, []float64{1})
	require.NoError(t, err)
	rt.AddSample(s)
	require.NoError(t, rt.RunSync())
	require.Equal(t, 1, rt.CompletedCount())

	rt.Reset()
	assert.Equal(t, 0, rt.CompletedCount())
	assert.Equal(t, 0, rt.PendingCount())
}
