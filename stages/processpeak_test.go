package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saxsflow/saxsflow/core"
)

func TestProcessPeakUnsetCurrentIsTerminalWithoutIncrement(t *testing.T) {
	sample, err := core.NewSample("s1", []float64{0, 1, 2}, []float64{0, 1, 0}, []float64{1, 1, 1})
	require.NoError(t, err)

	pp := NewProcessPeak(core.DefaultProcessPeakConfig())
	meta := core.FlowMetadataFromSample(sample)

	result := pp.Process(sample, meta)
	assert.Empty(t, result.Requests)
	assert.Equal(t, uint32(0), result.Sample.StageNum)
}

func TestProcessPeakOutOfRangeCurrentIsTerminalWithoutIncrement(t *testing.T) {
	sample, err := core.NewSample("s1", []float64{0, 1, 2}, []float64{0, 1, 0}, []float64{1, 1, 1})
	require.NoError(t, err)

	pp := NewProcessPeak(core.DefaultProcessPeakConfig())
	meta := core.FlowMetadataFromSample(sample)
	outOfRange := 99
	meta.Meta.Current = &outOfRange

	result := pp.Process(sample, meta)
	assert.Empty(t, result.Requests)
	assert.Equal(t, uint32(0), result.Sample.StageNum)
	assert.Nil(t, result.Sample.Meta.Current)
}

func TestProcessPeakSubtractionNeverGoesNegative(t *testing.T) {
	const n = 50
	q := make([]float64, n)
	y := make([]float64, n)
	sigma := make([]float64, n)
	for i := range q {
		q[i] = float64(i) * 0.1
		sigma[i] = 1
	}
	y[25] = 5.0

	sample, err := core.NewSample("s1", q, y, sigma)
	require.NoError(t, err)

	meta := core.FlowMetadataFromSample(sample)
	p := 25
	meta.Meta.Current = &p

	pp := NewProcessPeak(core.DefaultProcessPeakConfig())
	result := pp.Process(sample, meta)

	for _, v := range result.Sample.Y {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.Equal(t, uint32(1), result.Sample.StageNum)
	assert.Contains(t, result.Sample.Meta.Processed, 25)
}

// estimateSigma must evaluate the second derivative at the clamped
// window's centre, not at p, once the window is asymmetric near the
// start of the curve.
func TestEstimateSigmaUsesWindowCentreNearCurveStart(t *testing.T) {
	// p=1, parabolaRange=5 clamps the window to [0,6] (centre index 3),
	// where y has a sharp spike unrelated to the flat region around p.
	y := []float64{1, 1, 1, 5, 1, 1, 1, 1, 1, 1}
	sigma := estimateSigma(y, 1, 5, 1.0, 1.0)
	// evaluating at the window centre (index 3) sees a sharp spike and
	// yields ~sqrt(0.125); evaluating at p=1 instead would see a flat
	// region (d2=0) and fall back to the 3*deltaQ=3.0 default.
	assert.InDelta(t, 0.3535, sigma, 1e-3)
}

// fewer than 3 points of window support falls back to sigma0=0.1.
func TestEstimateSigmaFallsBackWhenWindowTooNarrow(t *testing.T) {
	y := []float64{1, 5}
	sigma := estimateSigma(y, 1, 0, 1.0, 5.0)
	assert.Equal(t, 0.1, sigma)
}
