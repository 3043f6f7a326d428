package stages

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saxsflow/saxsflow/core"
)

// scenario 1: no peaks anywhere terminates after one FindPeak invocation.
func TestScenarioNoPeaks(t *testing.T) {
	q := []float64{0.0, 0.1, 0.2}
	y := []float64{0.0, 0.0, 0.0}
	sigma := []float64{1.0, 1.0, 1.0}
	sample, err := core.NewSample("s1", q, y, sigma)
	require.NoError(t, err)

	fp := NewFindPeak(core.DefaultFindPeakConfig())
	meta := core.FlowMetadataFromSample(sample)
	result := fp.Process(sample, meta)

	assert.Equal(t, uint32(1), result.Sample.StageNum)
	assert.Empty(t, result.Requests)
	assert.Empty(t, result.Sample.Meta.Processed)
}

// scenario 2: a single Gaussian goes through exactly one
// FindPeak -> ProcessPeak -> FindPeak -> terminate cycle.
func TestScenarioSingleGaussian(t *testing.T) {
	const n = 100
	q := make([]float64, n)
	y := make([]float64, n)
	sigma := make([]float64, n)
	for i := 0; i < n; i++ {
		q[i] = 0.01 * float64(i)
		d := q[i] - 0.5
		y[i] = 2 * math.Exp(-(d*d)/0.01)
		sigma[i] = 0.1
	}
	sample, err := core.NewSample("s1", q, y, sigma)
	require.NoError(t, err)

	fp := NewFindPeak(core.DefaultFindPeakConfig())
	pp := NewProcessPeak(core.DefaultProcessPeakConfig())

	meta := core.FlowMetadataFromSample(sample)
	r1 := fp.Process(sample, meta)
	require.Len(t, r1.Requests, 1)
	assert.Equal(t, core.StageProcessPeak, r1.Requests[0].Id)

	r2 := pp.Process(r1.Sample, r1.Requests[0].Meta)
	require.Len(t, r2.Requests, 1)
	assert.Equal(t, core.StageFindPeak, r2.Requests[0].Id)
	assert.Contains(t, r2.Sample.Meta.Processed, 50)
	assert.Less(t, r2.Sample.Y[50], 1.0)

	r3 := fp.Process(r2.Sample, r2.Requests[0].Meta)
	assert.Empty(t, r3.Requests, "expected no further peaks above threshold")
}

// scenario 3: three separated peaks, first admitted ProcessPeak targets
// index 50 (the tallest); after three cycles all three are processed.
func TestScenarioThreeSeparatedPeaks(t *testing.T) {
	const n = 100
	q := make([]float64, n)
	y := make([]float64, n)
	sigma := make([]float64, n)
	for i := range q {
		q[i] = float64(i)
		sigma[i] = 1.0
	}
	y[20] = 2.0
	y[50] = 3.0
	y[80] = 1.5

	sample, err := core.NewSample("s1", q, y, sigma)
	require.NoError(t, err)

	cfg := core.FindPeakConfig{MinHeight: 1.0, MinProminence: 0.5, MinDistance: 1}
	fp := NewFindPeak(cfg)
	pp := NewProcessPeak(core.DefaultProcessPeakConfig())

	meta := core.FlowMetadataFromSample(sample)
	r := fp.Process(sample, meta)
	require.Len(t, r.Requests, 1)
	require.NotNil(t, r.Requests[0].Meta.Meta.Current)
	assert.Equal(t, 50, *r.Requests[0].Meta.Meta.Current)

	cur := r
	for i := 0; i < 3; i++ {
		pr := pp.Process(cur.Sample, cur.Requests[0].Meta)
		require.Len(t, pr.Requests, 1)
		fr := fp.Process(pr.Sample, pr.Requests[0].Meta)
		if len(fr.Requests) == 0 {
			cur = fr
			break
		}
		cur = fr
	}
	assert.Len(t, cur.Sample.Meta.Processed, 3)
}

func TestMinDistanceLessThanTwoDisablesFiltering(t *testing.T) {
	peaks := []core.Peak{{Index: 10, Value: 1}, {Index: 11, Value: 2}}
	assert.Len(t, filterByDistance(peaks, 1), 2)
}

// a pair of peaks exactly minDistance-1 apart must be suppressed: only
// |delta| >= minDistance survives.
func TestMinDistanceBoundarySuppressesOneShortOfLimit(t *testing.T) {
	peaks := []core.Peak{{Index: 10, Value: 2}, {Index: 19, Value: 1}}
	kept := filterByDistance(peaks, 10)
	require.Len(t, kept, 1)
	assert.Equal(t, 10, kept[0].Index)
}
