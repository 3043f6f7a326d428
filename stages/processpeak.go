package stages

import (
	"math"

	"github.com/saxsflow/saxsflow/core"
)

// ProcessPeak fits a Gaussian to the flow metadata's current peak,
// subtracts it from the intensity vector, and emits one FindPeak request.
type ProcessPeak struct {
	Config core.ProcessPeakConfig
}

func NewProcessPeak(cfg core.ProcessPeakConfig) *ProcessPeak {
	return &ProcessPeak{Config: cfg}
}

func (s *ProcessPeak) Id() core.StageId { return core.StageProcessPeak }
func (s *ProcessPeak) Name() string     { return "ProcessPeak" }

func (s *ProcessPeak) Process(sample *core.Sample, meta core.FlowMetadata) core.StageResult {
	cur := meta.Meta.Current
	if cur == nil || *cur < 0 || *cur >= len(sample.Y) {
		meta.Meta.Current = nil
		meta.ApplyToSample(sample)
		return core.StageResult{Sample: sample, Meta: meta}
	}
	p := *cur

	deltaQ := averageSpacing(sample.Q)
	mu0, a0 := fitParabolaVertex(sample.Q, sample.Y, p, s.Config.ParabolaRange)
	sigma := estimateSigma(sample.Y, p, s.Config.ParabolaRange, deltaQ, a0)

	mu := mu0
	for iter := 0; iter < 5; iter++ {
		half := int(math.Ceil(sigma * s.Config.GaussianRangeMultiplier / deltaQ))
		lo := max(0, p-half)
		hi := min(len(sample.Y)-1, p+half)

		var sumWY, sumWYQ, sumWYVar float64
		for i := lo; i <= hi; i++ {
			w := math.Max(sample.Y[i], 0)
			wy := w * sample.Y[i]
			sumWY += wy
			sumWYQ += wy * sample.Q[i]
		}
		if sumWY > 1e-10 {
			mu = sumWYQ / sumWY
		}
		for i := lo; i <= hi; i++ {
			w := math.Max(sample.Y[i], 0)
			wy := w * sample.Y[i]
			d := sample.Q[i] - mu
			sumWYVar += wy * d * d
		}
		if sumWY > 1e-10 {
			sigma = math.Sqrt(sumWYVar / sumWY)
		}
		sigma = math.Max(sigma, 0.01)
	}

	a := sample.Y[p]
	for i := range sample.Y {
		d := sample.Q[i] - mu
		g := a * math.Exp(-(d*d)/(sigma*sigma))
		sample.Y[i] = math.Max(sample.Y[i]-g, 0)
	}

	meta.MarkCurrentProcessed(a)
	meta.ApplyToSample(sample)
	sample.StageNum++

	return core.StageResult{
		Sample:   sample,
		Meta:     meta,
		Requests: []core.StageRequest{{Id: core.StageFindPeak, Meta: meta}},
	}
}

// averageSpacing returns the mean step between consecutive abscissa
// points, or 1.0 for a degenerate single-point vector.
func averageSpacing(q []float64) float64 {
	if len(q) < 2 {
		return 1.0
	}
	return (q[len(q)-1] - q[0]) / float64(len(q)-1)
}

// fitParabolaVertex least-squares fits a quadratic through the window
// [p-parabolaRange, p+parabolaRange] and returns its vertex abscissa and
// the sampled amplitude at p. On insufficient support (<3 points) it
// falls back to (q[p], y[p]).
func fitParabolaVertex(q, y []float64, p, parabolaRange int) (mu0, a0 float64) {
	lo := max(0, p-parabolaRange)
	hi := min(len(y)-1, p+parabolaRange)
	a0 = y[p]

	n := hi - lo + 1
	if n < 3 {
		return q[p], a0
	}

	var sx, sx2, sx3, sx4, sy, sxy, sx2y float64
	for i := lo; i <= hi; i++ {
		x, v := q[i], y[i]
		x2 := x * x
		sx += x
		sx2 += x2
		sx3 += x2 * x
		sx4 += x2 * x2
		sy += v
		sxy += x * v
		sx2y += x2 * v
	}
	fn := float64(n)

	// normal equations for y = a*x^2 + b*x + c
	det := fn*(sx2*sx4-sx3*sx3) - sx*(sx*sx4-sx2*sx3) + sx2*(sx*sx3-sx2*sx2)
	if math.Abs(det) < 1e-12 {
		return q[p], a0
	}

	detA := fn*(sx2*sx2y-sx3*sxy) - sx*(sx*sx2y-sx2*sxy) + sy*(sx*sx3-sx2*sx2)
	detB := fn*(sxy*sx4-sx2y*sx3) - sy*(sx*sx4-sx2*sx3) + sx2*(sx*sx2y-sx2*sxy)
	a := detA / det
	b := detB / det
	if math.Abs(a) < 1e-12 {
		return q[p], a0
	}

	mu0 = -b / (2 * a)
	return mu0, a0
}

// estimateSigma computes the initial width estimate from the discrete
// second derivative of y at the centre of the [p-parabolaRange,
// p+parabolaRange] window (not necessarily p itself, since the window is
// clamped and asymmetric near the curve's ends). On insufficient support
// (<3 points in the window) it falls back to sigma0=0.1.
func estimateSigma(y []float64, p, parabolaRange int, deltaQ, a0 float64) float64 {
	lo := max(0, p-parabolaRange)
	hi := min(len(y)-1, p+parabolaRange)
	n := hi - lo + 1
	if n < 3 {
		return 0.1
	}

	mid := lo + n/2
	var sigma float64
	d2 := (y[mid+1] - 2*y[mid] + y[mid-1]) / (deltaQ * deltaQ)
	if d2 < -1e-10 {
		sigma = math.Sqrt(-a0 / d2)
	} else {
		sigma = 3 * deltaQ
	}
	return math.Max(sigma, 0.01)
}
