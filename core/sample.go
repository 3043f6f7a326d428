package core

import (
	"fmt"
	"unicode/utf8"
)

// Sample holds one SAXS curve: an identifier, three equal-length vectors
// (abscissa q, intensity y, intensity error sigma), a monotone stage
// counter, and the bookkeeping metadata carried between stage invocations.
//
// A Sample is exclusively owned by whichever collection currently holds it
// (pending list, scheduler heap, regroup pool, or completed store); it is
// never aliased across two of those at once.
type Sample struct {
	Id       string
	Q        []float64
	Y        []float64
	Sigma    []float64
	StageNum uint32
	Meta     SampleMetadata
}

// NewSample validates the three vectors and constructs a Sample with an
// empty SampleMetadata and stage counter zero.
func NewSample(id string, q, y, sigma []float64) (*Sample, error) {
	if !utf8.ValidString(id) {
		return nil, ErrInvalidUTF8
	}
	if len(q) != len(y) || len(y) != len(sigma) {
		return nil, fmt.Errorf("%w: len(q)=%d len(y)=%d len(sigma)=%d",
			ErrLengthMismatch, len(q), len(y), len(sigma))
	}
	return &Sample{
		Id:    id,
		Q:     q,
		Y:     y,
		Sigma: sigma,
		Meta:  NewSampleMetadata(),
	}, nil
}

// Clone returns a deep copy of the sample, suitable for admitting a
// follow-up stage request while the producing stage's own copy moves to
// the regroup pool or completed store.
func (s *Sample) Clone() *Sample {
	c := &Sample{
		Id:       s.Id,
		Q:        append([]float64(nil), s.Q...),
		Y:        append([]float64(nil), s.Y...),
		Sigma:    append([]float64(nil), s.Sigma...),
		StageNum: s.StageNum,
		Meta:     s.Meta.clone(),
	}
	return c
}

// SampleMetadata tracks per-index peak bookkeeping for a sample:
// unprocessed candidate peaks (index -> intensity), processed peaks
// (index -> fitted amplitude), and at most one index currently being
// worked on. The three key sets are pairwise disjoint at all times.
type SampleMetadata struct {
	Unprocessed map[int]float64
	Processed   map[int]float64
	Current     *int
}

func NewSampleMetadata() SampleMetadata {
	return SampleMetadata{
		Unprocessed: make(map[int]float64),
		Processed:   make(map[int]float64),
	}
}

func (m SampleMetadata) clone() SampleMetadata {
	c := SampleMetadata{
		Unprocessed: make(map[int]float64, len(m.Unprocessed)),
		Processed:   make(map[int]float64, len(m.Processed)),
	}
	for k, v := range m.Unprocessed {
		c.Unprocessed[k] = v
	}
	for k, v := range m.Processed {
		c.Processed[k] = v
	}
	if m.Current != nil {
		cur := *m.Current
		c.Current = &cur
	}
	return c
}

// FlowMetadata is the detached, transferable copy of a sample's metadata
// carried between stage invocations so a handler can mutate bookkeeping
// without aliasing the sample's own SampleMetadata. It is written back
// onto the sample after the stage returns.
type FlowMetadata struct {
	SampleId string
	Meta     SampleMetadata
}

// FlowMetadataFromSample detaches a FlowMetadata from the sample's current
// metadata, ready to be carried into a Stage.Process call.
func FlowMetadataFromSample(s *Sample) FlowMetadata {
	return FlowMetadata{
		SampleId: s.Id,
		Meta:     s.Meta.clone(),
	}
}

// ApplyToSample writes the flow metadata back onto the sample's own
// SampleMetadata, replacing it wholesale.
func (f FlowMetadata) ApplyToSample(s *Sample) {
	s.Meta = f.Meta
}

// SelectHighestPeak removes the unprocessed entry with the maximum
// intensity, sets it as Current, and returns its index. Returns false if
// Unprocessed is empty. Tie-breaking among equal maxima is deterministic
// for a single run (lowest index wins) but otherwise unspecified.
func (f *FlowMetadata) SelectHighestPeak() (int, bool) {
	best := -1
	bestVal := 0.0
	for idx, val := range f.Meta.Unprocessed {
		if best == -1 || val > bestVal || (val == bestVal && idx < best) {
			best, bestVal = idx, val
		}
	}
	if best == -1 {
		return 0, false
	}
	delete(f.Meta.Unprocessed, best)
	f.Meta.Current = &best
	return best, true
}

// MarkCurrentProcessed moves Current into Processed with the given fitted
// amplitude and clears Current. No-op if Current is unset.
func (f *FlowMetadata) MarkCurrentProcessed(amplitude float64) {
	if f.Meta.Current == nil {
		return
	}
	f.Meta.Processed[*f.Meta.Current] = amplitude
	f.Meta.Current = nil
}

// Peak is a local maximum of an intensity vector: its index, value, and
// prominence. Peaks are never stored; they only flow through FindPeak.
type Peak struct {
	Index      int
	Value      float64
	Prominence float64
}
