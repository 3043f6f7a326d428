package core

import (
	"sort"
	"sync"
)

// RegroupPool buckets samples by their current stage counter and supports
// both checkpoint-barrier semantics (wait until a configured stage has
// accumulated an expected number of samples) and on-demand, non-blocking
// harvesting by minimum stage. Ordering within a bucket is insertion
// order; cross-bucket ordering is not guaranteed.
type RegroupPool struct {
	mu            sync.Mutex
	pools         map[uint32][]*Sample
	checkpoints   map[uint32]struct{}
	expectedCount int
}

// NewRegroupPool returns an empty pool with no checkpoints configured.
func NewRegroupPool() *RegroupPool {
	return &RegroupPool{
		pools:       make(map[uint32][]*Sample),
		checkpoints: make(map[uint32]struct{}),
	}
}

// Add pushes sample into the bucket keyed by its current stage counter.
func (p *RegroupPool) Add(sample *Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools[sample.StageNum] = append(p.pools[sample.StageNum], sample)
}

// SetCheckpoints replaces the checkpoint set.
func (p *RegroupPool) SetCheckpoints(stages []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkpoints = make(map[uint32]struct{}, len(stages))
	for _, s := range stages {
		p.checkpoints[s] = struct{}{}
	}
}

// AddCheckpoint adds a single checkpoint stage.
func (p *RegroupPool) AddCheckpoint(stage uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkpoints[stage] = struct{}{}
}

// ClearCheckpoints removes every configured checkpoint.
func (p *RegroupPool) ClearCheckpoints() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkpoints = make(map[uint32]struct{})
}

// IsCheckpoint reports whether stage is a configured checkpoint.
func (p *RegroupPool) IsCheckpoint(stage uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.checkpoints[stage]
	return ok
}

// SetExpectedCount sets the sample count used to test checkpoint
// readiness.
func (p *RegroupPool) SetExpectedCount(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedCount = n
}

// isReadyLocked reports checkpoint readiness for stage s: s is a
// checkpoint, an expected count has been set, and the bucket has reached
// it. Caller must hold p.mu.
func (p *RegroupPool) isReadyLocked(s uint32) bool {
	if _, checkpoint := p.checkpoints[s]; !checkpoint {
		return false
	}
	return p.expectedCount > 0 && len(p.pools[s]) >= p.expectedCount
}

// CollectAtStage drains bucket s if s is not a checkpoint, or if it is a
// checkpoint that has reached readiness. Otherwise it returns ok=false
// ("not ready") and leaves the bucket untouched.
func (p *RegroupPool) CollectAtStage(s uint32) (samples []*Sample, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, isCheckpoint := p.checkpoints[s]
	if isCheckpoint && !p.isReadyLocked(s) {
		return nil, false
	}

	samples = p.pools[s]
	delete(p.pools, s)
	return samples, true
}

// CollectCheckpoint drains bucket s iff checkpoint s has reached
// readiness.
func (p *RegroupPool) CollectCheckpoint(s uint32) (samples []*Sample, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isReadyLocked(s) {
		return nil, false
	}

	samples = p.pools[s]
	delete(p.pools, s)
	return samples, true
}

// Regroup drains every bucket keyed >= minStage and concatenates them in
// unspecified order, ignoring checkpoint configuration entirely: this is
// the "take what is done" path.
func (p *RegroupPool) Regroup(minStage uint32) []*Sample {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*Sample
	for stage, samples := range p.pools {
		if stage >= minStage {
			out = append(out, samples...)
			delete(p.pools, stage)
		}
	}
	return out
}

// PeekAtStage returns the (unmodified) contents of bucket s.
func (p *RegroupPool) PeekAtStage(s uint32) []*Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Sample(nil), p.pools[s]...)
}

// CountAtStage returns the number of samples currently in bucket s.
func (p *RegroupPool) CountAtStage(s uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pools[s])
}

// TotalCount returns the number of samples across all buckets.
func (p *RegroupPool) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, samples := range p.pools {
		total += len(samples)
	}
	return total
}

// StagesWithSamples returns, in ascending order, the stage counters that
// currently have at least one sample.
func (p *RegroupPool) StagesWithSamples() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	stages := make([]uint32, 0, len(p.pools))
	for stage, samples := range p.pools {
		if len(samples) > 0 {
			stages = append(stages, stage)
		}
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	return stages
}

// Clear empties every bucket without touching checkpoint configuration.
func (p *RegroupPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools = make(map[uint32][]*Sample)
}

// Reset clears pools and expected count but preserves checkpoint
// configuration.
func (p *RegroupPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools = make(map[uint32][]*Sample)
	p.expectedCount = 0
}
