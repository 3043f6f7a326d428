package core

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// InsertionPolicy gates whether a follow-up StageRequest is admitted into
// the scheduler. Implementations must be safe for concurrent use:
// ShouldInsert may be called from multiple goroutines at once.
type InsertionPolicy interface {
	ShouldInsert(req *StageRequest) bool
	Reset()
}

// AlwaysInsert approves every request. It is the default policy.
type AlwaysInsert struct{}

func (AlwaysInsert) ShouldInsert(*StageRequest) bool { return true }
func (AlwaysInsert) Reset()                          {}

// NeverInsert rejects every request, turning the pipeline into a
// single-stage pass.
type NeverInsert struct{}

func (NeverInsert) ShouldInsert(*StageRequest) bool { return false }
func (NeverInsert) Reset()                          {}

// Saturation approves at most N requests across all samples. The counter
// is atomic; a rejected attempt does not consume a slot (the speculative
// increment is decremented back on rejection).
type Saturation struct {
	limit   int64
	counter atomic.Int64
}

func NewSaturation(n int) *Saturation {
	return &Saturation{limit: int64(n)}
}

func (p *Saturation) ShouldInsert(*StageRequest) bool {
	n := p.counter.Add(1)
	if n <= p.limit {
		return true
	}
	p.counter.Add(-1)
	return false
}

func (p *Saturation) Reset() {
	p.counter.Store(0)
}

// PerSampleLimit approves at most N requests per distinct sample id.
// Counts are kept in a lock-free concurrent map, the same pattern the
// teacher uses for its own per-key rate-limit bookkeeping.
type PerSampleLimit struct {
	limit  int64
	counts *xsync.Map[string, *atomic.Int64]
}

func NewPerSampleLimit(n int) *PerSampleLimit {
	return &PerSampleLimit{
		limit:  int64(n),
		counts: xsync.NewMap[string, *atomic.Int64](),
	}
}

func (p *PerSampleLimit) ShouldInsert(req *StageRequest) bool {
	counter, _ := p.counts.LoadOrCompute(req.Meta.SampleId, func() (*atomic.Int64, bool) {
		return new(atomic.Int64), false
	})
	n := counter.Add(1)
	if n <= p.limit {
		return true
	}
	counter.Add(-1)
	return false
}

func (p *PerSampleLimit) Reset() {
	p.counts.Clear()
}

// All is a conjunction of sub-policies: it approves iff every sub-policy
// approves. Evaluation is in list order; sub-policies must not rely on
// short-circuit being guaranteed.
type All struct {
	Policies []InsertionPolicy
}

func (p All) ShouldInsert(req *StageRequest) bool {
	ok := true
	for _, sub := range p.Policies {
		if !sub.ShouldInsert(req) {
			ok = false
		}
	}
	return ok
}

func (p All) Reset() {
	for _, sub := range p.Policies {
		sub.Reset()
	}
}

// Any is a disjunction of sub-policies: it approves iff at least one
// sub-policy approves.
type Any struct {
	Policies []InsertionPolicy
}

func (p Any) ShouldInsert(req *StageRequest) bool {
	ok := false
	for _, sub := range p.Policies {
		if sub.ShouldInsert(req) {
			ok = true
		}
	}
	return ok
}

func (p Any) Reset() {
	for _, sub := range p.Policies {
		sub.Reset()
	}
}
