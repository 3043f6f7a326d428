package core

import (
	"container/heap"
	"sync"
)

// workHeap orders WorkItems with smallest Sample.StageNum first; ties are
// broken by larger PriorityBoost first. Further ties are unspecified.
// Straggler samples (fewest stages completed) are favoured so the whole
// batch advances evenly towards regroup-pool checkpoint readiness.
type workHeap []*WorkItem

func (h workHeap) Len() int { return len(h) }

func (h workHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Sample.StageNum != b.Sample.StageNum {
		return a.Sample.StageNum < b.Sample.StageNum
	}
	return a.PriorityBoost > b.PriorityBoost
}

func (h workHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workHeap) Push(x any) {
	*h = append(*h, x.(*WorkItem))
}

func (h *workHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PriorityScheduler keeps a priority queue of WorkItems ordered by
// smallest sample stage counter first, dispatching them through a
// StageRegistry. It does not itself admit follow-up requests: the outer
// driver (Runtime) consults an InsertionPolicy and calls Enqueue as
// needed, which is what lets the Runtime swap policies without touching
// the scheduler.
type PriorityScheduler struct {
	mu       sync.Mutex
	heap     workHeap
	registry *StageRegistry

	totalEnqueued  uint64
	totalProcessed uint64
}

// NewPriorityScheduler returns an empty scheduler dispatching through
// registry.
func NewPriorityScheduler(registry *StageRegistry) *PriorityScheduler {
	return &PriorityScheduler{registry: registry}
}

// Enqueue pushes item onto the heap and increments TotalEnqueued.
func (s *PriorityScheduler) Enqueue(item *WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.heap, item)
	s.totalEnqueued++
}

// Peek returns the top item without removing it.
func (s *PriorityScheduler) Peek() (*WorkItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return nil, false
	}
	return s.heap[0], true
}

// Pop removes and returns the top item.
func (s *PriorityScheduler) Pop() (*WorkItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return nil, false
	}
	return heap.Pop(&s.heap).(*WorkItem), true
}

// ProcessNext pops the top item, looks up its stage in the registry, and
// invokes it. If the lookup fails the item is dropped and ok is false
// without TotalProcessed being incremented; the caller decides whether to
// keep looping.
func (s *PriorityScheduler) ProcessNext() (result StageResult, ok bool) {
	item, has := s.Pop()
	if !has {
		return StageResult{}, false
	}

	stage, found := s.registry.Get(item.Id)
	if !found {
		return StageResult{}, false
	}

	result = stage.Process(item.Sample, item.Meta)

	s.mu.Lock()
	s.totalProcessed++
	s.mu.Unlock()

	return result, true
}

// IsEmpty reports whether the heap holds no items.
func (s *PriorityScheduler) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap) == 0
}

// Len returns the number of queued items.
func (s *PriorityScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// Clear empties the heap without touching the stats counters.
func (s *PriorityScheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heap = nil
}

// ResetStats zeroes TotalEnqueued and TotalProcessed.
func (s *PriorityScheduler) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalEnqueued = 0
	s.totalProcessed = 0
}

// Stats returns the current enqueue/process counters.
func (s *PriorityScheduler) Stats() (enqueued, processed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalEnqueued, s.totalProcessed
}
