package core

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// StageRegistry maps a StageId to a shared Stage handle. Lookup is
// concurrent-safe without an external lock, the same way the teacher
// keeps its per-key counters in a lock-free map instead of a
// mutex-guarded one.
type StageRegistry struct {
	stages *xsync.Map[StageId, Stage]
}

// NewStageRegistry returns an empty registry.
func NewStageRegistry() *StageRegistry {
	return &StageRegistry{stages: xsync.NewMap[StageId, Stage]()}
}

// NewDefaultStageRegistry returns a registry pre-populated with the two
// in-tree handlers: FindPeak and ProcessPeak.
func NewDefaultStageRegistry(findPeak, processPeak Stage) *StageRegistry {
	r := NewStageRegistry()
	r.Register(findPeak)
	r.Register(processPeak)
	return r
}

// Register stores stage under its own Id, replacing any prior handler.
func (r *StageRegistry) Register(stage Stage) {
	r.stages.Store(stage.Id(), stage)
}

// RegisterShared is an alias for Register kept for parity with the
// distilled spec's register_shared; in Go a Stage handle is always a
// shared reference, so there is nothing additional to do.
func (r *StageRegistry) RegisterShared(stage Stage) {
	r.Register(stage)
}

// Get returns the handler for id, or ok=false if none is registered.
func (r *StageRegistry) Get(id StageId) (Stage, bool) {
	return r.stages.Load(id)
}

// Contains reports whether id has a registered handler.
func (r *StageRegistry) Contains(id StageId) bool {
	_, ok := r.stages.Load(id)
	return ok
}

// Ids returns the set of currently registered stage ids.
func (r *StageRegistry) Ids() []StageId {
	ids := make([]StageId, 0, r.stages.Size())
	r.stages.Range(func(id StageId, _ Stage) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Remove deletes the handler for id, if any.
func (r *StageRegistry) Remove(id StageId) {
	r.stages.Delete(id)
}

// Clear removes every registered handler.
func (r *StageRegistry) Clear() {
	r.stages.Clear()
}
