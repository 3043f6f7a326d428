package core

import (
	"context"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"
)

// RuntimeConfig parameterizes a Runtime. WorkerCount of zero means
// auto-detect to runtime.NumCPU(). MaxStages is currently informational
// and reserved for a future cap on stage depth.
type RuntimeConfig struct {
	WorkerCount int
	MaxStages   *uint32
}

// ResultSink observes terminal samples. Sinks are best-effort: a sink
// error is logged and never affects the batch's outcome.
type ResultSink interface {
	Publish(ctx context.Context, sample *Sample) error
}

// ProgressEventKind distinguishes the two shapes a ProgressEvent can
// take: a batch-wide progress tick, or a single terminal sample.
type ProgressEventKind int

const (
	ProgressTick ProgressEventKind = iota
	ProgressSample
)

// ProgressEvent is published on the Runtime's internal fan-out channel
// (Subscribe) and mirrors the on_progress/on_sample callback pair: both
// mechanisms observe the same events, the channel form existing
// alongside the callbacks for idiomatic internal consumers like the live
// feed.
type ProgressEvent struct {
	Kind      ProgressEventKind
	Stage     uint32
	Completed int
	Total     int
	Sample    *Sample
}

// Runtime owns the registry, pending list, scheduler, regroup pool, and
// insertion policy, and drives synchronous and asynchronous batch
// execution over them.
type Runtime struct {
	zerolog.Logger

	registry  *StageRegistry
	scheduler *PriorityScheduler
	pool      *RegroupPool

	policyMu sync.RWMutex
	policy   InsertionPolicy

	pendingMu sync.Mutex
	pending   []*Sample

	completedMu    sync.Mutex
	completed      []*Sample
	completedCount atomic.Int64

	cancelled atomic.Bool

	workerCount int
	maxStages   *uint32

	seedStage StageId

	metrics *metrics.Set

	subsMu sync.Mutex
	subs   []chan ProgressEvent

	sinksMu sync.Mutex
	sinks   []ResultSink
}

// NewRuntime constructs a Runtime dispatching through registry, with the
// given configuration. The seed stage every freshly admitted sample
// enters the pipeline at defaults to FindPeak per the distilled spec, but
// is treated as a configuration input (SetSeedStage) rather than
// hard-wired, per the open design question on starting stage.
func NewRuntime(registry *StageRegistry, cfg RuntimeConfig) *Runtime {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = max(1, runtime.NumCPU())
	}

	r := &Runtime{
		Logger:      zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).With().Str("component", "runtime").Timestamp().Logger(),
		registry:    registry,
		scheduler:   NewPriorityScheduler(registry),
		pool:        NewRegroupPool(),
		policy:      AlwaysInsert{},
		workerCount: workers,
		maxStages:   cfg.MaxStages,
		seedStage:   StageFindPeak,
		metrics:     metrics.NewSet(),
	}
	r.registerMetrics()
	return r
}

func (r *Runtime) registerMetrics() {
	r.metrics.NewGauge("saxs_samples_pending", func() float64 {
		return float64(r.PendingCount())
	})
	r.metrics.NewGauge("saxs_samples_completed_total", func() float64 {
		return float64(r.completedCount.Load())
	})
	r.metrics.NewGauge("saxs_scheduler_enqueued_total", func() float64 {
		enq, _ := r.scheduler.Stats()
		return float64(enq)
	})
	r.metrics.NewGauge("saxs_scheduler_processed_total", func() float64 {
		_, proc := r.scheduler.Stats()
		return float64(proc)
	})
}

// Metrics returns the live metrics set, for mounting on an HTTP handler.
func (r *Runtime) Metrics() *metrics.Set { return r.metrics }

// Subscribe returns a channel-based tap of every ProgressEvent emitted by
// this Runtime, independent of the on_progress/on_sample callbacks passed
// to RunAsync.
func (r *Runtime) Subscribe() <-chan ProgressEvent {
	ch := make(chan ProgressEvent, 64)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()
	return ch
}

func (r *Runtime) publish(ev ProgressEvent) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop rather than block the runtime
		}
	}
}

// AttachSink registers an additional observer of terminal samples.
func (r *Runtime) AttachSink(sink ResultSink) {
	r.sinksMu.Lock()
	defer r.sinksMu.Unlock()
	r.sinks = append(r.sinks, sink)
}

func (r *Runtime) publishToSinks(sample *Sample) {
	r.sinksMu.Lock()
	sinks := append([]ResultSink(nil), r.sinks...)
	r.sinksMu.Unlock()

	for _, sink := range sinks {
		if err := sink.Publish(context.Background(), sample); err != nil {
			r.Warn().Err(err).Str("sample", sample.Id).Msg("sink publish failed")
		}
	}
}

// SetSeedStage overrides the stage every pending sample is seeded with
// when RunSync/RunAsync starts. Defaults to FindPeak.
func (r *Runtime) SetSeedStage(id StageId) { r.seedStage = id }

// AddSample appends s to the pending list.
func (r *Runtime) AddSample(s *Sample) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	r.pending = append(r.pending, s)
}

// AddSamples appends every sample in ss to the pending list.
func (r *Runtime) AddSamples(ss []*Sample) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	r.pending = append(r.pending, ss...)
}

// SetCheckpoints delegates to the regroup pool.
func (r *Runtime) SetCheckpoints(stages []uint32) { r.pool.SetCheckpoints(stages) }

// ClearCheckpoints delegates to the regroup pool.
func (r *Runtime) ClearCheckpoints() { r.pool.ClearCheckpoints() }

// PoolStagesWithSamples, PoolCountAtStage, and PoolIsCheckpoint expose a
// read-only view of the regroup pool for introspection endpoints.
func (r *Runtime) PoolStagesWithSamples() []uint32 { return r.pool.StagesWithSamples() }
func (r *Runtime) PoolCountAtStage(s uint32) int    { return r.pool.CountAtStage(s) }
func (r *Runtime) PoolIsCheckpoint(s uint32) bool   { return r.pool.IsCheckpoint(s) }

// SetInsertionPolicy swaps the active insertion policy.
func (r *Runtime) SetInsertionPolicy(p InsertionPolicy) {
	r.policyMu.Lock()
	defer r.policyMu.Unlock()
	r.policy = p
}

func (r *Runtime) currentPolicy() InsertionPolicy {
	r.policyMu.RLock()
	defer r.policyMu.RUnlock()
	return r.policy
}

// PendingCount is the number of samples not yet terminal: those still in
// the pending list plus those queued in the scheduler.
func (r *Runtime) PendingCount() int {
	r.pendingMu.Lock()
	n := len(r.pending)
	r.pendingMu.Unlock()
	return n + r.scheduler.Len()
}

// CompletedCount is the number of terminal samples collected so far.
func (r *Runtime) CompletedCount() int {
	r.completedMu.Lock()
	defer r.completedMu.Unlock()
	return len(r.completed)
}

// seedPending moves every pending sample into the scheduler as a
// WorkItem at the runtime's seed stage, and returns how many were seeded.
func (r *Runtime) seedPending() int {
	r.pendingMu.Lock()
	batch := r.pending
	r.pending = nil
	r.pendingMu.Unlock()

	for _, s := range batch {
		r.scheduler.Enqueue(&WorkItem{
			Sample: s,
			Meta:   FlowMetadataFromSample(s),
			Id:     r.seedStage,
		})
	}
	return len(batch)
}

// admit applies the result of one stage invocation: terminal samples go
// to completed (and sinks), otherwise each admitted request clones the
// sample and becomes a new work item, and a snapshot is placed in the
// regroup pool under the sample's current stage counter.
func (r *Runtime) admit(result StageResult) {
	result.Meta.ApplyToSample(result.Sample)

	if len(result.Requests) == 0 {
		r.completedMu.Lock()
		r.completed = append(r.completed, result.Sample)
		r.completedMu.Unlock()
		r.completedCount.Add(1)
		r.publishToSinks(result.Sample)
		return
	}

	policy := r.currentPolicy()
	for _, req := range result.Requests {
		if !policy.ShouldInsert(&req) {
			continue
		}
		clone := result.Sample.Clone()
		r.scheduler.Enqueue(&WorkItem{
			Sample: clone,
			Meta:   FlowMetadata{SampleId: req.Meta.SampleId, Meta: req.Meta.Meta.clone()},
			Id:     req.Id,
		})
	}

	r.pool.Add(result.Sample)
}

// RunSync drives the pipeline loop to completion on the calling
// goroutine. It clears cancellation, seeds every pending sample into the
// scheduler, and loops ProcessNext until the scheduler empties or
// cancellation is observed. It returns nil even if cancelled, mirroring
// the distilled spec's run_sync contract (Cancelled is only ever signaled
// through RunAsync's on_complete).
func (r *Runtime) RunSync() error {
	r.cancelled.Store(false)
	seeded := r.seedPending()
	r.pool.SetExpectedCount(seeded)

	for {
		if r.cancelled.Load() {
			return nil
		}
		result, ok := r.scheduler.ProcessNext()
		if !ok {
			if r.scheduler.IsEmpty() {
				return nil
			}
			continue
		}
		r.admit(result)
	}
}

// RunAsync dispatches the same loop onto a worker pool and returns
// immediately. onProgress is invoked once per terminal sample with the
// running completed/total counts; onSample transfers ownership of the
// terminal sample to the callee; onComplete is invoked exactly once, with
// StatusCancelled if cancellation was observed before the loop drained,
// StatusOk otherwise.
func (r *Runtime) RunAsync(onComplete func(Status), onProgress func(stage uint32, completed, total int), onSample func(sample *Sample)) {
	r.cancelled.Store(false)
	seeded := r.seedPending()
	r.pool.SetExpectedCount(seeded)
	total := seeded

	var wg sync.WaitGroup
	var cancelledDuringRun atomic.Bool
	wg.Add(r.workerCount)
	for w := 0; w < r.workerCount; w++ {
		go func() {
			defer wg.Done()
			for {
				if r.cancelled.Load() {
					cancelledDuringRun.Store(true)
					return
				}
				result, ok := r.scheduler.ProcessNext()
				if !ok {
					if r.scheduler.IsEmpty() {
						return
					}
					continue
				}

				terminal := len(result.Requests) == 0
				stage := result.Sample.StageNum
				r.admit(result)

				if terminal {
					completed := int(r.completedCount.Load())
					r.publish(ProgressEvent{Kind: ProgressTick, Stage: stage, Completed: completed, Total: total})
					if onProgress != nil {
						onProgress(stage, completed, total)
					}
					r.publish(ProgressEvent{Kind: ProgressSample, Stage: stage, Sample: result.Sample})
					if onSample != nil {
						onSample(result.Sample)
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		status := StatusOk
		if cancelledDuringRun.Load() {
			status = StatusCancelled
		}
		if onComplete != nil {
			onComplete(status)
		}
	}()
}

// Regroup harvests samples from the pool by minStage, appends any
// completed samples whose stage counter also meets minStage, and
// truncates to maxCount samples — overflow is returned to the completed
// store rather than back into the pool (an explicit design choice, not
// an oversight: see the open question on regroup truncation).
func (r *Runtime) Regroup(minStage uint32, maxCount int) []*Sample {
	harvested := r.pool.Regroup(minStage)

	r.completedMu.Lock()
	var remaining []*Sample
	for _, s := range r.completed {
		if s.StageNum >= minStage {
			harvested = append(harvested, s)
		} else {
			remaining = append(remaining, s)
		}
	}
	r.completed = remaining
	r.completedMu.Unlock()

	if maxCount > 0 && len(harvested) > maxCount {
		overflow := harvested[maxCount:]
		harvested = harvested[:maxCount]
		r.completedMu.Lock()
		r.completed = append(r.completed, overflow...)
		r.completedMu.Unlock()
	}

	return harvested
}

// Cancel sets the cooperative cancellation flag.
func (r *Runtime) Cancel() { r.cancelled.Store(true) }

// Reset clears pending, the scheduler, completed, the regroup pool state,
// and insertion-policy counters; clears cancellation.
func (r *Runtime) Reset() {
	r.pendingMu.Lock()
	r.pending = nil
	r.pendingMu.Unlock()

	r.scheduler.Clear()
	r.scheduler.ResetStats()

	r.completedMu.Lock()
	r.completed = nil
	r.completedMu.Unlock()
	r.completedCount.Store(0)

	r.pool.Reset()
	r.currentPolicy().Reset()
	r.cancelled.Store(false)
}

// StatusFromError maps a generic Go error into the §7 status taxonomy for
// boundary reporting (sample admission, config parsing); stages
// themselves never raise and never use this mapping.
func StatusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusOk
	default:
		return StatusRuntimeError
	}
}
