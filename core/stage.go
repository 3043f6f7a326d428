package core

// StageId is the closed enumeration of stage identifiers. Only FindPeak
// and ProcessPeak have handlers registered by default; the others are
// reserved for future stage implementations.
type StageId int

const (
	StageBackground StageId = iota
	StageCut
	StageFilter
	StageFindPeak
	StageProcessPeak
	StagePhase
)

func (id StageId) String() string {
	switch id {
	case StageBackground:
		return "Background"
	case StageCut:
		return "Cut"
	case StageFilter:
		return "Filter"
	case StageFindPeak:
		return "FindPeak"
	case StageProcessPeak:
		return "ProcessPeak"
	case StagePhase:
		return "Phase"
	default:
		return "Unknown"
	}
}

// StageRequest is a follow-up work item a handler wants enqueued: the
// stage to run next, and the flow metadata to carry into it.
type StageRequest struct {
	Id   StageId
	Meta FlowMetadata
}

// StageResult is what a Stage.Process call returns: the sample and its
// flow metadata (both possibly mutated), plus zero or more follow-up
// requests. An empty Requests slice means the sample is terminal.
type StageResult struct {
	Sample   *Sample
	Meta     FlowMetadata
	Requests []StageRequest
}

// Stage is a named transformation applied to a sample. Process consumes
// ownership of the sample and metadata and returns them, possibly
// mutated, inside the result. Implementations must increment the
// sample's stage counter exactly once per invocation, except for
// ProcessPeak's degenerate "no current peak" early return, which returns
// terminal without incrementing. Stages hold only immutable configuration
// and must be safe to invoke concurrently across distinct samples.
type Stage interface {
	Id() StageId
	Name() string
	Process(sample *Sample, meta FlowMetadata) StageResult
}

// WorkItem is the scheduler's queue element: a sample and its flow
// metadata awaiting execution of stage Id, plus an unused tie-break
// priority boost. While a WorkItem sits in the scheduler's heap, the
// scheduler holds the only live copy of the sample.
type WorkItem struct {
	Sample       *Sample
	Meta         FlowMetadata
	Id           StageId
	PriorityBoost int
}
