package stages

import "github.com/saxsflow/saxsflow/core"

// NewDefaultRegistry returns a StageRegistry pre-populated with FindPeak
// and ProcessPeak, configured from the given configs. Background, Cut,
// Filter, and Phase remain reserved identifiers with no handler.
func NewDefaultRegistry(findPeak core.FindPeakConfig, processPeak core.ProcessPeakConfig) *core.StageRegistry {
	return core.NewDefaultStageRegistry(NewFindPeak(findPeak), NewProcessPeak(processPeak))
}
