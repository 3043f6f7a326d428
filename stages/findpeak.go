// Package stages holds the in-tree Stage implementations: FindPeak and
// ProcessPeak, the two-node cycle that forms the default pipeline.
package stages

import (
	"sort"

	"github.com/saxsflow/saxsflow/core"
)

// FindPeak detects candidate peaks in the sample's current intensity
// vector, records them in the flow metadata, and emits at most one
// ProcessPeak request for the highest-intensity unprocessed candidate.
type FindPeak struct {
	Config core.FindPeakConfig
}

func NewFindPeak(cfg core.FindPeakConfig) *FindPeak {
	return &FindPeak{Config: cfg}
}

func (s *FindPeak) Id() core.StageId { return core.StageFindPeak }
func (s *FindPeak) Name() string     { return "FindPeak" }

func (s *FindPeak) Process(sample *core.Sample, meta core.FlowMetadata) core.StageResult {
	candidates := core.FindPeaks(sample.Y, s.Config.MinHeight, s.Config.MinProminence)
	if s.Config.MinDistance > 1 {
		candidates = filterByDistance(candidates, s.Config.MinDistance)
	}

	for _, peak := range candidates {
		if _, already := meta.Meta.Processed[peak.Index]; already {
			continue
		}
		meta.Meta.Unprocessed[peak.Index] = peak.Value
	}

	var requests []core.StageRequest
	if len(meta.Meta.Unprocessed) > 0 {
		if _, ok := meta.SelectHighestPeak(); ok {
			requests = []core.StageRequest{{Id: core.StageProcessPeak, Meta: meta}}
		}
	}

	meta.ApplyToSample(sample)
	sample.StageNum++

	return core.StageResult{Sample: sample, Meta: meta, Requests: requests}
}

// filterByDistance resolves proximity conflicts among candidate peaks:
// sort by value descending, greedily keep those at least minDistance
// indices away from every already-kept peak, then re-sort by index.
func filterByDistance(peaks []core.Peak, minDistance int) []core.Peak {
	sorted := append([]core.Peak(nil), peaks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	var kept []core.Peak
	for _, candidate := range sorted {
		tooClose := false
		for _, k := range kept {
			if abs(candidate.Index-k.Index) < minDistance {
				tooClose = true
				break
			}
		}
		if !tooClose {
			kept = append(kept, candidate)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Index < kept[j].Index })
	return kept
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
