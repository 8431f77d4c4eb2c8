package engine

import (
	"fmt"
	"sort"

	"github.com/scttfrdmn/prodsched/pkg/model"
)

// BlockageReason explains why one instance could not be placed.
type BlockageReason struct {
	Instance          model.InstanceID
	UnscheduledBlockers []model.InstanceID
	TeamSkill         string
	Headcount         int
	Duration          int
}

// Report summarizes a scheduling run for a human operator trying to find
// out why instances were left unscheduled.
type Report struct {
	TotalInstances int
	Scheduled      int
	Failed         int
	Reasons        []BlockageReason
}

// String renders the report in the source tool's diagnostic-log style: one
// line per failed instance naming what it is still waiting on.
func (r Report) String() string {
	out := fmt.Sprintf("scheduled %d/%d instances, %d failed\n", r.Scheduled, r.TotalInstances, r.Failed)
	for _, reason := range r.Reasons {
		if len(reason.UnscheduledBlockers) == 0 {
			out += fmt.Sprintf("  %s: no unscheduled predecessors found; likely a capacity shortfall on %s (needs %d head for %d min)\n",
				reason.Instance.String(), reason.TeamSkill, reason.Headcount, reason.Duration)
			continue
		}
		out += fmt.Sprintf("  %s: waiting on", reason.Instance.String())
		for _, b := range reason.UnscheduledBlockers {
			out += " " + b.String()
		}
		out += "\n"
	}
	return out
}

// Diagnose inspects a completed Result and explains every failed instance:
// whether it is still blocked on another unscheduled instance (a
// transitive failure) or genuinely has nowhere to go on its own team.
func (s *Scheduler) Diagnose(result *Result) Report {
	scheduledSet := make(map[string]bool, len(result.Records))
	for _, r := range result.Records {
		scheduledSet[r.Instance.String()] = true
	}
	failedSet := make(map[string]bool, len(result.Failed))
	for _, id := range result.Failed {
		failedSet[id.String()] = true
	}

	reasons := make([]BlockageReason, 0, len(result.Failed))
	for _, id := range result.Failed {
		key := id.String()
		inst, ok := s.g.Instances[key]
		if !ok {
			continue
		}
		var blockers []model.InstanceID
		for _, c := range s.bySecond[key] {
			if !scheduledSet[c.First.String()] {
				blockers = append(blockers, c.First)
			}
		}
		reasons = append(reasons, BlockageReason{
			Instance:            id,
			UnscheduledBlockers: blockers,
			TeamSkill:           inst.TeamSkill,
			Headcount:           inst.Headcount,
			Duration:            inst.Duration,
		})
	}
	sort.Slice(reasons, func(i, j int) bool {
		return reasons[i].Instance.String() < reasons[j].Instance.String()
	})

	return Report{
		TotalInstances: len(s.g.Instances),
		Scheduled:      len(result.Records),
		Failed:         len(result.Failed),
		Reasons:        reasons,
	}
}
