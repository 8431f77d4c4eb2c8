package metrics

import (
	"testing"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/model"
)

func sampleRecords() []model.ScheduleRecord {
	base := time.Date(2025, 8, 22, 6, 0, 0, 0, time.UTC)
	return []model.ScheduleRecord{
		{
			Instance:  model.InstanceID{Kind: model.KindProduction, Product: "Widget", Template: 1},
			Start:     base,
			End:       base.Add(60 * time.Minute),
			TeamSkill: "Mechanic Team 1",
			Duration:  60,
			Headcount: 2,
			Criticality: "CRITICAL",
		},
		{
			Instance:  model.InstanceID{Kind: model.KindProduction, Product: "Widget", Template: 2},
			Start:     base.Add(60 * time.Minute),
			End:       base.Add(180 * time.Minute),
			TeamSkill: "Mechanic Team 1",
			Duration:  120,
			Headcount: 1,
			Criticality: "BUFFER",
		},
	}
}

func TestComputeMakespanCountsWorkingDaysSpanned(t *testing.T) {
	records := sampleRecords()
	summary := Compute(records, nil, nil, 0)
	want := 24 * time.Hour // both records fall on the same single working day
	if summary.Makespan != want {
		t.Errorf("Makespan = %v, want %v", summary.Makespan, want)
	}
}

func TestComputeMakespanIsSentinelWhenSomeUnscheduled(t *testing.T) {
	records := sampleRecords()
	summary := Compute(records, nil, nil, 2)
	if summary.Makespan != sentinelMakespan {
		t.Errorf("Makespan = %v, want sentinel %v", summary.Makespan, sentinelMakespan)
	}
}

func TestComputeLatenessAgainstDelivery(t *testing.T) {
	records := sampleRecords()
	lastEnd := records[1].End
	deliveries := map[string]time.Time{"Widget": lastEnd.Add(-24 * time.Hour)} // one day late
	summary := Compute(records, deliveries, nil, 0)
	if summary.LatenessDays.Mean < 0.9 || summary.LatenessDays.Mean > 1.1 {
		t.Errorf("LatenessDays.Mean = %v, want ~1.0", summary.LatenessDays.Mean)
	}
}

func TestComputeCountsCriticalityBuckets(t *testing.T) {
	summary := Compute(sampleRecords(), nil, nil, 0)
	if summary.CriticalCount != 1 || summary.BufferCount != 1 {
		t.Errorf("criticality counts = critical:%d buffer:%d, want 1/1", summary.CriticalCount, summary.BufferCount)
	}
}

func TestComputeEmptyRecordsReturnsSentinelMakespan(t *testing.T) {
	summary := Compute(nil, nil, nil, 3)
	if summary.Makespan != sentinelMakespan {
		t.Errorf("expected sentinel makespan for no records, got %v", summary.Makespan)
	}
	if summary.UnscheduledCount != 3 {
		t.Errorf("UnscheduledCount = %d, want 3", summary.UnscheduledCount)
	}
}

func TestComputeEmptyRecordsWithNoUnscheduledReturnsZero(t *testing.T) {
	summary := Compute(nil, nil, nil, 0)
	if summary.Makespan != 0 {
		t.Errorf("expected zero makespan for a trivially empty run, got %v", summary.Makespan)
	}
}

func TestUtilizationVarianceZeroWhenSingleDayPerTeam(t *testing.T) {
	records := sampleRecords()
	caps := map[string]int{"Mechanic Team 1": 4}
	summary := Compute(records, nil, caps, 0)
	if summary.UtilizationVariance != 0 {
		t.Errorf("expected zero variance with a single observed day, got %v", summary.UtilizationVariance)
	}
	if summary.PeakUtilization["Mechanic Team 1"] <= 0 {
		t.Error("expected a positive peak utilization for Mechanic Team 1")
	}
}
