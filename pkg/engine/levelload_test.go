package engine

import (
	"testing"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/model"
)

func TestUtilizationBandDeviationIsZeroInsideBand(t *testing.T) {
	for _, pct := range []float64{75, 78, 82} {
		if got := utilizationBandDeviation(pct); got != 0 {
			t.Errorf("utilizationBandDeviation(%v) = %v, want 0", pct, got)
		}
	}
}

func TestUtilizationBandDeviationMeasuresDistanceOutsideBand(t *testing.T) {
	if got := utilizationBandDeviation(60); got != 15 {
		t.Errorf("utilizationBandDeviation(60) = %v, want 15", got)
	}
	if got := utilizationBandDeviation(92); got != 10 {
		t.Errorf("utilizationBandDeviation(92) = %v, want 10", got)
	}
}

func TestGapPenaltyIgnoresGapsUnderAnHour(t *testing.T) {
	day := time.Date(2025, 8, 22, 6, 0, 0, 0, time.UTC)
	booked := []model.ScheduleRecord{
		{Team: "Mechanic Team 1", TeamSkill: "Mechanic Team 1", Start: day, End: day.Add(30 * time.Minute)},
	}
	candidateStart := day.Add(45 * time.Minute)
	if got := gapPenalty(booked, model.TeamMechanic, "Mechanic Team 1", candidateStart, time.Hour); got != 0 {
		t.Errorf("gapPenalty() = %v, want 0 for a sub-hour gap", got)
	}
}

func TestGapPenaltyChargesForGapsOverAnHour(t *testing.T) {
	day := time.Date(2025, 8, 22, 6, 0, 0, 0, time.UTC)
	booked := []model.ScheduleRecord{
		{Team: "Mechanic Team 1", TeamSkill: "Mechanic Team 1", Start: day, End: day.Add(30 * time.Minute)},
	}
	candidateStart := day.Add(3 * time.Hour)
	got := gapPenalty(booked, model.TeamMechanic, "Mechanic Team 1", candidateStart, time.Hour)
	if got <= 0 {
		t.Errorf("gapPenalty() = %v, want a positive charge for a >1hr gap", got)
	}
}

func TestDayUtilizationCountsOnlySameDaySameTeamBookings(t *testing.T) {
	day := time.Date(2025, 8, 22, 6, 0, 0, 0, time.UTC)
	otherDay := day.AddDate(0, 0, 1)
	booked := []model.ScheduleRecord{
		{Team: "Mechanic Team 1", TeamSkill: "Mechanic Team 1", Start: day, Duration: 255, Headcount: 1}, // half a shift
		{Team: "Mechanic Team 1", TeamSkill: "Mechanic Team 1", Start: otherDay, Duration: 510, Headcount: 1},
		{Team: "Mechanic Team 2", TeamSkill: "Mechanic Team 2", Start: day, Duration: 510, Headcount: 1},
	}
	got := dayUtilization(booked, model.TeamMechanic, "Mechanic Team 1", day, 2)
	want := 255.0 / (shiftMinutes * 2) * 100
	if got != want {
		t.Errorf("dayUtilization() = %v, want %v", got, want)
	}
}

func TestPlaceLevelLoadedFallsBackToEarliestFeasibleWhenDisabled(t *testing.T) {
	s := buildScheduler(t, sampleDataset())
	product := s.g.Products["Widget"]
	now := s.now

	wantStart, wantShift, err := s.ledger.EarliestFeasible(model.TeamMechanic, "Mechanic Team 1", 1, 60, now, product)
	if err != nil {
		t.Fatal(err)
	}
	gotStart, gotShift, err := s.placeLevelLoaded(model.TeamMechanic, "Mechanic Team 1", 1, 60, now, product)
	if err != nil {
		t.Fatal(err)
	}
	if !gotStart.Equal(wantStart) || gotShift != wantShift {
		t.Errorf("placeLevelLoaded() with aggressiveness 0 = (%v, %v), want (%v, %v)", gotStart, gotShift, wantStart, wantShift)
	}
}

func TestPlaceLevelLoadedNeverReturnsASlotBeforeEarliestStart(t *testing.T) {
	s := buildScheduler(t, sampleDataset())
	s.EnableLevelLoading(0.8)
	product := s.g.Products["Widget"]
	now := s.now

	start, _, err := s.placeLevelLoaded(model.TeamMechanic, "Mechanic Team 1", 1, 60, now, product)
	if err != nil {
		t.Fatal(err)
	}
	if start.Before(now) {
		t.Errorf("placeLevelLoaded() returned %v, before earliest start %v", start, now)
	}
}
