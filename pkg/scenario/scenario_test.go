package scenario

import (
	"testing"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/ingest"
	"github.com/scttfrdmn/prodsched/pkg/logging"
	"github.com/scttfrdmn/prodsched/pkg/model"
)

func sampleDataset() *ingest.Dataset {
	return &ingest.Dataset{
		MechanicCapacity: map[string]int{"Mechanic Team 1": 4},
		QualityCapacity:  map[string]int{"Quality Team 1": 2},
		CustomerCapacity: map[string]int{"Customer Team 1": 1},
		MechanicShifts:   map[string][]string{"Mechanic Team 1": {"1st"}},
		QualityShifts:    map[string][]string{"Quality Team 1": {"1st"}},
		CustomerShifts:   map[string][]string{"Customer Team 1": {"1st"}},
		ShiftHours: map[string]model.ShiftWindow{
			"1st": {Start: "6:00", End: "14:30"},
		},
		TaskTemplates: map[int]model.TaskTemplate{
			1: {ID: 1, Duration: 60, HeadcountNeeded: 2, BaseTeam: "Mechanic Team 1"},
			2: {ID: 2, Duration: 90, HeadcountNeeded: 1, BaseTeam: "Mechanic Team 1"},
		},
		Deliveries: map[string]time.Time{"Widget": time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
		ProductJobs: []ingest.ProductJobRow{
			{ProductLine: "Widget", TaskStart: 1, TaskEnd: 2},
		},
		Relationships: []ingest.RelationshipRow{
			{First: 1, Second: 2, Relationship: model.RelFinishStart},
		},
	}
}

func openSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open(sampleDataset(), time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC), logging.New(false))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRunBaselineSchedulesEveryInstance(t *testing.T) {
	s := openSession(t)
	outcome, err := s.RunBaseline()
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Result.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", outcome.Result.Failed)
	}
	if len(outcome.Result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(outcome.Result.Records))
	}
}

func TestRunMinimumHeadcountFindsFeasibleFloor(t *testing.T) {
	s := openSession(t)
	outcome, err := s.RunMinimumHeadcount(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Result.Failed) != 0 {
		t.Fatalf("expected the search to land on a feasible headcount, failures: %+v", outcome.Result.Failed)
	}
	if outcome.Headcount["Mechanic Team 1"] < 2 {
		t.Errorf("headcount %d is below the single-instance minimum of 2", outcome.Headcount["Mechanic Team 1"])
	}
	if outcome.Headcount["Mechanic Team 1"] > 4 {
		t.Errorf("headcount %d exceeds the declared ceiling of 4", outcome.Headcount["Mechanic Team 1"])
	}
}

func TestRunSimulatedAnnealingReturnsAFeasibleOutcome(t *testing.T) {
	s := openSession(t)
	outcome, err := s.RunSimulatedAnnealing(5, 10, 42)
	if err != nil {
		t.Fatal(err)
	}
	if outcome == nil {
		t.Fatal("expected a non-nil outcome")
	}
}

func TestMinimumRequirementMatchesLargestSingleInstance(t *testing.T) {
	s := openSession(t)
	if got := s.minimumRequirement(); got != 2 {
		t.Errorf("minimumRequirement() = %d, want 2 (task 1 needs headcount 2)", got)
	}
}

func TestTwoSessionRunsDoNotShareLedgerState(t *testing.T) {
	s := openSession(t)
	first, err := s.RunBaseline()
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.RunBaseline()
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Result.Records) != len(second.Result.Records) {
		t.Errorf("expected repeatable results across independent runs, got %d vs %d", len(first.Result.Records), len(second.Result.Records))
	}
}
