package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/capacity"
	"github.com/scttfrdmn/prodsched/pkg/dependency"
	"github.com/scttfrdmn/prodsched/pkg/engine"
	"github.com/scttfrdmn/prodsched/pkg/graph"
	"github.com/scttfrdmn/prodsched/pkg/ingest"
	"github.com/scttfrdmn/prodsched/pkg/logging"
	"github.com/scttfrdmn/prodsched/pkg/metrics"
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

func buildSnapshot(t *testing.T) Snapshot {
	t.Helper()
	ds := sampleDataset()
	g, err := graph.Build(ds)
	if err != nil {
		t.Fatal(err)
	}
	edges, err := dependency.New(g, ds).Build()
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC)
	log := logging.New(false)
	ledger := capacity.NewLedger(ds)

	sched := engine.New(g, edges, ledger, now, log)
	result, err := sched.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	sched.AnnotateCriticality(result.Records)

	capacities := map[string]int{"Mechanic Team 1": 4}
	summary := metrics.Compute(result.Records, ds.Deliveries, capacities, len(result.Failed))

	return Build("baseline", "baseline capacity", g, sched, result, capacities, ds.MechanicShifts, ds.Deliveries, summary)
}

func TestBuildCapsAndOrdersTasksByPriority(t *testing.T) {
	snap := buildSnapshot(t)
	if len(snap.Tasks) == 0 {
		t.Fatal("expected at least one task in the snapshot")
	}
	for i := 1; i < len(snap.Tasks); i++ {
		if snap.Tasks[i].Priority < snap.Tasks[i-1].Priority {
			t.Fatalf("tasks not sorted ascending by priority at index %d", i)
		}
	}
	if snap.Truncated {
		t.Fatal("a two-task schedule should never be marked truncated")
	}
}

func TestBuildReportsProductOnTime(t *testing.T) {
	snap := buildSnapshot(t)
	if len(snap.Products) != 1 {
		t.Fatalf("expected 1 product summary, got %d", len(snap.Products))
	}
	if !snap.Products[0].OnTime {
		t.Errorf("expected Widget to finish on time against its 2025-12-01 delivery date")
	}
}

func TestBuildReportsTotals(t *testing.T) {
	snap := buildSnapshot(t)
	if snap.TotalMechanics == 0 {
		t.Error("expected non-zero total mechanic headcount")
	}
	if snap.TotalWorkforce != snap.TotalMechanics+snap.TotalQuality+snap.TotalCustomer {
		t.Error("totalWorkforce should equal the sum of its parts")
	}
}

func TestValidatorAcceptsBuiltSnapshot(t *testing.T) {
	snap := buildSnapshot(t)
	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}
	result, err := v.Validate(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Fatalf("expected a built snapshot to validate cleanly, got: %s", result.String())
	}
}

func TestValidatorRejectsNullCollections(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}
	broken := Snapshot{} // every field is present but zero-valued; teams, products, teamCapacities and the task's dependencies marshal as null
	broken.Tasks = []Task{{}}
	result, err := v.Validate(broken)
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Fatal("expected a snapshot with null collections where the schema requires arrays or objects to fail validation")
	}
}

func TestFileStorePutWritesScenarioFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	snap := Snapshot{ScenarioID: "baseline", Tasks: []Task{}, TeamCapacities: map[string]int{}, Teams: []string{}, Products: []ProductSummary{}}
	if err := store.Put(context.Background(), snap); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "baseline.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
	var round Snapshot
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatal(err)
	}
	if round.ScenarioID != "baseline" {
		t.Errorf("scenarioId = %q, want baseline", round.ScenarioID)
	}
}
