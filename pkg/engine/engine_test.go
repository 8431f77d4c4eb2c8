package engine

import (
	"testing"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/capacity"
	"github.com/scttfrdmn/prodsched/pkg/dependency"
	"github.com/scttfrdmn/prodsched/pkg/graph"
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
			3: {ID: 3, Duration: 45, HeadcountNeeded: 1, BaseTeam: "Mechanic Team 1"},
		},
		Deliveries: map[string]time.Time{"Widget": time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
		ProductJobs: []ingest.ProductJobRow{
			{ProductLine: "Widget", TaskStart: 1, TaskEnd: 3},
		},
		Relationships: []ingest.RelationshipRow{
			{First: 1, Second: 2, Relationship: model.RelFinishStart},
			{First: 2, Second: 3, Relationship: model.RelFinishStart},
		},
	}
}

func buildScheduler(t *testing.T, ds *ingest.Dataset) *Scheduler {
	t.Helper()
	g, err := graph.Build(ds)
	if err != nil {
		t.Fatal(err)
	}
	edges, err := dependency.New(g, ds).Build()
	if err != nil {
		t.Fatal(err)
	}
	ledger := capacity.NewLedger(ds)
	log := logging.New(false)
	now := time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC) // Friday
	return New(g, edges, ledger, now, log)
}

func TestScheduleOrdersByPrecedence(t *testing.T) {
	s := buildScheduler(t, sampleDataset())
	result, err := s.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", result.Failed)
	}
	if len(result.Records) != 3 {
		t.Fatalf("expected 3 scheduled records, got %d", len(result.Records))
	}

	byTemplate := map[int]model.ScheduleRecord{}
	for _, r := range result.Records {
		byTemplate[r.OriginalTemplateID] = r
	}
	if !byTemplate[2].Start.Before(byTemplate[2].End) {
		t.Fatal("malformed record")
	}
	if byTemplate[2].Start.Before(byTemplate[1].End) {
		t.Errorf("task 2 started at %v before task 1 finished at %v", byTemplate[2].Start, byTemplate[1].End)
	}
	if byTemplate[3].Start.Before(byTemplate[2].End) {
		t.Errorf("task 3 started at %v before task 2 finished at %v", byTemplate[3].Start, byTemplate[2].End)
	}
}

func TestValidateDAGDetectsCycle(t *testing.T) {
	ds := sampleDataset()
	ds.Relationships = append(ds.Relationships, ingest.RelationshipRow{First: 3, Second: 1, Relationship: model.RelFinishStart})
	s := buildScheduler(t, ds)
	if err := s.ValidateDAG(); err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestScheduleFailsWhenCapacityNeverSufficesWithinRetries(t *testing.T) {
	ds := sampleDataset()
	ds.MechanicCapacity["Mechanic Team 1"] = 1 // template 1 needs headcount 2
	s := buildScheduler(t, ds)
	result, err := s.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Failed) == 0 {
		t.Fatal("expected at least one failed instance when capacity is permanently insufficient")
	}
}

func TestCriticalPathLengthAccountsForDownstreamDuration(t *testing.T) {
	s := buildScheduler(t, sampleDataset())
	task1 := model.InstanceID{Kind: model.KindProduction, Product: "Widget", Template: 1}
	// 60 (task1) + 90 (task2) + 45 (task3) = 195 along the chain.
	if got := s.criticalPathLength(task1.String()); got != 195 {
		t.Errorf("critical path length = %d, want 195", got)
	}
}

func TestBaselinePriorityPrefersLongerCriticalPath(t *testing.T) {
	s := buildScheduler(t, sampleDataset())
	task1 := model.InstanceID{Kind: model.KindProduction, Product: "Widget", Template: 1}
	task3 := model.InstanceID{Kind: model.KindProduction, Product: "Widget", Template: 3}

	p1 := s.priority(task1.String())
	p3 := s.priority(task3.String())
	if p1 >= p3 {
		t.Errorf("expected task1 (longer remaining path) to sort before task3: p1=%v p3=%v", p1, p3)
	}
}

func TestAnnotateCriticalityLabelsSinkBySlack(t *testing.T) {
	ds := sampleDataset()
	ds.Deliveries["Widget"] = time.Date(2025, 8, 23, 0, 0, 0, 0, time.UTC) // next day: tight
	s := buildScheduler(t, ds)
	result, err := s.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	s.AnnotateCriticality(result.Records)
	for _, r := range result.Records {
		if r.OriginalTemplateID == 3 && r.Criticality == "" {
			t.Error("expected sink task to receive a criticality label")
		}
	}
}

func TestFillGapsPreservesPrecedence(t *testing.T) {
	s := buildScheduler(t, sampleDataset())
	result, err := s.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	moved := s.FillGaps(result.Records)

	byID := map[string]model.ScheduleRecord{}
	for _, r := range moved {
		byID[r.Instance.String()] = r
	}
	for _, c := range s.bySecondAll() {
		pred, ok1 := byID[c.First.String()]
		succ, ok2 := byID[c.Second.String()]
		if !ok1 || !ok2 || !c.Relationship.Blocking() {
			continue
		}
		if succ.Start.Before(pred.End) {
			t.Errorf("gap fill broke precedence: %s starts %v before %s finishes %v", c.Second, succ.Start, c.First, pred.End)
		}
	}
}

func TestDiagnoseExplainsFailures(t *testing.T) {
	ds := sampleDataset()
	ds.MechanicCapacity["Mechanic Team 1"] = 1
	s := buildScheduler(t, ds)
	result, err := s.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	report := s.Diagnose(result)
	if report.Failed != len(result.Failed) {
		t.Errorf("report.Failed = %d, want %d", report.Failed, len(result.Failed))
	}
	if report.String() == "" {
		t.Error("expected a non-empty diagnostic report")
	}
}

// bySecondAll is a small test-only helper exposing every edge as a flat
// slice, since the Scheduler only indexes them by key internally.
func (s *Scheduler) bySecondAll() []model.Constraint {
	return s.edges
}
