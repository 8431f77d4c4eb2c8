// Package engine places task instances onto the resource ledger: a
// priority-queue driven greedy scheduler that respects precedence
// constraints, retries a bounded number of times on capacity failure, and
// rejects any placement that drifts absurdly far into the future.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/capacity"
	"github.com/scttfrdmn/prodsched/pkg/graph"
	"github.com/scttfrdmn/prodsched/pkg/logging"
	"github.com/scttfrdmn/prodsched/pkg/model"
)

// maxRetries is how many failed placement attempts a task may have before
// it is marked permanently failed; it is requeued after each earlier one.
const maxRetries = 3

// sentinelYear rejects any placement that lands implausibly far in the
// future — a sign of a malformed constraint chain rather than a genuine
// schedule, matching the source's year-2030 guard.
const sentinelYear = 2030

// ErrCyclic is returned by Schedule when the blocking precedence edges
// (Finish<=Start, Finish=Start, Finish<=Finish) contain a cycle.
var ErrCyclic = errors.New("engine: precedence graph contains a cycle")

// Result is the outcome of a scheduling run.
type Result struct {
	Records    []model.ScheduleRecord
	Failed     []model.InstanceID
	Iterations int
}

// Scheduler places instances from a Graph onto a Ledger in priority order.
type Scheduler struct {
	g      *graph.Graph
	ledger *capacity.Ledger
	edges  []model.Constraint
	now    time.Time
	log    *logging.Logger

	bySecond map[string][]model.Constraint
	byFirst  map[string][]model.Constraint

	criticalPathCache map[string]int
	priorityMemo      map[string]float64

	levelLoadAggressiveness float64
}

// New builds a Scheduler over g's instance universe, the already-composed
// constraint edges, and the ledger instances will be booked against.
func New(g *graph.Graph, edges []model.Constraint, ledger *capacity.Ledger, now time.Time, log *logging.Logger) *Scheduler {
	s := &Scheduler{
		g:                 g,
		ledger:            ledger,
		edges:             edges,
		now:               now,
		log:               log,
		bySecond:          map[string][]model.Constraint{},
		byFirst:           map[string][]model.Constraint{},
		criticalPathCache: map[string]int{},
	}
	for _, e := range edges {
		s.bySecond[e.Second.String()] = append(s.bySecond[e.Second.String()], e)
		s.byFirst[e.First.String()] = append(s.byFirst[e.First.String()], e)
	}
	return s
}

// ValidateDAG reports an error if the blocking subset of edges contains a
// cycle, walking with depth-first search exactly as the source does.
func (s *Scheduler) ValidateDAG() error {
	adjacency := map[string][]string{}
	for _, e := range s.edges {
		if e.Relationship.Blocking() {
			adjacency[e.First.String()] = append(adjacency[e.First.String()], e.Second.String())
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}

	var visit func(node string) error
	visit = func(node string) error {
		color[node] = gray
		for _, next := range adjacency[node] {
			switch color[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case gray:
				return fmt.Errorf("%w: %s -> %s", ErrCyclic, node, next)
			}
		}
		color[node] = black
		return nil
	}

	for node := range adjacency {
		if color[node] == white {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// Schedule runs the greedy priority-queue placement loop to completion: it
// stops once the ready queue is exhausted, every instance is scheduled, or
// the iteration cap (10x the instance count) is reached.
func (s *Scheduler) Schedule() (*Result, error) {
	if err := s.ValidateDAG(); err != nil {
		return nil, err
	}

	allKeys := make([]string, 0, len(s.g.Instances))
	for key := range s.g.Instances {
		allKeys = append(allKeys, key)
	}
	sort.Strings(allKeys)
	total := len(allKeys)

	scheduled := map[string]model.ScheduleRecord{}
	failed := map[string]bool{}
	retries := map[string]int{}

	queue := newReadyQueue()
	queued := map[string]bool{}
	s.seedReadyQueue(allKeys, queue, queued)

	maxIterations := total * 10
	iterations := 0

	for queue.Len() > 0 && len(scheduled) < total && iterations < maxIterations {
		iterations++

		key, priority, ok := queue.pop()
		if !ok {
			break
		}
		queued[key] = false

		if retries[key] >= maxRetries {
			failed[key] = true
			continue
		}

		inst, ok := s.g.Instances[key]
		if !ok {
			continue
		}

		earliestStart := s.earliestStartFor(inst, scheduled)

		rec, placeErr := s.place(inst, earliestStart)
		if placeErr != nil {
			retries[key]++
			if retries[key] < maxRetries {
				queue.push(key, priority+0.1)
				queued[key] = true
			} else {
				failed[key] = true
				s.log.Warnf("task %s failed after %d attempts: %v", key, maxRetries, placeErr)
			}
			continue
		}

		if rec.Start.Year() > sentinelYear {
			failed[key] = true
			s.log.Errorf("task %s scheduled to year %d, marking failed", key, rec.Start.Year())
			continue
		}

		s.ledger.Book(rec)
		scheduled[key] = rec

		s.enqueueNewlyReady(key, scheduled, failed, queue, queued)
	}

	records := make([]model.ScheduleRecord, 0, len(scheduled))
	for _, rec := range scheduled {
		records = append(records, rec)
	}
	failedIDs := make([]model.InstanceID, 0, len(failed))
	for key := range failed {
		failedIDs = append(failedIDs, s.g.Instances[key].ID)
	}

	return &Result{Records: records, Failed: failedIDs, Iterations: iterations}, nil
}

func (s *Scheduler) seedReadyQueue(allKeys []string, queue *readyQueue, queued map[string]bool) {
	for _, key := range allKeys {
		incoming := s.bySecond[key]
		if len(incoming) == 0 {
			queue.push(key, s.priority(key))
			queued[key] = true
			continue
		}
		blocked := false
		for _, c := range incoming {
			if c.Relationship.Blocking() {
				blocked = true
				break
			}
		}
		if !blocked {
			queue.push(key, s.priority(key))
			queued[key] = true
		}
	}
}

func (s *Scheduler) enqueueNewlyReady(completedKey string, scheduled map[string]model.ScheduleRecord, failed map[string]bool, queue *readyQueue, queued map[string]bool) {
	for _, c := range s.byFirst[completedKey] {
		dep := c.Second.String()
		if _, done := scheduled[dep]; done {
			continue
		}
		if failed[dep] || queued[dep] {
			continue
		}
		allSatisfied := true
		for _, pre := range s.bySecond[dep] {
			if _, done := scheduled[pre.First.String()]; !done {
				allSatisfied = false
				break
			}
		}
		if allSatisfied {
			queue.push(dep, s.priority(dep))
			queued[dep] = true
		}
	}
}

// earliestStartFor computes the earliest a task may begin given its
// predecessors' placements and, for late parts, 06:00 on the day after its
// on-dock date (a fixed one-day delay; the delay is not configurable).
func (s *Scheduler) earliestStartFor(inst model.Instance, scheduled map[string]model.ScheduleRecord) time.Time {
	earliest := s.now
	if inst.Type == model.TaskLatePart && inst.OnDockDate != nil {
		earliest = inst.OnDockDate.AddDate(0, 0, 1)
		earliest = time.Date(earliest.Year(), earliest.Month(), earliest.Day(), 6, 0, 0, 0, earliest.Location())
	}

	var startEqualsStart *time.Time
	for _, c := range s.bySecond[inst.ID.String()] {
		pred, ok := scheduled[c.First.String()]
		if !ok {
			continue
		}
		var constraintTime time.Time
		switch c.Relationship {
		case model.RelFinishStart, model.RelFinishEqualsStart:
			constraintTime = pred.End
		case model.RelStartStart, model.RelStartEqualsStart:
			constraintTime = pred.Start
		case model.RelFinishFinish:
			constraintTime = pred.End.Add(-time.Duration(inst.Duration) * time.Minute)
		case model.RelStartFinish:
			constraintTime = pred.Start.Add(-time.Duration(inst.Duration) * time.Minute)
		default:
			constraintTime = pred.End
		}
		if constraintTime.After(earliest) {
			earliest = constraintTime
		}
		if c.Relationship == model.RelStartEqualsStart {
			t := pred.Start
			startEqualsStart = &t
		}
	}
	if startEqualsStart != nil {
		earliest = *startEqualsStart
	}
	return earliest
}

// place finds the earliest feasible slot for inst and returns the
// resulting ScheduleRecord. Customer instances search every declared
// customer team for the earliest opening across all of them.
func (s *Scheduler) place(inst model.Instance, earliestStart time.Time) (model.ScheduleRecord, error) {
	product := s.g.Products[inst.Product]

	switch {
	case inst.IsCustomer:
		return s.placeCustomer(inst, earliestStart, product)
	case inst.IsQuality:
		start, shift, err := s.ledger.EarliestFeasible(model.TeamQuality, inst.BaseTeam, inst.Headcount, inst.Duration, earliestStart, product)
		if err != nil {
			return model.ScheduleRecord{}, err
		}
		return s.buildRecord(inst, start, shift, inst.BaseTeam, inst.BaseTeam), nil
	default:
		start, shift, err := s.placeLevelLoaded(model.TeamMechanic, inst.TeamSkill, inst.Headcount, inst.Duration, earliestStart, product)
		if err != nil {
			return model.ScheduleRecord{}, err
		}
		return s.buildRecord(inst, start, shift, inst.BaseTeam, inst.TeamSkill), nil
	}
}

func (s *Scheduler) placeCustomer(inst model.Instance, earliestStart time.Time, product *model.Product) (model.ScheduleRecord, error) {
	var bestStart time.Time
	var bestShift, bestTeam string
	found := false

	for _, team := range s.ledger.Teams(model.TeamCustomer) {
		if s.ledger.Capacity(model.TeamCustomer, team) < inst.Headcount {
			continue
		}
		start, shift, err := s.ledger.EarliestFeasible(model.TeamCustomer, team, inst.Headcount, inst.Duration, earliestStart, product)
		if err != nil {
			continue
		}
		if !found || start.Before(bestStart) {
			bestStart, bestShift, bestTeam, found = start, shift, team, true
		}
	}
	if !found {
		return model.ScheduleRecord{}, capacity.ErrNoCapacity
	}
	return s.buildRecord(inst, bestStart, bestShift, bestTeam, bestTeam), nil
}

// Priority exposes the ready-queue score a given instance was (or would be)
// queued with, for callers that want to report it alongside a schedule
// (the snapshot exporter sorts and displays tasks by this value).
func (s *Scheduler) Priority(key string) float64 {
	return s.priority(key)
}

// Predecessors returns the instance-id strings of every instance that key
// has an incoming constraint from, for callers that need to report a
// task's declared dependencies.
func (s *Scheduler) Predecessors(key string) []string {
	edges := s.bySecond[key]
	out := make([]string, 0, len(edges))
	for _, c := range edges {
		out = append(out, c.First.String())
	}
	return out
}

func (s *Scheduler) buildRecord(inst model.Instance, start time.Time, shift, team, teamSkill string) model.ScheduleRecord {
	end := start.Add(time.Duration(inst.Duration) * time.Minute)
	return model.ScheduleRecord{
		Instance:           inst.ID,
		Start:              start,
		End:                end,
		Team:               team,
		TeamSkill:          teamSkill,
		Shift:              shift,
		Duration:           inst.Duration,
		Headcount:          inst.Headcount,
		IsQuality:          inst.IsQuality,
		IsCustomer:         inst.IsCustomer,
		TaskType:           inst.Type,
		OriginalTemplateID: inst.ID.Template,
	}
}
