// Package scenario runs a scheduling engine against a fixed instance graph
// under different capacity assumptions: the declared baseline, a uniform
// minimum-headcount search, and a simulated-annealing workforce search.
// Each run gets its own ledger so one scenario's bookings never leak into
// another's.
package scenario

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
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

// Outcome is the result of running one scenario to completion.
type Outcome struct {
	Name      string
	Result    *engine.Result
	Ledger    *capacity.Ledger
	Headcount map[string]int // mechanic team-skill -> headcount used for this run
	sched     *engine.Scheduler
}

// Scheduler returns the engine.Scheduler that produced this outcome, for
// callers (the snapshot exporter) that need to recover per-task priority
// and dependency information the ScheduleRecord itself doesn't carry.
func (o *Outcome) Scheduler() *engine.Scheduler {
	return o.sched
}

// Session owns the instance graph and constraint edges for one input
// dataset, and opens a fresh ledger + scheduler for every scenario run so
// scenarios never interfere with each other.
type Session struct {
	ds    *ingest.Dataset
	g     *graph.Graph
	edges []model.Constraint
	now   time.Time
	log   *logging.Logger

	levelLoadAggressiveness float64
}

// SetLevelLoading enables level-loading-aware mechanic slot scoring for
// every scenario run opened from this session onward. aggressiveness 0
// (the default) leaves placement at plain earliest-feasible.
func (s *Session) SetLevelLoading(aggressiveness float64) {
	s.levelLoadAggressiveness = aggressiveness
}

// Open builds the instance graph and dependency edges once, ready to back
// any number of scenario runs.
func Open(ds *ingest.Dataset, now time.Time, log *logging.Logger) (*Session, error) {
	g, err := graph.Build(ds)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	edges, err := dependency.New(g, ds).Build()
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	return &Session{ds: ds, g: g, edges: edges, now: now, log: log}, nil
}

// run opens a fresh ledger under headcount, schedules, and returns the
// outcome. headcount, if non-nil, overrides every mechanic team's declared
// capacity before scheduling.
func (s *Session) run(name string, headcount map[string]int) (*Outcome, error) {
	ledger := capacity.NewLedger(s.ds)
	if headcount != nil {
		for team, h := range headcount {
			ledger.SetCapacity(model.TeamMechanic, team, h)
		}
	}
	sched := engine.New(s.g, s.edges, ledger, s.now, s.log)
	if s.levelLoadAggressiveness > 0 {
		sched.EnableLevelLoading(s.levelLoadAggressiveness)
	}
	result, err := sched.Schedule()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	sched.AnnotateCriticality(result.Records)

	used := map[string]int{}
	for _, team := range ledger.Teams(model.TeamMechanic) {
		used[team] = ledger.Capacity(model.TeamMechanic, team)
	}
	return &Outcome{Name: name, Result: result, Ledger: ledger, Headcount: used, sched: sched}, nil
}

// Graph returns the instance graph this session schedules against, for
// callers that need it alongside an Outcome (the snapshot exporter reads
// each instance's skill and duration directly from it).
func (s *Session) Graph() *graph.Graph {
	return s.g
}

// RunBaseline is scenario S1: schedule against the CSV's declared fixed
// capacities, unmodified.
func (s *Session) RunBaseline() (*Outcome, error) {
	return s.run("baseline", nil)
}

// RunMinimumHeadcount is scenario S2: binary search, over at most 20
// iterations, for the smallest uniform headcount (applied to every
// mechanic team simultaneously) that still schedules every instance with
// no failures.
func (s *Session) RunMinimumHeadcount(maxHeadcount int) (*Outcome, error) {
	lo := s.minimumRequirement()
	hi := maxHeadcount
	if hi < lo {
		hi = lo
	}

	best, err := s.tryUniformHeadcount(hi)
	if err != nil {
		return nil, err
	}
	if len(best.Result.Failed) > 0 {
		// Even the ceiling can't schedule everything; return it as-is so the
		// caller can see how far short it falls.
		return best, nil
	}

	for iterations := 0; lo < hi && iterations < 20; iterations++ {
		mid := lo + (hi-lo)/2
		candidate, err := s.tryUniformHeadcount(mid)
		if err != nil {
			return nil, err
		}
		if len(candidate.Result.Failed) == 0 {
			best = candidate
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return best, nil
}

func (s *Session) tryUniformHeadcount(headcount int) (*Outcome, error) {
	uniform := map[string]int{}
	for team := range s.ds.MechanicCapacity {
		uniform[team] = headcount
	}
	return s.run(fmt.Sprintf("s2-headcount-%d", headcount), uniform)
}

// minimumRequirement is the smallest headcount below which at least one
// instance could never run regardless of schedule, used as the binary
// search floor.
func (s *Session) minimumRequirement() int {
	mins := capacity.MinimumRequirements(s.g.Instances)
	lo := 1
	for _, v := range mins {
		if v > lo {
			lo = v
		}
	}
	return lo
}

// RunSimulatedAnnealing is scenario S3: a workforce search over per-team
// headcount using a simulated-annealing neighbor search, seeded for
// reproducibility rather than reading system entropy. targetEarlinessDays
// is how many days early every product should ideally finish; the search
// objective penalizes the squared distance of the worst product's lateness
// from -targetEarlinessDays.
func (s *Session) RunSimulatedAnnealing(targetEarlinessDays, iterations int, seed int64) (*Outcome, error) {
	rng := rand.New(rand.NewSource(seed))
	target := -float64(targetEarlinessDays)

	current := s.initializeModerateCapacity()
	currentOutcome, err := s.run("s3-initial", current)
	if err != nil {
		return nil, err
	}
	currentOutcome = s.fixUnscheduled(currentOutcome, current, rng)
	currentCost := s.cost(currentOutcome, target)

	best := currentOutcome
	bestCost := currentCost

	teams := make([]string, 0, len(current))
	for team := range current {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	const startTemp = 100.0
	const coolingRate = 0.95
	const reheatThreshold = 30

	temp := startTemp
	noImprovement := 0
	for i := 0; i < iterations; i++ {
		candidate := cloneHeadcount(current)
		s.mutate(candidate, teams, currentOutcome, target, rng)

		outcome, err := s.run(fmt.Sprintf("s3-iter-%d", i), candidate)
		if err != nil {
			return nil, err
		}
		candidateCost := s.cost(outcome, target)

		if accept(candidateCost, currentCost, temp, rng) {
			current = candidate
			currentOutcome = outcome
			currentCost = candidateCost
		}
		if candidateCost < bestCost {
			best = outcome
			bestCost = candidateCost
			noImprovement = 0
		} else {
			noImprovement++
		}

		temp *= coolingRate
		if noImprovement > reheatThreshold {
			temp = startTemp * 0.5
			noImprovement = 0
		}
	}

	return best, nil
}

// initializeModerateCapacity seeds the search at each team's minimum viable
// headcount plus a small buffer, grounded on the source's "moderate"
// starting point rather than either extreme.
func (s *Session) initializeModerateCapacity() map[string]int {
	mins := capacity.MinimumRequirements(s.g.Instances)
	out := map[string]int{}
	for team, declared := range s.ds.MechanicCapacity {
		min := mins[team]
		if min == 0 {
			min = 1
		}
		moderate := min + 1
		if moderate > declared {
			moderate = declared
		}
		out[team] = moderate
	}
	return out
}

// fixUnscheduled bumps the headcount of any team with a failed instance
// until that run schedules cleanly or a small retry budget is exhausted,
// so the search always starts from a feasible point.
func (s *Session) fixUnscheduled(outcome *Outcome, headcount map[string]int, rng *rand.Rand) *Outcome {
	const maxFixAttempts = 10
	for attempt := 0; attempt < maxFixAttempts && len(outcome.Result.Failed) > 0; attempt++ {
		var teams []string
		for _, id := range outcome.Result.Failed {
			inst, ok := s.g.Instances[id.String()]
			if !ok || inst.IsQuality || inst.IsCustomer {
				continue
			}
			if _, declared := headcount[inst.TeamSkill]; declared {
				teams = append(teams, inst.TeamSkill)
			}
		}
		if len(teams) == 0 {
			break
		}
		team := teams[rng.Intn(len(teams))]
		headcount[team]++
		next, err := s.run("s3-fix", headcount)
		if err != nil {
			break
		}
		outcome = next
	}
	return outcome
}

// mutate picks the next neighbor move by the current gap to target, matching
// the source's branching: fix unscheduled work first if any exists, then
// reduce, increase, or fine-tune depending on which side of the target the
// worst product's lateness currently falls on.
func (s *Session) mutate(headcount map[string]int, teams []string, outcome *Outcome, target float64, rng *rand.Rand) {
	if len(teams) == 0 {
		return
	}
	if len(outcome.Result.Failed) > 0 {
		s.fixUnscheduledTeams(headcount, outcome.Result.Failed)
		return
	}
	switch maxLateness := s.maxLatenessDays(outcome.Result.Records); {
	case maxLateness < target:
		reduceRandomTeam(headcount, teams, rng)
	case maxLateness > target:
		increaseRandomTeam(headcount, teams, rng)
	default:
		fineTuneWorkforce(headcount, teams, teamUtilizations(outcome), rng)
	}
}

// fixUnscheduledTeams bumps every mechanic team a failed instance would have
// booked against, so the next iteration has a chance of placing it.
func (s *Session) fixUnscheduledTeams(headcount map[string]int, failed []model.InstanceID) {
	for _, id := range failed {
		inst, ok := s.g.Instances[id.String()]
		if !ok || inst.IsQuality || inst.IsCustomer {
			continue
		}
		if _, declared := headcount[inst.TeamSkill]; declared {
			headcount[inst.TeamSkill]++
		}
	}
}

// maxLatenessDays is the worst (largest) per-product lateness, in days,
// across the schedule's placed records; early products contribute a
// negative value, so a fully-early schedule reports a negative maximum.
func (s *Session) maxLatenessDays(records []model.ScheduleRecord) float64 {
	endByProduct := map[string]time.Time{}
	for _, r := range records {
		if cur, ok := endByProduct[r.Instance.Product]; !ok || r.End.After(cur) {
			endByProduct[r.Instance.Product] = r.End
		}
	}
	max := 0.0
	found := false
	for product, end := range endByProduct {
		delivery, ok := s.ds.Deliveries[product]
		if !ok || delivery.IsZero() {
			continue
		}
		lateness := end.Sub(delivery).Hours() / 24
		if !found || lateness > max {
			max, found = lateness, true
		}
	}
	return max
}

// teamUtilizations reports each mechanic team's peak day utilization for
// outcome, reusing the same computation the published metrics summary does.
func teamUtilizations(outcome *Outcome) map[string]float64 {
	summary := metrics.Compute(outcome.Result.Records, nil, outcome.Headcount, len(outcome.Result.Failed))
	return summary.PeakUtilization
}

func reduceRandomTeam(headcount map[string]int, teams []string, rng *rand.Rand) {
	team := teams[rng.Intn(len(teams))]
	if headcount[team] > 1 {
		headcount[team]--
	}
}

func increaseRandomTeam(headcount map[string]int, teams []string, rng *rand.Rand) {
	team := teams[rng.Intn(len(teams))]
	headcount[team]++
}

// fineTuneWorkforce decrements one team chosen at random among those with
// peak utilization under 50%, trimming idle capacity once the search is
// already near the target. Falls back to any declared team if utilization
// data names none as underused.
func fineTuneWorkforce(headcount map[string]int, teams []string, utilization map[string]float64, rng *rand.Rand) {
	if len(teams) == 0 {
		return
	}
	var low []string
	for _, t := range teams {
		if utilization[t] < 0.5 {
			low = append(low, t)
		}
	}
	pool := teams
	if len(low) > 0 {
		pool = low
	}
	team := pool[rng.Intn(len(pool))]
	if headcount[team] > 1 {
		headcount[team]--
	}
}

func cloneHeadcount(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// cost is the simulated-annealing objective: a quadratic penalty for the
// worst product's lateness missing target, a heavy penalty per unscheduled
// instance, and a light total-headcount penalty applied only once the
// search is already within 2 days of target.
func (s *Session) cost(o *Outcome, target float64) float64 {
	distance := s.maxLatenessDays(o.Result.Records) - target
	score := distance * distance * 1000
	score += float64(len(o.Result.Failed)) * 5000

	if math.Abs(distance) <= 2 {
		total := 0
		for _, h := range o.Headcount {
			total += h
		}
		score += float64(total) * 5
	}
	return score
}

func accept(candidateCost, currentCost, temp float64, rng *rand.Rand) bool {
	if candidateCost <= currentCost {
		return true
	}
	if temp <= 0 {
		return false
	}
	probability := math.Exp(-(candidateCost - currentCost) / temp)
	return rng.Float64() < probability
}
