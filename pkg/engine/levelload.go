package engine

import (
	"time"

	"github.com/scttfrdmn/prodsched/pkg/model"
)

// levelLoadLookaheadDays bounds how many candidate days past a task's
// earliest start the level-loading scorer considers before it gives up and
// falls back to the plain earliest-feasible slot.
const levelLoadLookaheadDays = 5

// targetUtilizationLow and targetUtilizationHigh bound the day-utilization
// band the scorer treats as ideal: busy enough to avoid idle capacity,
// loose enough to absorb a late part or a rework loop.
const (
	targetUtilizationLow  = 75.0
	targetUtilizationHigh = 82.0
)

// shiftMinutes approximates one shift's bookable minutes, matching the same
// 8.5-hour approximation pkg/metrics uses for utilization variance.
const shiftMinutes = 8.5 * 60

// EnableLevelLoading turns on level-loading-aware mechanic slot scoring.
// With aggressiveness 0 (the default) placement always takes the earliest
// feasible slot, unchanged from the baseline scheduler. Above 0, placement
// searches a short lookahead window and prefers the candidate day whose
// resulting day/week utilization lands closest to the target band over one
// that is merely earliest, weighted by aggressiveness.
func (s *Scheduler) EnableLevelLoading(aggressiveness float64) {
	s.levelLoadAggressiveness = aggressiveness
}

type levelLoadCandidate struct {
	start time.Time
	shift string
	score float64
}

// placeLevelLoaded finds a feasible slot for team, preferring the
// lookahead-window candidate with the lowest level-loading score over the
// plain earliest-feasible slot, grounded on
// schedule_tasks_with_level_loading's day-by-day candidate scan.
func (s *Scheduler) placeLevelLoaded(kind model.TeamKind, team string, headcount, durationMinutes int, earliestStart time.Time, product *model.Product) (time.Time, string, error) {
	if s.levelLoadAggressiveness <= 0 {
		return s.ledger.EarliestFeasible(kind, team, headcount, durationMinutes, earliestStart, product)
	}

	var best *levelLoadCandidate
	dayZero := time.Date(earliestStart.Year(), earliestStart.Month(), earliestStart.Day(), 0, 0, 0, 0, earliestStart.Location())

	for day := 0; day < levelLoadLookaheadDays; day++ {
		dayStart := dayZero.AddDate(0, 0, day)
		searchFrom := dayStart
		if earliestStart.After(searchFrom) {
			searchFrom = earliestStart
		}

		start, shift, err := s.ledger.EarliestFeasible(kind, team, headcount, durationMinutes, searchFrom, product)
		if err != nil || !sameDay(start, dayStart) {
			continue
		}

		score := s.levelLoadScore(kind, team, durationMinutes, start, earliestStart)
		if best == nil || score < best.score {
			best = &levelLoadCandidate{start: start, shift: shift, score: score}
		}
	}

	if best != nil {
		return best.start, best.shift, nil
	}
	return s.ledger.EarliestFeasible(kind, team, headcount, durationMinutes, earliestStart, product)
}

// levelLoadScore combines a delay penalty (distance from earliestStart), a
// day-utilization band-deviation penalty, a week-balance bonus, and a
// same-day gap penalty into one score; lower is better. Mirrors
// schedule_tasks_with_level_loading's total_score composition.
func (s *Scheduler) levelLoadScore(kind model.TeamKind, team string, durationMinutes int, candidateStart, earliestStart time.Time) float64 {
	aggr := s.levelLoadAggressiveness

	delayDays := candidateStart.Sub(earliestStart).Hours() / 24
	delayPenalty := delayDays * (1 - aggr) * 100

	capacity, _ := s.ledger.Resolve(kind, team)
	booked := s.ledger.Booked()

	deviation := utilizationBandDeviation(dayUtilization(booked, kind, team, candidateStart, capacity))
	utilizationPenalty := deviation * deviation * aggr

	weekUtil := weekUtilization(booked, kind, team, candidateStart, capacity)
	weekBalanceBonus := -((weekUtil - 50) * (weekUtil - 50)) * aggr * 0.01

	gap := gapPenalty(booked, kind, team, candidateStart, time.Duration(durationMinutes)*time.Minute) * aggr

	return delayPenalty + utilizationPenalty + weekBalanceBonus + gap
}

// utilizationBandDeviation is zero inside [targetUtilizationLow,
// targetUtilizationHigh] and the distance to the nearer edge outside it.
func utilizationBandDeviation(pct float64) float64 {
	switch {
	case pct < targetUtilizationLow:
		return targetUtilizationLow - pct
	case pct > targetUtilizationHigh:
		return pct - targetUtilizationHigh
	default:
		return 0
	}
}

// dayUtilization returns the percentage of team's shift capacity
// (headcount-minutes) already booked on day's calendar date, matching
// calculate_day_utilization.
func dayUtilization(booked []model.ScheduleRecord, kind model.TeamKind, team string, day time.Time, capacity int) float64 {
	if capacity == 0 {
		return 0
	}
	minutes := 0
	for _, rec := range booked {
		if matchesTeam(rec, kind, team) && sameDay(rec.Start, day) {
			minutes += rec.Duration * rec.Headcount
		}
	}
	denominator := shiftMinutes * float64(capacity)
	if denominator == 0 {
		return 0
	}
	return float64(minutes) / denominator * 100
}

// weekUtilization mirrors dayUtilization over day's ISO week.
func weekUtilization(booked []model.ScheduleRecord, kind model.TeamKind, team string, day time.Time, capacity int) float64 {
	if capacity == 0 {
		return 0
	}
	year, week := day.ISOWeek()

	workingDays := 0
	for d := day.AddDate(0, 0, -6); !d.After(day.AddDate(0, 0, 6)); d = d.AddDate(0, 0, 1) {
		if y, w := d.ISOWeek(); y == year && w == week {
			workingDays++
		}
	}
	if workingDays == 0 {
		return 0
	}

	minutes := 0
	for _, rec := range booked {
		if y, w := rec.Start.ISOWeek(); y == year && w == week && matchesTeam(rec, kind, team) {
			minutes += rec.Duration * rec.Headcount
		}
	}

	denominator := shiftMinutes * float64(capacity) * float64(workingDays)
	if denominator == 0 {
		return 0
	}
	return float64(minutes) / denominator * 100
}

// gapPenalty charges 10 points per hour of idle gap greater than an hour
// between a hypothetical booking at [start, start+duration) and the
// nearest same-day, same-team booking on either side, matching
// calculate_gap_penalty's >1hr threshold.
func gapPenalty(booked []model.ScheduleRecord, kind model.TeamKind, team string, start time.Time, duration time.Duration) float64 {
	end := start.Add(duration)
	penalty := 0.0
	for _, rec := range booked {
		if !matchesTeam(rec, kind, team) || !sameDay(rec.Start, start) {
			continue
		}
		if rec.Start.After(end) {
			if gap := rec.Start.Sub(end); gap > time.Hour {
				penalty += gap.Hours() * 10
			}
		}
		if rec.End.Before(start) {
			if gap := start.Sub(rec.End); gap > time.Hour {
				penalty += gap.Hours() * 10
			}
		}
	}
	return penalty
}

func matchesTeam(rec model.ScheduleRecord, kind model.TeamKind, team string) bool {
	switch kind {
	case model.TeamCustomer, model.TeamQuality:
		return rec.TeamSkill == team
	default:
		return rec.TeamSkill == team || rec.Team == team
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
