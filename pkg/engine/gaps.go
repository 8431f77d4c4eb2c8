package engine

import (
	"sort"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/calendar"
	"github.com/scttfrdmn/prodsched/pkg/model"
)

// FillGaps looks for tasks sitting on a team's busiest days that could run
// just as well, and earlier, on one of that team's quieter days, and moves
// them there. A move is applied only when every predecessor still finishes
// before the new start and every successor still starts after the new
// finish — FillGaps never violates a precedence constraint to flatten
// utilization.
func (s *Scheduler) FillGaps(records []model.ScheduleRecord) []model.ScheduleRecord {
	byKey := make(map[string]model.ScheduleRecord, len(records))
	for _, r := range records {
		byKey[r.Instance.String()] = r
	}

	order := make([]string, 0, len(records))
	for k := range byKey {
		order = append(order, k)
	}
	sort.Strings(order)

	for _, key := range order {
		rec := byKey[key]
		if rec.IsQuality || rec.IsCustomer {
			continue
		}
		candidate, ok := s.findEarlierLowUtilizationSlot(key, rec, byKey)
		if !ok {
			continue
		}
		rec.Start = candidate
		rec.End = candidate.Add(time.Duration(rec.Duration) * time.Minute)
		byKey[key] = rec
	}

	out := make([]model.ScheduleRecord, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	return out
}

func (s *Scheduler) findEarlierLowUtilizationSlot(key string, rec model.ScheduleRecord, byKey map[string]model.ScheduleRecord) (time.Time, bool) {
	utilByDay := s.utilizationByDay(rec.TeamSkill, byKey)
	currentDay := startOfDay(rec.Start)
	currentUtil := utilByDay[currentDay.Format("2006-01-02")]

	var days []string
	for d := range utilByDay {
		days = append(days, d)
	}
	sort.Strings(days)

	for _, d := range days {
		if d >= currentDay.Format("2006-01-02") {
			break
		}
		if utilByDay[d] >= currentUtil {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", d, rec.Start.Location())
		if err != nil {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), rec.Start.Hour(), rec.Start.Minute(), 0, 0, day.Location())
		candidate = calendar.NextSlot15Min(candidate)
		if !s.canReschedule(key, rec, candidate, byKey) {
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

func (s *Scheduler) utilizationByDay(teamSkill string, byKey map[string]model.ScheduleRecord) map[string]int {
	out := map[string]int{}
	for _, r := range byKey {
		if r.TeamSkill != teamSkill {
			continue
		}
		day := startOfDay(r.Start).Format("2006-01-02")
		out[day] += r.Duration * r.Headcount
	}
	return out
}

// canReschedule checks that moving key to candidate still satisfies every
// predecessor's finish-before-start and successor's start-after-finish
// requirement.
func (s *Scheduler) canReschedule(key string, rec model.ScheduleRecord, candidate time.Time, byKey map[string]model.ScheduleRecord) bool {
	newEnd := candidate.Add(time.Duration(rec.Duration) * time.Minute)

	for _, c := range s.bySecond[key] {
		pred, ok := byKey[c.First.String()]
		if !ok {
			continue
		}
		if c.Relationship.Blocking() && !pred.End.Before(candidate) && !pred.End.Equal(candidate) {
			if pred.End.After(candidate) {
				return false
			}
		}
	}
	for _, c := range s.byFirst[key] {
		succ, ok := byKey[c.Second.String()]
		if !ok {
			continue
		}
		if c.Relationship.Blocking() && succ.Start.Before(newEnd) {
			return false
		}
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
