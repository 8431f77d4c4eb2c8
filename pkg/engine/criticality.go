package engine

import (
	"time"

	"github.com/scttfrdmn/prodsched/pkg/model"
)

// farFuture is the slack value reported for a task with no delivery date to
// measure against — treated as infinitely flexible.
const farFuture = 365 * 10 * 24 * time.Hour

// Criticality labels.
const (
	Critical = "CRITICAL"
	Buffer   = "BUFFER"
	Flexible = "FLEXIBLE"
)

// Slack returns how much room a scheduled instance has before it would
// start threatening a downstream deadline: for a sink task, the time
// between its start and the product's delivery date (never negative); for a task with
// successors, the smallest gap between its finish and any successor's
// start.
func Slack(key string, records map[string]model.ScheduleRecord, bySecond, byFirst map[string][]model.Constraint, products map[string]*model.Product) time.Duration {
	rec, ok := records[key]
	if !ok {
		return farFuture
	}

	successors := byFirst[key]
	if len(successors) == 0 {
		product := products[rec.Instance.Product]
		if product == nil || product.Delivery.IsZero() || product.Delivery.Year() > 2050 {
			return farFuture
		}
		slack := product.Delivery.Sub(rec.Start)
		if slack < 0 {
			slack = 0
		}
		return slack
	}

	min := farFuture
	for _, c := range successors {
		succRec, ok := records[c.Second.String()]
		if !ok {
			continue
		}
		gap := succRec.Start.Sub(rec.End)
		if gap < min {
			min = gap
		}
	}
	return min
}

// Classify buckets a task's slack into CRITICAL (<2 days), BUFFER (<5
// days), or FLEXIBLE.
func Classify(slack time.Duration) string {
	days := slack.Hours() / 24
	switch {
	case days < 2:
		return Critical
	case days < 5:
		return Buffer
	default:
		return Flexible
	}
}

// AnnotateCriticality fills in the Criticality field of every record in
// place, using the full constraint edge index built by a Scheduler.
func (s *Scheduler) AnnotateCriticality(records []model.ScheduleRecord) {
	byKey := recordsByKey(records)
	for i := range records {
		key := records[i].Instance.String()
		slack := Slack(key, byKey, s.bySecond, s.byFirst, s.g.Products)
		records[i].Criticality = Classify(slack)
	}
}

// SlackHoursIndex computes slack, in hours, for every record in the
// completed schedule at once: the externally-reported counterpart to the
// slack AnnotateCriticality uses internally to classify tasks, so a
// dashboard consumer never has to re-derive the successor-chain formula
// itself, and a caller reporting slack for many tasks only pays for the
// record-by-key index once.
func (s *Scheduler) SlackHoursIndex(records []model.ScheduleRecord) map[string]float64 {
	byKey := recordsByKey(records)
	out := make(map[string]float64, len(records))
	for _, r := range records {
		key := r.Instance.String()
		out[key] = Slack(key, byKey, s.bySecond, s.byFirst, s.g.Products).Hours()
	}
	return out
}

func recordsByKey(records []model.ScheduleRecord) map[string]model.ScheduleRecord {
	byKey := make(map[string]model.ScheduleRecord, len(records))
	for _, r := range records {
		byKey[r.Instance.String()] = r
	}
	return byKey
}
