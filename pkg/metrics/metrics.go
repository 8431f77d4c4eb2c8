// Package metrics aggregates a completed schedule into the figures an
// operator actually compares scenarios on: makespan, lateness against
// delivery targets, per-task slack, and day-to-day utilization variance.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/calendar"
	"github.com/scttfrdmn/prodsched/pkg/model"
)

// sentinelMakespan is the Makespan reported whenever any instance failed to
// schedule: a run with gaps isn't comparable to a complete one by elapsed
// time, so it is reported as maximally bad rather than derived from
// whatever partial set of records did place.
const sentinelMakespan = 365 * 50 * 24 * time.Hour

// Summary is the aggregated result of one scheduling run.
type Summary struct {
	Makespan time.Duration

	LatenessDays AggregatedMeasurement
	SlackDays    AggregatedMeasurement

	UtilizationVariance float64 // mean across teams of per-day utilization variance
	PeakUtilization     map[string]float64

	CriticalCount int
	BufferCount   int
	FlexibleCount int

	TotalTasks     int
	UnscheduledCount int
}

// AggregatedMeasurement mirrors the statistical summary shape used
// throughout the wider aggregation stack: mean, median, spread, and the
// percentiles an operator would plot on a distribution chart.
type AggregatedMeasurement struct {
	Mean              float64
	Median            float64
	StandardDeviation float64
	P5, P25, P75, P95 float64
	Min, Max          float64
	Count             int
}

// Compute aggregates a completed schedule. deliveries maps product name to
// delivery date; capacities maps team-skill to declared headcount, used for
// utilization-variance denominators.
func Compute(records []model.ScheduleRecord, deliveries map[string]time.Time, capacities map[string]int, unscheduled int) *Summary {
	summary := &Summary{
		TotalTasks:       len(records) + unscheduled,
		UnscheduledCount: unscheduled,
		PeakUtilization:  map[string]float64{},
	}
	if len(records) == 0 {
		if unscheduled > 0 {
			summary.Makespan = sentinelMakespan
		}
		return summary
	}

	earliest, latest := records[0].Start, records[0].End
	var latenessValues, slackByProduct []float64

	endByProduct := map[string]time.Time{}
	for _, r := range records {
		if r.Start.Before(earliest) {
			earliest = r.Start
		}
		if r.End.After(latest) {
			latest = r.End
		}
		if cur, ok := endByProduct[r.Instance.Product]; !ok || r.End.After(cur) {
			endByProduct[r.Instance.Product] = r.End
		}
		switch r.Criticality {
		case "CRITICAL":
			summary.CriticalCount++
		case "BUFFER":
			summary.BufferCount++
		case "FLEXIBLE":
			summary.FlexibleCount++
		}
	}
	if unscheduled > 0 {
		summary.Makespan = sentinelMakespan
	} else {
		workingDays := calendar.WorkingDaysCount(earliest, latest, nil)
		summary.Makespan = time.Duration(workingDays) * 24 * time.Hour
	}

	for product, end := range endByProduct {
		delivery, ok := deliveries[product]
		if !ok || delivery.IsZero() {
			continue
		}
		lateness := end.Sub(delivery).Hours() / 24
		latenessValues = append(latenessValues, lateness)
		slackByProduct = append(slackByProduct, -lateness)
	}

	summary.LatenessDays = aggregateMeasurement(latenessValues)
	summary.SlackDays = aggregateMeasurement(slackByProduct)
	summary.UtilizationVariance, summary.PeakUtilization = utilizationVariance(records, capacities)

	return summary
}

// utilizationVariance computes, per team, the variance of day-level
// utilization (booked headcount-minutes / declared capacity-minutes across
// an 8.5-hour shift), then averages across teams. It also reports each
// team's single highest-utilization day for quick diagnosis.
func utilizationVariance(records []model.ScheduleRecord, capacities map[string]int) (float64, map[string]float64) {
	type teamDay struct {
		team string
		day  string
	}
	minutesByTeamDay := map[teamDay]int{}
	for _, r := range records {
		day := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, r.Start.Location()).Format("2006-01-02")
		minutesByTeamDay[teamDay{r.TeamSkill, day}] += r.Duration * r.Headcount
	}

	byTeam := map[string][]float64{}
	peak := map[string]float64{}
	const shiftMinutes = 8.5 * 60

	for td, minutes := range minutesByTeamDay {
		cap := capacities[td.team]
		if cap == 0 {
			continue
		}
		util := float64(minutes) / (float64(cap) * shiftMinutes)
		byTeam[td.team] = append(byTeam[td.team], util)
		if util > peak[td.team] {
			peak[td.team] = util
		}
	}

	if len(byTeam) == 0 {
		return 0, peak
	}

	var sum float64
	for _, utils := range byTeam {
		mean := mean(utils)
		sum += variance(utils, mean)
	}
	return sum / float64(len(byTeam)), peak
}

func aggregateMeasurement(values []float64) AggregatedMeasurement {
	if len(values) == 0 {
		return AggregatedMeasurement{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	m := mean(values)
	return AggregatedMeasurement{
		Mean:              m,
		Median:            percentile(sorted, 50),
		StandardDeviation: math.Sqrt(variance(values, m)),
		P5:                percentile(sorted, 5),
		P25:               percentile(sorted, 25),
		P75:               percentile(sorted, 75),
		P95:               percentile(sorted, 95),
		Min:               sorted[0],
		Max:               sorted[len(sorted)-1],
		Count:             len(values),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64, mean float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values)-1)
}

// percentile expects sorted input.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
