// Package snapshot builds and persists the read-only scenario snapshot
// consumed by the production dashboard: a capped, priority-sorted task
// list plus team, product, and utilization summaries, validated against a
// versioned JSON schema before it is ever written out.
package snapshot

import (
	"sort"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/engine"
	"github.com/scttfrdmn/prodsched/pkg/graph"
	"github.com/scttfrdmn/prodsched/pkg/metrics"
	"github.com/scttfrdmn/prodsched/pkg/model"
)

// maxDisplayedTasks caps the tasks array, matching the dashboard's
// top-1000-by-priority contract.
const maxDisplayedTasks = 1000

// Task is one placed instance as the dashboard consumes it.
type Task struct {
	TaskID          string   `json:"taskId"`
	Type            string   `json:"type"`
	Product         string   `json:"product"`
	Team            string   `json:"team"`
	TeamSkill       string   `json:"teamSkill"`
	Skill           string   `json:"skill"`
	StartTime       string   `json:"startTime"`
	EndTime         string   `json:"endTime"`
	Duration        int      `json:"duration"`
	Mechanics       int      `json:"mechanics"`
	Shift           string   `json:"shift"`
	Priority        float64  `json:"priority"`
	Dependencies    []string `json:"dependencies"`
	IsLatePartTask  bool     `json:"isLatePartTask"`
	IsReworkTask    bool     `json:"isReworkTask"`
	IsQualityTask   bool     `json:"isQualityTask"`
	IsCustomerTask  bool     `json:"isCustomerTask"`
	IsCritical      bool     `json:"isCritical"`
	SlackHours      float64  `json:"slackHours"`
}

// ProductSummary reports one product's delivery outcome.
type ProductSummary struct {
	Name       string  `json:"name"`
	Delivery   string  `json:"delivery,omitempty"`
	Completion string  `json:"completion,omitempty"`
	LatenessHours float64 `json:"latenessHours"`
	OnTime     bool    `json:"onTime"`
}

// Snapshot is the full read-only object handed to the dashboard.
type Snapshot struct {
	ScenarioID    string             `json:"scenarioId"`
	Description   string             `json:"description"`
	Tasks         []Task             `json:"tasks"`
	TeamCapacities map[string]int    `json:"teamCapacities"`
	Teams         []string           `json:"teams"`
	TeamShifts    map[string][]string `json:"teamShifts"`
	Products      []ProductSummary   `json:"products"`
	Utilization   map[string]float64 `json:"utilization"`
	DisplayedTasks int               `json:"displayedTasks"`
	Truncated     bool               `json:"truncated"`
	Metrics       map[string]float64 `json:"metrics"`

	// Flattened totals, matching the dashboard's flat field expectations.
	TotalWorkforce int     `json:"totalWorkforce"`
	TotalMechanics int     `json:"totalMechanics"`
	TotalQuality   int     `json:"totalQuality"`
	TotalCustomer  int     `json:"totalCustomer"`
	AvgUtilization float64 `json:"avgUtilization"`
	Makespan       float64 `json:"makespan"`
	OnTimeRate     float64 `json:"onTimeRate"`
	MaxLateness    float64 `json:"maxLateness"`
}

// Build assembles a Snapshot from a completed scheduling run. sched is
// used to recover each task's priority and declared dependencies, which
// the ScheduleRecord itself does not carry.
func Build(scenarioID, description string, g *graph.Graph, sched *engine.Scheduler, result *engine.Result, capacities map[string]int, teamShifts map[string][]string, deliveries map[string]time.Time, summary *metrics.Summary) Snapshot {
	slackHours := sched.SlackHoursIndex(result.Records)

	tasks := make([]Task, 0, len(result.Records))
	for _, rec := range result.Records {
		key := rec.Instance.String()
		inst, _ := g.Instance(rec.Instance)
		tasks = append(tasks, Task{
			TaskID:         key,
			Type:           string(rec.TaskType),
			Product:        rec.Instance.Product,
			Team:           rec.Team,
			TeamSkill:      rec.TeamSkill,
			Skill:          inst.Skill,
			StartTime:      rec.Start.Format(time.RFC3339),
			EndTime:        rec.End.Format(time.RFC3339),
			Duration:       rec.Duration,
			Mechanics:      rec.Headcount,
			Shift:          rec.Shift,
			Priority:       sched.Priority(key),
			Dependencies:   sched.Predecessors(key),
			IsLatePartTask: rec.TaskType == model.TaskLatePart,
			IsReworkTask:   rec.TaskType == model.TaskRework,
			IsQualityTask:  rec.IsQuality,
			IsCustomerTask: rec.IsCustomer,
			IsCritical:     rec.Criticality == engine.Critical,
			SlackHours:     slackHours[key],
		})
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Priority < tasks[j].Priority })

	truncated := len(tasks) > maxDisplayedTasks
	displayed := tasks
	if truncated {
		displayed = tasks[:maxDisplayedTasks]
	}

	teams := make([]string, 0, len(capacities))
	for t := range capacities {
		teams = append(teams, t)
	}
	sort.Strings(teams)

	products := buildProductSummaries(result, deliveries)

	onTime := 0
	for _, p := range products {
		if p.OnTime {
			onTime++
		}
	}
	onTimeRate := 0.0
	if len(products) > 0 {
		onTimeRate = float64(onTime) / float64(len(products))
	}

	totalMechanics, totalQuality, totalCustomer := 0, 0, 0
	for _, rec := range result.Records {
		switch {
		case rec.IsCustomer:
			totalCustomer += rec.Headcount
		case rec.IsQuality:
			totalQuality += rec.Headcount
		default:
			totalMechanics += rec.Headcount
		}
	}

	avgUtilization := 0.0
	if len(summary.PeakUtilization) > 0 {
		sum := 0.0
		for _, u := range summary.PeakUtilization {
			sum += u
		}
		avgUtilization = sum / float64(len(summary.PeakUtilization))
	}

	return Snapshot{
		ScenarioID:     scenarioID,
		Description:    description,
		Tasks:          displayed,
		TeamCapacities: capacities,
		Teams:          teams,
		TeamShifts:     teamShifts,
		Products:       products,
		Utilization:    summary.PeakUtilization,
		DisplayedTasks: len(displayed),
		Truncated:      truncated,
		Metrics: map[string]float64{
			"utilizationVariance": summary.UtilizationVariance,
			"meanLatenessDays":    summary.LatenessDays.Mean,
			"meanSlackDays":       summary.SlackDays.Mean,
			"criticalCount":       float64(summary.CriticalCount),
			"bufferCount":         float64(summary.BufferCount),
			"flexibleCount":       float64(summary.FlexibleCount),
		},
		TotalWorkforce: totalMechanics + totalQuality + totalCustomer,
		TotalMechanics: totalMechanics,
		TotalQuality:   totalQuality,
		TotalCustomer:  totalCustomer,
		AvgUtilization: avgUtilization,
		Makespan:       summary.Makespan.Hours(),
		OnTimeRate:     onTimeRate,
		MaxLateness:    summary.LatenessDays.Max,
	}
}

func buildProductSummaries(result *engine.Result, deliveries map[string]time.Time) []ProductSummary {
	completionByProduct := map[string]time.Time{}
	for _, rec := range result.Records {
		product := rec.Instance.Product
		if cur, ok := completionByProduct[product]; !ok || rec.End.After(cur) {
			completionByProduct[product] = rec.End
		}
	}

	names := make([]string, 0, len(completionByProduct))
	for name := range completionByProduct {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProductSummary, 0, len(names))
	for _, name := range names {
		completion := completionByProduct[name]
		summary := ProductSummary{Name: name, Completion: completion.Format(time.RFC3339)}
		if delivery, ok := deliveries[name]; ok && !delivery.IsZero() {
			summary.Delivery = delivery.Format(time.RFC3339)
			summary.LatenessHours = completion.Sub(delivery).Hours()
			summary.OnTime = !completion.After(delivery)
		} else {
			summary.OnTime = true
		}
		out = append(out, summary)
	}
	return out
}
