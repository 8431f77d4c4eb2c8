package engine

import "github.com/scttfrdmn/prodsched/pkg/model"

// priority scores a task instance for ready-queue ordering. Lower values run
// first. Late parts get an urgency proportional to how soon they arrive,
// inspections inherit their primary task's urgency minus a small offset so
// they sort immediately after it, rework tasks inherit the urgency of
// whichever dependent needs them soonest, and baseline production tasks are
// scored on delivery proximity, critical path length, and duration.
func (s *Scheduler) priority(key string) float64 {
	if cached, ok := s.priorityCache()[key]; ok {
		return cached
	}
	// Seed a placeholder before recursing so a cycle in non-blocking edges
	// can't recurse forever; the placeholder is overwritten below.
	s.priorityCache()[key] = 0

	inst, ok := s.g.Instances[key]
	if !ok {
		return 0
	}

	var p float64
	switch inst.Type {
	case model.TaskLatePart:
		p = s.latePartPriority(inst)
	case model.TaskQualityInspection, model.TaskCustomerInspection:
		p = s.inspectionPriority(inst)
	case model.TaskRework:
		p = s.reworkPriority(key)
	default:
		p = s.baselinePriority(inst, key)
	}

	s.priorityCache()[key] = p
	return p
}

func (s *Scheduler) latePartPriority(inst model.Instance) float64 {
	if inst.OnDockDate == nil {
		return -3000
	}
	daysUntil := inst.OnDockDate.Sub(s.now).Hours() / 24
	return -3000 + daysUntil*10
}

func (s *Scheduler) inspectionPriority(inst model.Instance) float64 {
	if inst.PrimaryTask == nil {
		return -2000
	}
	return s.priority(inst.PrimaryTask.String()) - 1
}

func (s *Scheduler) reworkPriority(key string) float64 {
	best, found := 0.0, false
	for _, c := range s.byFirst[key] {
		depPriority := s.priority(c.Second.String())
		if !found || depPriority < best {
			best, found = depPriority, true
		}
	}
	if !found {
		return -500
	}
	return best - 100
}

func (s *Scheduler) baselinePriority(inst model.Instance, key string) float64 {
	daysToDelivery := 100.0
	if product, ok := s.g.Products[inst.Product]; ok && product != nil && !product.Delivery.IsZero() {
		daysToDelivery = product.Delivery.Sub(s.now).Hours() / 24
	}
	cpl := s.criticalPathLength(key)
	return (100-daysToDelivery)*20 + float64(10000-cpl)*5 + (100-float64(inst.Duration)/10)*2
}

// priorityCache lazily initializes the Scheduler's memoization map; kept as
// a method rather than a constructor field so zero-value Schedulers (tests
// constructing one by hand) still work.
func (s *Scheduler) priorityCache() map[string]float64 {
	if s.priorityMemo == nil {
		s.priorityMemo = map[string]float64{}
	}
	return s.priorityMemo
}

// criticalPathLength is the longest remaining path (in minutes, own
// duration included) from key to a sink task, memoized across calls.
func (s *Scheduler) criticalPathLength(key string) int {
	if cached, ok := s.criticalPathCache[key]; ok {
		return cached
	}
	s.criticalPathCache[key] = 0 // break cycles defensively

	inst, ok := s.g.Instances[key]
	if !ok {
		return 0
	}

	longest := 0
	for _, c := range s.byFirst[key] {
		succLen := s.criticalPathLength(c.Second.String())
		if succLen > longest {
			longest = succLen
		}
	}

	total := inst.Duration + longest
	s.criticalPathCache[key] = total
	return total
}
