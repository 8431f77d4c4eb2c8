// Package graph expands task templates and per-product jobs into concrete
// task instances: baseline production instances, inline quality and
// customer inspection instances, and late-part/rework instances with
// team/skill inherited from whatever baseline task they ultimately feed.
package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/scttfrdmn/prodsched/pkg/ingest"
	"github.com/scttfrdmn/prodsched/pkg/model"
)

// Graph is the fully expanded instance universe for one input dataset.
type Graph struct {
	Products     map[string]*model.Product
	ProductOrder []string

	Instances map[string]model.Instance // keyed by InstanceID.String()

	baselineByProductTask map[string]map[int]model.InstanceID
	QIForPrimary          map[string]model.InstanceID
	CCForPrimary          map[string]model.InstanceID
}

// Instance looks up an expanded instance by its string id.
func (g *Graph) Instance(id model.InstanceID) (model.Instance, bool) {
	inst, ok := g.Instances[id.String()]
	return inst, ok
}

// BaselineInstance returns the production instance id for a given product
// and template number, if that template falls in the product's task range.
func (g *Graph) BaselineInstance(product string, templateID int) (model.InstanceID, bool) {
	id, ok := g.baselineByProductTask[product][templateID]
	return id, ok
}

// Build expands ds into a Graph: products, baseline instances for every
// product x in-range template, inline QI/CC instances, and late-part/rework
// instances with BFS-inherited team and skill.
func Build(ds *ingest.Dataset) (*Graph, error) {
	g := &Graph{
		Products:              map[string]*model.Product{},
		Instances:             map[string]model.Instance{},
		baselineByProductTask: map[string]map[int]model.InstanceID{},
		QIForPrimary:          map[string]model.InstanceID{},
		CCForPrimary:          map[string]model.InstanceID{},
	}

	buildProducts(ds, g)
	buildBaselineInstances(ds, g)
	buildQualityInspections(ds, g)
	buildCustomerInspections(ds, g)
	if err := buildLatePartInstances(ds, g); err != nil {
		return nil, err
	}
	if err := buildReworkInstances(ds, g); err != nil {
		return nil, err
	}
	return g, nil
}

func buildProducts(ds *ingest.Dataset, g *Graph) {
	holidaysByProduct := map[string]map[string]bool{}
	for _, h := range ds.Holidays {
		set, ok := holidaysByProduct[h.ProductLine]
		if !ok {
			set = map[string]bool{}
			holidaysByProduct[h.ProductLine] = set
		}
		set[h.Date.Format("2006-01-02")] = true
	}

	for _, job := range ds.ProductJobs {
		if _, exists := g.Products[job.ProductLine]; !exists {
			g.ProductOrder = append(g.ProductOrder, job.ProductLine)
		}
		g.Products[job.ProductLine] = &model.Product{
			Name:       job.ProductLine,
			Delivery:   ds.Deliveries[job.ProductLine],
			Holidays:   holidaysByProduct[job.ProductLine],
			RangeStart: job.TaskStart,
			RangeEnd:   job.TaskEnd,
		}
	}
}

func buildBaselineInstances(ds *ingest.Dataset, g *Graph) {
	for _, product := range g.ProductOrder {
		p := g.Products[product]
		byTask := map[int]model.InstanceID{}
		for taskID := p.RangeStart; taskID <= p.RangeEnd; taskID++ {
			tmpl, ok := ds.TaskTemplates[taskID]
			if !ok {
				continue
			}
			id := model.InstanceID{Kind: model.KindProduction, Product: product, Template: taskID}
			g.Instances[id.String()] = model.Instance{
				ID:        id,
				Duration:  tmpl.Duration,
				Headcount: tmpl.HeadcountNeeded,
				BaseTeam:  tmpl.BaseTeam,
				Skill:     tmpl.Skill,
				TeamSkill: tmpl.TeamSkill(),
				Product:   product,
				Type:      model.TaskProduction,
			}
			byTask[taskID] = id
		}
		g.baselineByProductTask[product] = byTask
	}
}

func buildQualityInspections(ds *ingest.Dataset, g *Graph) {
	for _, row := range ds.QualityInspections {
		for _, product := range g.ProductOrder {
			p := g.Products[product]
			if !p.InRange(row.PrimaryTask) {
				continue
			}
			primaryID, ok := g.baselineByProductTask[product][row.PrimaryTask]
			if !ok {
				continue
			}
			primary := g.Instances[primaryID.String()]
			qualityTeam := mapMechanicToQualityTeam(primary.BaseTeam, ds.QualityCapacity)

			qiID := model.InstanceID{
				Kind:    model.KindInspection,
				Primary: primaryID.String(),
				Raw:     "QI_" + strconv.Itoa(row.QITask),
			}
			g.Instances[qiID.String()] = model.Instance{
				ID:          qiID,
				Duration:    row.Duration,
				Headcount:   row.Headcount,
				BaseTeam:    qualityTeam,
				TeamSkill:   qualityTeam,
				Product:     product,
				Type:        model.TaskQualityInspection,
				IsQuality:   true,
				PrimaryTask: &primaryID,
			}
			g.QIForPrimary[primaryID.String()] = qiID
		}
	}
}

func buildCustomerInspections(ds *ingest.Dataset, g *Graph) {
	defaultCustomerTeam := firstCustomerTeam(ds.CustomerCapacity)
	for _, row := range ds.CustomerInspections {
		for _, product := range g.ProductOrder {
			p := g.Products[product]
			if !p.InRange(row.PrimaryTask) {
				continue
			}
			primaryID, ok := g.baselineByProductTask[product][row.PrimaryTask]
			if !ok {
				continue
			}
			ccID := model.InstanceID{
				Kind:    model.KindInspection,
				Primary: primaryID.String(),
				Raw:     row.CCTask,
			}
			g.Instances[ccID.String()] = model.Instance{
				ID: ccID,
				// The customer team booked here is a placeholder: the engine
				// chooses the actual customer team with free capacity at
				// placement time, mirroring the source's "reassigned
				// dynamically during scheduling" comment.
				Duration:    row.Duration,
				Headcount:   row.Headcount,
				BaseTeam:    defaultCustomerTeam,
				TeamSkill:   defaultCustomerTeam,
				Product:     product,
				Type:        model.TaskCustomerInspection,
				IsCustomer:  true,
				PrimaryTask: &primaryID,
			}
			g.CCForPrimary[primaryID.String()] = ccID
		}
	}
}

func firstCustomerTeam(capacity map[string]int) string {
	if len(capacity) == 0 {
		return "Customer Team 1"
	}
	names := make([]string, 0, len(capacity))
	for name := range capacity {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}

// mapMechanicToQualityTeam extracts the numeric suffix from a mechanic team
// name and maps it 1:1 onto "Quality Team N", returning "" if no such
// quality team has declared capacity.
func mapMechanicToQualityTeam(mechanicTeam string, qualityCapacity map[string]int) string {
	if mechanicTeam == "" {
		return ""
	}
	n := extractNumber(mechanicTeam)
	if n == "" {
		return ""
	}
	candidate := "Quality Team " + n
	if _, ok := qualityCapacity[candidate]; ok {
		return candidate
	}
	return ""
}

func extractNumber(s string) string {
	var b strings.Builder
	inNumber := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			inNumber = true
		} else if inNumber {
			break
		}
	}
	return b.String()
}

// baselineHandle is the team/skill identity of whatever baseline task a
// late-part or rework instance was traced back to.
type baselineHandle struct {
	instanceID model.InstanceID
	baseTeam   string
	skill      string
	teamSkill  string
}

// traceBaseline performs a breadth-first search forward through the
// declared late-part and rework constraint edges, starting from taskID,
// looking for the first baseline production instance reachable — the task
// whose completion this late-part or rework item ultimately feeds.
func traceBaseline(g *Graph, taskID, product string, lateParts []ingest.LatePartConstraintRow, rework []ingest.ReworkConstraintRow) *baselineHandle {
	type node struct {
		id      string
		product string
	}
	visited := map[string]bool{}
	queue := []node{{id: taskID, product: product}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		if n, err := strconv.Atoi(cur.id); err == nil {
			if cur.product != "" {
				if id, ok := g.baselineByProductTask[cur.product][n]; ok {
					inst := g.Instances[id.String()]
					return &baselineHandle{instanceID: id, baseTeam: inst.BaseTeam, skill: inst.Skill, teamSkill: inst.TeamSkill}
				}
			} else {
				for _, p := range g.ProductOrder {
					if id, ok := g.baselineByProductTask[p][n]; ok {
						inst := g.Instances[id.String()]
						return &baselineHandle{instanceID: id, baseTeam: inst.BaseTeam, skill: inst.Skill, teamSkill: inst.TeamSkill}
					}
				}
			}
		}

		for _, c := range lateParts {
			if c.First == cur.id {
				next := cur.product
				if c.ProductLine != "" {
					next = c.ProductLine
				}
				queue = append(queue, node{id: c.Second, product: next})
			}
		}
		for _, c := range rework {
			if c.First == cur.id {
				next := cur.product
				if c.ProductLine != "" {
					next = c.ProductLine
				}
				queue = append(queue, node{id: c.Second, product: next})
			}
		}
	}
	return nil
}

func buildLatePartInstances(ds *ingest.Dataset, g *Graph) error {
	for _, row := range ds.LatePartTasks {
		product := ""
		for _, c := range ds.LatePartConstraints {
			if c.First == row.Task && c.ProductLine != "" {
				product = c.ProductLine
				break
			}
		}

		baseline := traceBaseline(g, row.Task, product, ds.LatePartConstraints, ds.ReworkConstraints)

		var baseTeam, skill, teamSkill string
		if baseline != nil {
			baseTeam, skill, teamSkill = baseline.baseTeam, baseline.skill, baseline.teamSkill
		} else {
			baseTeam = row.ResourceType
			skill = "Skill 1"
			teamSkill = fmt.Sprintf("%s (%s)", baseTeam, skill)
			if resolved, ok := resolveFallbackTeamSkill(baseTeam, teamSkill, ds.MechanicCapacity); ok {
				teamSkill = resolved
				skill = skillFromTeamSkill(resolved)
			}
		}

		id := model.InstanceID{Kind: model.KindLatePart, Raw: row.Task}
		inst := model.Instance{
			ID:        id,
			Duration:  row.Duration,
			Headcount: row.MechanicsRequired,
			BaseTeam:  baseTeam,
			Skill:     skill,
			TeamSkill: teamSkill,
			Product:   product,
			Type:      model.TaskLatePart,
		}
		for _, c := range ds.LatePartConstraints {
			if c.First == row.Task {
				dock := c.OnDockDate
				inst.OnDockDate = &dock
				break
			}
		}
		g.Instances[id.String()] = inst
	}
	return nil
}

func buildReworkInstances(ds *ingest.Dataset, g *Graph) error {
	for _, row := range ds.ReworkTasks {
		product := ""
		for _, c := range ds.ReworkConstraints {
			if (c.First == row.Task || c.Second == row.Task) && c.ProductLine != "" {
				product = c.ProductLine
				break
			}
		}

		baseline := traceBaseline(g, row.Task, product, ds.LatePartConstraints, ds.ReworkConstraints)

		var baseTeam, skill, teamSkill string
		if baseline != nil {
			baseTeam, skill, teamSkill = baseline.baseTeam, baseline.skill, baseline.teamSkill
		} else {
			baseTeam = row.ResourceType
			skill = "Skill 1"
			teamSkill = fmt.Sprintf("%s (%s)", baseTeam, skill)
			if resolved, ok := resolveFallbackTeamSkill(baseTeam, teamSkill, ds.MechanicCapacity); ok {
				teamSkill = resolved
				skill = skillFromTeamSkill(resolved)
			}
		}

		id := model.InstanceID{Kind: model.KindRework, Raw: row.Task}
		g.Instances[id.String()] = model.Instance{
			ID:        id,
			Duration:  row.Duration,
			Headcount: row.MechanicsRequired,
			BaseTeam:  baseTeam,
			Skill:     skill,
			TeamSkill: teamSkill,
			Product:   product,
			Type:      model.TaskRework,
		}

		if row.NeedsQI {
			qualityTeam := mapMechanicToQualityTeam(baseTeam, ds.QualityCapacity)
			qiID := model.InstanceID{Kind: model.KindInspection, Primary: id.String(), Raw: "QI_" + row.Task}
			g.Instances[qiID.String()] = model.Instance{
				ID:          qiID,
				Duration:    row.QIDuration,
				Headcount:   row.QIHeadcount,
				BaseTeam:    qualityTeam,
				TeamSkill:   qualityTeam,
				Product:     product,
				Type:        model.TaskQualityInspection,
				IsQuality:   true,
				PrimaryTask: &id,
			}
			g.QIForPrimary[id.String()] = qiID
		}
	}
	return nil
}

// resolveFallbackTeamSkill looks for a declared team-skill starting with
// "base (" when the naive "base (Skill 1)" guess has no declared capacity,
// matching the source's scan-for-first-matching-skill fallback.
func resolveFallbackTeamSkill(base, guess string, capacity map[string]int) (string, bool) {
	if _, ok := capacity[guess]; ok {
		return guess, false
	}
	prefix := base + " ("
	var names []string
	for name := range capacity {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return guess, false
	}
	sort.Strings(names)
	return names[0], true
}

func skillFromTeamSkill(teamSkill string) string {
	open := strings.Index(teamSkill, "(")
	shut := strings.LastIndex(teamSkill, ")")
	if open < 0 || shut < 0 || shut < open {
		return ""
	}
	return teamSkill[open+1 : shut]
}
