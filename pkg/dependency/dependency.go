// Package dependency composes the declared precedence, late-part, and
// rework relationships into the effective constraint edge list the
// scheduling engine walks: baseline edges are expanded per product, late
// part and rework edges are resolved against the instance universe, and
// any primary task with an inline inspection gets its edges rerouted
// through a First -> QI -> CC -> Second chain.
package dependency

import (
	"fmt"

	"github.com/scttfrdmn/prodsched/pkg/graph"
	"github.com/scttfrdmn/prodsched/pkg/ingest"
	"github.com/scttfrdmn/prodsched/pkg/model"
)

// Resolver builds and memoizes the effective constraint list for a Graph.
// Call Invalidate after mutating the graph's instance set (late-arriving
// perturbations are not expected mid-run, but scenario re-runs that rebuild
// the graph should not see a stale cache).
type Resolver struct {
	g         *graph.Graph
	ds        *ingest.Dataset
	cached    []model.Constraint
	haveCache bool
}

// New returns a Resolver bound to g and the dataset it was built from.
func New(g *graph.Graph, ds *ingest.Dataset) *Resolver {
	return &Resolver{g: g, ds: ds}
}

// Invalidate drops the memoized constraint list so the next Build call
// recomputes it.
func (r *Resolver) Invalidate() {
	r.haveCache = false
	r.cached = nil
}

// UnresolvedReferenceError reports a late-part or rework constraint whose
// endpoint does not resolve to any instance in the graph. This is a fatal
// input error, not a case to drop and continue: a dangling reference means
// the declared constraint can never be enforced.
type UnresolvedReferenceError struct {
	Raw         string
	ProductLine string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("dependency: unresolved reference %q (product %q)", e.Raw, e.ProductLine)
}

// Build returns the effective, deduplicated constraint edges: baseline
// precedence (per product, inspection-chain aware), late part, and rework
// edges (inspection-chain aware), plus any residual inspection edges the
// other two passes didn't already cover. It returns an UnresolvedReferenceError
// if any late-part or rework constraint names an instance the graph has no
// record of.
func (r *Resolver) Build() ([]model.Constraint, error) {
	if r.haveCache {
		return r.cached, nil
	}

	var edges []model.Constraint
	seen := map[string]bool{}
	add := func(c model.Constraint) {
		key := fmt.Sprintf("%s|%s|%s|%s", c.First.String(), c.Second.String(), c.Relationship, c.ProductScope)
		if seen[key] {
			return
		}
		seen[key] = true
		edges = append(edges, c)
	}

	r.addBaselineEdges(add)
	if err := r.addLatePartEdges(add); err != nil {
		return nil, err
	}
	if err := r.addReworkEdges(add); err != nil {
		return nil, err
	}
	r.addResidualInspectionEdges(add)

	r.cached = edges
	r.haveCache = true
	return edges, nil
}

func (r *Resolver) addBaselineEdges(add func(model.Constraint)) {
	for _, rel := range r.ds.Relationships {
		for _, product := range r.g.ProductOrder {
			firstID, ok1 := r.g.BaselineInstance(product, rel.First)
			secondID, ok2 := r.g.BaselineInstance(product, rel.Second)
			if !ok1 || !ok2 {
				continue
			}
			chainThroughInspections(r.g, firstID, secondID, rel.Relationship, product, add)
		}
	}
}

// chainThroughInspections reroutes first->second through first's QI and/or
// CC instance when present, so placement order always runs
// first -> QI -> CC -> second.
func chainThroughInspections(g *graph.Graph, first, second model.InstanceID, rel model.Relationship, product string, add func(model.Constraint)) {
	qi, hasQI := g.QIForPrimary[first.String()]
	cc, hasCC := g.CCForPrimary[first.String()]

	switch {
	case hasQI && hasCC:
		add(model.Constraint{First: first, Second: qi, Relationship: model.RelFinishEqualsStart, ProductScope: product})
		add(model.Constraint{First: qi, Second: cc, Relationship: model.RelFinishEqualsStart, ProductScope: product})
		add(model.Constraint{First: cc, Second: second, Relationship: rel, ProductScope: product})
	case hasQI:
		add(model.Constraint{First: first, Second: qi, Relationship: model.RelFinishEqualsStart, ProductScope: product})
		add(model.Constraint{First: qi, Second: second, Relationship: rel, ProductScope: product})
	case hasCC:
		add(model.Constraint{First: first, Second: cc, Relationship: model.RelFinishEqualsStart, ProductScope: product})
		add(model.Constraint{First: cc, Second: second, Relationship: rel, ProductScope: product})
	default:
		add(model.Constraint{First: first, Second: second, Relationship: rel, ProductScope: product})
	}
}

func (r *Resolver) addLatePartEdges(add func(model.Constraint)) error {
	for _, c := range r.ds.LatePartConstraints {
		first, ok1 := r.resolveRawOrBaseline(c.First, c.ProductLine)
		if !ok1 {
			return &UnresolvedReferenceError{Raw: c.First, ProductLine: c.ProductLine}
		}
		second, ok2 := r.resolveRawOrBaseline(c.Second, c.ProductLine)
		if !ok2 {
			return &UnresolvedReferenceError{Raw: c.Second, ProductLine: c.ProductLine}
		}
		add(model.Constraint{First: first, Second: second, Relationship: c.Relationship, ProductScope: c.ProductLine})
	}
	return nil
}

func (r *Resolver) addReworkEdges(add func(model.Constraint)) error {
	for _, c := range r.ds.ReworkConstraints {
		first, ok1 := r.resolveRawOrBaseline(c.First, c.ProductLine)
		if !ok1 {
			return &UnresolvedReferenceError{Raw: c.First, ProductLine: c.ProductLine}
		}
		second, ok2 := r.resolveRawOrBaseline(c.Second, c.ProductLine)
		if !ok2 {
			return &UnresolvedReferenceError{Raw: c.Second, ProductLine: c.ProductLine}
		}
		chainThroughInspections(r.g, first, second, c.Relationship, c.ProductLine, add)
	}
	return nil
}

// resolveRawOrBaseline maps a declared task reference (a raw late-part/
// rework id, or a numeric baseline template id) onto an InstanceID in the
// graph. A numeric id is first looked up within product when one is given,
// then across every product in order; the cross-product search also runs
// when a scoped lookup misses.
func (r *Resolver) resolveRawOrBaseline(raw, product string) (model.InstanceID, bool) {
	if n, ok := parseInt(raw); ok {
		if product != "" {
			if id, ok := r.g.BaselineInstance(product, n); ok {
				return id, true
			}
		}
		for _, p := range r.g.ProductOrder {
			if id, ok := r.g.BaselineInstance(p, n); ok {
				return id, true
			}
		}
		return model.InstanceID{}, false
	}

	for _, candidateKind := range []model.InstanceKind{model.KindLatePart, model.KindRework} {
		id := model.InstanceID{Kind: candidateKind, Raw: raw}
		if _, ok := r.g.Instance(id); ok {
			return id, true
		}
	}
	return model.InstanceID{}, false
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}

// addResidualInspectionEdges covers QI/CC instances whose primary task was
// never the First side of any precedence, late-part, or rework relationship
// — they still need to be scheduled right after their primary.
func (r *Resolver) addResidualInspectionEdges(add func(model.Constraint)) {
	for primaryStr, qi := range r.g.QIForPrimary {
		primaryID := parseInstanceIDFromGraph(r.g, primaryStr)
		product := r.g.Instances[primaryStr].Product
		if cc, hasCC := r.g.CCForPrimary[primaryStr]; hasCC {
			add(model.Constraint{First: primaryID, Second: qi, Relationship: model.RelFinishEqualsStart, ProductScope: product})
			add(model.Constraint{First: qi, Second: cc, Relationship: model.RelFinishEqualsStart, ProductScope: product})
		} else {
			add(model.Constraint{First: primaryID, Second: qi, Relationship: model.RelFinishEqualsStart, ProductScope: product})
		}
	}
	for primaryStr, cc := range r.g.CCForPrimary {
		if _, hasQI := r.g.QIForPrimary[primaryStr]; hasQI {
			continue
		}
		primaryID := parseInstanceIDFromGraph(r.g, primaryStr)
		product := r.g.Instances[primaryStr].Product
		add(model.Constraint{First: primaryID, Second: cc, Relationship: model.RelFinishEqualsStart, ProductScope: product})
	}
}

func parseInstanceIDFromGraph(g *graph.Graph, key string) model.InstanceID {
	if inst, ok := g.Instances[key]; ok {
		return inst.ID
	}
	return model.InstanceID{Raw: key}
}
