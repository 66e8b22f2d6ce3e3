package solver

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

type phaseStatus int

const (
	phasePending phaseStatus = iota
	phaseSolved
	phaseExhausted
	phaseFailed
	phaseCyclic
)

func (s phaseStatus) String() string {
	switch s {
	case phasePending:
		return "pending"
	case phaseSolved:
		return "solved"
	case phaseExhausted:
		return "exhausted"
	case phaseFailed:
		return "failed"
	case phaseCyclic:
		return "cyclic"
	}
	return fmt.Sprintf("phaseStatus(%d)", int(s))
}

// extraction records a requirement hoisted out of the scope of source.
type extraction struct {
	source string
	req    version.Requirement
}

// phase is one node of the search: a set of scopes keyed by family. Phases
// are never modified once pushed on the solver stack; solve and split
// return new phases that share scopes with their parent.
type phase struct {
	cache       *variantCache
	unoptimised bool

	// seed holds the request until the first solve turns it into scopes.
	seed    []version.Requirement
	scopes  []packageScope
	index   map[string]int
	pending *pairSet

	status      phaseStatus
	failure     FailureReason
	extractions []extraction
	resolved    []*Variant
}

func newPhase(request []version.Requirement, cache *variantCache, unoptimised bool) *phase {
	return &phase{
		cache:       cache,
		unoptimised: unoptimised,
		seed:        request,
		index:       make(map[string]int),
		pending:     newPairSet(),
	}
}

func (p *phase) clone() *phase {
	q := *p
	q.scopes = slices.Clone(p.scopes)
	q.index = maps.Clone(p.index)
	q.pending = p.pending.clone()
	q.extractions = slices.Clip(p.extractions)
	q.status = phasePending
	q.failure = nil
	q.resolved = nil
	return &q
}

func (p *phase) fail(reason FailureReason) {
	p.status = phaseFailed
	p.failure = reason
}

// solve runs extraction, propagation and reduction to a fixed point and
// returns the resulting phase. Search failures are reported through the
// returned phase's status; the error is reserved for provider failures
// and unknown families.
func (p *phase) solve(ctx context.Context) (*phase, error) {
	q := p.clone()

	if len(q.seed) > 0 {
		seed := q.seed
		q.seed = nil
		if ok, err := q.propagate(ctx, seed); !ok || err != nil {
			return q, err
		}
	}

	for {
		extracted := q.extractAll()
		if len(extracted) == 0 && q.pending.len() == 0 {
			break
		}
		if len(extracted) > 0 {
			if ok, err := q.propagate(ctx, extracted); !ok || err != nil {
				return q, err
			}
		}
		if q.unoptimised {
			q.pending.addAll(len(q.scopes))
		}
		if !q.reduceAll() {
			return q, nil
		}
	}

	q.status = phaseSolved
	for _, sc := range q.scopes {
		if !sc.isSolved() {
			q.status = phaseExhausted
			break
		}
	}
	return q, nil
}

// extractAll extracts from every scope until none has anything left to
// extract.
func (p *phase) extractAll() []version.Requirement {
	var reqs []version.Requirement
	for i := range p.scopes {
		for {
			sc, req := p.scopes[i].extract()
			if req == nil {
				break
			}
			p.scopes[i] = sc
			p.extractions = append(p.extractions, extraction{source: sc.family(), req: *req})
			reqs = append(reqs, *req)
		}
	}
	return reqs
}

// propagate merges reqs and applies them to the scopes, creating scopes
// for new families. It returns false if the phase failed.
func (p *phase) propagate(ctx context.Context, reqs []version.Requirement) (bool, error) {
	list := version.NewRequirementList(reqs)
	if a, b, failed := list.Conflict(); failed {
		p.fail(&DependencyConflicts{Conflicts: []DependencyConflict{{Dependency: a, Conflicting: b}}})
		return false, nil
	}

	firstNew := len(p.scopes)
	for _, req := range list.Requirements() {
		i, ok := p.index[req.Family]
		if !ok {
			sc, err := p.newScope(ctx, req)
			if err != nil {
				return false, err
			}
			if sc == nil {
				p.fail(&TotalReduction{Unmatched: &req})
				return false, nil
			}
			p.index[req.Family] = len(p.scopes)
			p.scopes = append(p.scopes, sc)
			continue
		}

		old := p.scopes[i]
		sc, err := p.narrow(ctx, old, req)
		if err != nil {
			return false, err
		}
		if sc == nil {
			p.fail(&DependencyConflicts{Conflicts: []DependencyConflict{{Dependency: req, Conflicting: old.requirement()}}})
			return false, nil
		}
		if sc == old {
			continue
		}
		p.scopes[i] = sc

		switch old.(type) {
		case *excludedScope:
			if _, widened := sc.(*concreteScope); widened {
				p.pending.addTo(i, firstNew)
			}
			p.pending.addFrom(i, firstNew)
		case *concreteScope:
			p.pending.addFrom(i, firstNew)
		}
	}

	for i := firstNew; i < len(p.scopes); i++ {
		p.pending.addFrom(i, len(p.scopes))
		p.pending.addTo(i, len(p.scopes))
	}
	return true, nil
}

func (p *phase) newScope(ctx context.Context, req version.Requirement) (packageScope, error) {
	if req.Conflict {
		return &excludedScope{req: req}, nil
	}
	slice, err := p.cache.getSlice(ctx, req.Family, req.Range)
	if err != nil || slice == nil {
		return nil, err
	}
	return &concreteScope{req: req, slice: slice}, nil
}

// narrow applies req to an existing scope of the same family.
func (p *phase) narrow(ctx context.Context, sc packageScope, req version.Requirement) (packageScope, error) {
	switch s := sc.(type) {
	case *excludedScope:
		if req.Conflict {
			merged, _ := s.req.Merged(req)
			if merged.Range.Equal(s.req.Range) {
				return s, nil
			}
			return &excludedScope{req: merged}, nil
		}
		return s.intersect(ctx, p.cache, req.Range)
	case *concreteScope:
		r := req.Range
		if req.Conflict {
			inv, ok := r.Inverse()
			if !ok {
				return nil, nil
			}
			r = inv
		}
		return s.intersect(ctx, p.cache, r)
	}
	panic(fmt.Sprintf("unexpected scope type %T", sc))
}

// reduceAll drains the pending pairs. It returns false if the phase
// failed.
func (p *phase) reduceAll() bool {
	for {
		pr, ok := p.pending.pop()
		if !ok {
			return true
		}
		req := p.scopes[pr.from].requirement()
		sc, reductions := p.scopes[pr.to].reduce(req)
		if sc == nil {
			p.fail(&TotalReduction{Reductions: reductions})
			return false
		}
		if sc != p.scopes[pr.to] {
			p.scopes[pr.to] = sc
			p.pending.addFrom(pr.to, len(p.scopes))
		}
	}
}

// finalize checks a solved phase for dependency cycles and orders the
// resolved variants.
func (p *phase) finalize() {
	g := newDepGraph()
	for _, sc := range p.scopes {
		switch s := sc.(type) {
		case *concreteScope:
			v := s.solvedVariant()
			var deps []string
			for _, req := range v.requires {
				if !req.Conflict {
					deps = append(deps, req.Family)
				}
			}
			g.addNode(v, deps)
		case *excludedScope:
		}
	}

	if chain := g.detectCycle(); chain != nil {
		p.status = phaseCyclic
		p.failure = &Cycle{Variants: chain}
		return
	}
	p.resolved = g.topologicalSort()
}

// split divides the first unsolved scope that can be split and returns
// the phase to explore first and its fallback.
func (p *phase) split() (*phase, *phase, error) {
	for i, sc := range p.scopes {
		if sc.isSolved() {
			continue
		}
		a, b := sc.split()
		if a == nil {
			continue
		}
		near, far := p.clone(), p.clone()
		near.scopes[i], far.scopes[i] = a, b
		near.pending.addFrom(i, len(p.scopes))
		far.pending.addFrom(i, len(p.scopes))
		return near, far, nil
	}
	return nil, nil, fmt.Errorf("phase %s has no scope to split", p)
}

func (p *phase) String() string {
	if len(p.scopes) == 0 {
		parts := make([]string, 0, len(p.seed))
		for _, r := range p.seed {
			parts = append(parts, r.String())
		}
		return strings.Join(parts, " ")
	}
	parts := make([]string, 0, len(p.scopes))
	for _, sc := range p.scopes {
		parts = append(parts, sc.String())
	}
	return strings.Join(parts, " ")
}
