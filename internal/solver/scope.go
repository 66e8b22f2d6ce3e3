package solver

import (
	"context"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// packageScope is the state of one family within a phase: either a
// *concreteScope holding candidate variants or an *excludedScope holding
// only an anti-requirement. Scopes are immutable and shared between
// phases.
type packageScope interface {
	family() string

	// requirement is what the scope imposes on every other scope.
	requirement() version.Requirement

	// intersect narrows the scope to r. A nil scope means nothing is left.
	intersect(ctx context.Context, cache *variantCache, r version.Range) (packageScope, error)

	// reduce drops candidates conflicting with req. A nil scope means
	// nothing is left.
	reduce(req version.Requirement) (packageScope, []Reduction)

	extract() (packageScope, *version.Requirement)
	split() (packageScope, packageScope)
	solvedVariant() *Variant
	isSolved() bool
	String() string
}

type concreteScope struct {
	req   version.Requirement
	slice *variantSlice
}

func (s *concreteScope) family() string { return s.req.Family }

func (s *concreteScope) requirement() version.Requirement {
	return s.slice.span()
}

func (s *concreteScope) intersect(_ context.Context, _ *variantCache, r version.Range) (packageScope, error) {
	next := s.slice.intersect(r)
	switch next {
	case nil:
		return nil, nil
	case s.slice:
		return s, nil
	}
	req := s.req
	if rng, ok := req.Range.Intersect(r); ok {
		req.Range = rng
	}
	return &concreteScope{req: req, slice: next}, nil
}

func (s *concreteScope) reduce(req version.Requirement) (packageScope, []Reduction) {
	next, reductions := s.slice.reduce(req)
	switch next {
	case nil:
		return nil, reductions
	case s.slice:
		return s, nil
	}
	return &concreteScope{req: s.req, slice: next}, reductions
}

func (s *concreteScope) extract() (packageScope, *version.Requirement) {
	next, req := s.slice.extract()
	if req == nil {
		return s, nil
	}
	return &concreteScope{req: s.req, slice: next}, req
}

func (s *concreteScope) split() (packageScope, packageScope) {
	near, far := s.slice.split()
	if near == nil {
		return nil, nil
	}
	return &concreteScope{req: s.req, slice: near}, &concreteScope{req: s.req, slice: far}
}

func (s *concreteScope) solvedVariant() *Variant {
	if len(s.slice.variants) != 1 {
		return nil
	}
	if _, ok := s.slice.extractable(); ok {
		return nil
	}
	return s.slice.variants[0]
}

func (s *concreteScope) isSolved() bool {
	return s.solvedVariant() != nil
}

func (s *concreteScope) String() string {
	return s.slice.String()
}

// excludedScope is a family that must not resolve inside req.Range. It
// pins nothing until a requirement on the family makes it concrete.
type excludedScope struct {
	req version.Requirement
}

func (s *excludedScope) family() string { return s.req.Family }

func (s *excludedScope) requirement() version.Requirement { return s.req }

func (s *excludedScope) intersect(ctx context.Context, cache *variantCache, r version.Range) (packageScope, error) {
	rng, ok := r.Subtract(s.req.Range)
	if !ok {
		return nil, nil
	}
	slice, err := cache.getSlice(ctx, s.req.Family, rng)
	if err != nil || slice == nil {
		return nil, err
	}
	return &concreteScope{req: version.NewRequirement(s.req.Family, rng), slice: slice}, nil
}

func (s *excludedScope) reduce(version.Requirement) (packageScope, []Reduction) { return s, nil }

func (s *excludedScope) extract() (packageScope, *version.Requirement) { return s, nil }

func (s *excludedScope) split() (packageScope, packageScope) { return nil, nil }

func (s *excludedScope) solvedVariant() *Variant { return nil }

func (s *excludedScope) isSolved() bool { return true }

func (s *excludedScope) String() string {
	return s.req.String()
}
