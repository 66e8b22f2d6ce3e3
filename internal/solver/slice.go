package solver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// variantSlice is a non-empty, immutable set of candidate variants of one
// family. Every operation that changes the set returns a new slice; the
// variants and the extracted-family set are shared between slices.
type variantSlice struct {
	family    string
	variants  []*Variant // ascending by version, then index
	extracted map[string]struct{}
	pref      Preference

	common      []string // families every variant requires, sorted
	referenced  map[string]struct{}
	numVersions int
}

func newVariantSlice(family string, variants []*Variant, extracted map[string]struct{}, pref Preference) *variantSlice {
	s := &variantSlice{
		family:     family,
		variants:   variants,
		extracted:  extracted,
		pref:       pref,
		referenced: make(map[string]struct{}),
	}

	counts := make(map[string]int)
	for i, v := range variants {
		if i == 0 || !v.Version.Equal(variants[i-1].Version) {
			s.numVersions++
		}
		for _, f := range v.required {
			counts[f]++
		}
		for _, req := range v.requires {
			s.referenced[req.Family] = struct{}{}
		}
	}
	for f, n := range counts {
		if n == len(variants) {
			s.common = append(s.common, f)
		}
	}
	slices.Sort(s.common)
	return s
}

func (s *variantSlice) isExtracted(family string) bool {
	_, ok := s.extracted[family]
	return ok
}

// span returns the requirement matching exactly the versions in s.
func (s *variantSlice) span() version.Requirement {
	versions := make([]version.Version, 0, s.numVersions)
	for _, v := range s.variants {
		versions = append(versions, v.Version)
	}
	return version.NewRequirement(s.family, version.FromVersions(versions))
}

// intersect keeps the variants whose version lies in r. It returns s when
// nothing is removed and nil when everything is.
func (s *variantSlice) intersect(r version.Range) *variantSlice {
	if r.IsAny() {
		return s
	}
	var kept []*Variant
	for _, v := range s.variants {
		if r.Contains(v.Version) {
			kept = append(kept, v)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case len(s.variants):
		return s
	}
	return newVariantSlice(s.family, kept, s.extracted, s.pref)
}

// reduce removes the variants whose own requirement on req.Family
// conflicts with req. It returns s when nothing is removed and nil when
// everything is.
func (s *variantSlice) reduce(req version.Requirement) (*variantSlice, []Reduction) {
	if _, ok := s.referenced[req.Family]; !ok {
		return s, nil
	}

	var (
		kept       []*Variant
		reductions []Reduction
	)
	for _, v := range s.variants {
		dep, ok := v.requirement(req.Family)
		if ok && dep.ConflictsWith(req) {
			reductions = append(reductions, Reduction{Variant: v, Dependency: dep, Conflicting: req})
			continue
		}
		kept = append(kept, v)
	}
	switch len(kept) {
	case 0:
		return nil, reductions
	case len(s.variants):
		return s, nil
	}
	return newVariantSlice(s.family, kept, s.extracted, s.pref), reductions
}

// extractable returns the first family every variant requires with the
// same range, that has not been extracted yet.
func (s *variantSlice) extractable() (version.Requirement, bool) {
next:
	for _, f := range s.common {
		if s.isExtracted(f) {
			continue
		}
		first, _ := s.variants[0].requirement(f)
		merged := first
		for _, v := range s.variants[1:] {
			req, _ := v.requirement(f)
			if !req.Range.Equal(first.Range) {
				continue next
			}
			merged.Range = merged.Range.Union(req.Range)
		}
		return merged, true
	}
	return version.Requirement{}, false
}

// extract hoists one shared requirement out of s. It returns s and nil if
// there is nothing to extract.
func (s *variantSlice) extract() (*variantSlice, *version.Requirement) {
	req, ok := s.extractable()
	if !ok {
		return s, nil
	}
	extracted := make(map[string]struct{}, len(s.extracted)+1)
	for f := range s.extracted {
		extracted[f] = struct{}{}
	}
	extracted[req.Family] = struct{}{}

	next := *s
	next.extracted = extracted
	return &next, &req
}

// preferred returns the variants in the order the solver tries them.
func (s *variantSlice) preferred() []*Variant {
	ordered := slices.Clone(s.variants)
	if s.pref == PreferOldest {
		return ordered
	}
	slices.SortStableFunc(ordered, func(a, b *Variant) int {
		if c := b.Version.Compare(a.Version); c != 0 {
			return c
		}
		return a.Index - b.Index
	})
	return ordered
}

// split divides s into the variants to try first and the rest. The leading
// group takes variants from the preferred end while they keep requiring a
// family, at any range, that the first variant requires and that is not
// extracted yet. It returns nil, nil when s has a single variant.
func (s *variantSlice) split() (*variantSlice, *variantSlice) {
	if len(s.variants) < 2 {
		return nil, nil
	}
	ordered := s.preferred()

	n := 1
	if len(ordered) > 2 {
		var shared []string
		for _, f := range ordered[0].required {
			if !s.isExtracted(f) {
				shared = append(shared, f)
			}
		}
		for len(shared) > 0 && n < len(ordered)-1 {
			still := slices.DeleteFunc(slices.Clone(shared), func(f string) bool {
				req, ok := ordered[n].requirement(f)
				return !ok || req.Conflict
			})
			if len(still) == 0 {
				break
			}
			shared = still
			n++
		}
	}

	near := slices.Clone(ordered[:n])
	far := slices.Clone(ordered[n:])
	slices.SortFunc(near, CompareVariants)
	slices.SortFunc(far, CompareVariants)
	return newVariantSlice(s.family, near, s.extracted, s.pref),
		newVariantSlice(s.family, far, s.extracted, s.pref)
}

func (s *variantSlice) String() string {
	var sb strings.Builder
	sb.WriteString(s.family)
	sb.WriteByte('[')
	if len(s.variants) == 1 {
		v := s.variants[0]
		sb.WriteString(v.Version.String())
		if v.Index != NoIndex {
			fmt.Fprintf(&sb, "[%d]", v.Index)
		}
	} else {
		first, last := s.variants[0], s.variants[len(s.variants)-1]
		fmt.Fprintf(&sb, "%s..%s(%d:%d)", first.Version, last.Version, s.numVersions, len(s.variants))
	}
	sb.WriteByte(']')
	if _, ok := s.extractable(); ok {
		sb.WriteByte('*')
	}
	return sb.String()
}
