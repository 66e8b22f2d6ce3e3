package solver

import (
	"fmt"
	"sort"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// NoIndex is the index of the single variant of a package that declares no
// variants.
const NoIndex = -1

// Variant is one selectable build of a package version. Variants are
// immutable once created by NewVariant; Timestamp and Handle may be set by
// the provider before the variant is handed to a solver.
type Variant struct {
	Family  string
	Version version.Version
	Index   int

	// Timestamp is the release time, compared against the solve cutoff.
	// The zero time is never cut off.
	Timestamp time.Time

	// Handle is carried through the solver untouched.
	Handle any

	requires []version.Requirement
	byFamily map[string]int
	required []string
	excluded []string
}

// NewVariant returns a variant of family at ver. Requirements on the same
// family are merged; requirements that cannot be merged are an error.
func NewVariant(family string, ver version.Version, index int, requires []version.Requirement) (*Variant, error) {
	v := &Variant{
		Family:   family,
		Version:  ver,
		Index:    index,
		byFamily: make(map[string]int),
	}

	list := version.NewRequirementList(requires)
	if a, b, failed := list.Conflict(); failed {
		return nil, fmt.Errorf("variant %s has conflicting requirements %s and %s", v, a, b)
	}
	v.requires = list.Requirements()

	for i, req := range v.requires {
		v.byFamily[req.Family] = i
		if req.Conflict {
			v.excluded = append(v.excluded, req.Family)
		} else {
			v.required = append(v.required, req.Family)
		}
	}
	sort.Strings(v.required)
	sort.Strings(v.excluded)
	return v, nil
}

// MustNewVariant is like NewVariant but panics on error.
func MustNewVariant(family, ver string, index int, requires ...string) *Variant {
	reqs := make([]version.Requirement, 0, len(requires))
	for _, r := range requires {
		reqs = append(reqs, version.MustParseRequirement(r))
	}
	v, err := NewVariant(family, version.MustParse(ver), index, reqs)
	if err != nil {
		panic(err)
	}
	return v
}

// Requires returns the merged requirements of v in declaration order.
func (v *Variant) Requires() []version.Requirement {
	return append([]version.Requirement(nil), v.requires...)
}

// RequiredFamilies returns the sorted families v requires.
func (v *Variant) RequiredFamilies() []string {
	return append([]string(nil), v.required...)
}

// ExcludedFamilies returns the sorted families v conflicts with.
func (v *Variant) ExcludedFamilies() []string {
	return append([]string(nil), v.excluded...)
}

func (v *Variant) requirement(family string) (version.Requirement, bool) {
	i, ok := v.byFamily[family]
	if !ok {
		return version.Requirement{}, false
	}
	return v.requires[i], true
}

func (v *Variant) exactRequirement() version.Requirement {
	return version.NewRequirement(v.Family, version.Exact(v.Version))
}

// QualifiedName returns "family-version".
func (v *Variant) QualifiedName() string {
	if v.Version.IsEmpty() {
		return v.Family
	}
	return v.Family + "-" + v.Version.String()
}

// String returns "family-version", with "[index]" appended for packages
// with variants.
func (v *Variant) String() string {
	if v.Index == NoIndex {
		return v.QualifiedName()
	}
	return fmt.Sprintf("%s[%d]", v.QualifiedName(), v.Index)
}

// CompareVariants orders variants by version, then by index. Providers
// yield variants in this order.
func CompareVariants(a, b *Variant) int {
	if c := a.Version.Compare(b.Version); c != 0 {
		return c
	}
	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	}
	return 0
}
