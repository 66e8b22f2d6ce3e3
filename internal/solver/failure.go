package solver

import (
	"fmt"
	"strings"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// FailureReason explains why a phase could not be solved.
//
// Implementations are *TotalReduction, *DependencyConflicts and *Cycle.
type FailureReason interface {
	// Description is a one-line human readable summary.
	Description() string

	// Requirements returns the requirements implicated in the failure.
	Requirements() []version.Requirement

	String() string
}

// Reduction records a variant removed from a scope because one of its
// own requirements conflicted with a requirement from elsewhere in the
// phase.
type Reduction struct {
	Variant     *Variant
	Dependency  version.Requirement
	Conflicting version.Requirement
}

func (r Reduction) String() string {
	return fmt.Sprintf("%s (dep(%s) <--!--> %s)", r.Variant, r.Dependency, r.Conflicting)
}

// TotalReduction means every candidate of a family was removed. When
// Unmatched is set, a requirement matched no variant at all.
type TotalReduction struct {
	Reductions []Reduction
	Unmatched  *version.Requirement
}

func (f *TotalReduction) Description() string {
	return "total reduction: " + f.String()
}

func (f *TotalReduction) Requirements() []version.Requirement {
	var reqs []version.Requirement
	if f.Unmatched != nil {
		reqs = append(reqs, *f.Unmatched)
	}
	for _, r := range f.Reductions {
		reqs = append(reqs, r.Dependency, r.Conflicting)
	}
	return reqs
}

func (f *TotalReduction) String() string {
	if f.Unmatched != nil {
		return fmt.Sprintf("no variant matches %s", f.Unmatched)
	}
	parts := make([]string, 0, len(f.Reductions))
	for _, r := range f.Reductions {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}

// DependencyConflict is a pair of requirements that cannot both hold.
type DependencyConflict struct {
	Dependency  version.Requirement
	Conflicting version.Requirement
}

func (c DependencyConflict) String() string {
	return fmt.Sprintf("%s <--!--> %s", c.Dependency, c.Conflicting)
}

// DependencyConflicts means extracted or requested requirements disagree.
type DependencyConflicts struct {
	Conflicts []DependencyConflict
}

func (f *DependencyConflicts) Description() string {
	return "dependency conflicts: " + f.String()
}

func (f *DependencyConflicts) Requirements() []version.Requirement {
	reqs := make([]version.Requirement, 0, 2*len(f.Conflicts))
	for _, c := range f.Conflicts {
		reqs = append(reqs, c.Dependency, c.Conflicting)
	}
	return reqs
}

func (f *DependencyConflicts) String() string {
	parts := make([]string, 0, len(f.Conflicts))
	for _, c := range f.Conflicts {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ", ")
}

// Cycle means the resolved variants depend on each other in a loop. The
// first and last entries of Variants are the same variant.
type Cycle struct {
	Variants []*Variant
}

func (f *Cycle) Description() string {
	return "cyclic dependency: " + f.String()
}

func (f *Cycle) Requirements() []version.Requirement {
	reqs := make([]version.Requirement, 0, len(f.Variants))
	for _, v := range f.Variants[:max(len(f.Variants)-1, 0)] {
		reqs = append(reqs, v.exactRequirement())
	}
	return reqs
}

func (f *Cycle) String() string {
	parts := make([]string, 0, len(f.Variants))
	for _, v := range f.Variants {
		parts = append(parts, v.QualifiedName())
	}
	return strings.Join(parts, " → ")
}
