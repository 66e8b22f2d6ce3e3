package version

import (
	"strings"
)

// Requirement constrains one package family to a version range. A conflict
// requirement ("!foo-1") excludes the range instead: the family may be
// absent, or present outside the range.
type Requirement struct {
	Family   string
	Range    Range
	Conflict bool
}

// NewRequirement returns a requirement on family within r.
func NewRequirement(family string, r Range) Requirement {
	return Requirement{Family: family, Range: r}
}

// ParseRequirement parses a requirement string.
//
//	foo          any version of foo
//	foo-1.2      foo within range "1.2" (see ParseRange)
//	foo==1.2     foo<2  foo>=1  foo@1+<2
//	!foo-1.2     foo must not be in 1.2
//	~foo-1.2     if foo is present it must be in 1.2
func ParseRequirement(s string) (Requirement, error) {
	orig := s
	s = strings.TrimSpace(s)

	var req Requirement
	weak := false
	switch {
	case strings.HasPrefix(s, "!"):
		req.Conflict = true
		s = s[1:]
	case strings.HasPrefix(s, "~"):
		weak = true
		s = s[1:]
	}

	i := 0
	for i < len(s) && isTokenChar(s[i]) {
		i++
	}
	if i == 0 {
		return Requirement{}, &ParseError{Kind: "requirement", Input: orig, Reason: "missing package name"}
	}
	req.Family, s = s[:i], s[i:]

	var rangeStr string
	switch {
	case s == "":
	case s[0] == '-' || s[0] == '@':
		rangeStr = s[1:]
	case strings.ContainsRune("=<>", rune(s[0])):
		rangeStr = s
	default:
		return Requirement{}, &ParseError{Kind: "requirement", Input: orig, Reason: "unexpected " + strings.TrimSpace(s)}
	}

	r, err := ParseRange(rangeStr)
	if err != nil {
		return Requirement{}, &ParseError{Kind: "requirement", Input: orig, Reason: err.Error()}
	}
	req.Range = r

	if weak {
		inv, ok := r.Inverse()
		if !ok {
			return Requirement{}, &ParseError{Kind: "requirement", Input: orig, Reason: "weak requirement needs a version range"}
		}
		req.Range, req.Conflict = inv, true
	}
	return req, nil
}

// MustParseRequirement is like ParseRequirement but panics on error.
func MustParseRequirement(s string) Requirement {
	r, err := ParseRequirement(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseRequirements parses each string in order.
func ParseRequirements(ss []string) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(ss))
	for _, s := range ss {
		r, err := ParseRequirement(s)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// Satisfied reports whether a resolved version v of the family meets r.
func (r Requirement) Satisfied(v Version) bool {
	return r.Range.Contains(v) != r.Conflict
}

// ConflictsWith reports whether r and o can never both hold. Requirements
// on different families never conflict.
func (r Requirement) ConflictsWith(o Requirement) bool {
	if r.Family != o.Family {
		return false
	}
	switch {
	case r.Conflict && o.Conflict:
		return false
	case r.Conflict:
		return r.Range.IsSuperset(o.Range)
	case o.Conflict:
		return o.Range.IsSuperset(r.Range)
	default:
		return !r.Range.Intersects(o.Range)
	}
}

// Merged returns the requirement equivalent to r and o together; ok is
// false when they conflict or the families differ.
func (r Requirement) Merged(o Requirement) (Requirement, bool) {
	if r.Family != o.Family {
		return Requirement{}, false
	}
	var (
		rng Range
		ok  bool
	)
	switch {
	case r.Conflict && o.Conflict:
		return Requirement{Family: r.Family, Range: r.Range.Union(o.Range), Conflict: true}, true
	case r.Conflict:
		rng, ok = o.Range.Subtract(r.Range)
	case o.Conflict:
		rng, ok = r.Range.Subtract(o.Range)
	default:
		rng, ok = r.Range.Intersect(o.Range)
	}
	if !ok {
		return Requirement{}, false
	}
	return Requirement{Family: r.Family, Range: rng}, true
}

// Equal reports whether r and o are the same requirement.
func (r Requirement) Equal(o Requirement) bool {
	return r.Family == o.Family && r.Conflict == o.Conflict && r.Range.Equal(o.Range)
}

func (r Requirement) String() string {
	var sb strings.Builder
	if r.Conflict {
		sb.WriteByte('!')
	}
	sb.WriteString(r.Family)
	if !r.Range.IsAny() {
		rs := r.Range.String()
		if !strings.ContainsRune("=<>", rune(rs[0])) {
			sb.WriteByte('-')
		}
		sb.WriteString(rs)
	}
	return sb.String()
}

// RequirementList merges requirements per family, keeping the order in
// which families first appear.
type RequirementList struct {
	reqs     []Requirement
	index    map[string]int
	conflict [2]Requirement
	failed   bool
}

// NewRequirementList merges reqs. Merging stops at the first pair that
// cannot be combined; see Conflict.
func NewRequirementList(reqs []Requirement) *RequirementList {
	l := &RequirementList{index: make(map[string]int)}
	for _, req := range reqs {
		i, ok := l.index[req.Family]
		if !ok {
			l.index[req.Family] = len(l.reqs)
			l.reqs = append(l.reqs, req)
			continue
		}
		merged, ok := l.reqs[i].Merged(req)
		if !ok {
			l.conflict = [2]Requirement{l.reqs[i], req}
			l.failed = true
			break
		}
		l.reqs[i] = merged
	}
	return l
}

// Requirements returns the merged requirements.
func (l *RequirementList) Requirements() []Requirement {
	return append([]Requirement(nil), l.reqs...)
}

// Get returns the merged requirement on family.
func (l *RequirementList) Get(family string) (Requirement, bool) {
	i, ok := l.index[family]
	if !ok {
		return Requirement{}, false
	}
	return l.reqs[i], true
}

// Conflict returns the first pair of requirements that could not be
// merged.
func (l *RequirementList) Conflict() (Requirement, Requirement, bool) {
	return l.conflict[0], l.conflict[1], l.failed
}

func (l *RequirementList) String() string {
	parts := make([]string, 0, len(l.reqs))
	for _, r := range l.reqs {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " ")
}
