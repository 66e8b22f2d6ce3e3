package version

import (
	"fmt"
	"sort"
	"strings"
)

// Range is an immutable set of versions: a union of disjoint intervals.
//
// The zero Range matches every version. An empty range is never
// represented; operations that could produce one return ok == false
// instead.
//
// Syntax (parts joined by "|"):
//
//	""  "*"     any version
//	1.2         1.2 and every version it prefixes (1.2.0, 1.2.5, ...)
//	==1.2       exactly 1.2
//	1.2+        1.2 or later
//	1.2+<2      1.2 or later, below 2
//	1.2..2      1.2 up to 2 inclusive
//	<2 <=2      below 2 / up to 2 inclusive
//	>1 >=1      above 1 / 1 or later, optionally followed by <W or <=W
//	<=1.*  >1.* up to / above every version prefixed by 1
type Range struct {
	bounds []bound
}

type bound struct {
	lower    Version
	lowerInc bool
	upper    Version
	upperInc bool
	inf      bool
}

// Any returns the range matching every version.
func Any() Range {
	return Range{}
}

// Exact returns the range matching only v.
func Exact(v Version) Range {
	return Range{bounds: []bound{{lower: v, lowerInc: true, upper: v, upperInc: true}}}
}

// Prefix returns the range matching v and every version v prefixes.
func Prefix(v Version) Range {
	if v.IsEmpty() {
		return Any()
	}
	return Range{bounds: []bound{{lower: v, lowerInc: true, upper: v.next()}}}
}

// FromVersions returns the range matching exactly the given versions.
func FromVersions(versions []Version) Range {
	bs := make([]bound, 0, len(versions))
	for _, v := range versions {
		bs = append(bs, bound{lower: v, lowerInc: true, upper: v, upperInc: true})
	}
	r, _ := fromBounds(bs)
	return r
}

// ParseRange parses a version range string.
func ParseRange(s string) (Range, error) {
	var bs []bound
	for _, part := range strings.Split(s, "|") {
		b, err := parseBound(part)
		if err != nil {
			return Range{}, &ParseError{Kind: "range", Input: s, Reason: err.Error()}
		}
		bs = append(bs, b)
	}
	r, ok := fromBounds(bs)
	if !ok {
		return Range{}, &ParseError{Kind: "range", Input: s, Reason: "range matches no versions"}
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func parseBound(s string) (bound, error) {
	b := bound{lowerInc: true, inf: true}
	if s == "" || s == "*" {
		return b, nil
	}

	if strings.HasPrefix(s, "==") {
		v, err := parseBoundVersion(s[2:])
		if err != nil {
			return b, err
		}
		return bound{lower: v, lowerInc: true, upper: v, upperInc: true}, nil
	}

	if lo, hi, ok := strings.Cut(s, ".."); ok {
		if lo != "" {
			v, err := parseBoundVersion(lo)
			if err != nil {
				return b, err
			}
			b.lower = v
		}
		if hi != "" {
			v, err := parseBoundVersion(hi)
			if err != nil {
				return b, err
			}
			b.upper, b.upperInc, b.inf = v, true, false
		}
		return b.normalized(), nil
	}

	rest := s
	switch {
	case strings.HasPrefix(rest, ">="), strings.HasPrefix(rest, ">"):
		inc := strings.HasPrefix(rest, ">=")
		rest = strings.TrimLeft(rest, ">=")
		text, tail := splitVersion(rest)
		v, err := parseBoundVersion(text)
		if err != nil {
			return b, err
		}
		b.lower, b.lowerInc = v, inc
		rest = tail
	case !strings.HasPrefix(rest, "<"):
		text, tail := splitVersion(rest)
		v, err := parseBoundVersion(text)
		if err != nil {
			return b, err
		}
		if tail == "" {
			v.adjacent = false
			return Prefix(v).bounds[0], nil
		}
		if tail[0] != '+' {
			return b, fmt.Errorf("unexpected %q after version %q", tail, text)
		}
		b.lower = v
		rest = tail[1:]
	}

	if rest == "" {
		return b.normalized(), nil
	}
	inc := strings.HasPrefix(rest, "<=")
	if !inc && !strings.HasPrefix(rest, "<") {
		return b, fmt.Errorf("unexpected %q", rest)
	}
	text, tail := splitVersion(strings.TrimLeft(rest, "<="))
	if tail != "" {
		return b, fmt.Errorf("unexpected %q", tail)
	}
	v, err := parseBoundVersion(text)
	if err != nil {
		return b, err
	}
	b.upper, b.upperInc, b.inf = v, inc, false
	return b.normalized(), nil
}

// splitVersion splits s after the longest leading run of version
// characters (including a trailing ".*").
func splitVersion(s string) (string, string) {
	i := 0
	for i < len(s) && (isTokenChar(s[i]) || s[i] == '.' || s[i] == '-') {
		i++
	}
	if i < len(s) && s[i] == '*' && i > 0 && s[i-1] == '.' {
		i++
	}
	return s[:i], s[i:]
}

func parseBoundVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("missing version")
	}
	adjacent := false
	if base, ok := strings.CutSuffix(s, ".*"); ok {
		if base == "" {
			return Version{}, fmt.Errorf("missing version before %q", ".*")
		}
		s, adjacent = base, true
	}
	v, err := Parse(s)
	if err != nil {
		return Version{}, err
	}
	if adjacent {
		v = v.next()
	}
	return v, nil
}

// normalized fixes the inclusivity of adjacent bounds: no real version
// equals an adjacent version, so the flag only matters for comparisons
// between bounds.
func (b bound) normalized() bound {
	if b.lower.adjacent {
		b.lowerInc = true
	}
	if !b.inf && b.upper.adjacent {
		b.upperInc = false
	}
	return b
}

func (b bound) empty() bool {
	if b.inf {
		return false
	}
	c := b.lower.Compare(b.upper)
	return c > 0 || (c == 0 && !(b.lowerInc && b.upperInc))
}

func (b bound) isAny() bool {
	return b.inf && b.lower.IsEmpty() && b.lowerInc
}

func (b bound) contains(v Version) bool {
	c := v.Compare(b.lower)
	if c < 0 || (c == 0 && !b.lowerInc) {
		return false
	}
	if b.inf {
		return true
	}
	c = v.Compare(b.upper)
	return c < 0 || (c == 0 && b.upperInc)
}

func (b bound) equal(o bound) bool {
	if b.inf != o.inf || b.lowerInc != o.lowerInc || !b.lower.Equal(o.lower) {
		return false
	}
	return b.inf || (b.upperInc == o.upperInc && b.upper.Equal(o.upper))
}

func intersectBounds(a, b bound) (bound, bool) {
	r := a
	if c := b.lower.Compare(a.lower); c > 0 || (c == 0 && !b.lowerInc) {
		r.lower, r.lowerInc = b.lower, b.lowerInc
	}
	switch {
	case a.inf:
		r.upper, r.upperInc, r.inf = b.upper, b.upperInc, b.inf
	case b.inf:
	default:
		if c := b.upper.Compare(a.upper); c < 0 || (c == 0 && !b.upperInc) {
			r.upper, r.upperInc = b.upper, b.upperInc
		}
	}
	r = r.normalized()
	return r, !r.empty()
}

// touches reports whether b (sorted first) overlaps or abuts o.
func (b bound) touches(o bound) bool {
	if b.inf {
		return true
	}
	c := b.upper.Compare(o.lower)
	return c > 0 || (c == 0 && (b.upperInc || o.lowerInc))
}

func (b bound) extend(o bound) bound {
	switch {
	case b.inf:
	case o.inf:
		b.upper, b.upperInc, b.inf = Version{}, false, true
	default:
		if c := o.upper.Compare(b.upper); c > 0 || (c == 0 && o.upperInc) {
			b.upper, b.upperInc = o.upper, o.upperInc
		}
	}
	return b
}

// fromBounds sorts, merges and drops empty bounds.
func fromBounds(bs []bound) (Range, bool) {
	sorted := make([]bound, 0, len(bs))
	for _, b := range bs {
		b = b.normalized()
		if !b.empty() {
			sorted = append(sorted, b)
		}
	}
	if len(sorted) == 0 {
		return Range{}, false
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		c := sorted[i].lower.Compare(sorted[j].lower)
		return c < 0 || (c == 0 && sorted[i].lowerInc && !sorted[j].lowerInc)
	})

	merged := []bound{sorted[0]}
	for _, b := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.touches(b) {
			*last = last.extend(b)
			continue
		}
		merged = append(merged, b)
	}
	if len(merged) == 1 && merged[0].isAny() {
		return Range{}, true
	}
	return Range{bounds: merged}, true
}

func (r Range) spans() []bound {
	if r.bounds == nil {
		return []bound{{lowerInc: true, inf: true}}
	}
	return r.bounds
}

// IsAny reports whether r matches every version.
func (r Range) IsAny() bool {
	return r.bounds == nil
}

// Contains reports whether v lies in r.
func (r Range) Contains(v Version) bool {
	for _, b := range r.spans() {
		if b.contains(v) {
			return true
		}
	}
	return false
}

// Upper returns the highest upper bound of r; unbounded is true when r
// extends to every later version.
func (r Range) Upper() (v Version, unbounded bool) {
	spans := r.spans()
	last := spans[len(spans)-1]
	return last.upper, last.inf
}

// Intersect returns the versions in both r and o.
func (r Range) Intersect(o Range) (Range, bool) {
	var bs []bound
	for _, a := range r.spans() {
		for _, b := range o.spans() {
			if ib, ok := intersectBounds(a, b); ok {
				bs = append(bs, ib)
			}
		}
	}
	return fromBounds(bs)
}

// Intersects reports whether r and o share at least one version.
func (r Range) Intersects(o Range) bool {
	_, ok := r.Intersect(o)
	return ok
}

// Union returns the versions in r or o.
func (r Range) Union(o Range) Range {
	bs := append(append([]bound{}, r.spans()...), o.spans()...)
	u, _ := fromBounds(bs)
	return u
}

// Inverse returns the versions not in r; ok is false when r is Any.
func (r Range) Inverse() (Range, bool) {
	var bs []bound
	lower, lowerInc := Version{}, true
	for _, b := range r.spans() {
		gap := bound{lower: lower, lowerInc: lowerInc, upper: b.lower, upperInc: !b.lowerInc}
		bs = append(bs, gap)
		if b.inf {
			return fromBounds(bs)
		}
		lower, lowerInc = b.upper, !b.upperInc
	}
	bs = append(bs, bound{lower: lower, lowerInc: lowerInc, inf: true})
	return fromBounds(bs)
}

// Subtract returns the versions in r but not in o.
func (r Range) Subtract(o Range) (Range, bool) {
	inv, ok := o.Inverse()
	if !ok {
		return Range{}, false
	}
	return r.Intersect(inv)
}

// IsSuperset reports whether every version in o is also in r.
func (r Range) IsSuperset(o Range) bool {
	_, ok := o.Subtract(r)
	return !ok
}

// Equal reports whether r and o match the same versions.
func (r Range) Equal(o Range) bool {
	if len(r.bounds) != len(o.bounds) {
		return false
	}
	for i := range r.bounds {
		if !r.bounds[i].equal(o.bounds[i]) {
			return false
		}
	}
	return true
}

func (r Range) String() string {
	parts := make([]string, 0, len(r.bounds))
	for _, b := range r.bounds {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "|")
}

func (b bound) String() string {
	if b.isAny() {
		return ""
	}
	if !b.inf && b.lowerInc && !b.lower.adjacent && b.upper.adjacent &&
		b.lower.Len() == b.upper.Len() && b.lower.Equal(Version{tokens: b.upper.tokens}) {
		return b.lower.String()
	}
	if !b.inf && b.lowerInc && b.upperInc && b.lower.Equal(b.upper) {
		return "==" + b.lower.String()
	}

	var sb strings.Builder
	hasLower := !(b.lower.IsEmpty() && b.lowerInc)
	switch {
	case !hasLower:
	case b.lower.adjacent || !b.lowerInc:
		sb.WriteString(">" + b.lower.String())
	case b.inf:
		return b.lower.String() + "+"
	default:
		sb.WriteString(b.lower.String() + "+")
	}
	switch {
	case b.inf:
	case b.upper.adjacent || b.upperInc:
		sb.WriteString("<=" + b.upper.String())
	default:
		sb.WriteString("<" + b.upper.String())
	}
	return sb.String()
}
