// Package version implements package versions, version ranges and package
// requirements: the range algebra the solver uses to compare, intersect,
// merge and invert constraints.
//
// Versions are sequences of alphanumeric tokens separated by "." or "-".
// Tokens compare piecewise: runs of digits compare numerically, runs of
// letters compare lexically and sort before digits. A version is smaller
// than any longer version it prefixes, so "1.2" < "1.2.0" < "1.2.5" < "1.3".
package version

import (
	"fmt"
	"strings"
)

// ParseError reports a malformed version, range or requirement string.
type ParseError struct {
	Kind   string
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Input, e.Reason)
}

// Version is an immutable package version.
//
// The zero Version is the empty version, which sorts before every other
// version.
type Version struct {
	tokens []token
	seps   []byte

	// adjacent marks the version that sorts directly above every version
	// prefixed by tokens. It only appears as a range bound.
	adjacent bool
}

type token struct {
	text  string
	parts []string
}

// Parse parses a version string. The empty string is the empty version.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, nil
	}

	var v Version
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && isTokenChar(s[i]) {
			continue
		}
		if i == start {
			return Version{}, &ParseError{Kind: "version", Input: s, Reason: "empty token"}
		}
		if i < len(s) && s[i] != '.' && s[i] != '-' {
			return Version{}, &ParseError{Kind: "version", Input: s, Reason: fmt.Sprintf("unexpected character %q", s[i])}
		}
		v.tokens = append(v.tokens, newToken(s[start:i]))
		if i < len(s) {
			v.seps = append(v.seps, s[i])
		}
		start = i + 1
	}
	return v, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func isTokenChar(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func newToken(s string) token {
	t := token{text: s}
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || isDigit(s[i]) != isDigit(s[i-1]) {
			t.parts = append(t.parts, s[start:i])
			start = i
		}
	}
	return t
}

// String returns the version as it was parsed.
func (v Version) String() string {
	var sb strings.Builder
	for i, t := range v.tokens {
		if i > 0 {
			sb.WriteByte(v.seps[i-1])
		}
		sb.WriteString(t.text)
	}
	if v.adjacent {
		sb.WriteString(".*")
	}
	return sb.String()
}

// IsEmpty reports whether v is the empty version.
func (v Version) IsEmpty() bool {
	return len(v.tokens) == 0 && !v.adjacent
}

// Len returns the number of tokens in v.
func (v Version) Len() int {
	return len(v.tokens)
}

// Trim returns the version made of the first n tokens of v.
func (v Version) Trim(n int) Version {
	if n >= len(v.tokens) {
		return Version{tokens: v.tokens, seps: v.seps}
	}
	if n <= 0 {
		return Version{}
	}
	return Version{tokens: v.tokens[:n], seps: v.seps[:n-1]}
}

// next returns the version sorting directly above every version that v
// prefixes.
func (v Version) next() Version {
	return Version{tokens: v.tokens, seps: v.seps, adjacent: true}
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to
// or after o.
func (v Version) Compare(o Version) int {
	n := min(len(v.tokens), len(o.tokens))
	for i := 0; i < n; i++ {
		if c := compareTokens(v.tokens[i], o.tokens[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(v.tokens) == len(o.tokens):
		switch {
		case v.adjacent == o.adjacent:
			return 0
		case v.adjacent:
			return 1
		default:
			return -1
		}
	case len(v.tokens) < len(o.tokens):
		if v.adjacent {
			return 1
		}
		return -1
	default:
		if o.adjacent {
			return -1
		}
		return 1
	}
}

// Equal reports whether v and o are the same version.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

func compareTokens(a, b token) int {
	n := min(len(a.parts), len(b.parts))
	for i := 0; i < n; i++ {
		if c := compareParts(a.parts[i], b.parts[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a.parts) < len(b.parts):
		return -1
	case len(a.parts) > len(b.parts):
		return 1
	}
	return 0
}

func compareParts(a, b string) int {
	an, bn := isDigit(a[0]), isDigit(b[0])
	switch {
	case an && !bn:
		return 1
	case !an && bn:
		return -1
	case !an:
		return strings.Compare(a, b)
	}

	at, bt := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(at) != len(bt) {
		if len(at) < len(bt) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(at, bt); c != 0 {
		return c
	}
	// "1" and "01" are numerically equal; keep the order total.
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
