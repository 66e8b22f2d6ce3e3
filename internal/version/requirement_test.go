package version

import (
	"testing"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		input    string
		family   string
		conflict bool
		str      string
	}{
		{"foo", "foo", false, "foo"},
		{"foo-1.2", "foo", false, "foo-1.2"},
		{"foo==1.2", "foo", false, "foo==1.2"},
		{"foo>=1", "foo", false, "foo-1+"},
		{"foo<2", "foo", false, "foo<2"},
		{"foo@1+<2", "foo", false, "foo-1+<2"},
		{"!foo-1", "foo", true, "!foo-1"},
		{"!foo", "foo", true, "!foo"},
		{" py_qt-5 ", "py_qt", false, "py_qt-5"},
		{"foo-1|3", "foo", false, "foo-1|3"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, err := ParseRequirement(tt.input)
			if err != nil {
				t.Fatalf("ParseRequirement(%q) error: %v", tt.input, err)
			}
			if r.Family != tt.family {
				t.Errorf("Family = %q, want %q", r.Family, tt.family)
			}
			if r.Conflict != tt.conflict {
				t.Errorf("Conflict = %v, want %v", r.Conflict, tt.conflict)
			}
			if got := r.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			again := MustParseRequirement(r.String())
			if !again.Equal(r) {
				t.Errorf("reparse of %q = %q", r.String(), again.String())
			}
		})
	}
}

func TestParseWeakRequirement(t *testing.T) {
	r := MustParseRequirement("~foo-1")
	if !r.Conflict {
		t.Fatal("weak requirement should be a conflict requirement")
	}
	if !r.Satisfied(MustParse("1.5")) {
		t.Error("~foo-1 should allow foo-1.5")
	}
	if r.Satisfied(MustParse("2")) {
		t.Error("~foo-1 should exclude foo-2")
	}
}

func TestParseRequirementErrors(t *testing.T) {
	for _, s := range []string{"", "-1", "!", "~foo", "foo bar", "foo-1.", "foo+1", "foo-2+<1"} {
		if _, err := ParseRequirement(s); err == nil {
			t.Errorf("ParseRequirement(%q) should fail", s)
		}
	}
}

func TestConflictsWith(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"foo-1", "foo-2", true},
		{"foo-1", "foo-1.2", false},
		{"!foo-1", "foo-1.2", true},
		{"foo-1.2", "!foo-1", true},
		{"!foo-1.2", "foo-1", false},
		{"!foo-1", "!foo-2", false},
		{"!foo", "foo", true},
		{"foo-1", "bar-2", false},
	}
	for _, tt := range tests {
		a, b := MustParseRequirement(tt.a), MustParseRequirement(tt.b)
		if got := a.ConflictsWith(b); got != tt.want {
			t.Errorf("%s conflicts with %s = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMerged(t *testing.T) {
	tests := []struct {
		a, b string
		want string
		ok   bool
	}{
		{"foo-1", "foo-1.2", "foo-1.2", true},
		{"foo-1+", "foo<2", "foo-1+<2", true},
		{"!foo-1", "!foo-2", "!foo-1|2", true},
		{"foo-1", "foo-2", "", false},
		{"!foo-1", "foo-1.2", "", false},
		{"foo-1", "bar-1", "", false},
	}
	for _, tt := range tests {
		got, ok := MustParseRequirement(tt.a).Merged(MustParseRequirement(tt.b))
		if ok != tt.ok {
			t.Errorf("%s + %s ok = %v, want %v", tt.a, tt.b, ok, tt.ok)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("%s + %s = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}

	// An exclusion narrows a plain requirement.
	got, ok := MustParseRequirement("!foo-1").Merged(MustParseRequirement("foo"))
	if !ok || got.Conflict {
		t.Fatalf("!foo-1 + foo = %v, %v", got, ok)
	}
	if got.Range.Contains(MustParse("1.3")) || !got.Range.Contains(MustParse("2")) {
		t.Errorf("!foo-1 + foo = %s", got)
	}
}

func TestRequirementList(t *testing.T) {
	l := NewRequirementList([]Requirement{
		MustParseRequirement("foo-1"),
		MustParseRequirement("bar"),
		MustParseRequirement("foo-1.2"),
	})
	if _, _, failed := l.Conflict(); failed {
		t.Fatal("unexpected conflict")
	}
	if got := l.String(); got != "foo-1.2 bar" {
		t.Errorf("String() = %q, want %q", got, "foo-1.2 bar")
	}
	if r, ok := l.Get("foo"); !ok || r.String() != "foo-1.2" {
		t.Errorf("Get(foo) = %v, %v", r, ok)
	}
	if _, ok := l.Get("baz"); ok {
		t.Error("Get(baz) should be missing")
	}

	l = NewRequirementList([]Requirement{
		MustParseRequirement("py==2.6"),
		MustParseRequirement("py==2.7"),
	})
	a, b, failed := l.Conflict()
	if !failed {
		t.Fatal("expected a conflict")
	}
	if a.String() != "py==2.6" || b.String() != "py==2.7" {
		t.Errorf("Conflict() = %s, %s", a, b)
	}
}
