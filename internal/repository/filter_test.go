package repository

import (
	"slices"
	"testing"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
)

func filterRepo() *Memory {
	m := NewMemory()
	m.AddVariants(
		solver.MustNewVariant("py", "2.6.8", solver.NoIndex),
		solver.MustNewVariant("py", "2.7.0", solver.NoIndex),
		solver.MustNewVariant("py", "3.1.0", solver.NoIndex),
		solver.MustNewVariant("foo", "1.0", 0, "py-2"),
		solver.MustNewVariant("foo", "1.0", 1, "py-3"),
	)
	beta := solver.MustNewVariant("py", "3.2.beta", solver.NoIndex)
	beta.Timestamp = time.Unix(2000, 0)
	m.AddVariants(beta)
	return m
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		rules  FilterRules
		family string
		want   []string
	}{
		{
			name:   "no rules",
			family: "py",
			want:   []string{"py-2.6.8", "py-2.7.0", "py-3.1.0", "py-3.2.beta"},
		},
		{
			name:   "exclude by range",
			rules:  FilterRules{Excludes: []string{`name == "py" && in_range(version, "3+")`}},
			family: "py",
			want:   []string{"py-2.6.8", "py-2.7.0"},
		},
		{
			name: "include overrides exclude",
			rules: FilterRules{
				Excludes: []string{`in_range(version, "3+")`},
				Includes: []string{`version == "3.1.0"`},
			},
			family: "py",
			want:   []string{"py-2.6.8", "py-2.7.0", "py-3.1.0"},
		},
		{
			name:   "exclude by timestamp",
			rules:  FilterRules{Excludes: []string{`timestamp > 1000`}},
			family: "py",
			want:   []string{"py-2.6.8", "py-2.7.0", "py-3.1.0"},
		},
		{
			name:   "exclude by requirement",
			rules:  FilterRules{Excludes: []string{`"py-3" in requires`}},
			family: "foo",
			want:   []string{"foo-1.0[0]"},
		},
		{
			name:   "exclude by index",
			rules:  FilterRules{Excludes: []string{`index == 0`}},
			family: "foo",
			want:   []string{"foo-1.0[1]"},
		},
		{
			name:   "include without exclude",
			rules:  FilterRules{Includes: []string{`false`}},
			family: "foo",
			want:   []string{"foo-1.0[0]", "foo-1.0[1]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(filterRepo(), tt.rules)
			if err != nil {
				t.Fatalf("NewFilter: %v", err)
			}
			if got := collect(t, f, tt.family, time.Time{}); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterErrors(t *testing.T) {
	tests := []struct {
		name  string
		rules FilterRules
	}{
		{"empty", FilterRules{Excludes: []string{""}}},
		{"syntax", FilterRules{Excludes: []string{"name =="}}},
		{"not bool", FilterRules{Excludes: []string{"index + 1"}}},
		{"unknown variable", FilterRules{Includes: []string{"arch == 'x86'"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFilter(NewMemory(), tt.rules); err == nil {
				t.Error("expected compile error")
			}
		})
	}
}

func TestFilterBadRangeAtRuntime(t *testing.T) {
	f, err := NewFilter(filterRepo(), FilterRules{Excludes: []string{`in_range(version, "1+<")`}})
	if err != nil {
		t.Fatal(err)
	}
	var sawErr bool
	for _, err := range f.Variants(t.Context(), "py", time.Time{}) {
		if err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("an invalid range should surface as an error")
	}
}
