package repository

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

const packagesYAML = `
packages:
  - name: py
    version: "2.7.0"
  - name: py
    version: "2.6.8"
  - name: foo
    version: "1.0"
    requires: [bar]
    variants:
      - [py-2.6]
      - [py-2.7]
  - name: bar
    version: "1.0"
`

func TestLoadMemory(t *testing.T) {
	m, err := LoadMemory([]byte(packagesYAML))
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}

	if got := collect(t, m, "py", time.Time{}); !slices.Equal(got, []string{"py-2.6.8", "py-2.7.0"}) {
		t.Errorf("py = %v", got)
	}
	if got := collect(t, m, "foo", time.Time{}); !slices.Equal(got, []string{"foo-1.0[0]", "foo-1.0[1]"}) {
		t.Errorf("foo = %v", got)
	}

	ok, _ := m.FamilyExists(context.Background(), "bar")
	missing, _ := m.FamilyExists(context.Background(), "nope")
	if !ok || missing {
		t.Errorf("FamilyExists = %v, %v", ok, missing)
	}

	families, err := m.Families(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []Family{
		{Name: "bar", Versions: []string{"1.0"}},
		{Name: "foo", Versions: []string{"1.0"}},
		{Name: "py", Versions: []string{"2.6.8", "2.7.0"}},
	}
	if len(families) != len(want) {
		t.Fatalf("families = %v", families)
	}
	for i := range want {
		if families[i].Name != want[i].Name || !slices.Equal(families[i].Versions, want[i].Versions) {
			t.Errorf("families[%d] = %v, want %v", i, families[i], want[i])
		}
	}
}

func TestLoadMemoryErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "packages: [\n"},
		{"bad manifest", "packages:\n  - name: foo\n    version: '1..0'\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadMemory([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMemoryReplacesVersion(t *testing.T) {
	m := NewMemory()
	m.AddVariants(solver.MustNewVariant("foo", "1", solver.NoIndex, "bar-1"))
	m.AddVariants(solver.MustNewVariant("foo", "1", solver.NoIndex, "bar-2"))

	var got []*solver.Variant
	for v, err := range m.Variants(context.Background(), "foo", time.Time{}) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, v)
	}
	if len(got) != 1 || got[0].Requires()[0].String() != "bar-2" {
		t.Errorf("variants = %v", got)
	}
}

func TestFilesystem(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, &Manifest{Name: "py", Version: "2.7.0"})
	writePackage(t, root, &Manifest{Name: "py", Version: "2.10.0", Timestamp: 2000})
	writePackage(t, root, &Manifest{Name: "py", Version: "2.6.8", Timestamp: 1000})
	writePackage(t, root, &Manifest{Name: "foo", Version: "1.0", Variants: [][]string{{"py-2.6"}, {"py-2.7"}}})
	// Ignored: not a version, no manifest, misplaced manifest.
	if err := os.MkdirAll(filepath.Join(root, "py", "not.a..version"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "py", "3.0"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := WriteManifest(&Manifest{Name: "other", Version: "1"}, filepath.Join(root, "py", "4.0")); err != nil {
		t.Fatal(err)
	}

	repo := NewFilesystem(root, nil)
	ctx := context.Background()

	if got := collect(t, repo, "py", time.Time{}); !slices.Equal(got, []string{"py-2.6.8", "py-2.7.0", "py-2.10.0"}) {
		t.Errorf("py = %v", got)
	}
	if got := collect(t, repo, "py", time.Unix(1500, 0)); !slices.Equal(got, []string{"py-2.6.8", "py-2.7.0"}) {
		t.Errorf("py before cutoff = %v", got)
	}
	if got := collect(t, repo, "foo", time.Time{}); !slices.Equal(got, []string{"foo-1.0[0]", "foo-1.0[1]"}) {
		t.Errorf("foo = %v", got)
	}

	for family, want := range map[string]bool{"py": true, "foo": true, "nope": false, "py-2": false} {
		got, err := repo.FamilyExists(ctx, family)
		if err != nil || got != want {
			t.Errorf("FamilyExists(%q) = %v, %v", family, got, err)
		}
	}

	families, err := repo.Families(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 2 || families[0].Name != "foo" || !slices.Equal(families[1].Versions, []string{"2.6.8", "2.7.0", "2.10.0", "4.0"}) {
		t.Errorf("families = %v", families)
	}
}

func TestFilesystemStopsEarly(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, &Manifest{Name: "x", Version: "1"})
	writePackage(t, root, &Manifest{Name: "x", Version: "2"})
	// A broken manifest after the first version is never read.
	if err := os.MkdirAll(filepath.Join(root, "x", "3"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "x", "3", ManifestFile), []byte("name: [\n"), 0644); err != nil {
		t.Fatal(err)
	}

	repo := NewFilesystem(root, nil)
	for v, err := range repo.Variants(context.Background(), "x", time.Time{}) {
		if err != nil {
			t.Fatal(err)
		}
		if v.String() != "x-1" {
			t.Errorf("first = %s", v)
		}
		break
	}

	var sawErr bool
	for _, err := range repo.Variants(context.Background(), "x", time.Time{}) {
		if err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("reading the broken manifest should yield an error")
	}
}

func TestChain(t *testing.T) {
	local := NewMemory()
	local.AddVariants(
		solver.MustNewVariant("py", "2.7.0", solver.NoIndex, "local"),
		solver.MustNewVariant("foo", "1.0", 0),
	)
	central := NewMemory()
	central.AddVariants(
		solver.MustNewVariant("py", "2.6.8", solver.NoIndex),
		solver.MustNewVariant("py", "2.7.0", solver.NoIndex, "central"),
		solver.MustNewVariant("py", "3.1", solver.NoIndex),
		solver.MustNewVariant("bar", "1.0", solver.NoIndex),
	)
	chain := NewChain(local, central)

	var got []string
	for v, err := range chain.Variants(context.Background(), "py", time.Time{}) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, v.String())
		if v.Version.Equal(version.MustParse("2.7.0")) && v.Requires()[0].Family != "local" {
			t.Error("the first repository should win for a duplicated version")
		}
	}
	if !slices.Equal(got, []string{"py-2.6.8", "py-2.7.0", "py-3.1"}) {
		t.Errorf("py = %v", got)
	}

	ok, _ := chain.FamilyExists(context.Background(), "bar")
	if !ok {
		t.Error("bar should exist in the chain")
	}

	families, err := chain.Families(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 3 || families[2].Name != "py" || !slices.Equal(families[2].Versions, []string{"2.6.8", "2.7.0", "3.1"}) {
		t.Errorf("families = %v", families)
	}
}

func TestChainSolves(t *testing.T) {
	a := NewMemory()
	a.AddVariants(solver.MustNewVariant("app", "1", solver.NoIndex, "lib-2"))
	b := NewMemory()
	b.AddVariants(
		solver.MustNewVariant("lib", "1", solver.NoIndex),
		solver.MustNewVariant("lib", "2", solver.NoIndex),
	)

	s, err := solver.New([]version.Requirement{version.MustParseRequirement("app")}, NewChain(a, b), solver.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Solve(context.Background()); err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, v := range s.Resolved() {
		got = append(got, v.String())
	}
	if !slices.Equal(got, []string{"lib-2", "app-1"}) {
		t.Errorf("resolved = %v", got)
	}
}
