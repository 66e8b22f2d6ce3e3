package lockfile

import (
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

func resolved() []*solver.Variant {
	return []*solver.Variant{
		solver.MustNewVariant("py", "2.7.0", solver.NoIndex),
		solver.MustNewVariant("foo", "1.0", 1, "py-2.7"),
		solver.MustNewVariant("app", "3", solver.NoIndex, "foo"),
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	lf := Generate([]string{"app"}, resolved(), time.Unix(1700000000, 0))
	if err := Write(dir, lf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(Path(dir))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "}\n") || !strings.Contains(string(data), `"index": 1`) {
		t.Errorf("lock file:\n%s", data)
	}

	got, err := Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var names []string
	for _, p := range got.Packages {
		names = append(names, p.String())
	}
	if !slices.Equal(names, []string{"app-3", "foo-1.0[1]", "py-2.7.0"}) {
		t.Errorf("packages = %v", names)
	}
	if got.Timestamp != 1700000000 || !slices.Equal(got.Request, []string{"app"}) {
		t.Errorf("lock = %+v", got)
	}
	if pins := got.Pins(); !slices.Equal(pins, []string{"app==3", "foo==1.0", "py==2.7.0"}) {
		t.Errorf("pins = %v", pins)
	}
}

func TestPinsParse(t *testing.T) {
	variants := append(resolved(), solver.MustNewVariant("tools", "", solver.NoIndex))
	lf := Generate([]string{"app", "tools"}, variants, time.Time{})

	pins := lf.Pins()
	if !slices.Contains(pins, "tools") {
		t.Errorf("pins = %v, want an unversioned tools pin", pins)
	}
	reqs, err := version.ParseRequirements(pins)
	if err != nil {
		t.Fatalf("pins do not parse: %v", err)
	}
	if len(reqs) != len(variants) {
		t.Errorf("got %d requirements, want %d", len(reqs), len(variants))
	}
}

func TestReadMissing(t *testing.T) {
	lf, err := Read(t.TempDir())
	if lf != nil || err != nil {
		t.Errorf("Read = %v, %v; want nil, nil", lf, err)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad json", "{"},
		{"unknown version", `{"version": "9", "packages": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(Path(dir), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Read(dir); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	lf := Generate([]string{"app"}, resolved(), time.Time{})
	if lf.Timestamp != 0 {
		t.Errorf("zero timestamp written as %d", lf.Timestamp)
	}
	if m := Validate(lf, resolved()); m != nil {
		t.Errorf("identical resolve: %v", m)
	}
	if m := Validate(nil, resolved()); m != nil {
		t.Errorf("nil lock: %v", m)
	}

	changed := []*solver.Variant{
		solver.MustNewVariant("py", "3.1", solver.NoIndex),
		solver.MustNewVariant("foo", "1.0", 0, "py-3"),
		solver.MustNewVariant("bar", "1", solver.NoIndex),
	}
	got := Validate(lf, changed)
	want := []string{
		"py: version mismatch (locked: 2.7.0, resolved: 3.1)",
		"foo: variant mismatch (locked: foo-1.0[1], resolved: foo-1.0[0])",
		"bar-1: resolved but not locked",
		"app-3: locked but not resolved",
	}
	if !slices.Equal(got, want) {
		t.Errorf("mismatches:\n got %q\nwant %q", got, want)
	}
}
