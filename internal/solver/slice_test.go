package solver

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

func sliceOf(pref Preference, variants ...*Variant) *variantSlice {
	vs := slices.Clone(variants)
	slices.SortFunc(vs, CompareVariants)
	return newVariantSlice(vs[0].Family, vs, nil, pref)
}

func TestSliceString(t *testing.T) {
	tests := []struct {
		name  string
		slice *variantSlice
		want  string
	}{
		{"range", sliceOf(PreferNewest, v("py", "2.5.2"), v("py", "2.6.8"), v("py", "2.7.0")), "py[2.5.2..2.7.0(3:3)]"},
		{"variants", sliceOf(PreferNewest, MustNewVariant("foo", "1.0", 0, "py-2.5"), MustNewVariant("foo", "1.0", 1, "py-2.6")), "foo[1.0..1.0(1:2)]"},
		{"extractable", sliceOf(PreferNewest, v("lib", "1.0", "util-1"), v("lib", "1.5", "util-1")), "lib[1.0..1.5(2:2)]*"},
		{"single", sliceOf(PreferNewest, v("py", "2.7.0")), "py[2.7.0]"},
		{"single variant", sliceOf(PreferNewest, MustNewVariant("foo", "1.0", 1, "py")), "foo[1.0[1]]*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slice.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSliceIntersect(t *testing.T) {
	s := sliceOf(PreferNewest, v("py", "2.5.2"), v("py", "2.6.8"), v("py", "2.7.0"))

	if got := s.intersect(version.MustParseRange("2")); got != s {
		t.Error("intersect removing nothing should return the same slice")
	}
	if got := s.intersect(version.MustParseRange("3")); got != nil {
		t.Errorf("intersect removing everything = %v, want nil", got)
	}
	got := s.intersect(version.MustParseRange("2.6+"))
	if got == nil || got.String() != "py[2.6.8..2.7.0(2:2)]" {
		t.Errorf("intersect(2.6+) = %v", got)
	}
}

func TestSliceReduce(t *testing.T) {
	s := sliceOf(PreferNewest, v("foo", "1", "bar-1"), v("foo", "2", "bar-2"), v("foo", "3"))

	if got, reductions := s.reduce(version.MustParseRequirement("baz==1")); got != s || reductions != nil {
		t.Error("reducing by an unreferenced family should be a no-op")
	}

	got, reductions := s.reduce(version.MustParseRequirement("bar==2.0"))
	if got == nil || got.String() != "foo[2..3(2:2)]" {
		t.Fatalf("reduce = %v", got)
	}
	if len(reductions) != 1 || reductions[0].Variant.String() != "foo-1" {
		t.Errorf("reductions = %v", reductions)
	}

	got, reductions = got.reduce(version.MustParseRequirement("!bar"))
	if got == nil || got.String() != "foo[3]" || len(reductions) != 1 {
		t.Errorf("reduce(!bar) = %v, %v", got, reductions)
	}

	single := sliceOf(PreferNewest, v("foo", "1", "bar-1"))
	got, reductions = single.reduce(version.MustParseRequirement("bar==2"))
	if got != nil || len(reductions) != 1 {
		t.Errorf("total reduction = %v, %v", got, reductions)
	}
}

func TestSliceExtract(t *testing.T) {
	s := sliceOf(PreferNewest,
		v("lib", "1.0", "util-1", "zlib", "py-2"),
		v("lib", "1.5", "util-1", "zlib", "py-3"),
	)

	first, req := s.extract()
	if req == nil || req.String() != "util-1" {
		t.Fatalf("first extraction = %v", req)
	}
	if first == s {
		t.Fatal("extract should return a new slice")
	}
	if !first.isExtracted("util") || s.isExtracted("util") {
		t.Error("extraction must only mark the new slice")
	}

	second, req := first.extract()
	if req == nil || req.String() != "zlib" {
		t.Fatalf("second extraction = %v", req)
	}

	// py ranges differ between the variants.
	third, req := second.extract()
	if req != nil || third != second {
		t.Errorf("third extraction = %v", req)
	}
}

func TestSliceSplit(t *testing.T) {
	s := sliceOf(PreferNewest,
		v("x", "1", "y-2"),
		v("x", "2", "y-1"),
		v("x", "3", "y-1"),
	)
	near, far := s.split()
	if near.String() != "x[2..3(2:2)]*" || far.String() != "x[1]*" {
		t.Errorf("split = %s, %s", near, far)
	}

	oldest := sliceOf(PreferOldest, s.variants...)
	near, far = oldest.split()
	if near.String() != "x[1..2(2:2)]" || far.String() != "x[3]*" {
		t.Errorf("oldest split = %s, %s", near, far)
	}

	t.Run("group shares a family at any range", func(t *testing.T) {
		s := sliceOf(PreferNewest,
			MustNewVariant("foo", "1.0", 0, "py-2.5"),
			MustNewVariant("foo", "1.0", 1, "py-2.6"),
			MustNewVariant("foo", "1.0", 2, "py-2.7"),
		)
		near, far := s.split()
		if near.String() != "foo[1.0..1.0(1:2)]" || far.String() != "foo[1.0[2]]*" {
			t.Errorf("split = %s, %s", near, far)
		}
	})

	t.Run("group stops at a record without the family", func(t *testing.T) {
		s := sliceOf(PreferNewest,
			v("x", "1", "y-1"),
			v("x", "2", "z-1"),
			v("x", "3", "y-1"),
			v("x", "4", "y-2"),
		)
		near, far := s.split()
		if near.String() != "x[3..4(2:2)]" || far.String() != "x[1..2(2:2)]" {
			t.Errorf("split = %s, %s", near, far)
		}
	})

	t.Run("two records", func(t *testing.T) {
		s := sliceOf(PreferNewest, v("x", "1", "y-1"), v("x", "2", "y-2"))
		near, far := s.split()
		if near.String() != "x[2]*" || far.String() != "x[1]*" {
			t.Errorf("split = %s, %s", near, far)
		}
	})

	t.Run("variants within a version", func(t *testing.T) {
		s := sliceOf(PreferNewest,
			MustNewVariant("foo", "1.0", 1, "py-2.6"),
			MustNewVariant("foo", "1.0", 0, "py-2.5"),
		)
		near, _ := s.split()
		if near.String() != "foo[1.0[0]]*" {
			t.Errorf("near = %s", near)
		}
	})

	t.Run("single record", func(t *testing.T) {
		near, far := sliceOf(PreferNewest, v("x", "1")).split()
		if near != nil || far != nil {
			t.Error("a single record cannot be split")
		}
	})
}

func TestPairSet(t *testing.T) {
	s := newPairSet()
	s.add(2, 0)
	s.add(0, 1)
	s.add(1, 1)
	s.add(0, 1)
	s.addFrom(1, 3)

	var got []pair
	for {
		p, ok := s.pop()
		if !ok {
			break
		}
		got = append(got, p)
	}
	want := []pair{{0, 1}, {1, 0}, {1, 2}, {2, 0}}
	if !slices.Equal(got, want) {
		t.Errorf("pop order = %v, want %v", got, want)
	}

	s.addAll(3)
	c := s.clone()
	c.pop()
	if s.len() != 6 || c.len() != 5 {
		t.Errorf("len = %d, clone len = %d", s.len(), c.len())
	}
}

func TestCatalogLoadsLazily(t *testing.T) {
	repo := newTestRepo(v("x", "1"), v("x", "2"), v("x", "3"), v("x", "4"))
	cache := newVariantCache(repo, time.Time{}, PreferNewest)
	ctx := context.Background()

	s, err := cache.getSlice(ctx, "x", version.MustParseRange("<2"))
	if err != nil {
		t.Fatal(err)
	}
	if s.String() != "x[1]" {
		t.Errorf("slice = %s", s)
	}
	if repo.pulled != 3 {
		t.Errorf("pulled %d variants, want 3", repo.pulled)
	}

	cache.close()
	s, err = cache.getSlice(ctx, "x", version.Any())
	if err != nil {
		t.Fatal(err)
	}
	if s.String() != "x[1..4(4:4)]" {
		t.Errorf("slice after restart = %s", s)
	}

	if s, err := cache.getSlice(ctx, "x", version.MustParseRange("9")); s != nil || err != nil {
		t.Errorf("no match = %v, %v", s, err)
	}
	cache.close()
}
