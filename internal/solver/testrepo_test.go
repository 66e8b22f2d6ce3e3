package solver

import (
	"context"
	"errors"
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// testRepo is an in-memory Provider that counts how many variants it
// yields.
type testRepo struct {
	families map[string][]*Variant
	pulled   int
}

func newTestRepo(variants ...*Variant) *testRepo {
	r := &testRepo{families: make(map[string][]*Variant)}
	for _, v := range variants {
		r.families[v.Family] = append(r.families[v.Family], v)
	}
	for _, vs := range r.families {
		slices.SortFunc(vs, CompareVariants)
	}
	return r
}

func (r *testRepo) Variants(_ context.Context, family string, _ time.Time) iter.Seq2[*Variant, error] {
	return func(yield func(*Variant, error) bool) {
		for _, v := range r.families[family] {
			r.pulled++
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (r *testRepo) FamilyExists(_ context.Context, family string) (bool, error) {
	_, ok := r.families[family]
	return ok, nil
}

// flakyRepo fails the first FamilyExists call for one family.
type flakyRepo struct {
	*testRepo
	family string
	failed bool
}

func (r *flakyRepo) FamilyExists(ctx context.Context, family string) (bool, error) {
	if family == r.family && !r.failed {
		r.failed = true
		return false, errors.New("transient")
	}
	return r.testRepo.FamilyExists(ctx, family)
}

// ctxRepo fails reads made with a done context.
type ctxRepo struct {
	*testRepo
}

func (r ctxRepo) Variants(ctx context.Context, family string, cutoff time.Time) iter.Seq2[*Variant, error] {
	return func(yield func(*Variant, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		for v, err := range r.testRepo.Variants(ctx, family, cutoff) {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (r ctxRepo) FamilyExists(ctx context.Context, family string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.testRepo.FamilyExists(ctx, family)
}

func v(family, ver string, requires ...string) *Variant {
	return MustNewVariant(family, ver, NoIndex, requires...)
}

func reqs(ss ...string) []version.Requirement {
	out := make([]version.Requirement, 0, len(ss))
	for _, s := range ss {
		out = append(out, version.MustParseRequirement(s))
	}
	return out
}

func runSolver(t *testing.T, repo Provider, opts Options, request ...string) *Solver {
	t.Helper()
	s, err := New(reqs(request...), repo, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Solve(context.Background()); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	return s
}

func names(vs []*Variant) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.String())
	}
	return out
}

func pyRepo() *testRepo {
	return newTestRepo(
		v("py", "2.5.2"),
		v("py", "2.6.8"),
		v("py", "2.7.0"),
	)
}

// appRepo has a solution that needs backtracking when tool-2 is requested.
func appRepo() *testRepo {
	return newTestRepo(
		v("app", "1.0", "lib-1", "tool"),
		v("app", "2.0", "lib-2", "tool-1"),
		v("lib", "1.0", "util-1"),
		v("lib", "1.5", "util-1"),
		v("lib", "2.0", "util-2"),
		v("tool", "1.0"),
		v("tool", "2.0", "!lib-2"),
		v("util", "1.0"),
		v("util", "2.0"),
	)
}
