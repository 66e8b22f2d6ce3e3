package repository

import (
	"context"
	"iter"
	"slices"
	"sort"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// Chain searches an ordered list of repositories, as a packages path does.
// When several repositories hold the same version of a package, the
// earliest one wins.
type Chain struct {
	providers []solver.Provider
}

// NewChain returns a chain over providers, searched in order.
func NewChain(providers ...solver.Provider) *Chain {
	return &Chain{providers: providers}
}

// Providers returns the chained repositories.
func (c *Chain) Providers() []solver.Provider {
	return slices.Clone(c.providers)
}

// FamilyExists reports whether any repository knows family.
func (c *Chain) FamilyExists(ctx context.Context, family string) (bool, error) {
	for _, p := range c.providers {
		ok, err := p.FamilyExists(ctx, family)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type chainHead struct {
	v    *solver.Variant
	next func() (*solver.Variant, error, bool)
	stop func()
}

// Variants merges the repositories' ascending sequences. Each repository is
// only read as far as the merge needs.
func (c *Chain) Variants(ctx context.Context, family string, cutoff time.Time) iter.Seq2[*solver.Variant, error] {
	return func(yield func(*solver.Variant, error) bool) {
		heads := make([]*chainHead, 0, len(c.providers))
		defer func() {
			for _, h := range heads {
				h.stop()
			}
		}()

		// advance moves h to its next variant; h.v is nil once exhausted.
		advance := func(h *chainHead) error {
			v, err, ok := h.next()
			if err != nil {
				return err
			}
			if !ok {
				h.v = nil
				return nil
			}
			h.v = v
			return nil
		}

		for _, p := range c.providers {
			next, stop := iter.Pull2(p.Variants(ctx, family, cutoff))
			h := &chainHead{next: next, stop: stop}
			heads = append(heads, h)
			if err := advance(h); err != nil {
				yield(nil, err)
				return
			}
		}

		for {
			var winner *chainHead
			for _, h := range heads {
				if h.v != nil && (winner == nil || h.v.Version.Less(winner.v.Version)) {
					winner = h
				}
			}
			if winner == nil {
				return
			}
			ver := winner.v.Version

			// Later repositories shadowed at this version.
			for _, h := range heads {
				if h == winner {
					continue
				}
				for h.v != nil && h.v.Version.Equal(ver) {
					if err := advance(h); err != nil {
						yield(nil, err)
						return
					}
				}
			}

			for winner.v != nil && winner.v.Version.Equal(ver) {
				if !yield(winner.v, nil) {
					return
				}
				if err := advance(winner); err != nil {
					yield(nil, err)
					return
				}
			}
		}
	}
}

// Families merges the family listings of every repository that can list
// its families.
func (c *Chain) Families(ctx context.Context) ([]Family, error) {
	merged := make(map[string]map[string]version.Version)
	for _, p := range c.providers {
		lister, ok := p.(Lister)
		if !ok {
			continue
		}
		families, err := lister.Families(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range families {
			vs, ok := merged[f.Name]
			if !ok {
				vs = make(map[string]version.Version)
				merged[f.Name] = vs
			}
			for _, s := range f.Versions {
				vs[s] = parseVersionOrEmpty(s)
			}
		}
	}

	out := make([]Family, 0, len(merged))
	for name, vs := range merged {
		versions := make([]version.Version, 0, len(vs))
		for _, v := range vs {
			versions = append(versions, v)
		}
		slices.SortFunc(versions, version.Version.Compare)
		f := Family{Name: name}
		for _, v := range versions {
			f.Versions = append(f.Versions, v.String())
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
