package solver

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// Provider supplies package variants to the solver.
type Provider interface {
	// Variants yields every variant of family in ascending (version, index)
	// order. Providers may skip variants released after cutoff; the solver
	// filters them either way. Each call starts a fresh sequence.
	Variants(ctx context.Context, family string, cutoff time.Time) iter.Seq2[*Variant, error]

	// FamilyExists reports whether the provider knows family.
	FamilyExists(ctx context.Context, family string) (bool, error)
}

// FamilyNotFoundError is returned when a requirement names a family the
// provider does not know.
type FamilyNotFoundError struct {
	Family string
}

func (e *FamilyNotFoundError) Error() string {
	return fmt.Sprintf("package family %q not found", e.Family)
}

// catalog holds the variants of one family loaded so far. Variants are
// pulled from the provider lazily, only as far as a range needs.
type catalog struct {
	family   string
	provider Provider
	cutoff   time.Time

	variants []*Variant
	last     *Variant // last variant pulled, including cut-off ones
	next     func() (*Variant, error, bool)
	stop     func()
	done     bool
}

// load pulls variants until every version up to upper has been seen.
func (c *catalog) load(ctx context.Context, upper version.Version, unbounded bool) error {
	for !c.done {
		if !unbounded && c.last != nil && c.last.Version.Compare(upper) > 0 {
			return nil
		}
		if c.next == nil {
			c.next, c.stop = iter.Pull2(c.provider.Variants(ctx, c.family, c.cutoff))
		}

		v, err, ok := c.next()
		if err != nil {
			c.close()
			return fmt.Errorf("loading %s variants: %w", c.family, err)
		}
		if !ok {
			c.close()
			c.done = true
			return nil
		}
		if v.Family != c.family {
			c.close()
			return fmt.Errorf("loading %s variants: provider returned %s", c.family, v)
		}
		// Duplicates, and the replayed head of a restarted sequence.
		if c.last != nil && CompareVariants(v, c.last) <= 0 {
			continue
		}
		c.last = v
		if !c.cutoff.IsZero() && v.Timestamp.After(c.cutoff) {
			continue
		}
		c.variants = append(c.variants, v)
	}
	return nil
}

func (c *catalog) close() {
	if c.stop != nil {
		c.stop()
	}
	c.next, c.stop = nil, nil
}

func (c *catalog) slice(ctx context.Context, r version.Range, pref Preference) (*variantSlice, error) {
	upper, unbounded := r.Upper()
	if err := c.load(ctx, upper, unbounded); err != nil {
		return nil, err
	}

	var matched []*Variant
	for _, v := range c.variants {
		if r.Contains(v.Version) {
			matched = append(matched, v)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	return newVariantSlice(c.family, matched, nil, pref), nil
}

// variantCache owns one catalog per family for the lifetime of a solve.
type variantCache struct {
	provider Provider
	cutoff   time.Time
	pref     Preference
	catalogs map[string]*catalog
}

func newVariantCache(provider Provider, cutoff time.Time, pref Preference) *variantCache {
	return &variantCache{
		provider: provider,
		cutoff:   cutoff,
		pref:     pref,
		catalogs: make(map[string]*catalog),
	}
}

// getSlice returns the variants of family within r, or nil if there are
// none. An unknown family is a *FamilyNotFoundError.
func (c *variantCache) getSlice(ctx context.Context, family string, r version.Range) (*variantSlice, error) {
	cat, ok := c.catalogs[family]
	if !ok {
		exists, err := c.provider.FamilyExists(ctx, family)
		if err != nil {
			return nil, fmt.Errorf("checking family %s: %w", family, err)
		}
		if !exists {
			return nil, &FamilyNotFoundError{Family: family}
		}
		cat = &catalog{family: family, provider: c.provider, cutoff: c.cutoff}
		c.catalogs[family] = cat
	}
	return cat.slice(ctx, r, c.pref)
}

// close stops every open provider sequence. The cache stays usable; a
// later load restarts the sequence and skips what is already loaded.
func (c *variantCache) close() {
	for _, cat := range c.catalogs {
		cat.close()
	}
}
