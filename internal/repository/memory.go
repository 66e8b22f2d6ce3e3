package repository

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// Family is a package family and its versions, ascending.
type Family struct {
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
}

// Lister is implemented by repositories that can enumerate their families.
type Lister interface {
	Families(ctx context.Context) ([]Family, error)
}

// Memory is an in-process repository. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	families map[string][]*solver.Variant
}

// NewMemory returns an empty memory repository.
func NewMemory() *Memory {
	return &Memory{families: make(map[string][]*solver.Variant)}
}

// memoryDocument is the YAML layout read by LoadMemory.
type memoryDocument struct {
	Packages []*Manifest `yaml:"packages"`
}

// LoadMemory parses a YAML document with a top-level packages list of
// manifests.
func LoadMemory(data []byte) (*Memory, error) {
	var doc memoryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing packages: %w", err)
	}
	m := NewMemory()
	for _, pkg := range doc.Packages {
		if err := pkg.Validate(); err != nil {
			return nil, err
		}
		if err := m.Add(pkg); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add adds every variant of the package. Adding a version that is already
// present replaces it.
func (m *Memory) Add(pkg *Manifest) error {
	variants, err := pkg.SolverVariants()
	if err != nil {
		return err
	}
	m.AddVariants(variants...)
	return nil
}

// AddVariants adds prebuilt variants. Variants replace those with the same
// version and index.
func (m *Memory) AddVariants(variants ...*solver.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range variants {
		vs := m.families[v.Family]
		vs = slices.DeleteFunc(vs, func(o *solver.Variant) bool {
			return o.Version.Equal(v.Version) && o.Index == v.Index
		})
		vs = append(vs, v)
		sortVariants(vs)
		m.families[v.Family] = vs
	}
}

// Variants yields a snapshot of the family's variants.
func (m *Memory) Variants(_ context.Context, family string, _ time.Time) iter.Seq2[*solver.Variant, error] {
	m.mu.RLock()
	vs := slices.Clone(m.families[family])
	m.mu.RUnlock()

	return func(yield func(*solver.Variant, error) bool) {
		for _, v := range vs {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// FamilyExists reports whether any variant of family was added.
func (m *Memory) FamilyExists(_ context.Context, family string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.families[family]
	return ok, nil
}

// Families lists every family, sorted by name.
func (m *Memory) Families(_ context.Context) ([]Family, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Family, 0, len(m.families))
	for name, vs := range m.families {
		f := Family{Name: name}
		var last *version.Version
		for _, v := range vs {
			if last != nil && last.Equal(v.Version) {
				continue
			}
			f.Versions = append(f.Versions, v.Version.String())
			last = &v.Version
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func sortVariants(vs []*solver.Variant) {
	slices.SortFunc(vs, solver.CompareVariants)
}
