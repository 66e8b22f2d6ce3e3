package repository

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// FilterRules are package filter expressions. A variant is hidden when an
// exclude rule matches it and no include rule does.
//
// Rules see name, version, index, timestamp (unix seconds, 0 if unknown)
// and requires, and may call in_range(version, range):
//
//	name == "py" && !in_range(version, "2.7+")
//	timestamp > 1700000000
type FilterRules struct {
	Excludes []string `yaml:"excludes,omitempty" json:"excludes,omitempty"`
	Includes []string `yaml:"includes,omitempty" json:"includes,omitempty"`
}

// IsEmpty reports whether no rule is set.
func (r FilterRules) IsEmpty() bool {
	return len(r.Excludes) == 0 && len(r.Includes) == 0
}

type ruleEnv struct {
	Name      string   `expr:"name"`
	Version   string   `expr:"version"`
	Index     int      `expr:"index"`
	Timestamp int64    `expr:"timestamp"`
	Requires  []string `expr:"requires"`
}

type rule struct {
	source  string
	program *vm.Program
}

var inRange = expr.Function("in_range",
	func(params ...any) (any, error) {
		v, err := version.Parse(params[0].(string))
		if err != nil {
			return nil, err
		}
		r, err := version.ParseRange(params[1].(string))
		if err != nil {
			return nil, err
		}
		return r.Contains(v), nil
	},
	new(func(string, string) bool),
)

func compileRule(source string) (*rule, error) {
	if source == "" {
		return nil, fmt.Errorf("empty filter rule")
	}
	program, err := expr.Compile(source, expr.Env(ruleEnv{}), expr.AsBool(), inRange)
	if err != nil {
		return nil, fmt.Errorf("filter rule %q: %w", source, err)
	}
	return &rule{source: source, program: program}, nil
}

func (r *rule) match(env ruleEnv) (bool, error) {
	out, err := expr.Run(r.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluating filter rule %q: %w", r.source, err)
	}
	return out.(bool), nil
}

// Filter hides variants of another provider matching its rules.
type Filter struct {
	provider solver.Provider
	excludes []*rule
	includes []*rule
}

// NewFilter compiles rules and wraps provider.
func NewFilter(provider solver.Provider, rules FilterRules) (*Filter, error) {
	f := &Filter{provider: provider}
	for _, src := range rules.Excludes {
		r, err := compileRule(src)
		if err != nil {
			return nil, err
		}
		f.excludes = append(f.excludes, r)
	}
	for _, src := range rules.Includes {
		r, err := compileRule(src)
		if err != nil {
			return nil, err
		}
		f.includes = append(f.includes, r)
	}
	return f, nil
}

// Excluded reports whether v is hidden by the filter.
func (f *Filter) Excluded(v *solver.Variant) (bool, error) {
	if len(f.excludes) == 0 {
		return false, nil
	}
	env := ruleEnv{
		Name:    v.Family,
		Version: v.Version.String(),
		Index:   v.Index,
	}
	if !v.Timestamp.IsZero() {
		env.Timestamp = v.Timestamp.Unix()
	}
	for _, req := range v.Requires() {
		env.Requires = append(env.Requires, req.String())
	}

	excluded := false
	for _, r := range f.excludes {
		ok, err := r.match(env)
		if err != nil {
			return false, err
		}
		if ok {
			excluded = true
			break
		}
	}
	if !excluded {
		return false, nil
	}
	for _, r := range f.includes {
		ok, err := r.match(env)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

// FamilyExists delegates to the wrapped provider. A family whose variants
// are all filtered out still exists.
func (f *Filter) FamilyExists(ctx context.Context, family string) (bool, error) {
	return f.provider.FamilyExists(ctx, family)
}

// Variants yields the wrapped provider's variants that are not excluded.
func (f *Filter) Variants(ctx context.Context, family string, cutoff time.Time) iter.Seq2[*solver.Variant, error] {
	return func(yield func(*solver.Variant, error) bool) {
		for v, err := range f.provider.Variants(ctx, family, cutoff) {
			if err != nil {
				yield(nil, err)
				return
			}
			hide, err := f.Excluded(v)
			if err != nil {
				yield(nil, err)
				return
			}
			if hide {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Families delegates to the wrapped provider when it can list families.
func (f *Filter) Families(ctx context.Context) ([]Family, error) {
	if l, ok := f.provider.(Lister); ok {
		return l.Families(ctx)
	}
	return nil, nil
}
